package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"symbiosing/internal/api/middleware"
	"symbiosing/internal/config"
	database "symbiosing/internal/db"
	"symbiosing/internal/device"
	"symbiosing/internal/peersync"
	"symbiosing/internal/playback"
	"symbiosing/internal/storage"

	// Use an alias to prevent naming collisions with the 'server' variable
	apiserver "symbiosing/internal/api/server"
)

func main() {
	seed := flag.Bool("seed", false, "Store a demo sequence when the database is empty")
	dryRun := flag.Bool("dry-run", false, "Log device commands instead of writing to serial ports")
	issueToken := flag.String("issue-token", "", "Print a JWT for the given role (viewer, operator, admin) and exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// 1. Setup Configuration
	cfg := config.Load()
	if *dryRun {
		cfg.Playback.DryRun = true
	}

	if *issueToken != "" {
		role, err := middleware.ParseRole(*issueToken)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), "cli", role, 30*24*time.Hour)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Println(token)
		return
	}
	log.Println("Starting Symbiosing API Server...")

	// 2. Initialize Infrastructure
	db := database.New(cfg)
	store := storage.New(cfg)

	// 3. Run Database Migrations
	db.AutoMigrate()
	if *seed {
		database.SeedExample(db)
	}

	// 4. Devices
	registry := device.NewRegistry(cfg.Devices)
	var sink playback.Sink
	if cfg.Playback.DryRun {
		log.Println("🧪 MODE: DRY RUN (device commands are logged only)")
		sink = device.DrySink{Registry: registry}
	} else {
		serialSink := device.OpenSerial(registry)
		defer serialSink.Close()
		sink = serialSink
	}

	// 5. Playback engine, recording every run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := playback.NewRunner(
		playback.NewEngine(playback.RealClock{}, sink),
		time.Duration(cfg.Playback.TickMs)*time.Millisecond,
	)
	runner.OnIdle(func(st playback.Status) {
		if err := db.RecordRun(st, time.Now()); err != nil {
			log.Printf("⚠️ Could not record playback run: %v", err)
		}
	})
	go runner.Run(ctx)

	hub := peersync.NewHub()
	defer hub.Close()

	// 6. Setup Metrics
	playback.RegisterMetrics()
	go func() {
		http.Handle("/_metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/_metrics", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(cfg.Server.MetricsPort, nil); err != nil {
			log.Printf("⚠️ Metrics server error: %v", err)
		}
	}()

	// 7. Start Server
	srv := apiserver.New(cfg, db, store, runner, hub, registry)
	go func() {
		log.Printf("🚀 API Server starting on %s", cfg.Server.Port)
		if err := srv.Start(cfg.Server.Port); err != nil {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
}
