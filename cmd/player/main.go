package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"symbiosing/internal/config"
	database "symbiosing/internal/db"
	"symbiosing/internal/device"
	"symbiosing/internal/instruction"
	"symbiosing/internal/peersync"
	"symbiosing/internal/playback"
	"symbiosing/internal/sequence"
)

func main() {
	// 1. Parse Flags
	assignFlag := flag.String("assign", "", `Role to device map, e.g. "lead=0,1;bass=2" (default: every role on every device)`)
	stored := flag.Bool("stored", false, "Play the sequence stored in the database instead of set files")
	dryRun := flag.Bool("dry-run", false, "Log device commands instead of writing to serial ports")
	syncFlag := flag.Bool("sync", false, "Wait for a countdown from the sync hub before starting")
	lead := flag.Bool("lead", false, "With -sync, ask the hub to start the countdown")
	hubURL := flag.String("hub", "", "Sync hub websocket URL (overrides peers.hub_url)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// 2. Load Config
	cfg := config.Load()
	if *dryRun {
		cfg.Playback.DryRun = true
	}
	if *hubURL != "" {
		cfg.Peers.HubURL = *hubURL
	}
	registry := device.NewRegistry(cfg.Devices)

	// 3. Build the sequence
	seq, err := loadSequence(cfg, *stored, flag.Args(), *assignFlag, registry)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	entries := seq.Flatten()
	if len(entries) == 0 {
		log.Fatal("❌ Nothing to play")
	}
	log.Printf("Sequence: %d parts, %d entries, %s, assignment %s",
		len(seq.Parts), len(entries), sequence.Duration(seq.Parts), seq.Assignment)

	// 4. Devices
	var sink playback.Sink
	if cfg.Playback.DryRun {
		log.Println("🧪 MODE: DRY RUN (device commands are logged only)")
		sink = device.DrySink{Registry: registry}
	} else {
		serialSink := device.OpenSerial(registry)
		defer serialSink.Close()
		sink = serialSink
	}

	// 5. Engine
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan playback.Status, 1)
	runner := playback.NewRunner(
		playback.NewEngine(playback.RealClock{}, sink),
		time.Duration(cfg.Playback.TickMs)*time.Millisecond,
	)
	runner.OnIdle(func(st playback.Status) {
		select {
		case finished <- st:
		default:
		}
	})
	go runner.Run(ctx)

	// 6. Start, directly or on the hub's countdown
	if *syncFlag {
		if err := startSynchronized(ctx, cfg, runner, entries, *lead); err != nil {
			log.Fatalf("❌ %v", err)
		}
	} else if err := runner.Play(entries); err != nil {
		log.Fatalf("❌ %v", err)
	}

	select {
	case st := <-finished:
		log.Printf("📊 Fired %d/%d entries, %d commands sent, %d failed", st.Fired, st.Total, st.Dispatched, st.Failed)
	case <-ctx.Done():
		log.Println("⏹️ Interrupted")
	}
}

func loadSequence(cfg *config.Config, stored bool, files []string, assignSpec string, registry *device.Registry) (sequence.Sequence, error) {
	var seq sequence.Sequence
	if stored {
		db := database.New(cfg)
		s, err := db.LoadSequence()
		if err != nil {
			return seq, err
		}
		seq = s
	} else {
		if len(files) == 0 {
			flag.Usage()
			os.Exit(2)
		}
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				return seq, err
			}
			set, err := instruction.Decode(data)
			if err != nil {
				return seq, err
			}
			seq.Parts = append(seq.Parts, sequence.Part{Name: path, Set: set})
		}
	}

	switch {
	case assignSpec != "":
		a, err := sequence.ParseAssignment(assignSpec)
		if err != nil {
			return seq, err
		}
		seq.Assignment = a
	case len(seq.Assignment) == 0:
		seq.Assignment = everyRoleEverywhere(seq.Parts, registry)
	}

	if registry.Len() > 0 {
		for role := range seq.Assignment {
			if err := registry.Validate(seq.Assignment[role]); err != nil {
				return seq, err
			}
		}
	}
	return seq, nil
}

func everyRoleEverywhere(parts []sequence.Part, registry *device.Registry) sequence.Assignment {
	devices := []int{0}
	if registry.Len() > 0 {
		devices = devices[:0]
		for i := 0; i < registry.Len(); i++ {
			devices = append(devices, i)
		}
	}
	a := sequence.Assignment{}
	for _, p := range parts {
		for _, r := range p.Set.Roles() {
			a[r] = devices
		}
	}
	return a
}

func startSynchronized(ctx context.Context, cfg *config.Config, runner *playback.Runner, entries []sequence.Entry, lead bool) error {
	if cfg.Peers.HubURL == "" {
		return fmt.Errorf("-sync needs peers.hub_url or -hub")
	}
	client, err := peersync.Dial(ctx, cfg.Peers.HubURL)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	if err := runner.PlaySynchronized(entries, cfg.Playback.CountdownSteps); err != nil {
		return err
	}
	go followHub(client.Messages(), runner)

	if lead {
		interval := time.Duration(cfg.Playback.CountdownIntervalMs) * time.Millisecond
		return client.RequestStart(interval, cfg.Playback.CountdownSteps)
	}
	log.Printf("⏳ Waiting for a countdown from %s", cfg.Peers.HubURL)
	return nil
}

// followHub forwards hub messages to the runner until the connection ends.
// A countdown that can no longer complete is abandoned so the player exits.
func followHub(msgs <-chan peersync.Message, runner *playback.Runner) {
	for msg := range msgs {
		switch msg.Type {
		case peersync.TypeCountdown:
			log.Printf("⏳ %d / %d", msg.Count, msg.OutOf)
			runner.Countdown(msg.Count, msg.OutOf)
		case peersync.TypeStop:
			runner.Stop()
		}
	}

	switch runner.Status().State {
	case playback.Countdown:
		log.Println("⚠️ Sync hub connection lost during countdown, giving up")
		runner.Stop()
	case playback.Running:
		log.Println("⚠️ Sync hub connection lost, playing on without remote stop")
	}
}
