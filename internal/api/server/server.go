package server

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"symbiosing/internal/config"
	database "symbiosing/internal/db"
	"symbiosing/internal/device"
	"symbiosing/internal/peersync"
	"symbiosing/internal/playback"
	"symbiosing/internal/storage"

	"symbiosing/internal/api/handlers"
	"symbiosing/internal/api/middleware"
)

type Server struct {
	cfg     *config.Config
	db      *database.Client
	storage *storage.Client
	runner  *playback.Runner
	hub     *peersync.Hub
	devices *device.Registry
	router  *gin.Engine
}

func New(cfg *config.Config, db *database.Client, storage *storage.Client, runner *playback.Runner, hub *peersync.Hub, devices *device.Registry) *Server {
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		db:      db,
		storage: storage,
		runner:  runner,
		hub:     hub,
		devices: devices,
		router:  gin.New(),
	}

	s.router.Use(middleware.RequestLog(), gin.Recovery())
	s.setupMiddleware()
	s.setupRoutes()
	s.followHub()

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	// IMPORTANT: "Authorization" must be allowed so the control panel can send the JWT
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}

	s.router.Use(cors.New(corsConfig))
}

// followHub drives the local engine from the hub's countdown so that this
// process starts on the same message as every remote peer.
func (s *Server) followHub() {
	s.hub.Subscribe(func(msg peersync.Message) {
		var err error
		switch msg.Type {
		case peersync.TypeCountdown:
			err = s.runner.Countdown(msg.Count, msg.OutOf)
		case peersync.TypeStop:
			err = s.runner.Stop()
		}
		if err != nil {
			log.Printf("⚠️ Sync message %s not delivered to engine: %v", msg.Type, err)
		}
	})
}

func (s *Server) setupRoutes() {
	// 1. Initialize Modular Handlers
	setHandler := handlers.NewSetHandler(s.db, s.storage)
	convertHandler := handlers.NewConvertHandler(s.db, s.cfg)
	sequenceHandler := handlers.NewSequenceHandler(s.db, s.devices)
	playbackHandler := handlers.NewPlaybackHandler(s.db, s.runner, s.hub, s.cfg)

	// Health Check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "symbiosing"})
	})

	secret := []byte(s.cfg.Auth.JWTSecret)

	// Peers authenticate with ?token= since browsers cannot add headers to an upgrade
	s.router.GET("/sync/ws", middleware.RequireAuth(secret), gin.WrapH(s.hub))

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequireAuth(secret))
	{
		viewer := v1.Group("/")
		viewer.Use(middleware.RequireRole(middleware.RoleViewer))
		{
			viewer.GET("/sets", setHandler.ListSets)
			viewer.GET("/sets/:name", setHandler.GetSet)
			viewer.GET("/files", setHandler.ListFiles)
			viewer.GET("/sequence", sequenceHandler.GetSequence)
			viewer.GET("/sequence/entries", sequenceHandler.GetEntries)
			viewer.GET("/devices", sequenceHandler.GetDevices)
			viewer.GET("/playback/status", playbackHandler.Status)
			viewer.GET("/playback/runs", playbackHandler.Runs)
		}

		// --- OPERATOR (authoring and playback) ---
		operator := v1.Group("/")
		operator.Use(middleware.RequireRole(middleware.RoleOperator))
		{
			operator.POST("/convert", convertHandler.Convert)
			operator.POST("/playback/play", playbackHandler.Play)
			operator.POST("/playback/stop", playbackHandler.Stop)
			operator.POST("/sets/:name/export", setHandler.ExportSet)

			// Edits are refused while a playback or countdown is active
			edit := operator.Group("/")
			edit.Use(handlers.RequireIdle(s.runner))
			{
				edit.POST("/sets", setHandler.CreateSet)
				edit.PUT("/sets/:name", setHandler.PutSet)
				edit.DELETE("/sets/:name", setHandler.DeleteSet)
				edit.POST("/sets/:name/import", setHandler.ImportSet)
				edit.POST("/sets/:name/instants", setHandler.AppendInstant)
				edit.DELETE("/sets/:name/instants/last", setHandler.DeleteLastInstant)
				edit.PUT("/sets/:name/instants/:index", setHandler.RetimeInstant)
				edit.POST("/sets/:name/reset", setHandler.ResetSet)
				edit.POST("/sets/:name/roles", setHandler.AddRole)
				edit.PUT("/sets/:name/roles/:role", setHandler.RenameRole)
				edit.DELETE("/sets/:name/roles/:role", setHandler.RemoveRole)
				edit.DELETE("/sets/:name/tracks/:index", setHandler.RemoveTrack)
				edit.PATCH("/sets/:name/roles/:role/commands/:index", setHandler.UpdateCommand)
				edit.PUT("/sequence", sequenceHandler.PutSequence)
				edit.PUT("/assignment", sequenceHandler.PutAssignment)
			}
		}
	}
}

// Start runs the server on the configured port
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}
