package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"symbiosing/internal/config"
	database "symbiosing/internal/db"
	"symbiosing/internal/peersync"
	"symbiosing/internal/playback"
)

// PlaybackHandler starts and stops playback of the stored sequence.
type PlaybackHandler struct {
	db     *database.Client
	runner *playback.Runner
	hub    *peersync.Hub
	cfg    *config.Config
}

func NewPlaybackHandler(db *database.Client, runner *playback.Runner, hub *peersync.Hub, cfg *config.Config) *PlaybackHandler {
	return &PlaybackHandler{db: db, runner: runner, hub: hub, cfg: cfg}
}

// Play flattens the stored sequence and starts it. With synchronized=true
// the engine waits for a countdown that the hub then broadcasts to every
// peer.
func (h *PlaybackHandler) Play(c *gin.Context) {
	var input struct {
		Synchronized bool `json:"synchronized"`
		Steps        int  `json:"steps"`
		IntervalMs   int  `json:"intervalMs"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// 1. Snapshot the sequence and assignment
	seq, err := h.db.LoadSequence()
	if err != nil {
		respondError(c, err)
		return
	}
	entries := seq.Flatten()
	if len(entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sequence is empty"})
		return
	}

	if !input.Synchronized {
		if err := h.runner.Play(entries); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, h.runner.Status())
		return
	}

	// 2. Arm the engine, then start the shared countdown
	steps := input.Steps
	if steps <= 0 {
		steps = h.cfg.Playback.CountdownSteps
	}
	interval := time.Duration(input.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Duration(h.cfg.Playback.CountdownIntervalMs) * time.Millisecond
	}
	if err := h.runner.PlaySynchronized(entries, steps); err != nil {
		respondError(c, err)
		return
	}
	session, err := h.hub.StartCountdown(interval, steps)
	if err != nil {
		h.runner.Stop()
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": session, "status": h.runner.Status()})
}

// Stop halts local playback and tells peers to stop.
func (h *PlaybackHandler) Stop(c *gin.Context) {
	h.hub.CancelCountdown()
	if err := h.runner.Stop(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.runner.Status())
}

func (h *PlaybackHandler) Status(c *gin.Context) {
	st := h.runner.Status()
	c.JSON(http.StatusOK, gin.H{"status": st, "peers": h.hub.Peers()})
}

// Runs lists recent playback runs, newest first.
func (h *PlaybackHandler) Runs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	runs, err := h.db.RecentRuns(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}
