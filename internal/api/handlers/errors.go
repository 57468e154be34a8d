package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	database "symbiosing/internal/db"
	"symbiosing/internal/instruction"
	"symbiosing/internal/playback"
	"symbiosing/internal/score"
	"symbiosing/internal/storage"
	"symbiosing/internal/timeline"
)

// respondError maps domain errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var (
		ve *instruction.ValidationError
		pe *score.ParseError
		ce *timeline.ConflictError
	)
	switch {
	case errors.Is(err, database.ErrSetNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, playback.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": ve.Field})
	case errors.As(err, &pe), errors.As(err, &ce):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.Printf("❌ Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RequireIdle rejects edits while a playback or countdown is active.
func RequireIdle(runner *playback.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st := runner.Status(); st.State != playback.NotRunning {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "schedules cannot be edited while playback is " + st.State.String(),
			})
			return
		}
		c.Next()
	}
}
