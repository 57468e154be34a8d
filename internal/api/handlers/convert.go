package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"symbiosing/internal/config"
	database "symbiosing/internal/db"
	"symbiosing/internal/score"
	"symbiosing/internal/timeline"
)

// ConvertHandler turns a score plus a part mapping into a stored set.
type ConvertHandler struct {
	db  *database.Client
	cfg *config.Config
}

func NewConvertHandler(db *database.Client, cfg *config.Config) *ConvertHandler {
	return &ConvertHandler{db: db, cfg: cfg}
}

// Convert accepts the score and mapping documents as strings (YAML or JSON).
// With save=true the result is stored under name.
func (h *ConvertHandler) Convert(c *gin.Context) {
	var input struct {
		Name    string `json:"name"`
		Score   string `json:"score" binding:"required"`
		Mapping string `json:"mapping" binding:"required"`
		Save    bool   `json:"save"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Save && input.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required to save"})
		return
	}

	// 1. Parse both documents
	sc, err := score.Parse([]byte(input.Score))
	if err != nil {
		respondError(c, err)
		return
	}
	tcfg, err := timeline.ParseConfig([]byte(input.Mapping), h.cfg.Score.BPM, h.cfg.Score.DynamicsPWM)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. Build the timeline
	set, err := timeline.Build(sc, tcfg)
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. Optionally persist
	if input.Save {
		if err := h.db.SaveSet(input.Name, set); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, viewOf(input.Name, set))
}
