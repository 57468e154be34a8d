package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	database "symbiosing/internal/db"
	"symbiosing/internal/device"
	"symbiosing/internal/sequence"
	"symbiosing/internal/timecode"
)

// SequenceHandler manages the part order and the role assignment.
type SequenceHandler struct {
	db      *database.Client
	devices *device.Registry
}

func NewSequenceHandler(db *database.Client, devices *device.Registry) *SequenceHandler {
	return &SequenceHandler{db: db, devices: devices}
}

type partView struct {
	Name    string        `json:"name"`
	StartMs timecode.Time `json:"startMs"`
	EndMs   timecode.Time `json:"endMs"`
}

func (h *SequenceHandler) GetSequence(c *gin.Context) {
	seq, err := h.db.LoadSequence()
	if err != nil {
		respondError(c, err)
		return
	}
	parts := make([]partView, 0, len(seq.Parts))
	var offset timecode.Time
	for _, p := range seq.Parts {
		end := offset.Add(p.Set.End())
		parts = append(parts, partView{Name: p.Name, StartMs: offset, EndMs: end})
		offset = end
	}
	c.JSON(http.StatusOK, gin.H{
		"parts":      parts,
		"assignment": seq.Assignment,
		"durationMs": sequence.Duration(seq.Parts),
	})
}

// PutSequence replaces the ordered part list.
func (h *SequenceHandler) PutSequence(c *gin.Context) {
	var input struct {
		Parts []string `json:"parts"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.SaveSequence(input.Parts); err != nil {
		respondError(c, err)
		return
	}
	h.GetSequence(c)
}

// PutAssignment replaces the role to device map. Unknown devices are
// rejected unless no devices are configured at all, as in a dry run.
func (h *SequenceHandler) PutAssignment(c *gin.Context) {
	var input sequence.Assignment
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for role, devices := range input {
		if h.devices.Len() == 0 {
			break
		}
		if err := h.devices.Validate(devices); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "role": role})
			return
		}
	}
	if err := h.db.SaveAssignment(input); err != nil {
		respondError(c, err)
		return
	}
	assign, err := h.db.LoadAssignment()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assign)
}

// GetEntries returns the flattened sequence as it would be played.
func (h *SequenceHandler) GetEntries(c *gin.Context) {
	seq, err := h.db.LoadSequence()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, seq.Flatten())
}

// GetDevices lists the configured devices and the serial ports present.
func (h *SequenceHandler) GetDevices(c *gin.Context) {
	ports, err := device.ListPorts()
	if err != nil {
		ports = nil
	}
	c.JSON(http.StatusOK, gin.H{"devices": h.devices.All(), "ports": ports})
}
