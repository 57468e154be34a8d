package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	database "symbiosing/internal/db"
	"symbiosing/internal/instruction"
	"symbiosing/internal/storage"
	"symbiosing/internal/timecode"
)

// SetHandler serves Instruction Set authoring.
type SetHandler struct {
	db    *database.Client
	files *storage.Client
}

func NewSetHandler(db *database.Client, files *storage.Client) *SetHandler {
	return &SetHandler{db: db, files: files}
}

type setView struct {
	Name       string           `json:"name"`
	Set        *instruction.Set `json:"set"`
	EndMs      timecode.Time    `json:"endMs"`
	Anomalies  []int            `json:"orderingAnomalies"`
	Duplicates []string         `json:"duplicateRoles"`
}

func viewOf(name string, set *instruction.Set) setView {
	return setView{
		Name:       name,
		Set:        set,
		EndMs:      set.End(),
		Anomalies:  set.OrderingAnomalies(),
		Duplicates: set.DuplicateRoles(),
	}
}

// ListSets returns summaries of every stored set.
func (h *SetHandler) ListSets(c *gin.Context) {
	rows, err := h.db.ListSets()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *SetHandler) GetSet(c *gin.Context) {
	set, err := h.db.LoadSet(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(c.Param("name"), set))
}

// PutSet stores a whole set document under the given name.
func (h *SetHandler) PutSet(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	set, err := instruction.Decode(data)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.db.SaveSet(c.Param("name"), set); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(c.Param("name"), set))
}

func (h *SetHandler) DeleteSet(c *gin.Context) {
	if err := h.db.DeleteSet(c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Set deleted"})
}

// CreateSet starts an empty set with the given roles.
func (h *SetHandler) CreateSet(c *gin.Context) {
	var input struct {
		Name  string   `json:"name" binding:"required"`
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	set := instruction.New()
	for _, r := range input.Roles {
		if err := set.AddRole(r); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := h.db.SaveSet(input.Name, set); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(input.Name, set))
}

// edit loads the named set, applies fn and saves the result.
func (h *SetHandler) edit(c *gin.Context, fn func(set *instruction.Set) error) {
	name := c.Param("name")
	set, err := h.db.LoadSet(name)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := fn(set); err != nil {
		respondError(c, err)
		return
	}
	if err := h.db.SaveSet(name, set); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(name, set))
}

func (h *SetHandler) AppendInstant(c *gin.Context) {
	h.edit(c, func(set *instruction.Set) error {
		set.AppendInstant()
		return nil
	})
}

func (h *SetHandler) DeleteLastInstant(c *gin.Context) {
	h.edit(c, func(set *instruction.Set) error {
		if !set.DeleteLastInstant() {
			return &instruction.ValidationError{Field: "time", Reason: "set has no instants"}
		}
		return nil
	})
}

func (h *SetHandler) ResetSet(c *gin.Context) {
	h.edit(c, func(set *instruction.Set) error {
		set.Reset()
		return nil
	})
}

// RetimeInstant moves one instant. Order is not enforced; the response
// lists any anomalies.
func (h *SetHandler) RetimeInstant(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instant index"})
		return
	}
	var input struct {
		TimeMs *float64 `json:"timeMs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.edit(c, func(set *instruction.Set) error {
		return set.Retime(index, timecode.Millis(*input.TimeMs))
	})
}

func (h *SetHandler) AddRole(c *gin.Context) {
	var input struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.edit(c, func(set *instruction.Set) error { return set.AddRole(input.Role) })
}

// RenameRole also remaps the role in the device assignment.
func (h *SetHandler) RenameRole(c *gin.Context) {
	var input struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	if err := h.db.RenameRole(name, c.Param("role"), input.Name); err != nil {
		respondError(c, err)
		return
	}
	h.GetSet(c)
}

func (h *SetHandler) RemoveRole(c *gin.Context) {
	role := c.Param("role")
	h.edit(c, func(set *instruction.Set) error {
		if !set.RemoveRole(role) {
			return &instruction.ValidationError{Field: "role", Reason: "unknown role " + strconv.Quote(role)}
		}
		return nil
	})
}

// RemoveTrack drops a track by position, which reaches the later of two
// tracks left sharing a name by a rename.
func (h *SetHandler) RemoveTrack(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid track index"})
		return
	}
	h.edit(c, func(set *instruction.Set) error {
		if !set.RemoveTrack(index) {
			return &instruction.ValidationError{Field: "tracks", Reason: fmt.Sprintf("index %d out of range", index)}
		}
		return nil
	})
}

// UpdateCommand edits the fields present in the body of one command.
func (h *SetHandler) UpdateCommand(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instant index"})
		return
	}
	var input struct {
		Action  *instruction.Action `json:"action"`
		PumpPWM *int                `json:"pumpPwm"`
		Port    *int                `json:"port"`
		Open    *bool               `json:"open"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (input.Port == nil) != (input.Open == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port and open must be given together"})
		return
	}

	role := c.Param("role")
	h.edit(c, func(set *instruction.Set) error {
		if input.Action != nil {
			if err := set.SetAction(role, index, *input.Action); err != nil {
				return err
			}
		}
		if input.PumpPWM != nil {
			if err := set.SetPWM(role, index, *input.PumpPWM); err != nil {
				return err
			}
		}
		if input.Port != nil {
			if err := set.SetPort(role, index, *input.Port, *input.Open); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFiles returns the set files in object storage.
func (h *SetHandler) ListFiles(c *gin.Context) {
	names, err := h.files.ListSchedules()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": names})
}

// ExportSet writes the stored set to object storage under the same name.
func (h *SetHandler) ExportSet(c *gin.Context) {
	name := c.Param("name")
	set, err := h.db.LoadSet(name)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.files.Export(name, set); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Set exported", "name": name})
}

// ImportSet loads a set file from object storage into the database.
func (h *SetHandler) ImportSet(c *gin.Context) {
	name := c.Param("name")
	set, err := h.files.Import(name)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.db.SaveSet(name, set); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(name, set))
}
