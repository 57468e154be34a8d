package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"symbiosing/internal/instruction"
	"symbiosing/internal/models"
	"symbiosing/internal/playback"
	"symbiosing/internal/sequence"
)

var ErrSetNotFound = errors.New("instruction set not found")

// SaveSet inserts or replaces the named set.
func (c *Client) SaveSet(name string, set *instruction.Set) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("set name is required")
	}
	doc, err := instruction.Encode(set)
	if err != nil {
		return err
	}
	row := models.InstructionSet{
		Name:     name,
		Document: string(doc),
		Instants: set.Len(),
		Roles:    strings.Join(set.Roles(), ","),
		EndMs:    set.End().Int(),
	}
	return c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "instants", "roles", "end_ms", "updated_at"}),
	}).Create(&row).Error
}

// LoadSet decodes the named set.
func (c *Client) LoadSet(name string) (*instruction.Set, error) {
	var row models.InstructionSet
	if err := c.DB.Where("name = ?", name).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSetNotFound
		}
		return nil, err
	}
	return instruction.Decode([]byte(row.Document))
}

// ListSets returns set summaries ordered by name.
func (c *Client) ListSets() ([]models.InstructionSet, error) {
	var rows []models.InstructionSet
	err := c.DB.Order("name asc").Find(&rows).Error
	return rows, err
}

// DeleteSet removes a set. Sequence slots that used it are removed too.
func (c *Client) DeleteSet(name string) error {
	return c.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("name = ?", name).Delete(&models.InstructionSet{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSetNotFound
		}
		return tx.Where("set_name = ?", name).Delete(&models.SequencePart{}).Error
	})
}

// RenameRole renames a role inside a stored set and remaps the assignment in
// the same transaction.
func (c *Client) RenameRole(setName, from, to string) error {
	set, err := c.LoadSet(setName)
	if err != nil {
		return err
	}
	assign, err := c.LoadAssignment()
	if err != nil {
		return err
	}
	if err := sequence.RenameRole(set, assign, from, to); err != nil {
		return err
	}
	// A stored set cannot hold duplicate roles, so a colliding rename fails here.
	doc, err := instruction.Encode(set)
	if err != nil {
		return err
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.InstructionSet{}).Where("name = ?", setName).
			Updates(map[string]any{"document": string(doc), "roles": strings.Join(set.Roles(), ",")}).Error; err != nil {
			return err
		}
		return saveAssignment(tx, assign)
	})
}

// SaveSequence replaces the ordered part list.
func (c *Client) SaveSequence(names []string) error {
	return c.DB.Transaction(func(tx *gorm.DB) error {
		for _, n := range names {
			var count int64
			if err := tx.Model(&models.InstructionSet{}).Where("name = ?", n).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: %q", ErrSetNotFound, n)
			}
		}
		if err := tx.Where("1 = 1").Delete(&models.SequencePart{}).Error; err != nil {
			return err
		}
		for i, n := range names {
			if err := tx.Create(&models.SequencePart{Position: i, SetName: n}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SequenceNames returns the part list in order.
func (c *Client) SequenceNames() ([]string, error) {
	var rows []models.SequencePart
	if err := c.DB.Order("position asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.SetName
	}
	return names, nil
}

// LoadSequence loads every part and the assignment.
func (c *Client) LoadSequence() (sequence.Sequence, error) {
	names, err := c.SequenceNames()
	if err != nil {
		return sequence.Sequence{}, err
	}
	seq := sequence.Sequence{}
	for _, n := range names {
		set, err := c.LoadSet(n)
		if err != nil {
			return sequence.Sequence{}, fmt.Errorf("sequence part %q: %w", n, err)
		}
		seq.Parts = append(seq.Parts, sequence.Part{Name: n, Set: set})
	}
	if seq.Assignment, err = c.LoadAssignment(); err != nil {
		return sequence.Sequence{}, err
	}
	return seq, nil
}

// SaveAssignment replaces the role assignment.
func (c *Client) SaveAssignment(a sequence.Assignment) error {
	return c.DB.Transaction(func(tx *gorm.DB) error { return saveAssignment(tx, a) })
}

func saveAssignment(tx *gorm.DB, a sequence.Assignment) error {
	if err := tx.Where("1 = 1").Delete(&models.RoleDevice{}).Error; err != nil {
		return err
	}
	for role := range a {
		for _, d := range a.Devices(role) {
			if err := tx.Create(&models.RoleDevice{Role: role, Device: d}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) LoadAssignment() (sequence.Assignment, error) {
	var rows []models.RoleDevice
	if err := c.DB.Order("role asc, device asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	a := sequence.Assignment{}
	for _, r := range rows {
		a[r.Role] = append(a[r.Role], r.Device)
	}
	return a, nil
}

// RecordRun stores the outcome of a playback.
func (c *Client) RecordRun(st playback.Status, endedAt time.Time) error {
	return c.DB.Create(&models.PlaybackRun{
		StartedAt:  st.StartedAt,
		EndedAt:    endedAt,
		Entries:    st.Total,
		Fired:      st.Fired,
		Dispatched: st.Dispatched,
		Failed:     st.Failed,
		Synced:     st.Synced,
	}).Error
}

// RecentRuns returns the latest runs, newest first.
func (c *Client) RecentRuns(limit int) ([]models.PlaybackRun, error) {
	var rows []models.PlaybackRun
	err := c.DB.Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}
