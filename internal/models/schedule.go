package models

import (
	"time"

	"gorm.io/gorm"
)

// InstructionSet is a named schedule. Document holds the set in its JSON
// file format so the stored form and the exported form never drift apart.
type InstructionSet struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name     string `gorm:"type:varchar(128);not null;uniqueIndex" json:"name"`
	Document string `gorm:"type:text;not null" json:"-"`
	Instants int    `json:"instants"`
	Roles    string `gorm:"type:text" json:"roles"` // CSV, for listings only
	EndMs    int64  `json:"end_ms"`
}
