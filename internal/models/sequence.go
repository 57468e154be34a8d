package models

// SequencePart is one slot of the playback sequence, ordered by Position.
// The same set may appear more than once.
type SequencePart struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	Position int    `gorm:"index;not null" json:"position"`
	SetName  string `gorm:"type:varchar(128);not null" json:"set_name"`
}

// RoleDevice is one row of the role assignment.
type RoleDevice struct {
	Role   string `gorm:"primaryKey;type:varchar(128)" json:"role"`
	Device int    `gorm:"primaryKey;autoIncrement:false" json:"device"`
}
