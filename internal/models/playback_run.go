package models

import "time"

// PlaybackRun records one finished or stopped playback.
type PlaybackRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StartedAt  time.Time `gorm:"index" json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Entries    int       `json:"entries"`
	Fired      int       `json:"fired"`
	Dispatched int       `json:"dispatched"`
	Failed     int       `json:"failed"`
	Synced     bool      `json:"synced"`
}
