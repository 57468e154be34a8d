package peersync

import "time"

// Message types on the sync channel.
const (
	TypeStart     = "start"
	TypeCountdown = "countdown"
	TypeStop      = "stop"
)

// Message is the single envelope used in both directions. A peer sends
// start or stop; the hub broadcasts countdown and stop.
type Message struct {
	Type       string  `json:"type"`
	Session    string  `json:"session,omitempty"`
	Count      int     `json:"count,omitempty"`
	OutOf      int     `json:"outOf,omitempty"`
	IntervalMs float64 `json:"intervalMs,omitempty"`
}

// Interval converts IntervalMs to a duration.
func (m Message) Interval() time.Duration {
	return time.Duration(m.IntervalMs * float64(time.Millisecond))
}

// Terminal reports whether this is the last countdown message of a session.
func (m Message) Terminal() bool {
	return m.Type == TypeCountdown && m.OutOf > 0 && m.Count >= m.OutOf
}
