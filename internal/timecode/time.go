package timecode

import (
	"fmt"
	"math"
	"time"
)

// Time is a point or span on a schedule, stored as milliseconds.
// A well-formed schedule never holds a negative Time.
type Time float64

// Tolerance is the window inside which two instants are considered the same.
const Tolerance Time = 4

// Millis builds a Time from a millisecond count.
func Millis(ms float64) Time { return Time(ms) }

// Seconds builds a Time from a second count.
func Seconds(s float64) Time { return Time(s * 1000) }

// FromDuration converts a wall-clock duration.
func FromDuration(d time.Duration) Time {
	return Time(float64(d) / float64(time.Millisecond))
}

func (t Time) Ms() float64 { return float64(t) }

func (t Time) Add(o Time) Time { return t + o }

// Sub does not clamp. Callers must not rely on negative results.
func (t Time) Sub(o Time) Time { return t - o }

func (t Time) Mul(k float64) Time { return Time(float64(t) * k) }

func (t Time) Div(k float64) Time { return Time(float64(t) / k) }

func (t Time) Before(o Time) bool { return t < o }

func (t Time) After(o Time) bool { return t > o }

// Compare returns -1, 0 or +1.
func (t Time) Compare(o Time) int {
	switch {
	case t < o:
		return -1
	case t > o:
		return 1
	}
	return 0
}

// EqualWithin reports whether |t-o| <= tol.
func (t Time) EqualWithin(o Time, tol Time) bool {
	return math.Abs(float64(t-o)) <= float64(tol)
}

// Round snaps to the nearest whole millisecond.
func (t Time) Round() Time { return Time(math.Round(float64(t))) }

// Int returns the rounded millisecond count.
func (t Time) Int() int64 { return int64(math.Round(float64(t))) }

func (t Time) Duration() time.Duration {
	return time.Duration(float64(t) * float64(time.Millisecond))
}

// String formats as HH:MM:SS.hh (hundredths of a second).
func (t Time) String() string {
	sign := ""
	if t < 0 {
		sign = "-"
		t = -t
	}
	hundredths := int64(math.Round(float64(t) / 10))
	h := hundredths / 360000
	m := (hundredths / 6000) % 60
	s := (hundredths / 100) % 60
	return fmt.Sprintf("%s%02d:%02d:%02d.%02d", sign, h, m, s, hundredths%100)
}

// Max returns the later of a and b.
func Max(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}
