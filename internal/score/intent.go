package score

import (
	"fmt"
	"strings"

	"symbiosing/internal/instruction"
)

// Intent is what a channel wants the pump to do at an instant. Unlike
// instruction.Action it has a NoChange value, which is its zero value and
// never leaves the timeline builder.
type Intent uint8

const (
	NoChange Intent = iota
	WantInflate
	WantVacuum
	WantRelease
	WantStop
)

func (i Intent) String() string {
	if i == NoChange {
		return "nochange"
	}
	if a, ok := i.Concrete(); ok {
		return a.String()
	}
	return fmt.Sprintf("intent(%d)", uint8(i))
}

// Concrete returns the device action for a concrete intent. It reports false
// for NoChange.
func (i Intent) Concrete() (instruction.Action, bool) {
	switch i {
	case WantInflate:
		return instruction.Inflate, true
	case WantVacuum:
		return instruction.Vacuum, true
	case WantRelease:
		return instruction.Release, true
	case WantStop:
		return instruction.Stop, true
	}
	return 0, false
}

// IntentOf lifts a device action back into an intent.
func IntentOf(a instruction.Action) Intent {
	switch a {
	case instruction.Inflate:
		return WantInflate
	case instruction.Vacuum:
		return WantVacuum
	case instruction.Release:
		return WantRelease
	case instruction.Stop:
		return WantStop
	}
	return NoChange
}

// NoteKind tags what a note asks of its channel.
type NoteKind uint8

const (
	Rest NoteKind = iota
	Hold
	Actuate
)

var noteKindNames = [...]string{"rest", "hold", "actuate"}

func (k NoteKind) String() string {
	if int(k) < len(noteKindNames) {
		return noteKindNames[k]
	}
	return fmt.Sprintf("notekind(%d)", uint8(k))
}

// Intent maps a note kind onto a channel intent.
func (k NoteKind) Intent() Intent {
	switch k {
	case Rest:
		return WantRelease
	case Actuate:
		return WantInflate
	}
	return NoChange
}

func (k NoteKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *NoteKind) UnmarshalText(b []byte) error {
	token := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range noteKindNames {
		if name == token {
			*k = NoteKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown note kind %q", string(b))
}
