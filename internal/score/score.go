package score

import (
	"fmt"
	"sort"

	"symbiosing/internal/timecode"
)

// Note is one event of a part. Duration is counted in divisions of a quarter
// note. Dynamic is only set where the score carries a new marking.
type Note struct {
	Kind     NoteKind `yaml:"kind" json:"kind"`
	Duration int      `yaml:"duration" json:"duration"`
	Dynamic  *Dynamic `yaml:"dynamic,omitempty" json:"dynamic,omitempty"`
}

type Signature struct {
	Beats    int `yaml:"beats" json:"beats"`
	BeatType int `yaml:"beatType" json:"beatType"`
}

// Measure carries optional attributes. A nil Signature or zero Divisions
// inherits from the previous measure.
type Measure struct {
	Number    int        `yaml:"number" json:"number"`
	Signature *Signature `yaml:"signature,omitempty" json:"signature,omitempty"`
	Divisions int        `yaml:"divisions,omitempty" json:"divisions,omitempty"`
	Notes     []Note     `yaml:"notes" json:"notes"`
}

type Part struct {
	ID       string    `yaml:"-" json:"-"`
	Name     string    `yaml:"name" json:"name"`
	Measures []Measure `yaml:"measures" json:"measures"`
}

// Score is a parsed score keyed by part id.
type Score struct {
	Parts map[string]*Part `yaml:"parts" json:"parts"`
}

// PartIDs returns the part ids in sorted order.
func (s *Score) PartIDs() []string {
	ids := make([]string, 0, len(s.Parts))
	for id := range s.Parts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ChannelEvent is an absolute-time intent derived from one part.
type ChannelEvent struct {
	Start     timecode.Time
	Intent    Intent
	Intensity Dynamic
	Measure   int
}

// ParseError reports a score that cannot be converted.
type ParseError struct {
	Part    string
	Measure int
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Measure == 0 {
		return fmt.Sprintf("score part %q: %s", e.Part, e.Reason)
	}
	return fmt.Sprintf("score part %q measure %d: %s", e.Part, e.Measure, e.Reason)
}

// ChannelEvents walks the part's notes and returns their absolute-time
// events, followed by a NoChange sentinel at the end of the part.
func (p *Part) ChannelEvents(bpm float64) ([]ChannelEvent, error) {
	if bpm <= 0 {
		return nil, &ParseError{Part: p.ID, Reason: fmt.Sprintf("tempo must be positive, got %v", bpm)}
	}

	var (
		events    []ChannelEvent
		durations []timecode.Time
		signature *Signature
		divisions int
		current   *Dynamic
		last      int
	)

	for i, m := range p.Measures {
		last = m.Number
		if m.Signature != nil {
			if m.Signature.Beats <= 0 || m.Signature.BeatType <= 0 {
				return nil, &ParseError{Part: p.ID, Measure: m.Number, Reason: "invalid time signature"}
			}
			signature = m.Signature
		}
		if m.Divisions < 0 {
			return nil, &ParseError{Part: p.ID, Measure: m.Number, Reason: "negative divisions"}
		}
		if m.Divisions > 0 {
			divisions = m.Divisions
		}
		if i == 0 && (signature == nil || divisions == 0) {
			return nil, &ParseError{Part: p.ID, Measure: m.Number, Reason: "first measure must declare time signature and divisions"}
		}

		perDivision := timecode.Millis(60000 / (bpm * float64(divisions)))
		for j, n := range m.Notes {
			if n.Duration <= 0 {
				return nil, &ParseError{Part: p.ID, Measure: m.Number, Reason: fmt.Sprintf("note %d has unusable duration %d", j+1, n.Duration)}
			}
			if n.Dynamic != nil {
				if !n.Dynamic.Valid() {
					return nil, &ParseError{Part: p.ID, Measure: m.Number, Reason: fmt.Sprintf("note %d has invalid dynamic", j+1)}
				}
				d := *n.Dynamic
				current = &d
			}

			ev := ChannelEvent{Intent: n.Kind.Intent(), Intensity: Silence, Measure: m.Number}
			if n.Kind != Rest {
				if current == nil {
					return nil, &ParseError{Part: p.ID, Measure: m.Number, Reason: fmt.Sprintf("note %d comes before any dynamic marking", j+1)}
				}
				ev.Intensity = *current
			}
			events = append(events, ev)
			durations = append(durations, perDivision.Mul(float64(n.Duration)))
		}
	}

	end := durationsToAbsolutes(events, durations)
	return append(events, ChannelEvent{Start: end, Intent: NoChange, Intensity: Silence, Measure: last}), nil
}

// durationsToAbsolutes sets each event's start to the sum of the durations
// before it and returns the total.
func durationsToAbsolutes(events []ChannelEvent, durations []timecode.Time) timecode.Time {
	var at timecode.Time
	for i := range events {
		events[i].Start = at
		at = at.Add(durations[i])
	}
	return at
}
