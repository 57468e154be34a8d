package instruction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"symbiosing/internal/timecode"
)

// wireCommand mirrors one command in the file format. PumpPWM is an int so
// out-of-range values can be reported instead of wrapping.
type wireCommand struct {
	Action  string `json:"action"`
	PumpPWM *int   `json:"pumpPwm"`
	Ports   []bool `json:"ports"`
}

// Encode writes the file format. Timestamps are rounded to whole
// milliseconds and roles are written in set order.
func Encode(s *Set) ([]byte, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	if dups := s.DuplicateRoles(); len(dups) > 0 {
		return nil, &ValidationError{Field: "instructions", Reason: fmt.Sprintf("duplicate role %q", dups[0])}
	}

	times := make([]int64, len(s.Time))
	for i, t := range s.Time {
		if t < 0 {
			return nil, &ValidationError{Field: "time", Reason: fmt.Sprintf("negative timestamp at %d", i)}
		}
		times[i] = t.Int()
	}

	var buf bytes.Buffer
	buf.WriteString(`{"time":`)
	tb, err := json.Marshal(times)
	if err != nil {
		return nil, err
	}
	buf.Write(tb)
	buf.WriteString(`,"instructions":{`)
	for i, t := range s.Tracks {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(t.Role)
		buf.Write(key)
		buf.WriteByte(':')
		cmds := t.Commands
		if cmds == nil {
			cmds = []Command{}
		}
		cb, err := json.Marshal(cmds)
		if err != nil {
			return nil, fmt.Errorf("encode role %q: %w", t.Role, err)
		}
		buf.Write(cb)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// Decode parses the file format. Any invalid command fails the whole decode.
func Decode(data []byte) (*Set, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	s := &Set{}
	var sawTime, sawInstructions bool
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		switch key {
		case "time":
			sawTime = true
			if s.Time, err = decodeTimes(dec); err != nil {
				return nil, err
			}
		case "instructions":
			sawInstructions = true
			if s.Tracks, err = decodeTracks(dec); err != nil {
				return nil, err
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, malformed(err)
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ValidationError{Reason: "trailing data after document"}
	}
	if !sawTime {
		return nil, &ValidationError{Field: "time", Reason: "missing"}
	}
	if !sawInstructions {
		return nil, &ValidationError{Field: "instructions", Reason: "missing"}
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

// MarshalJSON lets a Set be used directly in HTTP payloads.
func (s *Set) MarshalJSON() ([]byte, error) { return Encode(s) }

func (s *Set) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

func decodeTimes(dec *json.Decoder) ([]timecode.Time, error) {
	var raw []json.Number
	if err := dec.Decode(&raw); err != nil {
		return nil, &ValidationError{Field: "time", Reason: err.Error()}
	}
	out := make([]timecode.Time, len(raw))
	for i, n := range raw {
		ms, err := n.Int64()
		if err != nil {
			return nil, &ValidationError{Field: "time", Reason: fmt.Sprintf("entry %d is not an integer: %s", i, n)}
		}
		if ms < 0 {
			return nil, &ValidationError{Field: "time", Reason: fmt.Sprintf("entry %d is negative", i)}
		}
		out[i] = timecode.Millis(float64(ms))
	}
	return out, nil
}

func decodeTracks(dec *json.Decoder) ([]Track, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var tracks []Track
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		role, _ := tok.(string)
		if seen[role] {
			return nil, &ValidationError{Field: "instructions", Reason: fmt.Sprintf("duplicate role %q", role)}
		}
		seen[role] = true

		var raw []wireCommand
		if err := dec.Decode(&raw); err != nil {
			return nil, &ValidationError{Field: "instructions." + role, Reason: err.Error()}
		}
		cmds := make([]Command, len(raw))
		for i, w := range raw {
			c, err := w.command()
			if err != nil {
				var ve *ValidationError
				if errors.As(err, &ve) {
					ve.Field = fmt.Sprintf("instructions.%s[%d].%s", role, i, ve.Field)
				}
				return nil, err
			}
			cmds[i] = c
		}
		tracks = append(tracks, Track{Role: role, Commands: cmds})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return tracks, nil
}

func (w wireCommand) command() (Command, error) {
	a, err := ParseAction(w.Action)
	if err != nil {
		return Command{}, err
	}
	if w.PumpPWM == nil {
		return Command{}, &ValidationError{Field: "pumpPwm", Reason: "missing"}
	}
	if *w.PumpPWM < 0 || *w.PumpPWM > 255 {
		return Command{}, &ValidationError{Field: "pumpPwm", Reason: fmt.Sprintf("%d outside 0..255", *w.PumpPWM)}
	}
	if len(w.Ports) != PortCount {
		return Command{}, &ValidationError{Field: "ports", Reason: fmt.Sprintf("expected %d entries, got %d", PortCount, len(w.Ports))}
	}
	c := Command{Action: a, PumpPWM: uint8(*w.PumpPWM)}
	copy(c.Ports[:], w.Ports)
	return c, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return &ValidationError{Reason: fmt.Sprintf("expected %q, got %v", want, tok)}
	}
	return nil
}

func malformed(err error) error {
	return &ValidationError{Reason: "malformed JSON: " + err.Error()}
}
