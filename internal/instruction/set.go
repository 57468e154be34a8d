package instruction

import (
	"fmt"

	"symbiosing/internal/timecode"
)

// Track is the command column of one role. It always has one command per
// instant of the owning Set.
type Track struct {
	Role     string
	Commands []Command
}

// Set is the canonical schedule: a time axis and, per role, one command per
// instant. Roles keep their authoring order.
type Set struct {
	Time   []timecode.Time
	Tracks []Track
}

// New returns an empty set with the given roles.
func New(roles ...string) *Set {
	s := &Set{}
	for _, r := range roles {
		s.Tracks = append(s.Tracks, Track{Role: r})
	}
	return s
}

// Len is the number of instants.
func (s *Set) Len() int { return len(s.Time) }

// Roles lists role names in order, duplicates included.
func (s *Set) Roles() []string {
	names := make([]string, len(s.Tracks))
	for i, t := range s.Tracks {
		names[i] = t.Role
	}
	return names
}

// Commands returns the column of the first role with that name.
func (s *Set) Commands(role string) ([]Command, bool) {
	i := s.trackIndex(role)
	if i < 0 {
		return nil, false
	}
	return s.Tracks[i].Commands, true
}

// End is the final timestamp, or zero for an empty set.
func (s *Set) End() timecode.Time {
	if len(s.Time) == 0 {
		return 0
	}
	return s.Time[len(s.Time)-1]
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := &Set{Time: append([]timecode.Time(nil), s.Time...)}
	for _, t := range s.Tracks {
		out.Tracks = append(out.Tracks, Track{
			Role:     t.Role,
			Commands: append([]Command(nil), t.Commands...),
		})
	}
	return out
}

// Check verifies the length invariant between the axis and every track.
func (s *Set) Check() error {
	for _, t := range s.Tracks {
		if len(t.Commands) != len(s.Time) {
			return &ValidationError{
				Field:  "instructions." + t.Role,
				Reason: fmt.Sprintf("has %d commands for %d instants", len(t.Commands), len(s.Time)),
			}
		}
	}
	return nil
}

// OrderingAnomalies lists indexes whose timestamp does not strictly follow
// the previous one. They are for display; nothing is reordered.
func (s *Set) OrderingAnomalies() []int {
	var out []int
	for i := 1; i < len(s.Time); i++ {
		if s.Time[i] <= s.Time[i-1] {
			out = append(out, i)
		}
	}
	return out
}

// DuplicateRoles lists role names that occur more than once.
func (s *Set) DuplicateRoles() []string {
	seen := make(map[string]int)
	var dups []string
	for _, t := range s.Tracks {
		seen[t.Role]++
		if seen[t.Role] == 2 {
			dups = append(dups, t.Role)
		}
	}
	return dups
}

// AppendInstant adds an instant 1ms after the current maximum, with a Stop
// command for every role.
func (s *Set) AppendInstant() timecode.Time {
	next := timecode.Time(0)
	if len(s.Time) > 0 {
		max := s.Time[0]
		for _, t := range s.Time[1:] {
			max = timecode.Max(max, t)
		}
		next = max.Add(1)
	}
	s.Time = append(s.Time, next)
	for i := range s.Tracks {
		s.Tracks[i].Commands = append(s.Tracks[i].Commands, StopCommand())
	}
	return next
}

// DeleteLastInstant drops the final instant. It reports false on an empty set.
func (s *Set) DeleteLastInstant() bool {
	if len(s.Time) == 0 {
		return false
	}
	n := len(s.Time) - 1
	s.Time = s.Time[:n]
	for i := range s.Tracks {
		s.Tracks[i].Commands = s.Tracks[i].Commands[:n]
	}
	return true
}

// Reset empties the set, roles included.
func (s *Set) Reset() {
	s.Time = nil
	s.Tracks = nil
}

// Retime moves instant i to t without reordering.
func (s *Set) Retime(i int, t timecode.Time) error {
	if i < 0 || i >= len(s.Time) {
		return &ValidationError{Field: "time", Reason: fmt.Sprintf("index %d out of range", i)}
	}
	if t < 0 {
		return &ValidationError{Field: "time", Reason: "negative timestamp"}
	}
	s.Time[i] = t
	return nil
}

// AddRole appends a role with a Stop command at every existing instant.
func (s *Set) AddRole(role string) error {
	if role == "" {
		return &ValidationError{Field: "role", Reason: "empty role name"}
	}
	if s.trackIndex(role) >= 0 {
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("role %q already exists", role)}
	}
	cmds := make([]Command, len(s.Time))
	for i := range cmds {
		cmds[i] = StopCommand()
	}
	s.Tracks = append(s.Tracks, Track{Role: role, Commands: cmds})
	return nil
}

// RenameRole renames the first role called from. Renaming onto an existing
// name is allowed; DuplicateRoles reports the result. Every name-addressed
// method then reaches only the first of the duplicates, so the later one can
// be dropped with RemoveTrack or renamed back by index of appearance.
func (s *Set) RenameRole(from, to string) error {
	if to == "" {
		return &ValidationError{Field: "role", Reason: "empty role name"}
	}
	i := s.trackIndex(from)
	if i < 0 {
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", from)}
	}
	s.Tracks[i].Role = to
	return nil
}

// RemoveRole drops the first role called name.
func (s *Set) RemoveRole(name string) bool {
	return s.RemoveTrack(s.trackIndex(name))
}

// RemoveTrack drops the track at position i in Tracks.
func (s *Set) RemoveTrack(i int) bool {
	if i < 0 || i >= len(s.Tracks) {
		return false
	}
	s.Tracks = append(s.Tracks[:i], s.Tracks[i+1:]...)
	return true
}

// SetAction edits the action of one command.
func (s *Set) SetAction(role string, index int, a Action) error {
	if !a.Valid() {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("invalid action %d", uint8(a))}
	}
	c, err := s.command(role, index)
	if err != nil {
		return err
	}
	c.Action = a
	return nil
}

// SetPWM edits the pump intensity of one command.
func (s *Set) SetPWM(role string, index int, pwm int) error {
	if pwm < 0 || pwm > 255 {
		return &ValidationError{Field: "pumpPwm", Reason: fmt.Sprintf("%d outside 0..255", pwm)}
	}
	c, err := s.command(role, index)
	if err != nil {
		return err
	}
	c.PumpPWM = uint8(pwm)
	return nil
}

// SetPort opens or closes one valve of one command.
func (s *Set) SetPort(role string, index, port int, open bool) error {
	if port < 0 || port >= PortCount {
		return &ValidationError{Field: "ports", Reason: fmt.Sprintf("port %d outside 0..%d", port, PortCount-1)}
	}
	c, err := s.command(role, index)
	if err != nil {
		return err
	}
	c.Ports[port] = open
	return nil
}

func (s *Set) command(role string, index int) (*Command, error) {
	ti := s.trackIndex(role)
	if ti < 0 {
		return nil, &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	cmds := s.Tracks[ti].Commands
	if index < 0 || index >= len(cmds) {
		return nil, &ValidationError{Field: "instructions." + role, Reason: fmt.Sprintf("index %d out of range", index)}
	}
	return &cmds[index], nil
}

// trackIndex is the position of the first track named role.
func (s *Set) trackIndex(role string) int {
	for i, t := range s.Tracks {
		if t.Role == role {
			return i
		}
	}
	return -1
}
