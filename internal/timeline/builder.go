package timeline

import (
	"fmt"
	"sort"

	"symbiosing/internal/instruction"
	"symbiosing/internal/score"
	"symbiosing/internal/timecode"
)

// Binding places a score part on one port of a role.
type Binding struct {
	Role string `yaml:"role" json:"role"`
	Port int    `yaml:"port" json:"port"`
}

// Config is everything a conversion needs besides the score itself.
type Config struct {
	BPM     float64
	Mapping map[string]Binding
	PWM     score.PWMTable
}

// Channel is the event list of one part bound to one port.
type Channel struct {
	Port   int
	Events []score.ChannelEvent
}

// ConflictError reports channels that cannot be merged into one role.
type ConflictError struct {
	Role    string
	Measure int
	Reason  string
}

func (e *ConflictError) Error() string {
	if e.Measure == 0 {
		return fmt.Sprintf("role %q: %s", e.Role, e.Reason)
	}
	return fmt.Sprintf("role %q measure %d: %s", e.Role, e.Measure, e.Reason)
}

// Axis collects the start of every event across channels, rounded to the
// millisecond, without duplicates, ascending.
func Axis(channels ...[]score.ChannelEvent) []timecode.Time {
	seen := make(map[int64]bool)
	var axis []timecode.Time
	for _, events := range channels {
		for _, ev := range events {
			ms := ev.Start.Int()
			if seen[ms] {
				continue
			}
			seen[ms] = true
			axis = append(axis, timecode.Millis(float64(ms)))
		}
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i] < axis[j] })
	return axis
}

// Fill aligns one channel to the axis. At each instant it takes the latest
// event starting no later than the instant plus the tolerance, so a note
// keeps its action and dynamic until the channel's next event. Before the
// channel's first event it says NoChange at silence.
func Fill(events []score.ChannelEvent, axis []timecode.Time) []score.ChannelEvent {
	out := make([]score.ChannelEvent, len(axis))
	for i, t := range axis {
		limit := t.Add(timecode.Tolerance)
		j := sort.Search(len(events), func(k int) bool { return events[k].Start > limit })
		if j > 0 {
			out[i] = events[j-1]
			continue
		}
		out[i] = score.ChannelEvent{Start: t, Intent: score.NoChange, Intensity: score.Silence}
	}
	return out
}

// BuildRole builds a single-role Instruction Set from its channels.
func BuildRole(role string, channels []Channel, pwm score.PWMTable) (*instruction.Set, error) {
	lists := make([][]score.ChannelEvent, len(channels))
	for i, c := range channels {
		lists[i] = c.Events
	}
	axis := Axis(lists...)
	cmds, err := buildCommands(role, channels, axis, pwm)
	if err != nil {
		return nil, err
	}
	return &instruction.Set{Time: axis, Tracks: []instruction.Track{{Role: role, Commands: cmds}}}, nil
}

// Build converts a score into an Instruction Set with one track per mapped
// role. All roles share one axis. Parts without a binding are ignored.
func Build(s *score.Score, cfg Config) (*instruction.Set, error) {
	if cfg.PWM == nil {
		cfg.PWM = score.DefaultPWMTable()
	}

	for partID := range cfg.Mapping {
		if _, ok := s.Parts[partID]; !ok {
			return nil, fmt.Errorf("mapping names part %q which the score does not have", partID)
		}
	}

	byRole := make(map[string][]Channel)
	var all [][]score.ChannelEvent
	for _, id := range s.PartIDs() {
		b, ok := cfg.Mapping[id]
		if !ok {
			continue
		}
		events, err := s.Parts[id].ChannelEvents(cfg.BPM)
		if err != nil {
			return nil, err
		}
		byRole[b.Role] = append(byRole[b.Role], Channel{Port: b.Port, Events: events})
		all = append(all, events)
	}
	if len(byRole) == 0 {
		return nil, fmt.Errorf("no score part is mapped to a role")
	}

	roles := make([]string, 0, len(byRole))
	for r := range byRole {
		roles = append(roles, r)
	}
	sort.Strings(roles)

	axis := Axis(all...)
	set := &instruction.Set{Time: axis}
	for _, r := range roles {
		cmds, err := buildCommands(r, byRole[r], axis, cfg.PWM)
		if err != nil {
			return nil, err
		}
		set.Tracks = append(set.Tracks, instruction.Track{Role: r, Commands: cmds})
	}
	return set, nil
}

func checkChannels(role string, channels []Channel) error {
	if role == "" {
		return &ConflictError{Role: role, Reason: "empty role name"}
	}
	if len(channels) == 0 {
		return &ConflictError{Role: role, Reason: "no channels mapped"}
	}
	if len(channels) > instruction.PortCount {
		return &ConflictError{Role: role, Reason: fmt.Sprintf("%d channels mapped, at most %d allowed", len(channels), instruction.PortCount)}
	}
	used := make(map[int]bool)
	for _, c := range channels {
		if c.Port < 0 || c.Port >= instruction.PortCount {
			return &ConflictError{Role: role, Reason: fmt.Sprintf("port %d outside 0..%d", c.Port, instruction.PortCount-1)}
		}
		if used[c.Port] {
			return &ConflictError{Role: role, Reason: "each part needs a distinct port"}
		}
		used[c.Port] = true
	}
	return nil
}

func buildCommands(role string, channels []Channel, axis []timecode.Time, pwm score.PWMTable) ([]instruction.Command, error) {
	if err := checkChannels(role, channels); err != nil {
		return nil, err
	}

	aligned := make([][]score.ChannelEvent, len(channels))
	ports := make([]int, len(channels))
	for i, c := range channels {
		aligned[i] = Fill(c.Events, axis)
		ports[i] = c.Port
	}

	intents := make([]score.Intent, len(channels))
	levels := make([]score.Dynamic, len(channels))
	cmds := make([]instruction.Command, len(axis))
	for t := range axis {
		for c := range channels {
			intents[c] = aligned[c][t].Intent
			levels[c] = aligned[c][t].Intensity
		}

		settled, first, second, ok := settleAction(intents)
		if !ok {
			// Blame the newer of the two events; the older one is a held note.
			ev := aligned[second][t]
			if aligned[first][t].Start > ev.Start {
				ev = aligned[first][t]
			}
			return nil, &ConflictError{
				Role:    role,
				Measure: ev.Measure,
				Reason: fmt.Sprintf("%s on port %d and %s on port %d at %s",
					intents[first], ports[first], intents[second], ports[second], axis[t]),
			}
		}

		action, concrete := settled.Concrete()
		if !concrete || action == instruction.Stop {
			cmds[t] = instruction.StopCommand()
			continue
		}
		cmds[t] = instruction.Command{
			Action:  action,
			PumpPWM: pwm.Lookup(settleIntensity(levels)),
			Ports:   settlePorts(ports, intents, settled),
		}
	}
	return cmds, nil
}
