package sequence

import (
	"sort"

	"symbiosing/internal/instruction"
	"symbiosing/internal/timecode"
)

// Part is one named Instruction Set in a sequence.
type Part struct {
	Name string
	Set  *instruction.Set
}

// Assignment binds each role to the devices that perform it. A role may have
// no devices.
type Assignment map[string][]int

// Devices returns the devices of a role, sorted and without repeats.
func (a Assignment) Devices(role string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, d := range a[role] {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy, used as the snapshot taken at play time.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for role, devices := range a {
		out[role] = append([]int(nil), devices...)
	}
	return out
}

// Rename moves the devices of from onto to, merging with what to already has.
func (a Assignment) Rename(from, to string) {
	devices, ok := a[from]
	if !ok || from == to {
		return
	}
	delete(a, from)
	a[to] = append(a[to], devices...)
}

// DeviceCommand is one command addressed to one device.
type DeviceCommand struct {
	Device  int                 `json:"device"`
	Command instruction.Command `json:"command"`
}

// Entry is everything that fires at one instant of the flattened sequence.
type Entry struct {
	Start    timecode.Time   `json:"start"`
	Commands []DeviceCommand `json:"commands"`
}

// Sequence is the ordered part list plus the assignment, as persisted.
type Sequence struct {
	Parts      []Part
	Assignment Assignment
}

// Flatten composes the sequence for playback.
func (s Sequence) Flatten() []Entry { return Compose(s.Parts, s.Assignment) }

// Compose lays the parts back to back and expands every role command onto
// the devices assigned to that role. Each part starts where the previous
// one's last instant was. Instants that meet at a part boundary are kept as
// two entries.
func Compose(parts []Part, assign Assignment) []Entry {
	var (
		entries []Entry
		offset  timecode.Time
	)
	devices := make(map[string][]int)
	for _, p := range parts {
		if p.Set == nil {
			continue
		}
		for i, t := range p.Set.Time {
			e := Entry{Start: offset.Add(t)}
			for _, tr := range p.Set.Tracks {
				if i >= len(tr.Commands) {
					continue
				}
				ds, ok := devices[tr.Role]
				if !ok {
					ds = assign.Devices(tr.Role)
					devices[tr.Role] = ds
				}
				for _, d := range ds {
					e.Commands = append(e.Commands, DeviceCommand{Device: d, Command: tr.Commands[i]})
				}
			}
			entries = append(entries, e)
		}
		offset = offset.Add(p.Set.End())
	}
	return entries
}

// Duration is where the last part ends.
func Duration(parts []Part) timecode.Time {
	var total timecode.Time
	for _, p := range parts {
		if p.Set != nil {
			total = total.Add(p.Set.End())
		}
	}
	return total
}

// RenameRole renames a role in a set and remaps the assignment key with it.
func RenameRole(set *instruction.Set, assign Assignment, from, to string) error {
	if err := set.RenameRole(from, to); err != nil {
		return err
	}
	if assign != nil {
		assign.Rename(from, to)
	}
	return nil
}
