package instruction

import (
	"fmt"
	"strings"
)

// PortCount is the number of valves on every actuator unit.
const PortCount = 5

// Action is what the pump does for one instant. There is no "no change"
// value here: that only exists while a timeline is being built.
type Action uint8

const (
	Inflate Action = iota + 1
	Vacuum
	Release
	Stop
)

var actionNames = map[Action]string{
	Inflate: "inflate",
	Vacuum:  "vacuum",
	Release: "release",
	Stop:    "stop",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction accepts the file-format tokens, case-insensitively.
func ParseAction(s string) (Action, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == token {
			return a, nil
		}
	}
	return 0, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", s)}
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("invalid action %d", uint8(a))}
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Ports holds the open/closed state of each valve; true means open.
type Ports [PortCount]bool

// Open returns the indexes of the open valves.
func (p Ports) Open() []int {
	var open []int
	for i, v := range p {
		if v {
			open = append(open, i)
		}
	}
	return open
}

// Command is the unit dispatched to a device.
type Command struct {
	Action  Action `json:"action"`
	PumpPWM uint8  `json:"pumpPwm"`
	Ports   Ports  `json:"ports"`
}

// StopCommand is the default for new instants and new roles.
func StopCommand() Command {
	return Command{Action: Stop}
}

// EffectivePorts reports closed valves for a Stop command regardless of
// what the ports field says.
func (c Command) EffectivePorts() Ports {
	if c.Action == Stop {
		return Ports{}
	}
	return c.Ports
}
