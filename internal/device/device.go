package device

import (
	"fmt"
	"strings"

	"symbiosing/internal/instruction"
)

// Info describes one actuator unit. Its position in the registry is its
// device index.
type Info struct {
	Name string `mapstructure:"name" json:"name"`
	Port string `mapstructure:"port" json:"port"`
	Baud int    `mapstructure:"baud" json:"baud"`
}

// Registry is a fixed list of devices. It is never mutated after creation;
// edits produce a new Registry.
type Registry struct {
	devices []Info
}

func NewRegistry(devices []Info) *Registry {
	return &Registry{devices: append([]Info(nil), devices...)}
}

func (r *Registry) Len() int { return len(r.devices) }

// Get returns the device at index i.
func (r *Registry) Get(i int) (Info, bool) {
	if i < 0 || i >= len(r.devices) {
		return Info{}, false
	}
	return r.devices[i], true
}

// All returns a copy of the device list.
func (r *Registry) All() []Info { return append([]Info(nil), r.devices...) }

// With returns a new registry with d appended.
func (r *Registry) With(d Info) *Registry {
	return NewRegistry(append(r.All(), d))
}

// Validate checks that every device index is registered.
func (r *Registry) Validate(indexes []int) error {
	for _, i := range indexes {
		if _, ok := r.Get(i); !ok {
			return fmt.Errorf("device %d is not registered (%d known)", i, len(r.devices))
		}
	}
	return nil
}

// FormatCommand renders the controller line for a command, for example
// "inflate 190 10100". Stop always reports closed valves.
func FormatCommand(cmd instruction.Command) string {
	var ports strings.Builder
	for _, open := range cmd.EffectivePorts() {
		if open {
			ports.WriteByte('1')
		} else {
			ports.WriteByte('0')
		}
	}
	return fmt.Sprintf("%s %d %s", cmd.Action, cmd.PumpPWM, ports.String())
}
