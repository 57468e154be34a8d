package device

import (
	"log"

	"symbiosing/internal/instruction"
)

// DrySink logs commands instead of sending them.
type DrySink struct {
	Registry *Registry
}

func (d DrySink) Send(device int, cmd instruction.Command) error {
	name := "?"
	if d.Registry != nil {
		if info, ok := d.Registry.Get(device); ok {
			name = info.Name
		}
	}
	log.Printf("🧪 [dry] device %d (%s) <- %s", device, name, FormatCommand(cmd))
	return nil
}
