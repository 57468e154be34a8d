package device

import (
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial.v1"

	"symbiosing/internal/instruction"
)

const defaultBaud = 115200

// openPort is swapped out in tests.
var openPort = func(name string, baud int) (io.WriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	port.ResetInputBuffer()
	return port, nil
}

// ListPorts returns the serial ports the OS knows about.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// SerialSink writes one command line per dispatch to each device's serial
// port. Writes do not wait for a reply from the controller.
type SerialSink struct {
	mu    sync.Mutex
	ports map[int]io.WriteCloser
}

// OpenSerial opens every registered device. Devices that fail to open are
// logged and skipped; sends to them return an error.
func OpenSerial(reg *Registry) *SerialSink {
	s := &SerialSink{ports: make(map[int]io.WriteCloser)}
	for i, d := range reg.All() {
		baud := d.Baud
		if baud == 0 {
			baud = defaultBaud
		}
		port, err := openPort(d.Port, baud)
		if err != nil {
			log.Printf("❌ Device %d (%s) could not open %s: %v", i, d.Name, d.Port, err)
			continue
		}
		s.ports[i] = port
		s.write(i, port, instruction.StopCommand())
		log.Printf("✅ Device %d (%s) ready on %s", i, d.Name, d.Port)
	}
	return s
}

func (s *SerialSink) Send(device int, cmd instruction.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	port, ok := s.ports[device]
	if !ok {
		return fmt.Errorf("device %d is not connected", device)
	}
	return s.write(device, port, cmd)
}

// Close stops every pump and closes the ports.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for i, port := range s.ports {
		s.write(i, port, instruction.StopCommand())
		if err := port.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.ports, i)
	}
	return firstErr
}

func (s *SerialSink) write(device int, port io.Writer, cmd instruction.Command) error {
	if _, err := io.WriteString(port, FormatCommand(cmd)+"\n"); err != nil {
		return fmt.Errorf("write device %d: %w", device, err)
	}
	return nil
}
