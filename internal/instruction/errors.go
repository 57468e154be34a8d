package instruction

import "fmt"

// ValidationError rejects a malformed Instruction Set file or edit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid instruction set: " + e.Reason
	}
	return fmt.Sprintf("invalid instruction set: %s: %s", e.Field, e.Reason)
}
