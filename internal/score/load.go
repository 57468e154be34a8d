package score

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse reads a score document. YAML and JSON are both accepted since JSON
// is valid YAML.
func Parse(data []byte) (*Score, error) {
	var s Score
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse score: %w", err)
	}
	if len(s.Parts) == 0 {
		return nil, &ParseError{Reason: "score has no parts"}
	}
	for id, p := range s.Parts {
		if p == nil {
			p = &Part{}
			s.Parts[id] = p
		}
		p.ID = id
	}
	return &s, nil
}

// LoadFile reads and parses a score file.
func LoadFile(path string) (*Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read score: %w", err)
	}
	return Parse(data)
}
