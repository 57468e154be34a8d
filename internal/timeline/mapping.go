package timeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"symbiosing/internal/score"
)

type mappingFile struct {
	BPM         float64            `yaml:"bpm"`
	Mapping     map[string]Binding `yaml:"mapping"`
	DynamicsPWM map[string]int     `yaml:"dynamics_pwm"`
}

// ParseConfig reads a mapping document (YAML or JSON). defaultBPM and
// defaultPWM apply where the document is silent.
func ParseConfig(data []byte, defaultBPM float64, defaultPWM map[string]int) (Config, error) {
	var f mappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("parse mapping: %w", err)
	}
	if len(f.Mapping) == 0 {
		return Config{}, fmt.Errorf("mapping is empty")
	}

	cfg := Config{BPM: f.BPM, Mapping: f.Mapping}
	if cfg.BPM == 0 {
		cfg.BPM = defaultBPM
	}

	raw := make(map[string]int, len(defaultPWM)+len(f.DynamicsPWM))
	for k, v := range defaultPWM {
		raw[k] = v
	}
	for k, v := range f.DynamicsPWM {
		raw[k] = v
	}
	table, err := score.ParsePWMTable(raw)
	if err != nil {
		return Config{}, fmt.Errorf("mapping dynamics: %w", err)
	}
	cfg.PWM = table
	return cfg, nil
}

// LoadConfig reads a mapping file from disk.
func LoadConfig(path string, defaultBPM float64, defaultPWM map[string]int) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read mapping: %w", err)
	}
	return ParseConfig(data, defaultBPM, defaultPWM)
}
