package score

import (
	"fmt"
	"strings"
)

// Dynamic is a loudness marking. Levels are totally ordered; a higher level
// is louder.
type Dynamic uint8

const (
	Silence Dynamic = iota
	Pianissimo
	Piano
	MezzoPiano
	MezzoForte
	Forte
	Fortissimo
	Fortississimo
)

var dynamicTokens = [...]string{"silence", "pp", "p", "mp", "mf", "f", "ff", "fff"}

// Dynamics lists every level from quietest to loudest.
func Dynamics() []Dynamic {
	out := make([]Dynamic, len(dynamicTokens))
	for i := range out {
		out[i] = Dynamic(i)
	}
	return out
}

func (d Dynamic) String() string {
	if int(d) < len(dynamicTokens) {
		return dynamicTokens[d]
	}
	return fmt.Sprintf("dynamic(%d)", uint8(d))
}

func (d Dynamic) Valid() bool { return int(d) < len(dynamicTokens) }

// Louder returns the louder of a and b.
func Louder(a, b Dynamic) Dynamic {
	if a > b {
		return a
	}
	return b
}

// ParseDynamic accepts the short tokens ("mf") and a few long names.
func ParseDynamic(s string) (Dynamic, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	switch token {
	case "pianissimo":
		return Pianissimo, nil
	case "piano":
		return Piano, nil
	case "mezzopiano", "mezzo-piano":
		return MezzoPiano, nil
	case "mezzoforte", "mezzo-forte":
		return MezzoForte, nil
	case "forte":
		return Forte, nil
	case "fortissimo":
		return Fortissimo, nil
	case "fortississimo":
		return Fortississimo, nil
	}
	for i, t := range dynamicTokens {
		if t == token {
			return Dynamic(i), nil
		}
	}
	return 0, fmt.Errorf("unknown dynamic %q", s)
}

func (d Dynamic) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid dynamic %d", uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText lets yaml.v3 and encoding/json read dynamics as tokens.
func (d *Dynamic) UnmarshalText(b []byte) error {
	parsed, err := ParseDynamic(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// PWMTable maps each dynamic to a pump intensity.
type PWMTable map[Dynamic]uint8

// DefaultPWMTable is used when no table is configured.
func DefaultPWMTable() PWMTable {
	return PWMTable{
		Silence:       0,
		Pianissimo:    60,
		Piano:         90,
		MezzoPiano:    120,
		MezzoForte:    150,
		Forte:         190,
		Fortissimo:    225,
		Fortississimo: 255,
	}
}

// Lookup returns the intensity for d. Silence is always 0; other missing
// levels fall back to the default table.
func (t PWMTable) Lookup(d Dynamic) uint8 {
	if v, ok := t[d]; ok {
		return v
	}
	if d == Silence {
		return 0
	}
	return DefaultPWMTable()[d]
}

// ParsePWMTable converts a token-keyed map, as found in config files, into a
// table. Values must fit 0..255.
func ParsePWMTable(raw map[string]int) (PWMTable, error) {
	table := DefaultPWMTable()
	for k, v := range raw {
		d, err := ParseDynamic(k)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("pwm for %s: %d outside 0..255", d, v)
		}
		table[d] = uint8(v)
	}
	return table, nil
}
