package instruction

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"symbiosing/internal/timecode"
)

func sampleSet() *Set {
	return &Set{
		Time: []timecode.Time{0, 250, 1000},
		Tracks: []Track{
			{Role: "lead", Commands: []Command{
				{Action: Inflate, PumpPWM: 190, Ports: Ports{true, false, true, false, false}},
				{Action: Release, PumpPWM: 0, Ports: Ports{true, false, true, false, false}},
				StopCommand(),
			}},
			{Role: "chorus", Commands: []Command{
				{Action: Vacuum, PumpPWM: 120, Ports: Ports{false, false, false, false, true}},
				StopCommand(),
				StopCommand(),
			}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		set  *Set
	}{
		{"Two Roles", sampleSet()},
		{"Empty Axis With Role", New("solo")},
		{"Nothing At All", &Set{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.set)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v\n%s", err, data)
			}
			if got.Len() != tt.set.Len() || !reflect.DeepEqual(got.Roles(), tt.set.Roles()) {
				t.Fatalf("shape mismatch: got %+v, want %+v", got, tt.set)
			}
			for i := range tt.set.Time {
				if got.Time[i] != tt.set.Time[i] {
					t.Errorf("time[%d] = %v, want %v", i, got.Time[i], tt.set.Time[i])
				}
			}
			for i, tr := range tt.set.Tracks {
				for j, c := range tr.Commands {
					if got.Tracks[i].Commands[j] != c {
						t.Errorf("%s[%d] = %+v, want %+v", tr.Role, j, got.Tracks[i].Commands[j], c)
					}
				}
			}
		})
	}
}

func TestEncodeKeepsRoleOrder(t *testing.T) {
	data, err := Encode(sampleSet())
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if strings.Index(text, `"lead"`) > strings.Index(text, `"chorus"`) {
		t.Errorf("roles written out of order: %s", text)
	}
	if !strings.Contains(text, `"time":[0,250,1000]`) {
		t.Errorf("time axis not written as integers: %s", text)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"PWM Too High", `{"time":[0],"instructions":{"a":[{"action":"inflate","pumpPwm":256,"ports":[true,false,false,false,false]}]}}`},
		{"PWM Negative", `{"time":[0],"instructions":{"a":[{"action":"inflate","pumpPwm":-1,"ports":[true,false,false,false,false]}]}}`},
		{"Unknown Action", `{"time":[0],"instructions":{"a":[{"action":"explode","pumpPwm":1,"ports":[true,false,false,false,false]}]}}`},
		{"Short Ports", `{"time":[0],"instructions":{"a":[{"action":"stop","pumpPwm":0,"ports":[true]}]}}`},
		{"Length Mismatch", `{"time":[0,5],"instructions":{"a":[{"action":"stop","pumpPwm":0,"ports":[false,false,false,false,false]}]}}`},
		{"Fractional Time", `{"time":[0.5],"instructions":{}}`},
		{"Missing Instructions", `{"time":[]}`},
		{"Not JSON", `time: [0]`},
		{"Duplicate Role", `{"time":[],"instructions":{"a":[],"a":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Decode([]byte(tt.input))
			if err == nil {
				t.Fatalf("expected error, got set %+v", set)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %T: %v", err, err)
			}
			if set != nil {
				t.Error("decode returned a partial set alongside an error")
			}
		})
	}
}

func TestDecodeAllowsOrderingAnomalies(t *testing.T) {
	set, err := Decode([]byte(`{"time":[0,500,400],"instructions":{}}`))
	if err != nil {
		t.Fatalf("out-of-order timestamps must not fail decode: %v", err)
	}
	if got := set.OrderingAnomalies(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("OrderingAnomalies() = %v, want [2]", got)
	}
}
