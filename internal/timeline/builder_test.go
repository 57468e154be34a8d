package timeline

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"symbiosing/internal/instruction"
	"symbiosing/internal/score"
	"symbiosing/internal/timecode"
)

func dyn(d score.Dynamic) *score.Dynamic { return &d }

func scenarioScore() *score.Score {
	return &score.Score{Parts: map[string]*score.Part{
		"P1": {ID: "P1", Measures: []score.Measure{{
			Number:    1,
			Signature: &score.Signature{Beats: 4, BeatType: 4},
			Divisions: 1,
			Notes: []score.Note{
				{Kind: score.Actuate, Duration: 1, Dynamic: dyn(score.Forte)},
				{Kind: score.Rest, Duration: 1},
			},
		}}},
	}}
}

func TestScenarioBuild(t *testing.T) {
	cfg := Config{BPM: 60, Mapping: map[string]Binding{"P1": {Role: "wearer", Port: 2}}}

	set, err := Build(scenarioScore(), cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantTime := []timecode.Time{0, 1000, 2000}
	if len(set.Time) != len(wantTime) {
		t.Fatalf("time = %v, want %v", set.Time, wantTime)
	}
	for i := range wantTime {
		if set.Time[i] != wantTime[i] {
			t.Errorf("time[%d] = %v, want %v", i, set.Time[i], wantTime[i])
		}
	}

	cmds, ok := set.Commands("wearer")
	if !ok {
		t.Fatal("role missing")
	}
	forte := score.DefaultPWMTable().Lookup(score.Forte)
	want := []instruction.Command{
		{Action: instruction.Inflate, PumpPWM: forte, Ports: instruction.Ports{false, false, true, false, false}},
		{Action: instruction.Release, PumpPWM: 0, Ports: instruction.Ports{false, false, true, false, false}},
		{Action: instruction.Stop, PumpPWM: 0},
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, cmds[i], want[i])
		}
	}
}

func TestConflictNamesMeasure(t *testing.T) {
	channels := []Channel{
		{Port: 0, Events: []score.ChannelEvent{
			{Start: 0, Intent: score.WantInflate, Intensity: score.Piano, Measure: 1},
			{Start: 1000, Intent: score.WantInflate, Intensity: score.Piano, Measure: 7},
		}},
		{Port: 1, Events: []score.ChannelEvent{
			{Start: 0, Intent: score.NoChange, Intensity: score.Piano, Measure: 1},
			{Start: 1003, Intent: score.WantRelease, Intensity: score.Silence, Measure: 7},
		}},
	}

	_, err := BuildRole("r", channels, score.DefaultPWMTable())
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Measure != 7 || ce.Role != "r" {
		t.Errorf("conflict = %+v, want measure 7 on role r", ce)
	}
	if !strings.Contains(ce.Error(), "measure 7") {
		t.Errorf("message should name the measure: %q", ce.Error())
	}
}

func TestLoudestWins(t *testing.T) {
	channels := []Channel{
		{Port: 0, Events: []score.ChannelEvent{{Start: 0, Intent: score.WantInflate, Intensity: score.Piano}}},
		{Port: 3, Events: []score.ChannelEvent{{Start: 0, Intent: score.WantInflate, Intensity: score.Forte}}},
	}
	table := score.DefaultPWMTable()

	set, err := BuildRole("r", channels, table)
	if err != nil {
		t.Fatal(err)
	}
	cmd := set.Tracks[0].Commands[0]
	if cmd.PumpPWM != table.Lookup(score.Forte) {
		t.Errorf("pwm = %d, want %d", cmd.PumpPWM, table.Lookup(score.Forte))
	}
	if cmd.Ports != (instruction.Ports{true, false, false, true, false}) {
		t.Errorf("ports = %v", cmd.Ports)
	}
}

func TestNoChangeIsAbsorbed(t *testing.T) {
	channels := []Channel{
		{Port: 0, Events: []score.ChannelEvent{{Start: 0, Intent: score.WantVacuum, Intensity: score.MezzoPiano}}},
		{Port: 1, Events: []score.ChannelEvent{{Start: 0, Intent: score.NoChange, Intensity: score.Piano}}},
	}
	set, err := BuildRole("r", channels, score.DefaultPWMTable())
	if err != nil {
		t.Fatal(err)
	}
	cmd := set.Tracks[0].Commands[0]
	if cmd.Action != instruction.Vacuum || cmd.Ports != (instruction.Ports{true}) {
		t.Errorf("got %+v, want vacuum on port 0 only", cmd)
	}
}

func TestHeldNotesCarryAcrossInstants(t *testing.T) {
	table := score.DefaultPWMTable()
	// Channel on port 0 sounds one note from 0 to 2000; the channel on port 1
	// has a second event at 1000.
	held := func(d score.Dynamic) Channel {
		return Channel{Port: 0, Events: []score.ChannelEvent{
			{Start: 0, Intent: score.WantInflate, Intensity: d, Measure: 1},
			{Start: 2000, Intent: score.NoChange, Intensity: score.Silence, Measure: 2},
		}}
	}
	second := func(at1000 score.ChannelEvent) Channel {
		at1000.Start, at1000.Measure = 1000, 2
		return Channel{Port: 1, Events: []score.ChannelEvent{
			{Start: 0, Intent: score.WantInflate, Intensity: score.Piano, Measure: 1},
			at1000,
			{Start: 2000, Intent: score.NoChange, Intensity: score.Silence, Measure: 2},
		}}
	}

	tests := []struct {
		name        string
		channels    []Channel
		want        instruction.Command
		wantMeasure int
	}{
		{
			name:     "Held Dynamic Stays Loudest",
			channels: []Channel{held(score.Forte), second(score.ChannelEvent{Intent: score.WantInflate, Intensity: score.Piano})},
			want:     instruction.Command{Action: instruction.Inflate, PumpPWM: table.Lookup(score.Forte), Ports: instruction.Ports{true, true}},
		},
		{
			name:     "Held Port Stays Open",
			channels: []Channel{held(score.MezzoPiano), second(score.ChannelEvent{Intent: score.NoChange, Intensity: score.Piano})},
			want:     instruction.Command{Action: instruction.Inflate, PumpPWM: table.Lookup(score.MezzoPiano), Ports: instruction.Ports{true}},
		},
		{
			name:        "Release Under Held Inflate Conflicts",
			channels:    []Channel{held(score.Forte), second(score.ChannelEvent{Intent: score.WantRelease, Intensity: score.Silence})},
			wantMeasure: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := BuildRole("r", tt.channels, table)
			if tt.wantMeasure != 0 {
				var ce *ConflictError
				if !errors.As(err, &ce) {
					t.Fatalf("expected ConflictError, got %v", err)
				}
				if ce.Measure != tt.wantMeasure {
					t.Errorf("measure = %d, want %d", ce.Measure, tt.wantMeasure)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if set.Len() != 3 || set.Time[1] != 1000 {
				t.Fatalf("time = %v, want [0 1000 2000]", set.Time)
			}
			if got := set.Tracks[0].Commands[1]; got != tt.want {
				t.Errorf("command at 1000 = %+v, want %+v", got, tt.want)
			}
			if got := set.Tracks[0].Commands[2]; got != instruction.StopCommand() {
				t.Errorf("command at 2000 = %+v, want stop", got)
			}
		})
	}
}

func TestChannelValidation(t *testing.T) {
	ev := []score.ChannelEvent{{Start: 0, Intent: score.NoChange}}
	tests := []struct {
		name     string
		channels []Channel
		reason   string
	}{
		{"Empty", nil, "no channels"},
		{"Same Port", []Channel{{Port: 1, Events: ev}, {Port: 1, Events: ev}}, "each part needs a distinct port"},
		{"Port Out Of Range", []Channel{{Port: 5, Events: ev}}, "outside"},
		{"Too Many", []Channel{{Port: 0}, {Port: 1}, {Port: 2}, {Port: 3}, {Port: 4}, {Port: 0}}, "at most"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRole("r", tt.channels, nil)
			var ce *ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
			if !strings.Contains(ce.Reason, tt.reason) {
				t.Errorf("reason = %q, want it to mention %q", ce.Reason, tt.reason)
			}
		})
	}
}

func TestSettleActionIsOrderIndependent(t *testing.T) {
	in := []score.Intent{score.NoChange, score.WantInflate, score.NoChange, score.WantInflate}
	rev := []score.Intent{score.WantInflate, score.NoChange, score.WantInflate, score.NoChange}
	a, _, _, okA := settleAction(in)
	b, _, _, okB := settleAction(rev)
	if !okA || !okB || a != b || a != score.WantInflate {
		t.Errorf("settleAction disagreed: %v/%v %v/%v", a, okA, b, okB)
	}
	if got, _, _, ok := settleAction([]score.Intent{score.NoChange}); !ok || got != score.NoChange {
		t.Errorf("all NoChange should settle to NoChange, got %v", got)
	}
	if settleIntensity(nil) != score.Silence {
		t.Error("empty intensity should be silence")
	}
}

func TestAxisLengthMatchesDistinctTimestamps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var channels []Channel
		distinct := make(map[int64]bool)
		width := 1 + rng.Intn(instruction.PortCount)
		for port := 0; port < width; port++ {
			var events []score.ChannelEvent
			at := timecode.Time(0)
			for n := 0; n < 1+rng.Intn(6); n++ {
				events = append(events, score.ChannelEvent{Start: at, Intent: score.WantInflate, Intensity: score.Piano})
				distinct[at.Int()] = true
				at = at.Add(timecode.Millis(float64(10 * (1 + rng.Intn(50)))))
			}
			channels = append(channels, Channel{Port: port, Events: events})
		}

		set, err := BuildRole("r", channels, nil)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if set.Len() != len(distinct) || len(set.Tracks[0].Commands) != len(distinct) {
			t.Fatalf("round %d: axis %d, commands %d, want %d", round, set.Len(), len(set.Tracks[0].Commands), len(distinct))
		}
		if len(set.OrderingAnomalies()) != 0 {
			t.Fatalf("round %d: axis not increasing: %v", round, set.Time)
		}
	}
}

func TestBuildSharesAxisAcrossRoles(t *testing.T) {
	s := scenarioScore()
	s.Parts["P2"] = &score.Part{ID: "P2", Measures: []score.Measure{{
		Number: 1, Signature: &score.Signature{Beats: 4, BeatType: 4}, Divisions: 2,
		Notes: []score.Note{{Kind: score.Actuate, Duration: 1, Dynamic: dyn(score.Piano)}},
	}}}
	cfg := Config{BPM: 60, Mapping: map[string]Binding{
		"P1": {Role: "a", Port: 0},
		"P2": {Role: "b", Port: 0},
	}}

	set, err := Build(s, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := set.Check(); err != nil {
		t.Fatal(err)
	}
	// P1 contributes 0, 1000, 2000; P2 contributes 0, 500.
	if set.Len() != 4 {
		t.Errorf("axis = %v, want 4 instants", set.Time)
	}
	if got := set.Roles(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("roles = %v", got)
	}
}

func TestBuildRejectsUnknownMappedPart(t *testing.T) {
	cfg := Config{BPM: 60, Mapping: map[string]Binding{"P9": {Role: "a"}}}
	if _, err := Build(scenarioScore(), cfg); err == nil {
		t.Error("expected error for unknown part")
	}
}

func TestParseConfig(t *testing.T) {
	doc := `
bpm: 90
mapping:
  P1: {role: lead, port: 4}
dynamics_pwm:
  f: 170
`
	cfg, err := ParseConfig([]byte(doc), 60, map[string]int{"p": 80})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BPM != 90 || cfg.Mapping["P1"] != (Binding{Role: "lead", Port: 4}) {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.PWM.Lookup(score.Forte) != 170 || cfg.PWM.Lookup(score.Piano) != 80 {
		t.Errorf("pwm table not merged: %v", cfg.PWM)
	}
}
