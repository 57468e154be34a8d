package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"symbiosing/internal/api/middleware"
	"symbiosing/internal/config"
	database "symbiosing/internal/db"
	"symbiosing/internal/device"
	"symbiosing/internal/instruction"
	"symbiosing/internal/peersync"
	"symbiosing/internal/playback"
	"symbiosing/internal/storage"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []int
}

func (r *recordingSink) Send(device int, cmd instruction.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, device)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	srv  *Server
	db   *database.Client
	sink *recordingSink
	runs chan playback.Status
}

func setup(t *testing.T, secret string) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "info"
	cfg.Playback.CountdownSteps = 2
	cfg.Playback.CountdownIntervalMs = 10
	cfg.Score.BPM = 60
	cfg.Auth.JWTSecret = secret

	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := d.DB()
	sqlDB.SetMaxOpenConns(1)
	db := &database.Client{DB: d}
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	runner := playback.NewRunner(playback.NewEngine(playback.RealClock{}, sink), time.Millisecond)
	runs := make(chan playback.Status, 4)
	runner.OnIdle(func(st playback.Status) {
		db.RecordRun(st, time.Now())
		runs <- st
	})
	ctx, cancel := context.WithCancel(context.Background())
	go runner.Run(ctx)

	hub := peersync.NewHub()
	t.Cleanup(func() {
		cancel()
		hub.Close()
	})

	files := storage.NewClient(storage.NewLocalProvider(t.TempDir()), "")
	srv := New(cfg, db, files, runner, hub, device.NewRegistry([]device.Info{{Name: "vest", Port: "/dev/null"}, {Name: "sleeve", Port: "/dev/null"}}))
	return &fixture{srv: srv, db: db, sink: sink, runs: runs}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("bad JSON %q: %v", w.Body.String(), err)
	}
}

const shortSet = `{"time":[0,200,400],"instructions":{"wearer":[
	{"action":"inflate","pumpPwm":150,"ports":[true,false,false,false,false]},
	{"action":"release","pumpPwm":0,"ports":[true,false,false,false,false]},
	{"action":"stop","pumpPwm":0,"ports":[false,false,false,false,false]}]}}`

func TestConvertAndEdit(t *testing.T) {
	f := setup(t, "")

	// 1. Convert a one-part score and store it
	body := map[string]any{
		"name": "intro",
		"save": true,
		"score": `
parts:
  P1:
    measures:
      - number: 1
        signature: {beats: 4, beatType: 4}
        divisions: 1
        notes:
          - {kind: actuate, duration: 1, dynamic: f}
          - {kind: rest, duration: 1}
`,
		"mapping": "mapping:\n  P1: {role: lead, port: 2}\n",
	}
	w := f.do(t, http.MethodPost, "/api/v1/convert", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("convert: %d %s", w.Code, w.Body.String())
	}

	set, err := f.db.LoadSet("intro")
	if err != nil {
		t.Fatal(err)
	}
	cmds, _ := set.Commands("lead")
	if set.Len() != 3 || cmds[0].Action != instruction.Inflate || !cmds[0].Ports[2] {
		t.Fatalf("converted set = %+v", set)
	}

	// 2. Retime out of order; the response flags it but accepts it
	w = f.do(t, http.MethodPut, "/api/v1/sets/intro/instants/2", map[string]any{"timeMs": 500}, "")
	var view struct {
		Anomalies []int `json:"orderingAnomalies"`
	}
	decode(t, w, &view)
	if w.Code != http.StatusOK || len(view.Anomalies) != 1 || view.Anomalies[0] != 2 {
		t.Errorf("retime: %d %s", w.Code, w.Body.String())
	}

	// 3. Field edits
	w = f.do(t, http.MethodPatch, "/api/v1/sets/intro/roles/lead/commands/1",
		map[string]any{"action": "vacuum", "pumpPwm": 99, "port": 4, "open": true}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	set, _ = f.db.LoadSet("intro")
	cmds, _ = set.Commands("lead")
	if cmds[1].Action != instruction.Vacuum || cmds[1].PumpPWM != 99 || !cmds[1].Ports[4] {
		t.Errorf("command after patch = %+v", cmds[1])
	}

	// 4. Invalid edits are rejected
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"pwm out of range", http.MethodPatch, "/api/v1/sets/intro/roles/lead/commands/0", map[string]any{"pumpPwm": 300}, http.StatusBadRequest},
		{"unknown action", http.MethodPatch, "/api/v1/sets/intro/roles/lead/commands/0", map[string]any{"action": "explode"}, http.StatusBadRequest},
		{"port without open", http.MethodPatch, "/api/v1/sets/intro/roles/lead/commands/0", map[string]any{"port": 1}, http.StatusBadRequest},
		{"unknown role", http.MethodPatch, "/api/v1/sets/intro/roles/bass/commands/0", map[string]any{"pumpPwm": 1}, http.StatusBadRequest},
		{"track out of range", http.MethodDelete, "/api/v1/sets/intro/tracks/9", nil, http.StatusBadRequest},
		{"track index not a number", http.MethodDelete, "/api/v1/sets/intro/tracks/x", nil, http.StatusBadRequest},
		{"missing set", http.MethodGet, "/api/v1/sets/nope", nil, http.StatusNotFound},
		{"bad document", http.MethodPut, "/api/v1/sets/broken", `{"time":[0],"instructions":{"a":[]}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, tt.method, tt.path, tt.body, ""); w.Code != tt.want {
				t.Errorf("got %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestConvertReportsConflict(t *testing.T) {
	f := setup(t, "")
	body := map[string]any{
		"score": `
parts:
  P1:
    measures:
      - {number: 7, divisions: 1, signature: {beats: 1, beatType: 4}, notes: [{kind: actuate, duration: 1, dynamic: p}]}
  P2:
    measures:
      - {number: 7, divisions: 1, signature: {beats: 1, beatType: 4}, notes: [{kind: rest, duration: 1}]}
`,
		"mapping": "mapping:\n  P1: {role: lead, port: 0}\n  P2: {role: lead, port: 1}\n",
	}
	w := f.do(t, http.MethodPost, "/api/v1/convert", body, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("got %d, want 422: %s", w.Code, w.Body.String())
	}
}

func TestExportImport(t *testing.T) {
	f := setup(t, "")
	if w := f.do(t, http.MethodPut, "/api/v1/sets/short", shortSet, ""); w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodPost, "/api/v1/sets/short/export", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	f.db.DeleteSet("short")

	if w := f.do(t, http.MethodPost, "/api/v1/sets/short/import", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}
	if set, err := f.db.LoadSet("short"); err != nil || set.Len() != 3 {
		t.Errorf("imported set = %v, err = %v", set, err)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/sets/absent/import", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("import of a missing file: got %d", w.Code)
	}
}

func TestPlaybackLocksEdits(t *testing.T) {
	f := setup(t, "")
	f.do(t, http.MethodPut, "/api/v1/sets/short", shortSet, "")
	f.do(t, http.MethodPut, "/api/v1/sequence", map[string]any{"parts": []string{"short", "short"}}, "")
	if w := f.do(t, http.MethodPut, "/api/v1/assignment", map[string]any{"wearer": []int{0, 1}}, ""); w.Code != http.StatusOK {
		t.Fatalf("assignment: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodPut, "/api/v1/assignment", map[string]any{"wearer": []int{5}}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown device accepted: %d", w.Code)
	}

	// 1. Start
	if w := f.do(t, http.MethodPost, "/api/v1/playback/play", nil, ""); w.Code != http.StatusAccepted {
		t.Fatalf("play: %d %s", w.Code, w.Body.String())
	}

	// 2. Edits and a second play are refused while running
	if w := f.do(t, http.MethodPost, "/api/v1/sets/short/instants", nil, ""); w.Code != http.StatusConflict {
		t.Errorf("edit while running: got %d, want 409", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/playback/play", nil, ""); w.Code != http.StatusConflict {
		t.Errorf("second play: got %d, want 409", w.Code)
	}

	// 3. Completion: 6 entries, 2 devices each
	select {
	case st := <-f.runs:
		if st.Fired != 6 || st.Dispatched != 12 {
			t.Errorf("run = %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
	}
	if f.sink.count() != 12 {
		t.Errorf("sink saw %d commands, want 12", f.sink.count())
	}
	if w := f.do(t, http.MethodPost, "/api/v1/sets/short/instants", nil, ""); w.Code != http.StatusOK {
		t.Errorf("edit after playback: got %d", w.Code)
	}

	runs, _ := f.db.RecentRuns(5)
	if len(runs) != 1 || runs[0].Fired != 6 {
		t.Errorf("recorded runs = %+v", runs)
	}
}

func TestSynchronizedPlayFollowsCountdown(t *testing.T) {
	f := setup(t, "")
	f.do(t, http.MethodPut, "/api/v1/sets/short", shortSet, "")
	f.do(t, http.MethodPut, "/api/v1/sequence", map[string]any{"parts": []string{"short"}}, "")
	f.do(t, http.MethodPut, "/api/v1/assignment", map[string]any{"wearer": []int{0}}, "")

	w := f.do(t, http.MethodPost, "/api/v1/playback/play", map[string]any{"synchronized": true}, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("play: %d %s", w.Code, w.Body.String())
	}

	select {
	case st := <-f.runs:
		if !st.Synced || st.Fired != 3 {
			t.Errorf("run = %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("synchronized playback did not finish")
	}
}

func TestAuthRoles(t *testing.T) {
	const secret = "test-secret"
	f := setup(t, secret)
	viewer, _ := middleware.IssueToken([]byte(secret), "panel", middleware.RoleViewer, time.Hour)
	operator, _ := middleware.IssueToken([]byte(secret), "desk", middleware.RoleOperator, time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/sets", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/sets", "abc", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/v1/sets", viewer, http.StatusOK},
		{"viewer cannot edit", http.MethodPost, "/api/v1/playback/stop", viewer, http.StatusForbidden},
		{"operator stops", http.MethodPost, "/api/v1/playback/stop", operator, http.StatusOK},
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, tt.method, tt.path, nil, tt.token); w.Code != tt.want {
				t.Errorf("got %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
