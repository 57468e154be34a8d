package peersync

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCountdownReachesPeersAndSubscribers(t *testing.T) {
	// 1. Setup hub and one websocket peer
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	var mu sync.Mutex
	var local []Message
	unsubscribe := hub.Subscribe(func(m Message) {
		mu.Lock()
		local = append(local, m)
		mu.Unlock()
	})
	defer unsubscribe()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	waitFor(t, func() bool { return hub.Peers() == 1 })

	// 2. Peer asks for a three step countdown
	if err := client.RequestStart(5*time.Millisecond, 3); err != nil {
		t.Fatal(err)
	}

	// 3. Peer receives 1, 2, 3 in order with one session id
	var session string
	for want := 1; want <= 3; want++ {
		select {
		case m := <-client.Messages():
			if m.Type != TypeCountdown || m.Count != want || m.OutOf != 3 {
				t.Fatalf("message %d = %+v", want, m)
			}
			if session == "" {
				session = m.Session
			} else if m.Session != session {
				t.Errorf("session changed mid countdown: %s -> %s", session, m.Session)
			}
			if m.Terminal() != (want == 3) {
				t.Errorf("Terminal() wrong for count %d", want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for count %d", want)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(local) == 3
	})
}

func TestSecondCountdownRejected(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	if _, err := hub.StartCountdown(time.Hour, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := hub.StartCountdown(time.Millisecond, 2); !errors.Is(err, ErrCountdownActive) {
		t.Errorf("err = %v, want ErrCountdownActive", err)
	}

	stopped := make(chan Message, 1)
	hub.Subscribe(func(m Message) {
		if m.Type == TypeStop {
			stopped <- m
		}
	})
	hub.CancelCountdown()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("cancel should broadcast stop")
	}
	if _, err := hub.StartCountdown(time.Millisecond, 1); err != nil {
		t.Errorf("countdown after cancel should be accepted: %v", err)
	}
}

func TestStartCountdownValidation(t *testing.T) {
	hub := NewHub()
	if _, err := hub.StartCountdown(time.Second, 0); err == nil {
		t.Error("expected error for zero steps")
	}
	if _, err := hub.StartCountdown(0, 3); err == nil {
		t.Error("expected error for zero interval")
	}
}
