package peersync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrCountdownActive = errors.New("a countdown is already running")

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Peers are wearables and control panels on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(msg)
}

// Hub relays countdowns to every connected peer. Delivery is best effort and
// latency is not compensated: a peer starts when it receives the final count.
type Hub struct {
	mu          sync.Mutex
	peers       map[*peer]bool
	subscribers map[int]func(Message)
	nextSub     int
	session     string
	cancel      context.CancelFunc
}

func NewHub() *Hub {
	return &Hub{
		peers:       make(map[*peer]bool),
		subscribers: make(map[int]func(Message)),
	}
}

// Subscribe registers an in-process listener. The returned func removes it.
func (h *Hub) Subscribe(fn func(Message)) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

// Peers returns the number of connected websocket peers.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Broadcast sends msg to every peer and subscriber. Peers that fail the
// write are dropped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	subs := make([]func(Message), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, p := range peers {
		if err := p.send(msg); err != nil {
			log.Printf("⚠️ Sync peer %s dropped: %v", p.conn.RemoteAddr(), err)
			h.drop(p)
		}
	}
	for _, fn := range subs {
		fn(msg)
	}
}

// StartCountdown broadcasts count 1..outOf, one every interval, starting
// immediately. It returns the session id.
func (h *Hub) StartCountdown(interval time.Duration, outOf int) (string, error) {
	if outOf < 1 {
		return "", fmt.Errorf("countdown needs at least one step, got %d", outOf)
	}
	if interval <= 0 {
		return "", fmt.Errorf("countdown interval must be positive")
	}

	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		return "", ErrCountdownActive
	}
	session := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	h.session, h.cancel = session, cancel
	h.mu.Unlock()

	log.Printf("⏳ Countdown %s: %d steps every %v", session, outOf, interval)
	go h.runCountdown(ctx, session, interval, outOf)
	return session, nil
}

// CancelCountdown aborts the running countdown, if any, and tells peers to
// stop.
func (h *Hub) CancelCountdown() {
	h.mu.Lock()
	cancel, session := h.cancel, h.session
	h.cancel, h.session = nil, ""
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.Broadcast(Message{Type: TypeStop, Session: session})
}

func (h *Hub) runCountdown(ctx context.Context, session string, interval time.Duration, outOf int) {
	defer func() {
		h.mu.Lock()
		if h.session == session {
			h.cancel, h.session = nil, ""
		}
		h.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for count := 1; count <= outOf; count++ {
		if count > 1 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		h.Broadcast(Message{Type: TypeCountdown, Session: session, Count: count, OutOf: outOf})
	}
}

// ServeHTTP upgrades the request and serves one peer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ Sync upgrade failed: %v", err)
		return
	}
	p := &peer{conn: conn}
	h.mu.Lock()
	h.peers[p] = true
	h.mu.Unlock()
	log.Printf("✅ Sync peer connected: %s", conn.RemoteAddr())

	defer func() {
		h.drop(p)
		log.Printf("Sync peer disconnected: %s", conn.RemoteAddr())
	}()

	conn.SetReadLimit(4096)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ Sync read error: %v", err)
			}
			return
		}
		h.handle(p, msg)
	}
}

func (h *Hub) handle(p *peer, msg Message) {
	switch msg.Type {
	case TypeStart:
		if _, err := h.StartCountdown(msg.Interval(), msg.OutOf); err != nil {
			log.Printf("⚠️ Sync start rejected: %v", err)
		}
	case TypeStop:
		h.CancelCountdown()
	default:
		log.Printf("⚠️ Sync peer %s sent unknown message type %q", p.conn.RemoteAddr(), msg.Type)
	}
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	h.mu.Unlock()
	if ok {
		p.conn.Close()
	}
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*peer]bool)
	cancel := h.cancel
	h.cancel, h.session = nil, ""
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for p := range peers {
		p.conn.Close()
	}
}
