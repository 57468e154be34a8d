package peersync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a peer connection to a Hub.
type Client struct {
	conn     *websocket.Conn
	messages chan Message
	writeMu  sync.Mutex
	done     chan struct{}
	once     sync.Once
}

// Dial connects to a hub websocket URL such as ws://host:8081/sync/ws.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sync hub: %w", err)
	}
	c := &Client{
		conn:     conn,
		messages: make(chan Message, 16),
		done:     make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Messages delivers hub broadcasts. It is closed when the connection ends.
func (c *Client) Messages() <-chan Message { return c.messages }

// RequestStart asks the hub to count down outOf steps, interval apart.
func (c *Client) RequestStart(interval time.Duration, outOf int) error {
	return c.send(Message{
		Type:       TypeStart,
		OutOf:      outOf,
		IntervalMs: float64(interval) / float64(time.Millisecond),
	})
}

// RequestStop asks the hub to cancel the countdown and stop every peer.
func (c *Client) RequestStop() error {
	return c.send(Message{Type: TypeStop})
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readPump() {
	defer close(c.messages)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("⚠️ Sync hub read error: %v", err)
				}
			}
			return
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}
