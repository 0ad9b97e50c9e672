package editor

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"snipcollab/internal/model"
	"snipcollab/internal/transport"
)

// Client glues a duplex connection to an editor buffer: local edits go out
// as text_change updates, incoming updates are folded into the buffer, and
// remote cursors are tracked latest-position-only.
type Client struct {
	conn   transport.Conn
	editor *Editor

	mu      sync.Mutex
	cursors map[string]model.CursorPosition

	done chan struct{}
}

func NewClient(conn transport.Conn, userID, content string) *Client {
	return &Client{
		conn:    conn,
		editor:  New(userID, content),
		cursors: make(map[string]model.CursorPosition),
		done:    make(chan struct{}),
	}
}

// Start connects and begins consuming remote updates.
func (c *Client) Start(ctx context.Context) error {
	if err := c.conn.Connect(ctx); err != nil {
		return err
	}
	go c.consume()
	return nil
}

// Edit applies an operation locally and broadcasts it.
func (c *Client) Edit(op model.Operation) error {
	stamped := c.editor.LocalEdit(op)
	data, err := json.Marshal(stamped)
	if err != nil {
		return err
	}
	return c.conn.Send(model.Update{Type: model.UpdateTextChange, Data: data})
}

// MoveCursor broadcasts the caret position. Overwrite semantics: only the
// latest position per user matters.
func (c *Client) MoveCursor(line, ch int) error {
	data, err := json.Marshal(map[string]int{"line": line, "ch": ch})
	if err != nil {
		return err
	}
	return c.conn.Send(model.Update{Type: model.UpdateCursor, Data: data})
}

func (c *Client) Content() string { return c.editor.Content() }

// Cursors snapshots the last known remote cursor positions.
func (c *Client) Cursors() map[string]model.CursorPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]model.CursorPosition, len(c.cursors))
	for k, v := range c.cursors {
		out[k] = v
	}
	return out
}

// Done closes once the connection terminates.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) consume() {
	defer close(c.done)

	for u := range c.conn.Updates() {
		switch u.Type {
		case model.UpdateTextChange:
			var op model.Operation
			if err := json.Unmarshal(u.Data, &op); err != nil {
				log.Printf("editor: dropping undecodable remote operation: %v", err)
				continue
			}
			c.editor.ApplyRemote(op)

		case model.UpdateCursor:
			var cur struct {
				UserID string `json:"userId"`
				Line   int    `json:"line"`
				Ch     int    `json:"ch"`
			}
			if err := json.Unmarshal(u.Data, &cur); err != nil {
				continue
			}
			c.mu.Lock()
			c.cursors[cur.UserID] = model.CursorPosition{Line: cur.Line, Ch: cur.Ch, UpdatedAt: u.Timestamp}
			c.mu.Unlock()

		case model.UpdateUserLeave:
			var who struct {
				UserID string `json:"userId"`
			}
			if err := json.Unmarshal(u.Data, &who); err != nil {
				continue
			}
			c.mu.Lock()
			delete(c.cursors, who.UserID)
			c.mu.Unlock()
		}
	}

	if err := c.conn.Err(); err != nil {
		log.Printf("editor: connection terminated: %v", err)
	}
}
