package transport

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"snipcollab/internal/model"
)

// WSConn is the genuine duplex channel: one persistent WebSocket carrying the
// same update envelopes the polling surface serves. It does not reconnect on
// its own; callers that need automatic recovery fall back to PollingConn.
type WSConn struct {
	baseURL   string
	authToken string
	snippetID string
	client    *http.Client
	dialer    *websocket.Dialer

	updates chan model.Update

	mu           sync.Mutex
	conn         *websocket.Conn
	sessionToken string
	err          error
	closed       bool

	closeOnce sync.Once
}

func NewWSConn(baseURL, authToken, snippetID string) *WSConn {
	return &WSConn{
		baseURL:   baseURL,
		authToken: authToken,
		snippetID: snippetID,
		client:    http.DefaultClient,
		dialer:    websocket.DefaultDialer,
		updates:   make(chan model.Update, 256),
	}
}

func (w *WSConn) Connect(ctx context.Context) error {
	token, err := createSession(ctx, w.client, w.baseURL, w.authToken, w.snippetID)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(w.baseURL, "http", "ws", 1) +
		"/collaboration/ws?token=" + w.authToken + "&session=" + token

	conn, resp, err := w.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	w.conn = conn
	w.sessionToken = token
	w.mu.Unlock()

	go w.readLoop(conn)
	return nil
}

// SessionToken returns the token of the joined session, empty before Connect.
func (w *WSConn) SessionToken() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionToken
}

func (w *WSConn) Updates() <-chan model.Update { return w.updates }

func (w *WSConn) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *WSConn) Send(u model.Update) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.conn == nil {
		return ErrClosed
	}
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	msg := map[string]any{"type": u.Type, "data": u.Data}
	if err := w.conn.WriteJSON(msg); err != nil {
		log.Printf("transport: ws send failed: %v", err)
	}
	return nil
}

func (w *WSConn) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		conn := w.conn
		w.mu.Unlock()

		if conn != nil {
			// Server-side close handling performs the leave.
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		} else {
			close(w.updates)
		}
	})
	return nil
}

func (w *WSConn) readLoop(conn *websocket.Conn) {
	defer close(w.updates)

	for {
		var u model.Update
		if err := conn.ReadJSON(&u); err != nil {
			w.mu.Lock()
			if !w.closed && w.err == nil {
				w.err = err
			}
			w.mu.Unlock()
			return
		}
		select {
		case w.updates <- u:
		default:
			// Consumer too slow; drop rather than stall the socket.
		}
	}
}
