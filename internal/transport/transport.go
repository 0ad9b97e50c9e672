// Package transport gives editor clients a duplex-channel view of a
// collaboration session: connect, send, receive, close. Two implementations
// share the interface: a WebSocket connection (preferred) and a polling
// emulation over the stateless HTTP surface (fallback). Both deliver updates
// at most once per cycle, ordered per producer; there is no global total
// order across producers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"snipcollab/internal/model"
)

var (
	// ErrTransportFailure is terminal: the reconnect budget is exhausted
	// and the connection will never retry on its own.
	ErrTransportFailure = errors.New("transport: reconnect budget exhausted")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
)

// Conn is the duplex surface both transports present.
type Conn interface {
	// Connect creates or joins the session and starts delivery.
	Connect(ctx context.Context) error

	// Send broadcasts an update. Fire-and-forget: delivery failures are
	// logged, not retried; the next receive cycle reveals divergence.
	Send(u model.Update) error

	// Updates delivers incoming updates. The channel closes when the
	// connection terminates; Err then reports why.
	Updates() <-chan model.Update

	// Close stops delivery deterministically and best-effort tells the
	// server to drop the participant, without waiting for acknowledgement.
	Close() error

	// Err reports the terminal error, if any, after Updates closes.
	Err() error
}

type sessionEnvelope struct {
	SessionToken string `json:"session_token"`
	Version      int    `json:"version"`
}

// createSession POSTs the create/join request and returns the session token.
func createSession(ctx context.Context, client *http.Client, baseURL, authToken, snippetID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"snippet_id": snippetID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/collaboration/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create session: status %d", resp.StatusCode)
	}
	var env sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	if env.SessionToken == "" {
		return "", errors.New("create session: empty token")
	}
	return env.SessionToken, nil
}
