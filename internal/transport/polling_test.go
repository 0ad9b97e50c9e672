package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"snipcollab/internal/auth"
	"snipcollab/internal/model"
	"snipcollab/internal/server"
	"snipcollab/internal/snippet"
	"snipcollab/internal/store"
)

func newTestBackend(t *testing.T) (*httptest.Server, store.SessionStore, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := snippet.NewRegistry()
	reg.Put(snippet.Snippet{ID: "snip1", OwnerID: "alice", Content: "A\nB\nC", Public: true})

	cfg := auth.DefaultTokenConfig("test-secret")
	st := store.NewMemoryStore(store.Options{Access: reg, TTL: time.Hour})
	srv := httptest.NewServer(server.NewRouter(server.Deps{Store: st, Snippets: reg, TokenConfig: cfg}))
	t.Cleanup(srv.Close)

	tok, err := auth.CreateToken("alice", cfg)
	if err != nil {
		t.Fatalf("create token failed: %v", err)
	}
	return srv, st, tok
}

func waitForUpdate(t *testing.T, conn Conn, typ string) model.Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-conn.Updates():
			if !ok {
				t.Fatalf("updates channel closed while waiting for %q: %v", typ, conn.Err())
			}
			if u.Type == typ {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q update", typ)
		}
	}
}

func TestPollingConn_DeliversUpdates(t *testing.T) {
	srv, st, authToken := newTestBackend(t)

	conn := NewPollingConn(srv.URL, authToken, "snip1", PollingOptions{Interval: 10 * time.Millisecond})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()

	token := conn.SessionToken()
	if token == "" {
		t.Fatalf("expected session token after connect")
	}

	data, _ := json.Marshal(model.Operation{Type: model.OpReplace, Line: 0, Text: []string{"X"}})
	if _, err := st.AppendUpdate(context.Background(), token, model.Update{Type: model.UpdateTextChange, Data: data}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	u := waitForUpdate(t, conn, model.UpdateTextChange)
	if u.Timestamp == 0 {
		t.Fatalf("delivered update missing timestamp")
	}

	var op model.Operation
	if err := json.Unmarshal(u.Data, &op); err != nil {
		t.Fatalf("decode operation failed: %v", err)
	}
	if op.Type != model.OpReplace || op.Text[0] != "X" {
		t.Fatalf("unexpected operation %+v", op)
	}
}

func TestPollingConn_SendReachesLog(t *testing.T) {
	srv, st, authToken := newTestBackend(t)

	conn := NewPollingConn(srv.URL, authToken, "snip1", PollingOptions{Interval: 10 * time.Millisecond})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()

	data, _ := json.Marshal(model.Operation{Type: model.OpInsert, Line: 1, Text: []string{"new"}})
	if err := conn.Send(model.Update{Type: model.UpdateTextChange, Data: data}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		updates, err := st.UpdatesSince(context.Background(), conn.SessionToken(), 0)
		if err != nil {
			t.Fatalf("updates since failed: %v", err)
		}
		for _, u := range updates {
			if u.Type == model.UpdateTextChange {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("sent update never reached the log")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPollingConn_ReconnectsAfterSessionLoss(t *testing.T) {
	srv, st, authToken := newTestBackend(t)

	conn := NewPollingConn(srv.URL, authToken, "snip1", PollingOptions{
		Interval:  10 * time.Millisecond,
		BaseDelay: time.Millisecond,
	})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()

	first := conn.SessionToken()
	if err := st.Delete(context.Background(), first); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.SessionToken() == first {
		if time.Now().After(deadline) {
			t.Fatalf("connection never rejoined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The rejoined session keeps delivering.
	time.Sleep(5 * time.Millisecond)
	data, _ := json.Marshal(model.Operation{Type: model.OpReplace, Line: 0, Text: []string{"Y"}})
	if _, err := st.AppendUpdate(context.Background(), conn.SessionToken(), model.Update{Type: model.UpdateTextChange, Data: data}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	waitForUpdate(t, conn, model.UpdateTextChange)
}

func TestPollingConn_ReconnectBudgetExhaustionIsTerminal(t *testing.T) {
	var created atomic.Int64
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collaboration/sessions" {
			if created.Add(1) == 1 {
				json.NewEncoder(w).Encode(map[string]string{"session_token": "tok"})
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Every poll finds the session gone.
		w.WriteHeader(http.StatusNotFound)
	}))
	defer stub.Close()

	conn := NewPollingConn(stub.URL, "auth", "snip1", PollingOptions{
		Interval:      5 * time.Millisecond,
		BaseDelay:     time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		MaxReconnects: 3,
	})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	select {
	case _, ok := <-conn.Updates():
		if ok {
			t.Fatalf("unexpected update from dead session")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel never closed after budget exhaustion")
	}

	if !errors.Is(conn.Err(), ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", conn.Err())
	}
	if got := created.Load(); got != 4 {
		t.Fatalf("expected initial create plus 3 reconnect attempts, got %d", got)
	}
}

func TestPollingConn_CloseStopsPolling(t *testing.T) {
	var polls atomic.Int64
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collaboration/sessions" {
			json.NewEncoder(w).Encode(map[string]string{"session_token": "tok"})
			return
		}
		if r.Method == http.MethodGet {
			polls.Add(1)
		}
		json.NewEncoder(w).Encode(map[string]any{"updates": []any{}})
	}))
	defer stub.Close()

	conn := NewPollingConn(stub.URL, "auth", "snip1", PollingOptions{Interval: 5 * time.Millisecond})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for polls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never polled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	after := polls.Load()
	time.Sleep(50 * time.Millisecond)
	if polls.Load() != after {
		t.Fatalf("connection kept polling after Close")
	}

	if _, ok := <-conn.Updates(); ok {
		t.Fatalf("updates channel should be closed")
	}
	if err := conn.Send(model.Update{Type: model.UpdateCursor}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Send, got %v", err)
	}
}
