package hub

import (
	"errors"
	"testing"
)

type testWriter struct {
	messages [][]byte
	failWith error
	closed   bool
}

func (w *testWriter) Write(message []byte) error {
	if w.failWith != nil {
		return w.failWith
	}
	w.messages = append(w.messages, message)
	return nil
}

func (w *testWriter) Close() error {
	w.closed = true
	return nil
}

func TestBroadcast_ReachesSessionMembers(t *testing.T) {
	h := New()

	w1 := &testWriter{}
	w2 := &testWriter{}
	h.Register(&Connection{SessionToken: "tok", UserID: "alice", Writer: w1})
	h.Register(&Connection{SessionToken: "tok", UserID: "bob", Writer: w2})

	h.Broadcast("tok", []byte("msg"), nil)

	if len(w1.messages) != 1 || len(w2.messages) != 1 {
		t.Fatalf("expected both writers to receive, got %d and %d", len(w1.messages), len(w2.messages))
	}
}

func TestBroadcast_SkipsSender(t *testing.T) {
	h := New()

	sender := &Connection{SessionToken: "tok", UserID: "alice", Writer: &testWriter{}}
	other := &testWriter{}
	h.Register(sender)
	h.Register(&Connection{SessionToken: "tok", UserID: "bob", Writer: other})

	h.Broadcast("tok", []byte("msg"), sender)

	if len(sender.Writer.(*testWriter).messages) != 0 {
		t.Fatalf("sender should not receive its own message")
	}
	if len(other.messages) != 1 {
		t.Fatalf("other connection should receive the message")
	}
}

func TestBroadcast_IsolatesSessions(t *testing.T) {
	h := New()

	w1 := &testWriter{}
	w2 := &testWriter{}
	h.Register(&Connection{SessionToken: "tok1", UserID: "alice", Writer: w1})
	h.Register(&Connection{SessionToken: "tok2", UserID: "bob", Writer: w2})

	h.Broadcast("tok1", []byte("msg"), nil)

	if len(w2.messages) != 0 {
		t.Fatalf("message leaked across sessions")
	}
}

func TestBroadcast_DropsFailedWriter(t *testing.T) {
	h := New()

	bad := &testWriter{failWith: errors.New("gone")}
	conn := &Connection{SessionToken: "tok", UserID: "alice", Writer: bad}
	h.Register(conn)

	h.Broadcast("tok", []byte("msg"), nil)

	if !bad.closed {
		t.Fatalf("failed writer should be closed")
	}

	// A second broadcast must not reach the dropped connection.
	bad.failWith = nil
	h.Broadcast("tok", []byte("again"), nil)
	if len(bad.messages) != 0 {
		t.Fatalf("dropped connection still receiving")
	}
}

func TestUnregister_RemovesConnection(t *testing.T) {
	h := New()

	w := &testWriter{}
	conn := &Connection{SessionToken: "tok", UserID: "alice", Writer: w}
	h.Register(conn)
	h.Unregister(conn)

	h.Broadcast("tok", []byte("msg"), nil)
	if len(w.messages) != 0 {
		t.Fatalf("unregistered connection still receiving")
	}
}
