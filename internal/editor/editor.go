// Package editor holds one client's working copy of the shared document: the
// line buffer, the operations it has broadcast but not yet seen echoed back,
// and the transformation step that keeps both consistent with incoming remote
// operations.
package editor

import (
	"sync"
	"time"

	"snipcollab/internal/model"
	"snipcollab/internal/ot"
)

type Editor struct {
	mu      sync.Mutex
	userID  string
	lines   []string
	pending []model.Operation
}

func New(userID, content string) *Editor {
	return &Editor{
		userID: userID,
		lines:  ot.SplitLines(content),
	}
}

func (e *Editor) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ot.JoinLines(e.lines)
}

// Pending returns the operations broadcast but not yet acknowledged.
func (e *Editor) Pending() []model.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Operation(nil), e.pending...)
}

// LocalEdit applies an edit to the local buffer, stamps it, and queues it as
// pending until the session echoes it back. The stamped operation is what
// the caller broadcasts.
func (e *Editor) LocalEdit(op model.Operation) model.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()

	op.UserID = e.userID
	if op.Timestamp == 0 {
		op.Timestamp = time.Now().UnixMilli()
	}
	e.lines = ot.Apply(e.lines, op)
	e.pending = append(e.pending, op)
	return op
}

// ApplyRemote folds one incoming operation into the local state. The
// client's own echo acknowledges the oldest pending operation; anyone
// else's operation is transformed past the pending queue before being
// applied, and the queue is remapped past it in turn, so both sides land on
// compatible coordinates.
func (e *Editor) ApplyRemote(op model.Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if op.UserID == e.userID {
		if len(e.pending) > 0 {
			e.pending = e.pending[1:]
		}
		return
	}

	incoming := op
	for i, p := range e.pending {
		remapped := ot.Transform(incoming, p)
		e.pending[i] = ot.Transform(p, incoming)
		incoming = remapped
	}
	e.lines = ot.Apply(e.lines, incoming)
}
