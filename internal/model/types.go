package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Update types carried in the per-session broadcast log.
const (
	UpdateCursor       = "cursor"
	UpdateTextChange   = "text_change"
	UpdateUserJoin     = "user_join"
	UpdateUserLeave    = "user_leave"
	UpdateParticipants = "participants"
)

// CursorPosition is the latest known caret location of one participant.
type CursorPosition struct {
	Line      int   `json:"line"`
	Ch        int   `json:"ch"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Session is the persisted record of one collaboration session. The token is
// immutable after creation and is the only handle clients hold. Version goes
// up by one per applied text operation and is never reused.
type Session struct {
	ID           string
	SnippetID    string
	HostUserID   string
	Token        string
	Participants []string
	Cursors      map[string]CursorPosition
	Version      int
	LastActivity int64
	CreatedAt    int64
}

// HasParticipant reports whether userID is currently in the session.
func (s Session) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Update is the wire-level envelope stored in the update log. Data stays raw
// so cursor moves and text operations share one broadcast path.
type Update struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    int64           `json:"timestamp"`
	SessionToken string          `json:"sessionToken,omitempty"`
}

var validUpdateTypes = map[string]bool{
	UpdateCursor:       true,
	UpdateTextChange:   true,
	UpdateUserJoin:     true,
	UpdateUserLeave:    true,
	UpdateParticipants: true,
}

// KnownUpdateType reports whether t is one of the broadcast update types.
func KnownUpdateType(t string) bool { return validUpdateTypes[t] }

// OperationType tags the edit operation variants.
type OperationType string

const (
	OpInsert  OperationType = "insert"
	OpDelete  OperationType = "delete"
	OpReplace OperationType = "replace"
)

// ErrMalformedOperation marks operations with an unknown type or missing
// required fields. Such operations are dropped at the boundary, never
// propagated into a session.
var ErrMalformedOperation = errors.New("malformed operation")

// Operation is a single line-oriented edit. Insert splices Text (a sequence
// of lines) at Line, Delete removes Length lines (default 1) starting at
// Line, Replace overwrites the single line at Line. Operations are immutable
// once broadcast and ordered only by arrival timestamp at the update log.
type Operation struct {
	Type      OperationType `json:"type"`
	Line      int           `json:"line"`
	Ch        int           `json:"ch,omitempty"`
	Text      []string      `json:"text,omitempty"`
	Length    int           `json:"length,omitempty"`
	UserID    string        `json:"userId,omitempty"`
	Timestamp int64         `json:"timestamp,omitempty"`
}

// operationJSON mirrors Operation but accepts text as either a plain string
// or an array of lines, which is how clients historically encode it.
type operationJSON struct {
	Type      OperationType   `json:"type"`
	Line      int             `json:"line"`
	Ch        int             `json:"ch"`
	Text      json.RawMessage `json:"text"`
	Length    int             `json:"length"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
}

func (op *Operation) UnmarshalJSON(data []byte) error {
	var raw operationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	op.Type = raw.Type
	op.Line = raw.Line
	op.Ch = raw.Ch
	op.Length = raw.Length
	op.UserID = raw.UserID
	op.Timestamp = raw.Timestamp
	op.Text = nil

	if len(raw.Text) > 0 {
		var single string
		if err := json.Unmarshal(raw.Text, &single); err == nil {
			op.Text = []string{single}
		} else {
			var lines []string
			if err := json.Unmarshal(raw.Text, &lines); err != nil {
				return fmt.Errorf("%w: bad text field", ErrMalformedOperation)
			}
			op.Text = lines
		}
	}
	return nil
}

// Validate rejects unknown variants and variants missing required fields.
func (op Operation) Validate() error {
	if op.Line < 0 {
		return fmt.Errorf("%w: negative line", ErrMalformedOperation)
	}
	switch op.Type {
	case OpInsert:
		if len(op.Text) == 0 {
			return fmt.Errorf("%w: insert without text", ErrMalformedOperation)
		}
	case OpDelete:
		if op.Length < 0 {
			return fmt.Errorf("%w: negative delete length", ErrMalformedOperation)
		}
	case OpReplace:
		if len(op.Text) != 1 {
			return fmt.Errorf("%w: replace needs exactly one line", ErrMalformedOperation)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedOperation, string(op.Type))
	}
	return nil
}
