package ot

import (
	"log"
	"strings"

	"snipcollab/internal/model"
)

// SplitLines breaks a document into its line buffer. CRLF is normalized to
// LF first so buffers from different clients compare equal.
func SplitLines(doc string) []string {
	return strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// Apply interprets one operation against a line buffer and returns the new
// buffer. Out-of-range coordinates are clamped rather than rejected: a
// stale-but-transformed operation must never stall the session. Unknown
// operation types are no-ops, logged as a warning.
func Apply(lines []string, op model.Operation) []string {
	switch op.Type {
	case model.OpInsert:
		// A single-fragment insert lands inside the target line at ch;
		// multi-line text splices whole lines and pushes the rest down.
		if len(op.Text) == 1 {
			if len(lines) == 0 {
				return []string{op.Text[0]}
			}
			out := make([]string, len(lines))
			copy(out, lines)
			at := clamp(op.Line, 0, len(lines)-1)
			line := out[at]
			ch := clamp(op.Ch, 0, len(line))
			out[at] = line[:ch] + op.Text[0] + line[ch:]
			return out
		}
		at := clamp(op.Line, 0, len(lines))
		out := make([]string, 0, len(lines)+len(op.Text))
		out = append(out, lines[:at]...)
		out = append(out, op.Text...)
		out = append(out, lines[at:]...)
		return out

	case model.OpDelete:
		at := clamp(op.Line, 0, len(lines))
		end := clamp(at+deleteLength(op), at, len(lines))
		out := make([]string, 0, len(lines)-(end-at))
		out = append(out, lines[:at]...)
		out = append(out, lines[end:]...)
		return out

	case model.OpReplace:
		if op.Line < 0 || op.Line >= len(lines) || len(op.Text) == 0 {
			return lines
		}
		out := make([]string, len(lines))
		copy(out, lines)
		out[op.Line] = op.Text[0]
		return out

	default:
		log.Printf("ot: ignoring operation with unknown type %q", string(op.Type))
		return lines
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
