// Package ot reconciles concurrent line-oriented edits by rewriting one
// operation's coordinates relative to another already-applied operation.
//
// The transform is intentionally line-granular: it does not compose correctly
// for overlapping multi-line insert/delete sequences from more than two
// concurrent authors. A production system wanting proven convergence should
// move to a CRDT rather than extend this pairwise transformation.
package ot

import "snipcollab/internal/model"

// LineDelta returns the signed number of lines an applied operation adds to
// or removes from the buffer. A single-fragment insert lands inside its
// target line and adds none; a multi-fragment insert splices whole lines.
// Replace touches a single line in place.
func LineDelta(op model.Operation) int {
	switch op.Type {
	case model.OpInsert:
		if len(op.Text) == 1 {
			return 0
		}
		return len(op.Text)
	case model.OpDelete:
		return -deleteLength(op)
	default:
		return 0
	}
}

// InsertedTextLen returns the number of characters an intra-line insert adds
// to its target line, used to shift a same-line operation sitting at or
// after the insertion column. Line-splice inserts add no characters to any
// existing line.
func InsertedTextLen(op model.Operation) int {
	if op.Type != model.OpInsert || len(op.Text) != 1 {
		return 0
	}
	return len(op.Text[0])
}

// Transform re-expresses op1 (not yet applied locally) in the coordinate
// space that results after op2 has been applied. Rules, in priority order:
//
//  1. op1 strictly above op2: unaffected.
//  2. op1 strictly below op2: shifted by op2's signed line delta.
//  3. same line, op2 splices whole lines there: op1 follows the existing
//     line down, except that a competing splice with the earlier timestamp
//     keeps its position and the later one yields.
//  4. same line otherwise: smaller ch wins; the larger ch is pushed right by
//     op2's inserted text length; an exact ch tie is broken by timestamp,
//     the later operation yielding its position to the earlier one.
func Transform(op1, op2 model.Operation) model.Operation {
	switch {
	case op1.Line < op2.Line:
		return op1

	case op1.Line > op2.Line:
		if op2.Type == model.OpInsert || op2.Type == model.OpDelete {
			op1.Line += LineDelta(op2)
			// A deletion that swallowed op1's line leaves it at the
			// deletion point.
			if op1.Line < op2.Line {
				op1.Line = op2.Line
			}
		}
		return op1

	default:
		if op2.Type == model.OpInsert && len(op2.Text) > 1 {
			if op1.Type == model.OpInsert && len(op1.Text) > 1 && op1.Timestamp <= op2.Timestamp {
				return op1
			}
			op1.Line += len(op2.Text)
			return op1
		}
		switch {
		case op1.Ch < op2.Ch:
			return op1
		case op1.Ch > op2.Ch:
			op1.Ch += InsertedTextLen(op2)
			return op1
		default:
			if op1.Timestamp > op2.Timestamp {
				op1.Ch += InsertedTextLen(op2)
			}
			return op1
		}
	}
}

// TransformAll transforms each pending local operation against one incoming
// remote operation, preserving order.
func TransformAll(pending []model.Operation, incoming model.Operation) []model.Operation {
	if len(pending) == 0 {
		return pending
	}
	out := make([]model.Operation, len(pending))
	for i, op := range pending {
		out[i] = Transform(op, incoming)
	}
	return out
}

func deleteLength(op model.Operation) int {
	if op.Length <= 0 {
		return 1
	}
	return op.Length
}
