// Package merge reconciles two divergent documents given their common
// ancestor. It is the fallback when operational transformation is not enough,
// e.g. a full-document resync after reconnect.
package merge

import "strings"

// Conflict surfaces all three document states for manual resolution.
type Conflict struct {
	Base   string `json:"base"`
	Yours  string `json:"yours"`
	Theirs string `json:"theirs"`
}

// Result of a three-way merge. A conflict is a normal outcome, not an error:
// Success is false and Conflicts carries the material the caller needs to
// resolve by hand.
type Result struct {
	Success   bool       `json:"success"`
	Merged    string     `json:"merged"`
	Conflicts []Conflict `json:"conflicts"`
}

// Merge reconciles a base document with a locally-held copy and an incoming
// one. Inputs are CRLF-normalized before comparison. It never attempts a
// structural auto-merge: splicing arbitrary source code without
// language-level parsing is unsafe, so anything beyond the trivial cases is
// declared a conflict.
func Merge(original, yours, theirs string) Result {
	original = normalize(original)
	yours = normalize(yours)
	theirs = normalize(theirs)

	switch {
	case yours == theirs:
		// Covers both the untouched case (original == yours == theirs)
		// and convergent edits.
		return Result{Success: true, Merged: yours, Conflicts: []Conflict{}}
	case original == yours:
		return Result{Success: true, Merged: theirs, Conflicts: []Conflict{}}
	case original == theirs:
		return Result{Success: true, Merged: yours, Conflicts: []Conflict{}}
	default:
		return Result{
			Success:   false,
			Merged:    "",
			Conflicts: []Conflict{{Base: original, Yours: yours, Theirs: theirs}},
		}
	}
}

func normalize(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
