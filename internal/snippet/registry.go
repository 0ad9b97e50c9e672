// Package snippet is the boundary to the snippet service. The collaboration
// subsystem only needs an access check and the current authoritative content;
// everything else about snippets lives outside this repo.
package snippet

import (
	"context"
	"sync"
)

// AccessChecker answers whether a user may read a snippet. It is injected
// into the session store so no component reaches for ambient state.
type AccessChecker interface {
	CanView(ctx context.Context, snippetID, userID string) bool
}

// Snippet is the minimal view of a snippet this subsystem cares about.
type Snippet struct {
	ID      string
	OwnerID string
	Content string
	Public  bool
}

// Registry is an in-memory stand-in for the snippet service, used for wiring
// and tests. Owner and public visibility drive CanView.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Snippet
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Snippet)}
}

func (r *Registry) Put(s Snippet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
}

func (r *Registry) Get(id string) (Snippet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) SetContent(id, content string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return false
	}
	s.Content = content
	r.byID[id] = s
	return true
}

func (r *Registry) CanView(_ context.Context, snippetID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[snippetID]
	if !ok {
		return false
	}
	return s.Public || s.OwnerID == userID
}
