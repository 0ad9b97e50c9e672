package snippet

import (
	"context"
	"testing"
)

func TestCanView(t *testing.T) {
	r := NewRegistry()
	r.Put(Snippet{ID: "pub", OwnerID: "alice", Public: true})
	r.Put(Snippet{ID: "priv", OwnerID: "alice"})

	ctx := context.Background()
	if !r.CanView(ctx, "pub", "bob") {
		t.Fatalf("public snippet should be viewable by anyone")
	}
	if !r.CanView(ctx, "priv", "alice") {
		t.Fatalf("owner should view their own snippet")
	}
	if r.CanView(ctx, "priv", "bob") {
		t.Fatalf("private snippet leaked to non-owner")
	}
	if r.CanView(ctx, "missing", "alice") {
		t.Fatalf("unknown snippet should not be viewable")
	}
}

func TestSetContent(t *testing.T) {
	r := NewRegistry()
	r.Put(Snippet{ID: "s", OwnerID: "alice", Content: "old"})

	if !r.SetContent("s", "new") {
		t.Fatalf("set content failed")
	}
	if s, _ := r.Get("s"); s.Content != "new" {
		t.Fatalf("content not updated, got %q", s.Content)
	}
	if r.SetContent("missing", "x") {
		t.Fatalf("set content on unknown snippet should fail")
	}
}
