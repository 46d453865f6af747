package encoder

import (
	"strings"
	"testing"
	"time"
)

func TestHandleRegistry(t *testing.T) {
	r := NewHandleRegistry("/api/handles/", HandleLimits{})

	ref := r.Register([]byte("abc"), MimePNG)
	if !strings.HasPrefix(ref, "/api/handles/") {
		t.Fatalf("reference %q lacks base URL", ref)
	}
	id := strings.TrimPrefix(ref, "/api/handles/")

	for _, lookup := range []string{ref, id} {
		h, ok := r.Resolve(lookup)
		if !ok {
			t.Fatalf("Resolve(%q) failed", lookup)
		}
		if string(h.Data) != "abc" || h.MimeType != MimePNG || h.ID != id {
			t.Errorf("Resolve(%q) = %+v", lookup, h)
		}
	}

	other := r.Register([]byte("def"), MimeJPEG)
	if other == ref {
		t.Error("references should be unique")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	if !r.Revoke(ref) {
		t.Error("Revoke of a live handle should report true")
	}
	if r.Revoke(ref) {
		t.Error("second Revoke should report false")
	}
	if _, ok := r.Resolve(ref); ok {
		t.Error("revoked handle should not resolve")
	}

	if n := r.RevokeAll(); n != 1 {
		t.Errorf("RevokeAll() = %d, want 1", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after RevokeAll = %d", r.Len())
	}
}

func TestHandleRegistryMaxCount(t *testing.T) {
	r := NewHandleRegistry("/api/handles/", HandleLimits{MaxCount: 10})

	refs := make([]string, 500)
	for i := range refs {
		refs[i] = r.Register([]byte{byte(i)}, MimePNG)
	}

	if r.Len() != 10 {
		t.Fatalf("Len() = %d after 500 unrevoked registrations, want 10", r.Len())
	}
	if _, ok := r.Resolve(refs[0]); ok {
		t.Error("oldest handle should have been released")
	}
	if _, ok := r.Resolve(refs[489]); ok {
		t.Error("handle beyond the newest 10 should have been released")
	}
	for _, ref := range refs[490:] {
		if _, ok := r.Resolve(ref); !ok {
			t.Errorf("recent handle %s should still resolve", ref)
		}
	}
}

func TestHandleRegistryMaxCountAfterRevoke(t *testing.T) {
	r := NewHandleRegistry("/api/handles/", HandleLimits{MaxCount: 2})

	a := r.Register([]byte("a"), MimePNG)
	b := r.Register([]byte("b"), MimePNG)
	r.Revoke(a)
	c := r.Register([]byte("c"), MimePNG)

	for _, ref := range []string{b, c} {
		if _, ok := r.Resolve(ref); !ok {
			t.Errorf("%s should resolve when a revoke made room", ref)
		}
	}
}

func TestHandleRegistryTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewHandleRegistry("/api/handles/", HandleLimits{TTL: time.Minute})
	r.now = func() time.Time { return now }

	old := r.Register([]byte("old"), MimePNG)
	now = now.Add(40 * time.Second)
	fresh := r.Register([]byte("fresh"), MimePNG)

	now = now.Add(30 * time.Second)
	if _, ok := r.Resolve(old); ok {
		t.Error("handle older than the TTL should not resolve")
	}
	if _, ok := r.Resolve(fresh); !ok {
		t.Error("handle within the TTL should resolve")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	now = now.Add(time.Minute)
	if n := r.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Prune = %d, want 0", r.Len())
	}
}

func TestHandleRegistryPruneEvery(t *testing.T) {
	r := NewHandleRegistry("/api/handles/", HandleLimits{TTL: time.Nanosecond})
	r.Register([]byte("x"), MimePNG)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.PruneEvery(time.Millisecond, stop)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-done

	if r.Len() != 0 {
		t.Errorf("Len() = %d, expired handle was not pruned", r.Len())
	}
}
