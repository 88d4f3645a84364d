// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing of a page body yields
// the same digest, since the digest names the archived blob.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	page := []byte("<html><body>Acme Robotics</body></html>")

	h := New()
	got, err := h.Hash(page)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "a6ea205f25075273074aee4e3fa637fcfa7aecab19708245b1ceb3666a403a62"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	again, err := h.Hash(page)
	if err != nil {
		t.Fatalf("Hash() repeat error = %v", err)
	}
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}
