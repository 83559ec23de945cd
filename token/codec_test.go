package token

import (
	"errors"
	"strings"
	"testing"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestMintResolveRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Mint("task-1", "Acme")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	profile, taskID, err := c.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile != "Acme" || taskID != "task-1" {
		t.Fatalf("resolved (%q, %q), want (Acme, task-1)", profile, taskID)
	}
}

func TestMintedTokensAreUnique(t *testing.T) {
	c := newTestCodec(t)
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		tok, err := c.Mint("task-1", "Acme")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("expected every minted token to be unique")
		}
		seen[tok] = struct{}{}
	}
}

func TestResolveFailsClosed(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Mint("task-1", "Acme")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	other, err := New([]byte("different-secret"))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	foreign, err := other.Mint("task-1", "Acme")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"truncated":    tok[:len(tok)/2],
		"tampered":     tok[:len(tok)-2] + "xx",
		"wrong secret": foreign,
		"no signature": strings.Join(strings.Split(tok, ".")[:2], ".") + ".",
	}
	for name, bad := range cases {
		if _, _, err := c.Resolve(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
