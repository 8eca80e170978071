package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("myidentity", "api_key", "sk-abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("myidentity", "api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v != "sk-abc123" {
		t.Fatalf("Get() = (%q, %v), want (sk-abc123, true)", v, ok)
	}
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, ok, err := s.Get("myidentity", "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing key")
	}
}

func TestListKeys(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Set("i", "a", "1")
	_ = s.Set("i", "b", "2")
	keys, err := s.ListKeys("i")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestInvalidIdentityRejected(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("Bad-Name", "k", "v"); err == nil {
		t.Fatal("expected error for invalid identity name")
	}
}

func TestIdentitiesAreDisjointFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Set("alpha", "k", "v1")
	_ = s.Set("beta", "k", "v2")
	pa := filepath.Join(dir, "alpha.ciphertext")
	pb := filepath.Join(dir, "beta.ciphertext")
	if pa == pb {
		t.Fatal("identity ciphertext paths must be disjoint")
	}
	if _, err := os.Stat(pa); err != nil {
		t.Fatalf("alpha ciphertext missing: %v", err)
	}
	if _, err := os.Stat(pb); err != nil {
		t.Fatalf("beta ciphertext missing: %v", err)
	}
}

func TestMissingMasterKeyWithExistingCiphertextFailsClosed(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("i", "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := os.Remove(s.keyFilePath()); err != nil {
		t.Skipf("no file-based key was written (keyring available?): %v", err)
	}
	if _, err := Open(dir); !errors.Is(err, ErrMasterKeyMissing) {
		t.Fatalf("Open() with orphaned ciphertext = %v, want ErrMasterKeyMissing", err)
	}
}
