package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "sentinel.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.Get("sentinel_save_v3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("empty store should report not found")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	blob := []byte(`{"version":3,"round":5}`)
	if err := s.Put("sentinel_save_v3", blob); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := s.Get("sentinel_save_v3")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("got %s, want %s", got, blob)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("k", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", []byte("new")); err != nil {
		t.Fatal(err)
	}
	got, _, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("got %q, want new", got)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("k", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, found, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("deleted key should not be found")
	}

	// Deleting a missing key is fine.
	if err := s.Delete("nope"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestVersionedKeysAreIndependent(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("sentinel_save_v2", []byte("old-format")); err != nil {
		t.Fatal(err)
	}
	_, found, err := s.Get("sentinel_save_v3")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("a v2 save must never surface under the v3 key")
	}
}
