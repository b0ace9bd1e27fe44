package library

import (
	"path/filepath"
	"testing"
)

func tempState(t *testing.T) (*StateDB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	db, err := OpenStateDB(path)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestStateDBRoundTrip(t *testing.T) {
	db, _ := tempState(t)

	if _, ok, err := db.Get(KeyToken); err != nil || ok {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	if err := db.Set(KeyToken, "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Set(KeyToken, "def"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := db.Get(KeyToken)
	if err != nil || !ok || v != "def" {
		t.Fatalf("get = %q %v %v, want def", v, ok, err)
	}

	if err := db.Set(KeyUser, "{}"); err != nil {
		t.Fatalf("set user: %v", err)
	}
	if err := db.Delete(KeyToken, KeyUser, "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, k := range []string{KeyToken, KeyUser} {
		if _, ok, _ := db.Get(k); ok {
			t.Fatalf("%s still present after delete", k)
		}
	}
}

func TestStateDBSurvivesReopen(t *testing.T) {
	db, path := tempState(t)
	if err := db.Set(KeyToken, "persisted"); err != nil {
		t.Fatalf("set: %v", err)
	}
	db.Close()

	again, err := OpenStateDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	v, ok, err := again.Get(KeyToken)
	if err != nil || !ok || v != "persisted" {
		t.Fatalf("after reopen got %q %v %v", v, ok, err)
	}
}

func TestMemoryStorage(t *testing.T) {
	var s Storage = NewMemoryStorage()
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := s.Get("k"); !ok || v != "v" {
		t.Fatalf("get = %q %v", v, ok)
	}
	_ = s.Delete("k")
	if _, ok, _ := s.Get("k"); ok {
		t.Fatal("key survived delete")
	}
}
