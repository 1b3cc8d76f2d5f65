package cache_test

import (
	"testing"

	"rayzor/internal/cache"
	"rayzor/internal/mir"
	"rayzor/internal/project"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mod := &mir.Module{
		Funcs: map[mir.FuncID]*mir.Func{
			1: {ID: 1, Name: "main", Entry: 0},
		},
	}
	entry := &cache.Entry{
		Name:            "main",
		Path:            "main",
		CompilerVersion: "test",
		MIR:             mod,
	}

	key := cache.Key(project.Digest{1, 2, 3}, project.Digest{4, 5, 6})
	if err := store.Put(key, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Name != "main" || got.MIR == nil || got.MIR.Funcs[1].Name != "main" {
		t.Fatalf("unexpected round-tripped entry: %+v", got)
	}
}

func TestStore_GetMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, ok, err := store.Get(project.Digest{9, 9, 9})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected cache miss on empty store")
	}
}

func TestStore_DropAll(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key := cache.Key(project.Digest{1}, project.Digest{2})
	if err := store.Put(key, &cache.Entry{Name: "x", MIR: &mir.Module{}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if store.Stat(key) {
		t.Fatal("expected entry to be gone after DropAll")
	}
}
