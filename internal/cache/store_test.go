package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/forPelevin/scenecut/internal/types"
)

func TestOpenStore_WALAndIdempotentMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	s1, err := OpenStore(path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	var mode string
	if err := s1.conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %s, want wal", mode)
	}
	s1.Close()

	s2, err := OpenStore(path, nil)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()
	var n int
	if err := s2.conn.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one applied migration, got %d", n)
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	k := types.Key{Source: types.SourcePixabay, ID: "9"}
	at := time.Unix(1_700_000_000, 0)

	if err := s.Put(ctx, Entry{Key: k, LocalPath: "/a", DurationSeconds: 3.5, SizeBytes: 10, CachedAt: at}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, Entry{Key: k, LocalPath: "/b", DurationSeconds: 4, SizeBytes: 11, CachedAt: at}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	e, ok, err := s.Get(ctx, k)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if e.Key != k || e.LocalPath != "/b" || e.DurationSeconds != 4 || !e.CachedAt.Equal(at) {
		t.Fatalf("unexpected entry %+v", e)
	}

	stale, err := s.CachedBefore(ctx, at.Add(time.Second))
	if err != nil || len(stale) != 1 {
		t.Fatalf("CachedBefore = %v, %v", stale, err)
	}
	if err := s.Delete(ctx, k); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, k); ok {
		t.Fatalf("entry survived delete")
	}
}
