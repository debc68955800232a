package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one cached clip's metadata row.
type Entry struct {
	Key             types.Key
	LocalPath       string
	DurationSeconds float64
	SizeBytes       int64
	CachedAt        time.Time
}

// Store keeps cache metadata in SQLite. All access goes through a single
// connection, which serializes writers.
type Store struct {
	conn *sql.DB
	log  *logger.Logger
}

func OpenStore(dbPath string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, log: log.With("component", "cache_store")}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run cache migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		s.log.Debug("applied migration", "name", name)
	}
	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var applied int
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (s *Store) Get(ctx context.Context, key types.Key) (Entry, bool, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT source, footage_id, local_path, duration_seconds, size_bytes, cached_at
		 FROM cache_entries WHERE cache_key = ?`, key.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get cache entry %s: %w", key, err)
	}
	return e, true, nil
}

func (s *Store) Put(ctx context.Context, e Entry) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, source, footage_id, local_path, duration_seconds, size_bytes, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   local_path = excluded.local_path,
		   duration_seconds = excluded.duration_seconds,
		   size_bytes = excluded.size_bytes,
		   cached_at = excluded.cached_at`,
		e.Key.String(), string(e.Key.Source), e.Key.ID, e.LocalPath, e.DurationSeconds, e.SizeBytes, e.CachedAt.Unix())
	if err != nil {
		return fmt.Errorf("put cache entry %s: %w", e.Key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key types.Key) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key.String()); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

// CachedBefore lists entries written before cutoff, oldest first.
func (s *Store) CachedBefore(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT source, footage_id, local_path, duration_seconds, size_bytes, cached_at
		 FROM cache_entries WHERE cached_at < ? ORDER BY cached_at ASC`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("list stale cache entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e        Entry
		source   string
		cachedAt int64
	)
	if err := sc.Scan(&source, &e.Key.ID, &e.LocalPath, &e.DurationSeconds, &e.SizeBytes, &cachedAt); err != nil {
		return Entry{}, err
	}
	e.Key.Source = types.Source(source)
	e.CachedAt = time.Unix(cachedAt, 0)
	return e, nil
}
