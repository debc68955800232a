package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	DefaultMaxAge = 24 * time.Hour
	dbFileName    = "cache.db"
)

// Prober measures the real duration of a downloaded clip.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Cache materializes clips on disk keyed by source and id. Concurrent
// Ensure calls for the same key share one download; different keys proceed
// independently.
type Cache struct {
	dir     string
	store   *Store
	fetcher ports.Fetcher
	prober  Prober
	log     *logger.Logger
	group   singleflight.Group
	now     func() time.Time
}

func New(dir string, store *Store, fetcher ports.Fetcher, prober Prober, log *logger.Logger) (*Cache, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:     dir,
		store:   store,
		fetcher: fetcher,
		prober:  prober,
		log:     log.With("component", "cache"),
		now:     time.Now,
	}, nil
}

// Open creates the metadata store under dir and returns a ready cache.
func Open(dir string, fetcher ports.Fetcher, prober Prober, log *logger.Logger) (*Cache, error) {
	store, err := OpenStore(filepath.Join(dir, dbFileName), log)
	if err != nil {
		return nil, err
	}
	c, err := New(dir, store, fetcher, prober, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) Ensure(ctx context.Context, key types.Key, downloadURL string) (ports.CacheEntry, error) {
	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		return c.ensure(ctx, key, downloadURL)
	})
	if err != nil {
		return ports.CacheEntry{}, err
	}
	if shared {
		c.log.Debug("cache ensure shared", "key", key.String())
	}
	return v.(ports.CacheEntry), nil
}

func (c *Cache) ensure(ctx context.Context, key types.Key, downloadURL string) (ports.CacheEntry, error) {
	if e, ok, err := c.Lookup(ctx, key); err != nil {
		return ports.CacheEntry{}, err
	} else if ok {
		c.log.Debug("cache hit", "key", key.String())
		return e, nil
	}
	if downloadURL == "" {
		return ports.CacheEntry{}, types.NewError(types.KindDownloadFailed, "cache ensure", string(key.Source), errors.New("no download url"))
	}

	tmp, err := os.CreateTemp(c.dir, fileStem(key)+".*.part")
	if err != nil {
		return ports.CacheEntry{}, types.NewError(types.KindDownloadFailed, "cache ensure", string(key.Source), err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	start := c.now()
	n, err := c.fetcher.Fetch(ctx, downloadURL, tmpPath)
	if err != nil {
		if types.KindOf(err) == "" {
			err = types.NewError(types.KindDownloadFailed, "cache ensure", string(key.Source), err)
		}
		return ports.CacheEntry{}, err
	}
	if n == 0 {
		return ports.CacheEntry{}, types.NewError(types.KindDownloadFailed, "cache ensure", string(key.Source), errors.New("zero-byte download"))
	}

	dur, err := c.prober.ProbeDuration(ctx, tmpPath)
	if err != nil {
		if types.KindOf(err) == "" {
			err = types.NewError(types.KindProbeFailed, "cache ensure", string(key.Source), err)
		}
		return ports.CacheEntry{}, err
	}

	final := c.pathFor(key)
	if err := os.Rename(tmpPath, final); err != nil {
		return ports.CacheEntry{}, types.NewError(types.KindDownloadFailed, "cache ensure", string(key.Source), err)
	}
	committed = true

	e := Entry{Key: key, LocalPath: final, DurationSeconds: dur, SizeBytes: n, CachedAt: c.now()}
	if err := c.store.Put(ctx, e); err != nil {
		_ = os.Remove(final)
		return ports.CacheEntry{}, err
	}
	c.log.Info("cached clip", "key", key.String(), "bytes", n, "duration_seconds", dur, "took", c.now().Sub(start).String())
	return ports.CacheEntry{LocalPath: final, DurationSeconds: dur}, nil
}

// Lookup returns the entry for key only if its file is still on disk. A row
// whose file has vanished is dropped and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, key types.Key) (ports.CacheEntry, bool, error) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return ports.CacheEntry{}, false, err
	}
	if _, err := os.Stat(e.LocalPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("cache entry without file", "key", key.String(), "path", e.LocalPath)
			if err := c.store.Delete(ctx, key); err != nil {
				return ports.CacheEntry{}, false, err
			}
			return ports.CacheEntry{}, false, nil
		}
		return ports.CacheEntry{}, false, fmt.Errorf("stat cached file: %w", err)
	}
	return ports.CacheEntry{LocalPath: e.LocalPath, DurationSeconds: e.DurationSeconds}, true, nil
}

// Remove deletes one entry, file first.
func (c *Cache) Remove(ctx context.Context, key types.Key) error {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if err := os.Remove(e.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cached file: %w", err)
	}
	return c.store.Delete(ctx, key)
}

type SweepReport struct {
	Removed      int
	Failed       int
	PartialFiles int
}

// Sweep evicts entries older than maxAge. Each file is deleted before its
// row, so an interrupted sweep leaves at worst a row without a file, which
// Lookup treats as a miss. Leftover partial downloads are removed too.
func (c *Cache) Sweep(ctx context.Context, maxAge time.Duration) (SweepReport, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := c.now().Add(-maxAge)
	stale, err := c.store.CachedBefore(ctx, cutoff)
	if err != nil {
		return SweepReport{}, err
	}

	var rep SweepReport
	for _, e := range stale {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := os.Remove(e.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("sweep: remove file failed", "key", e.Key.String(), "error", err)
			rep.Failed++
			continue
		}
		if err := c.store.Delete(ctx, e.Key); err != nil {
			c.log.Warn("sweep: delete row failed", "key", e.Key.String(), "error", err)
			rep.Failed++
			continue
		}
		rep.Removed++
	}

	parts, _ := filepath.Glob(filepath.Join(c.dir, "*.part"))
	for _, p := range parts {
		st, err := os.Stat(p)
		if err != nil || st.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(p) == nil {
			rep.PartialFiles++
		}
	}
	c.log.Info("cache sweep finished", "removed", rep.Removed, "failed", rep.Failed, "partial_files", rep.PartialFiles, "max_age", maxAge.String())
	return rep, nil
}

func (c *Cache) pathFor(key types.Key) string {
	return filepath.Join(c.dir, fileStem(key)+".mp4")
}

// fileStem maps a key onto a safe file name.
func fileStem(key types.Key) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key.String())
}

var _ ports.FootageCache = (*Cache)(nil)
