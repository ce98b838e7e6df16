// Package cache is the persistent transcription cache (§3, §4.C): a
// single-writer SQLite store keyed by source URL, with TTL expiry and a
// soft-cap eviction policy.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const schemaVersion = 1

// Cache is a modernc.org/sqlite-backed TranscriptionCacheEntry store with
// an in-process single-flight table layered over it, so concurrent misses
// for the same URL coalesce into one provider submission (§5).
type Cache struct {
	conn   *sql.DB
	logger *slog.Logger

	ttl        time.Duration
	maxEntries int

	flightMu sync.Mutex
	inFlight map[string]*flight
}

type flight struct {
	done chan struct{}
	entry rundown.TranscriptionCacheEntry
	found bool
	err   error
}

// Options configures TTL and eviction behaviour; both default per §6.
type Options struct {
	TTL        time.Duration // default 7 days
	MaxEntries int           // default 50
}

func New(dbPath string, logger *slog.Logger, opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 50
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return nil, fmt.Errorf("execute %s: %w", p, err)
		}
	}

	c := &Cache{
		conn:       conn,
		logger:     logger,
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		inFlight:   make(map[string]*flight),
	}

	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("run cache migrations: %w", err)
	}

	return c, nil
}

func (c *Cache) Close() error { return c.conn.Close() }

func (c *Cache) migrate() error {
	if _, err := c.conn.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if c.migrationApplied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := c.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := c.conn.Exec(`INSERT INTO _migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		c.logger.Info("applied cache migration", "name", name)
	}
	return nil
}

func (c *Cache) migrationApplied(name string) bool {
	var applied int
	err := c.conn.QueryRow(`SELECT 1 FROM _migrations WHERE name = ?`, name).Scan(&applied)
	return err == nil && applied == 1
}

// Get returns a cached entry if present and within TTL.
func (c *Cache) Get(ctx context.Context, sourceURL string) (rundown.TranscriptionCacheEntry, bool, error) {
	row := c.conn.QueryRowContext(ctx,
		`SELECT schema_version, words_json, duration_seconds, created_at FROM transcriptions WHERE source_url = ?`,
		sourceURL)

	var (
		version   int
		wordsJSON string
		duration  float64
		createdAt string
	)
	if err := row.Scan(&version, &wordsJSON, &duration, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return rundown.TranscriptionCacheEntry{}, false, nil
		}
		return rundown.TranscriptionCacheEntry{}, false, haperrors.Wrap(haperrors.KindInternal, "read cache entry", err)
	}

	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return rundown.TranscriptionCacheEntry{}, false, haperrors.Wrap(haperrors.KindInternal, "parse cache timestamp", err)
	}
	if time.Since(created) > c.ttl {
		return rundown.TranscriptionCacheEntry{}, false, nil
	}

	var words []rundown.Word
	if err := json.Unmarshal([]byte(wordsJSON), &words); err != nil {
		return rundown.TranscriptionCacheEntry{}, false, haperrors.Wrap(haperrors.KindInternal, "decode cached words", err)
	}

	return rundown.TranscriptionCacheEntry{
		SchemaVersion: version,
		SourceURL:     sourceURL,
		Words:         words,
		Duration:      duration,
		CreatedAt:     created,
	}, true, nil
}

// Put upserts an entry and, if the table now exceeds MaxEntries, evicts the
// oldest half by created_at (§3).
func (c *Cache) Put(ctx context.Context, entry rundown.TranscriptionCacheEntry) error {
	wordsJSON, err := json.Marshal(entry.Words)
	if err != nil {
		return haperrors.Wrap(haperrors.KindInternal, "encode words for cache", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.SchemaVersion == 0 {
		entry.SchemaVersion = schemaVersion
	}

	_, err = c.conn.ExecContext(ctx, `
		INSERT INTO transcriptions (source_url, schema_version, words_json, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_url) DO UPDATE SET
			schema_version = excluded.schema_version,
			words_json = excluded.words_json,
			duration_seconds = excluded.duration_seconds,
			created_at = excluded.created_at
	`, entry.SourceURL, entry.SchemaVersion, string(wordsJSON), entry.Duration, entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return haperrors.Wrap(haperrors.KindInternal, "write cache entry", err)
	}

	return c.evictIfOverCap(ctx)
}

func (c *Cache) evictIfOverCap(ctx context.Context) error {
	var count int
	if err := c.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcriptions`).Scan(&count); err != nil {
		return haperrors.Wrap(haperrors.KindInternal, "count cache entries", err)
	}
	if count <= c.maxEntries {
		return nil
	}
	toDrop := count / 2
	_, err := c.conn.ExecContext(ctx, `
		DELETE FROM transcriptions WHERE source_url IN (
			SELECT source_url FROM transcriptions ORDER BY created_at ASC LIMIT ?
		)`, toDrop)
	if err != nil {
		return haperrors.Wrap(haperrors.KindInternal, "evict cache entries", err)
	}
	c.logger.Info("evicted cache entries over soft cap", "dropped", toDrop, "cap", c.maxEntries)
	return nil
}

// GetOrTranscribe wraps provider.Transcribe with the cache and a
// single-flight table: N concurrent callers for the same URL incur at most
// one provider submission (§5, §8 property 7).
func (c *Cache) GetOrTranscribe(ctx context.Context, sourceURL string, transcribe func(context.Context) (ports.TranscriptionResult, error)) (rundown.TranscriptionCacheEntry, error) {
	if entry, ok, err := c.Get(ctx, sourceURL); err != nil {
		return rundown.TranscriptionCacheEntry{}, err
	} else if ok {
		return entry, nil
	}

	c.flightMu.Lock()
	if f, ok := c.inFlight[sourceURL]; ok {
		c.flightMu.Unlock()
		select {
		case <-f.done:
			return f.entry, f.err
		case <-ctx.Done():
			return rundown.TranscriptionCacheEntry{}, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.inFlight[sourceURL] = f
	c.flightMu.Unlock()

	defer func() {
		c.flightMu.Lock()
		delete(c.inFlight, sourceURL)
		c.flightMu.Unlock()
		close(f.done)
	}()

	res, err := transcribe(ctx)
	if err != nil {
		f.err = err
		return rundown.TranscriptionCacheEntry{}, err
	}

	entry := rundown.TranscriptionCacheEntry{
		SchemaVersion: schemaVersion,
		SourceURL:     sourceURL,
		Words:         res.Words,
		Duration:      res.Duration.Seconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.Put(ctx, entry); err != nil {
		f.err = err
		return rundown.TranscriptionCacheEntry{}, err
	}

	f.entry = entry
	f.found = true
	return entry, nil
}

var _ ports.Cache = (*Cache)(nil)
