package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"reel/internal/config"
	"reel/internal/fileutil"
	"reel/internal/logging"
	"reel/internal/registry"
	"reel/internal/services"
)

// freeSpaceFloor is the minimum free-space ratio we allow before pruning (e.g., 0.10 => 90% full).
const freeSpaceFloor = 0.10

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Manager coordinates the derivation cache: SQLite index, payload store,
// cross-process file lock, and in-process singleflight.
type Manager struct {
	cfg    config.Cache
	root   string
	db     *sql.DB
	lock   *flock.Flock
	group  singleflight.Group
	logger *slog.Logger
	statfs statfsFunc
	now    func() time.Time
}

// Open builds a cache manager rooted at the configured cache directory.
// Returns nil when caching is disabled; a nil manager is safe to use and
// reports misses everywhere.
func Open(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil || !cfg.Cache.Enabled {
		return nil, nil
	}
	root := strings.TrimSpace(cfg.Paths.CacheDir)
	if root == "" {
		return nil, errors.New("cache: cache directory is not configured")
	}
	if err := os.MkdirAll(filepath.Join(root, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create objects dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(root, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache: apply pragma %q: %w", pragma, execErr)
		}
	}

	manager := &Manager{
		cfg:    cfg.Cache,
		root:   root,
		db:     db,
		lock:   flock.New(filepath.Join(root, "cache.lock")),
		statfs: realStatfs,
		now:    func() time.Time { return time.Now().UTC() },
	}
	manager.SetLogger(logger)
	if err := manager.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return manager, nil
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "cache")
}

// Close releases the index database.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// TTL returns the configured time-to-live for a cache layer.
func (m *Manager) TTL(layer registry.CacheLayer) time.Duration {
	if m == nil {
		return 0
	}
	days := 0
	switch layer {
	case registry.LayerFingerprint:
		days = m.cfg.FingerprintTTLDays
	case registry.LayerRecognition:
		days = m.cfg.RecognitionTTLDays
	case registry.LayerTranslation:
		days = m.cfg.TranslationTTLDays
	case registry.LayerGlossary:
		days = m.cfg.GlossaryTTLDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Lookup fetches a reusable entry for the layer and key. Expired entries,
// entries below the minimum reuse quality, and entries whose payload fails
// its checksum are treated as misses; corrupt payloads are evicted so the
// next store heals the cache.
func (m *Manager) Lookup(ctx context.Context, layer registry.CacheLayer, key string) (*Entry, bool, error) {
	if m == nil || key == "" {
		return nil, false, nil
	}
	entry, err := m.get(ctx, layer, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}

	now := m.now()
	if entry.Expired(now) {
		if err := m.evict(ctx, entry); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	if err := m.verifyPayload(entry); err != nil {
		m.logger.WarnContext(ctx, "evicting corrupt cache entry",
			logging.String("layer", string(layer)),
			logging.String("cache_key", key),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_entry_corrupt"),
			logging.String(logging.FieldImpact, "result will be recomputed"),
		)
		if evictErr := m.evict(ctx, entry); evictErr != nil {
			return nil, false, evictErr
		}
		return nil, false, nil
	}
	if entry.Quality > 0 && entry.Quality < m.cfg.MinReuseQuality {
		return nil, false, nil
	}

	if err := m.touch(ctx, entry.ID, now); err != nil {
		return nil, false, err
	}
	entry.LastUsedAt = now
	return entry, true, nil
}

// Store copies the payload into the content-addressed object store and
// indexes it. When an entry already exists for the key, the new result must
// beat the existing quality by the supersede margin or the existing entry is
// kept and returned. Superseding never rewrites the existing row: the old
// row is demoted and a fresh row is inserted as current, so prior results
// stay auditable until pruned.
func (m *Manager) Store(ctx context.Context, layer registry.CacheLayer, key, payloadSrc string, attrs Attrs) (*Entry, error) {
	if m == nil {
		return nil, nil
	}
	if key == "" {
		return nil, errors.New("cache: store key is empty")
	}
	if !fileutil.NonEmptyFile(payloadSrc) {
		return nil, services.Wrap(services.ErrCacheCorruption, "cache", "store",
			"payload file missing or empty", nil)
	}

	if err := m.lock.Lock(); err != nil {
		return nil, fmt.Errorf("cache: acquire lock: %w", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	existing, err := m.get(ctx, layer, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Expired(m.now()) {
		if attrs.Quality < existing.Quality+m.cfg.SupersedeMargin {
			m.logger.DebugContext(ctx, "keeping existing cache entry",
				logging.String("layer", string(layer)),
				logging.String("cache_key", key),
				logging.Float64("existing_quality", existing.Quality),
				logging.Float64("candidate_quality", attrs.Quality),
			)
			return existing, nil
		}
	}

	checksum, err := fileutil.HashFile(payloadSrc)
	if err != nil {
		return nil, fmt.Errorf("cache: hash payload: %w", err)
	}
	info, err := os.Stat(payloadSrc)
	if err != nil {
		return nil, fmt.Errorf("cache: stat payload: %w", err)
	}

	dest := m.objectPath(checksum)
	if !fileutil.NonEmptyFile(dest) {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("cache: create object dir: %w", err)
		}
		if err := fileutil.CopyFileVerified(payloadSrc, dest); err != nil {
			return nil, fmt.Errorf("cache: copy payload: %w", err)
		}
	}

	now := m.now()
	var expires *time.Time
	if ttl := m.TTL(layer); ttl > 0 {
		t := now.Add(ttl)
		expires = &t
	}

	timestamp := now.Format(time.RFC3339Nano)
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: begin store tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE entries SET current = 0 WHERE layer = ? AND cache_key = ? AND current = 1`,
		string(layer), key); err != nil {
		return nil, fmt.Errorf("cache: demote superseded entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (
            layer, cache_key, media_identity, artifact, payload_path, bytes, checksum,
            quality, tool, language, similarity_text, current, created_at, last_used_at, expires_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		string(layer),
		key,
		nullableString(attrs.MediaIdentity),
		nullableString(attrs.Artifact),
		dest,
		info.Size(),
		checksum,
		attrs.Quality,
		nullableString(attrs.Tool),
		nullableString(attrs.Language),
		nullableString(attrs.SimilarityText),
		timestamp,
		timestamp,
		nullableTime(expires),
	); err != nil {
		return nil, fmt.Errorf("cache: index payload: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cache: commit store tx: %w", err)
	}

	m.logger.InfoContext(ctx, "stored cache entry",
		logging.String("layer", string(layer)),
		logging.String("cache_key", key),
		logging.Int64("bytes", info.Size()),
		logging.Float64("quality", attrs.Quality),
	)
	return m.get(ctx, layer, key)
}

// ComputeFunc produces a payload file when the cache cannot satisfy a key.
type ComputeFunc func(ctx context.Context) (payloadPath string, attrs Attrs, err error)

// GetOrCompute returns the cached entry for the key, computing and storing
// it on a miss. Concurrent in-process callers share one computation.
func (m *Manager) GetOrCompute(ctx context.Context, layer registry.CacheLayer, key string, compute ComputeFunc) (*Entry, bool, error) {
	if m == nil {
		// Caching disabled: compute without indexing.
		path, attrs, err := compute(ctx)
		if err != nil {
			return nil, false, err
		}
		return &Entry{
			Layer:         string(layer),
			Key:           key,
			MediaIdentity: attrs.MediaIdentity,
			Artifact:      attrs.Artifact,
			PayloadPath:   path,
			Quality:       attrs.Quality,
			Tool:          attrs.Tool,
			Language:      attrs.Language,
		}, false, nil
	}

	type result struct {
		entry *Entry
		hit   bool
	}
	v, err, _ := m.group.Do(string(layer)+"|"+key, func() (any, error) {
		if entry, ok, err := m.Lookup(ctx, layer, key); err != nil {
			return nil, err
		} else if ok {
			return result{entry: entry, hit: true}, nil
		}
		path, attrs, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		entry, err := m.Store(ctx, layer, key, path, attrs)
		if err != nil {
			return nil, err
		}
		return result{entry: entry, hit: false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(result)
	return res.entry, res.hit, nil
}

// Invalidate removes the entry for a layer and key.
func (m *Manager) Invalidate(ctx context.Context, layer registry.CacheLayer, key string) error {
	if m == nil {
		return nil
	}
	entry, err := m.get(ctx, layer, key)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	return m.evict(ctx, entry)
}

// InvalidateIdentity removes every entry derived from a media identity.
func (m *Manager) InvalidateIdentity(ctx context.Context, identity string) (int64, error) {
	if m == nil || strings.TrimSpace(identity) == "" {
		return 0, nil
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE media_identity = ?`, identity)
	if err != nil {
		return 0, fmt.Errorf("cache: query by identity: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var count int64
	for _, entry := range entries {
		if err := m.evict(ctx, entry); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// InvalidateLayer removes every entry stored under a cache layer.
func (m *Manager) InvalidateLayer(ctx context.Context, layer registry.CacheLayer) (int64, error) {
	if m == nil || layer == registry.LayerNone {
		return 0, nil
	}
	entries, err := m.collect(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE layer = ?`, string(layer))
	if err != nil {
		return 0, err
	}
	var count int64
	for _, entry := range entries {
		if err := m.evict(ctx, entry); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Clear removes all entries and payloads.
func (m *Manager) Clear(ctx context.Context) (int64, error) {
	if m == nil {
		return 0, nil
	}
	res, err := m.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("cache: clear entries: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(m.root, "objects")); err != nil {
		return 0, fmt.Errorf("cache: clear objects: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(m.root, "objects"), 0o755); err != nil {
		return 0, fmt.Errorf("cache: recreate objects dir: %w", err)
	}
	return res.RowsAffected()
}

func (m *Manager) get(ctx context.Context, layer registry.CacheLayer, key string) (*Entry, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE layer = ? AND cache_key = ? AND current = 1`,
		string(layer), key)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get entry: %w", err)
	}
	return entry, nil
}

func (m *Manager) touch(ctx context.Context, id int64, now time.Time) error {
	_, err := m.db.ExecContext(ctx,
		`UPDATE entries SET last_used_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("cache: touch entry: %w", err)
	}
	return nil
}

func (m *Manager) evict(ctx context.Context, entry *Entry) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, entry.ID); err != nil {
		return fmt.Errorf("cache: delete entry: %w", err)
	}
	m.removeOrphanPayload(ctx, entry.Checksum)
	return nil
}

// removeOrphanPayload deletes a payload file once no index row references it.
func (m *Manager) removeOrphanPayload(ctx context.Context, checksum string) {
	if checksum == "" {
		return
	}
	var count int
	if err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entries WHERE checksum = ?`, checksum).Scan(&count); err != nil {
		return
	}
	if count == 0 {
		_ = os.Remove(m.objectPath(checksum))
	}
}

func (m *Manager) verifyPayload(entry *Entry) error {
	if !fileutil.NonEmptyFile(entry.PayloadPath) {
		return services.Wrap(services.ErrCacheCorruption, "cache", "verify payload",
			"payload missing or empty", nil)
	}
	checksum, err := fileutil.HashFile(entry.PayloadPath)
	if err != nil {
		return services.Wrap(services.ErrCacheCorruption, "cache", "verify payload",
			"payload unreadable", err)
	}
	if checksum != entry.Checksum {
		return services.Wrap(services.ErrCacheCorruption, "cache", "verify payload",
			"payload checksum mismatch", nil)
	}
	return nil
}

func (m *Manager) objectPath(checksum string) string {
	prefix := "xx"
	if len(checksum) >= 2 {
		prefix = checksum[:2]
	}
	return filepath.Join(m.root, "objects", prefix, checksum)
}
