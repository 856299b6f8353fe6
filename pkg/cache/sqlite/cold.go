// Package sqlite is a durable cold store for audio artifacts backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// Cold stores artifacts keyed by object path with a storage-class lifecycle.
type Cold struct {
	db      *sql.DB
	now     func() time.Time
	encoder *zstd.Encoder // nil when compression is off
	decoder *zstd.Decoder
	hits    atomic.Int64
	misses  atomic.Int64
}

const createArtifactsTable = `
CREATE TABLE IF NOT EXISTS voice_artifacts (
	path TEXT PRIMARY KEY,
	agent TEXT NOT NULL,
	provider TEXT NOT NULL,
	voice_id TEXT NOT NULL,
	tier TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	cost REAL NOT NULL,
	audio BLOB NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	size INTEGER NOT NULL,
	storage_class TEXT NOT NULL DEFAULT 'STANDARD',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_class_time ON voice_artifacts(storage_class, created_at);
`

// minCompressSize skips compression for tiny clips.
const minCompressSize = 1024

// Option configures a Cold store.
type Option func(*Cold)

// WithClock overrides the time source used for ages.
func WithClock(now func() time.Time) Option {
	return func(c *Cold) { c.now = now }
}

// New opens the store at dbPath. compressionLevel is a zstd level; 0 disables
// compression of new artifacts.
func New(dbPath string, compressionLevel int, opts ...Option) (*Cold, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cold store db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createArtifactsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cold store db: %w", err)
	}

	c := &Cold{db: db, now: time.Now}
	for _, o := range opts {
		o(c)
	}

	if compressionLevel > 0 {
		c.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	}
	c.decoder, err = zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return c, nil
}

// Get retrieves the artifact for key.
func (c *Cold) Get(ctx context.Context, key voicekey.Key) (*models.AudioArtifact, error) {
	return c.GetPath(ctx, key.Path())
}

// GetPath retrieves an artifact by object path. Artifacts past the deletion
// age are misses even before a sweep removes them.
func (c *Cold) GetPath(ctx context.Context, path string) (*models.AudioArtifact, error) {
	var (
		a          models.AudioArtifact
		audio      []byte
		compressed bool
		createdAt  int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT provider, voice_id, tier, mime_type, duration_ms, cost, audio, compressed, created_at
		 FROM voice_artifacts WHERE path = ?`, path,
	).Scan(&a.Provider, &a.VoiceID, &a.Tier, &a.MimeType, &a.DurationMs, &a.Cost, &audio, &compressed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cold get: %w", err)
	}

	a.CreatedAt = time.Unix(0, createdAt).UTC()
	if _, expired := models.ClassForAge(c.now().Sub(a.CreatedAt)); expired {
		c.misses.Add(1)
		return nil, cache.ErrMiss
	}

	if compressed {
		audio, err = c.decoder.DecodeAll(audio, nil)
		if err != nil {
			return nil, fmt.Errorf("cold decompress %s: %w", path, err)
		}
	}
	a.Audio = audio

	c.hits.Add(1)
	return &a, nil
}

// Put stores a new artifact. An existing live artifact under the same path
// is left untouched.
func (c *Cold) Put(ctx context.Context, key voicekey.Key, a *models.AudioArtifact) error {
	data := a.Audio
	compressed := false
	if c.encoder != nil && len(data) > minCompressSize {
		if enc := c.encoder.EncodeAll(data, nil); len(enc) < len(data) {
			data = enc
			compressed = true
		}
	}

	created := a.CreatedAt
	if created.IsZero() {
		created = c.now()
	}

	// Rows past the deletion age are replaced; live rows are immutable.
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO voice_artifacts
		 (path, agent, provider, voice_id, tier, mime_type, duration_ms, cost, audio, compressed, size, storage_class, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   provider = excluded.provider, voice_id = excluded.voice_id, tier = excluded.tier,
		   mime_type = excluded.mime_type, duration_ms = excluded.duration_ms, cost = excluded.cost,
		   audio = excluded.audio, compressed = excluded.compressed, size = excluded.size,
		   storage_class = excluded.storage_class, created_at = excluded.created_at
		 WHERE voice_artifacts.created_at < ?`,
		key.Path(), key.AgentID, string(a.Provider), a.VoiceID, string(a.Tier), a.MimeType,
		a.DurationMs, a.Cost, data, compressed, len(data), string(models.ClassStandard), created.UnixNano(),
		c.now().Add(-models.DeleteAfter).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cold put: %w", err)
	}
	return nil
}

// Sweep applies the lifecycle: artifacts older than the nearline age move to
// NEARLINE and artifacts older than the deletion age are removed.
func (c *Cold) Sweep(ctx context.Context) (models.SweepResult, error) {
	now := c.now()
	var res models.SweepResult

	del, err := c.db.ExecContext(ctx,
		`DELETE FROM voice_artifacts WHERE created_at < ?`,
		now.Add(-models.DeleteAfter).UnixNano(),
	)
	if err != nil {
		return res, fmt.Errorf("cold sweep delete: %w", err)
	}
	res.Deleted, _ = del.RowsAffected()

	upd, err := c.db.ExecContext(ctx,
		`UPDATE voice_artifacts SET storage_class = ? WHERE storage_class = ? AND created_at <= ?`,
		string(models.ClassNearline), string(models.ClassStandard), now.Add(-models.NearlineAfter).UnixNano(),
	)
	if err != nil {
		return res, fmt.Errorf("cold sweep transition: %w", err)
	}
	res.Transitioned, _ = upd.RowsAffected()

	return res, nil
}

// Stats returns entry counts per storage class and hit/miss counters.
func (c *Cold) Stats(ctx context.Context) (models.CacheStats, error) {
	stats := models.CacheStats{
		Backend: "sqlite",
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Classes: make(map[models.StorageClass]int64),
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT storage_class, COUNT(*), COALESCE(SUM(size), 0) FROM voice_artifacts GROUP BY storage_class`)
	if err != nil {
		return stats, fmt.Errorf("cold stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var class string
		var count, size int64
		if err := rows.Scan(&class, &count, &size); err != nil {
			return stats, fmt.Errorf("scan cold stats: %w", err)
		}
		stats.Classes[models.StorageClass(class)] = count
		stats.Entries += count
		stats.Bytes += size
	}
	return stats, rows.Err()
}

// Close releases the database connection.
func (c *Cold) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	c.decoder.Close()
	return c.db.Close()
}
