// Package vectorcache implements VectorCache: the persistent, pgvector-backed
// semantic index over Chunks described in SPEC_FULL §4.5a. The connection
// pool shape (pgxpool + pgxvector type registration) and the cosine
// similarity query are grounded in the teacher's repository/db.go and
// repository/chunk.go, generalized from a per-user document store to a
// process-wide cache keyed by (source, doc_id, ordinal).
package vectorcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/connexus-ai/raqa-orchestrator/internal/gcpclient"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// NewPool creates a PostgreSQL connection pool configured for pgvector.
func NewPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorcache.NewPool: parse config: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MinConns = 2
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	cfg.AfterConnect = pgxvector.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorcache.NewPool: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorcache.NewPool: ping: %w", err)
	}

	return pool, nil
}

// Pool is the subset of *pgxpool.Pool the cache depends on, so tests can
// substitute a fake without a live Postgres instance.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Cache is the persistent VectorCache: k-nearest lookup by cosine
// similarity, idempotent insertion, and LRU eviction by last_hit_at.
type Cache struct {
	pool    Pool
	storage *gcpclient.StorageAdapter // optional: snapshot export path
	bucket  string
}

// New wraps a connection pool (or fake, in tests) as a Cache.
func New(pool Pool) *Cache {
	return &Cache{pool: pool}
}

// WithSnapshotExport attaches a Cloud Storage path the cache can export a
// best-effort snapshot to, as a secondary durability path alongside the
// Postgres table itself (SPEC_FULL §4.5a).
func (c *Cache) WithSnapshotExport(storage *gcpclient.StorageAdapter, bucket string) *Cache {
	c.storage = storage
	c.bucket = bucket
	return c
}

// Query returns the k entries whose embeddings are most cosine-similar to
// vector, filtered by a minimum similarity floor. A hit updates
// last_hit_at and increments hit_count, since the CacheEntry's "last hit"
// metadata is precisely what drives eviction.
func (c *Cache) Query(ctx context.Context, vector []float32, k int, minScore float64) ([]model.CacheEntry, error) {
	if k <= 0 {
		k = 10
	}
	vec := pgvector.NewVector(vector)

	rows, err := c.pool.Query(ctx, `
		SELECT chunk_id, doc_id, source, title, url, text, token_count, ordinal,
			embedding, inserted_at, last_hit_at, hit_count,
			1 - (embedding <=> $1::vector) AS similarity
		FROM cache_entries
		WHERE (1 - (embedding <=> $1::vector)) > $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`,
		vec, minScore, k,
	)
	if err != nil {
		return nil, fmt.Errorf("vectorcache.Query: %w", err)
	}
	defer rows.Close()

	var entries []model.CacheEntry
	var hitIDs []string
	for rows.Next() {
		var e model.CacheEntry
		var v pgvector.Vector
		var similarity float64
		if err := rows.Scan(
			&e.Chunk.ID, &e.Chunk.DocID, &e.Chunk.Source, &e.Chunk.Title, &e.Chunk.URL,
			&e.Chunk.Text, &e.Chunk.TokenCount, &e.Chunk.Ordinal,
			&v, &e.InsertedAt, &e.LastHitAt, &e.HitCount, &similarity,
		); err != nil {
			return nil, fmt.Errorf("vectorcache.Query: scan: %w", err)
		}
		e.Embedding = model.Embedding{ChunkID: e.Chunk.ID, Vector: v.Slice()}
		entries = append(entries, e)
		hitIDs = append(hitIDs, e.Chunk.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorcache.Query: %w", err)
	}

	if len(hitIDs) > 0 {
		if _, err := c.pool.Exec(ctx, `
			UPDATE cache_entries SET last_hit_at = now(), hit_count = hit_count + 1
			WHERE chunk_id = ANY($1)`, hitIDs); err != nil {
			return nil, fmt.Errorf("vectorcache.Query: record hits: %w", err)
		}
	}

	return entries, nil
}

// Insert upserts chunks with their embeddings. It is idempotent on
// (source, doc_id, ordinal): re-insertion refreshes last_hit_at and
// increments hit_count rather than duplicating the row.
func (c *Cache) Insert(ctx context.Context, chunks []model.Chunk, embeddings []model.Embedding) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("vectorcache.Insert: chunk count (%d) != embedding count (%d)", len(chunks), len(embeddings))
	}

	byChunkID := make(map[string]model.Embedding, len(embeddings))
	for _, e := range embeddings {
		byChunkID[e.ChunkID] = e
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for _, chunk := range chunks {
		emb, ok := byChunkID[chunk.ID]
		if !ok {
			return fmt.Errorf("vectorcache.Insert: no embedding for chunk %s", chunk.ID)
		}
		vec := pgvector.NewVector(emb.Vector)

		batch.Queue(`
			INSERT INTO cache_entries
				(chunk_id, doc_id, source, title, url, text, token_count, ordinal,
				 embedding, inserted_at, last_hit_at, hit_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, 1)
			ON CONFLICT (source, doc_id, ordinal) DO UPDATE SET
				last_hit_at = excluded.last_hit_at,
				hit_count = cache_entries.hit_count + 1`,
			chunk.ID, chunk.DocID, chunk.Source, chunk.Title, chunk.URL, chunk.Text,
			chunk.TokenCount, chunk.Ordinal, vec, now,
		)
	}

	br := c.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("vectorcache.Insert: chunk %d: %w", i, err)
		}
	}

	return nil
}

// Evict deletes the least-recently-hit entries until the table's row count
// is at most targetSize, keeping the targetSize entries with the newest
// last_hit_at. It is a no-op when the cache is already at or below that
// size.
func (c *Cache) Evict(ctx context.Context, targetSize int) error {
	if targetSize < 0 {
		targetSize = 0
	}
	_, err := c.pool.Exec(ctx, `
		DELETE FROM cache_entries
		WHERE chunk_id IN (
			SELECT chunk_id FROM cache_entries
			ORDER BY last_hit_at ASC
			LIMIT GREATEST((SELECT count(*) FROM cache_entries) - $1, 0)
		)`, targetSize)
	if err != nil {
		return fmt.Errorf("vectorcache.Evict: %w", err)
	}
	return nil
}

// DeleteByDocIDs removes every cache entry for the given (source, doc_id)
// pairs in one round trip, used when a SourceAdapter reports a document was
// deleted or moved upstream and the cache must not keep serving it as
// live context. docIDs empty is a no-op.
func (c *Cache) DeleteByDocIDs(ctx context.Context, src model.SourceId, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	_, err := c.pool.Exec(ctx, `
		DELETE FROM cache_entries
		WHERE source = $1 AND doc_id = ANY($2)`,
		src, pq.Array(docIDs))
	if err != nil {
		return fmt.Errorf("vectorcache.DeleteByDocIDs: %w", err)
	}
	return nil
}

// Snapshot exports every cache entry as newline-delimited JSON to the
// attached Cloud Storage bucket. It is best-effort: a missing attachment is
// not an error, since Postgres remains the authoritative store.
func (c *Cache) Snapshot(ctx context.Context, object string) error {
	if c.storage == nil || c.bucket == "" {
		return nil
	}

	rows, err := c.pool.Query(ctx, `
		SELECT chunk_id, doc_id, source, title, url, text, token_count, ordinal,
			inserted_at, last_hit_at, hit_count
		FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("vectorcache.Snapshot: query: %w", err)
	}
	defer rows.Close()

	var buf []byte
	for rows.Next() {
		var e model.CacheEntry
		if err := rows.Scan(
			&e.Chunk.ID, &e.Chunk.DocID, &e.Chunk.Source, &e.Chunk.Title, &e.Chunk.URL,
			&e.Chunk.Text, &e.Chunk.TokenCount, &e.Chunk.Ordinal,
			&e.InsertedAt, &e.LastHitAt, &e.HitCount,
		); err != nil {
			return fmt.Errorf("vectorcache.Snapshot: scan: %w", err)
		}
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("vectorcache.Snapshot: marshal: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("vectorcache.Snapshot: %w", err)
	}

	if err := c.storage.Upload(ctx, c.bucket, object, buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("vectorcache.Snapshot: upload: %w", err)
	}
	return nil
}

// Count returns the current number of entries in the cache.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorcache.Count: %w", err)
	}
	return n, nil
}
