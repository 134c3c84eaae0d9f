package model

import "time"

// CacheEntry is a persisted VectorCache row: a chunk, its embedding, and the
// bookkeeping needed for LRU eviction.
type CacheEntry struct {
	Chunk      Chunk
	Embedding  Embedding
	InsertedAt time.Time
	LastHitAt  time.Time
	HitCount   int
}

// SelectionResult is the Router's output: an ordered candidate-source list
// plus a confidence score for the selection.
type SelectionResult struct {
	Sources    []SourceId
	Confidence float64
}

// Stage is the event kind on the SSE wire.
type Stage string

const (
	StageStart   Stage = "start"
	StageSources Stage = "sources"
	StageContext Stage = "context"
	StageToken   Stage = "chunk"
	StageDone    Stage = "done"
	StageError   Stage = "error"
)
