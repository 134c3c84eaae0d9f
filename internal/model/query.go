package model

import "time"

// QueryOptions carries the per-request knobs spec.md §3 enumerates under
// Query.options.
type QueryOptions struct {
	MaxSources      int
	PerSourceLimit  int
	TokenBudget     int
	Streaming       bool
	EnabledSources  map[SourceId]bool
	HistoryTurns    int // max prior transcript turns included in the prompt
}

// Query is a user's RAG request. Immutable once accepted.
type Query struct {
	Text      string
	SessionID string
	UserID    string
	Deadline  time.Time
	Options   QueryOptions
}
