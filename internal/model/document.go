package model

import "time"

// Document is one result returned by a SourceAdapter. Body is plain text,
// already extracted from any source-native markup. Id is stable per source
// (ticket key, page id, URL); the composite (Source, ID) is globally unique.
type Document struct {
	ID        string
	Source    SourceId
	Title     string
	URL       string
	Body      string
	FetchedAt time.Time
	Score     *float64 // native relevance, if the source provides one
}
