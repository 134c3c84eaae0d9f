// Package protocol implements StreamProtocol: the server-sent-event wire
// format between QueryPipeline and the browser client, per SPEC_FULL §4.11.
// The event-framing helper is grounded in the teacher's handler.sendEvent
// (internal/handler/chat.go), generalized from Mercury's ad-hoc event names
// to the fixed start/sources/context/chunk/done/error set.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// EventType is the closed set of SSE event types on the wire.
type EventType string

const (
	EventStart   EventType = "start"
	EventSources EventType = "sources"
	EventContext EventType = "context"
	EventChunk   EventType = "chunk"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// SourcesPayload is the "sources" event body, written after Router selects.
type SourcesPayload struct {
	Sources []model.SourceId `json:"sources"`
}

// ContextDocument is one document summary in the "context" event body.
type ContextDocument struct {
	Source model.SourceId `json:"source"`
	Title  string         `json:"title"`
	URL    string         `json:"url,omitempty"`
}

// ContextPayload is the "context" event body, written after ContextBuilder
// packs.
type ContextPayload struct {
	Count       int              `json:"count"`
	UsedSources []model.SourceId `json:"used_sources"`
	Documents   []ContextDocument `json:"documents"`
}

// ChunkPayload is the "chunk" event body: one LLMStreamer token fragment.
type ChunkPayload struct {
	Text string `json:"text"`
}

// DonePayload is the terminal success event body.
type DonePayload struct {
	Sources     []model.SourceId  `json:"sources"`
	UsedSources []model.SourceId  `json:"used_sources"`
	Documents   []ContextDocument `json:"documents"`
}

// ErrorPayload is the terminal failure event body. Kind is always one of
// the closed ErrorKind set (see internal/pipeline) — never a raw Go error
// string.
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// Writer frames and flushes SSE events on an http.ResponseWriter. It is not
// safe for concurrent use — QueryPipeline writes events from a single
// goroutine per query.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE response headers and wraps w. It returns an error
// if the underlying ResponseWriter does not support flushing (required for
// a timely stream).
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("protocol.NewWriter: ResponseWriter does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent frames one event of the given type and payload and flushes it
// immediately, matching the teacher's "event: %s\ndata: %s\n\n" framing.
func (sw *Writer) WriteEvent(eventType EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("protocol.WriteEvent: marshal %s payload: %w", eventType, err)
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return fmt.Errorf("protocol.WriteEvent: write %s: %w", eventType, err)
	}
	sw.flusher.Flush()
	return nil
}

// Start writes the immediate "start" acknowledgement.
func (sw *Writer) Start() error {
	return sw.WriteEvent(EventStart, struct{}{})
}

// Sources writes the Router's selection.
func (sw *Writer) Sources(sources []model.SourceId) error {
	return sw.WriteEvent(EventSources, SourcesPayload{Sources: sources})
}

// Context writes ContextBuilder's packed summary.
func (sw *Writer) Context(payload ContextPayload) error {
	return sw.WriteEvent(EventContext, payload)
}

// Chunk writes one LLMStreamer token fragment.
func (sw *Writer) Chunk(text string) error {
	return sw.WriteEvent(EventChunk, ChunkPayload{Text: text})
}

// Done writes the terminal success event. No further events may be written
// afterward.
func (sw *Writer) Done(payload DonePayload) error {
	return sw.WriteEvent(EventDone, payload)
}

// Error writes the terminal failure event. No further events may be written
// afterward.
func (sw *Writer) Error(kind, message string) error {
	return sw.WriteEvent(EventError, ErrorPayload{Message: message, Kind: kind})
}

// Event is one parsed "event: <type>\ndata: <json>\n\n" frame, as produced
// by Writer.WriteEvent. It is the inverse of that framing, used by the
// non-streaming /chat handler to replay a pipeline run recorded against an
// in-memory sink back into a single JSON response.
type Event struct {
	Type EventType
	Data []byte
}

// Unmarshal decodes the event's data payload into v.
func (e Event) Unmarshal(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ParseEvents splits a recorded SSE body back into its component Events, in
// the order they were written.
func ParseEvents(body []byte) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var cur Event
	haveType := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur = Event{Type: EventType(strings.TrimPrefix(line, "event: "))}
			haveType = true
		case strings.HasPrefix(line, "data: "):
			cur.Data = []byte(strings.TrimPrefix(line, "data: "))
		case line == "" && haveType:
			events = append(events, cur)
			cur = Event{}
			haveType = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("protocol.ParseEvents: %w", err)
	}
	return events, nil
}
