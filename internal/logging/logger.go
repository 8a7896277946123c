// Package logging provides leveled logging and topology event tracing for
// cellgraph. It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLog writing structured JSONL topology events (topology.jsonl)
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LevelTrace is a custom slog level below Debug. At this level every
// candidate considered by a neighbor scan is logged.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// EventKind names a topology change.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventRemove EventKind = "remove"
	EventMerge  EventKind = "merge"
	EventSplit  EventKind = "split"
)

// TopologyEvent is one line of topology.jsonl. Fields that do not apply to
// the event's kind are omitted.
type TopologyEvent struct {
	Time  time.Time `json:"time"`
	Kind  EventKind `json:"event"`
	Graph uuid.UUID `json:"graph"`

	// Insert and remove.
	Cell      uuid.UUID `json:"cell,omitzero"`
	Locator   string    `json:"locator,omitempty"`
	Neighbors int       `json:"neighbors,omitempty"`

	// Merge: graphs folded into Graph. Split: graphs carved out of Graph.
	Absorbed []uuid.UUID `json:"absorbed,omitempty"`
	Created  []uuid.UUID `json:"created,omitempty"`

	// Size of Graph after the change.
	Size int `json:"size"`
}

// EventLog writes topology events to a JSONL file.
// It is safe for concurrent use. A nil EventLog is safe to use;
// all methods are no-ops on nil receiver.
type EventLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewEventLog creates an event log writing to dir/topology.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewEventLog(dir string, level string) *EventLog {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, "topology.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &EventLog{file: f}
}

// Log writes ev as a single JSONL line, stamping Time when it is zero.
// Safe to call on nil receiver.
func (el *EventLog) Log(ev TopologyEvent) {
	if el == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return
	}
	_, _ = el.file.Write(data)
}

// ReadEvents decodes a topology.jsonl stream.
func ReadEvents(r io.Reader) ([]TopologyEvent, error) {
	var out []TopologyEvent
	dec := json.NewDecoder(r)
	for {
		var ev TopologyEvent
		if err := dec.Decode(&ev); err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, fmt.Errorf("topology event %d: %w", len(out)+1, err)
		}
		out = append(out, ev)
	}
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *EventLog) Close() {
	if el == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return
	}
	el.file.Close()
	el.file = nil
}
