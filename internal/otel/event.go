// Package otel provides structured observability for the signage engine.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Playlist events
	KindPlaylistBuild    EventKind = "playlist.build"
	KindPlaylistFallback EventKind = "playlist.fallback"
	KindPlaylistInvalid  EventKind = "playlist.invalid"

	// Refresh events
	KindRefreshStart    EventKind = "refresh.start"
	KindRefreshComplete EventKind = "refresh.complete"
	KindRefreshError    EventKind = "refresh.error"
	KindRefreshSweep    EventKind = "refresh.sweep"

	// Rotation events
	KindRotateSkip     EventKind = "rotate.skip"
	KindRotateNoImages EventKind = "rotate.no_images"

	// Store events
	KindStoreError EventKind = "store.error"

	// UI events
	KindKeyPress EventKind = "ui.key"
	KindShow     EventKind = "ui.show"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Trace events, only emitted with SIGNAGE_TRACE set
	KindMsgReceived EventKind = "trace.msg_received"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time       time.Time      `json:"t"`
	Level      Level          `json:"level,omitempty"`
	Kind       EventKind      `json:"kind"`
	Comp       string         `json:"comp,omitempty"`       // component: "engine", "refresh", "ui", "main"
	SessionID  string         `json:"session_id,omitempty"` // random hex, same for entire app run
	Generation string         `json:"gen,omitempty"`        // playlist generation
	Profile    string         `json:"profile,omitempty"`
	Item       string         `json:"item,omitempty"` // friendly name
	Resource   string         `json:"resource,omitempty"`
	Status     int            `json:"status,omitempty"` // HTTP status of a failed fetch
	Dur        time.Duration  `json:"-"`                // not serialized directly
	DurMs      float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count      int            `json:"count,omitempty"`
	Err        string         `json:"err,omitempty"`
	Msg        string         `json:"msg,omitempty"`   // free text
	Extra      map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

// UnmarshalJSON implements json.Unmarshaler, restoring Dur from DurMs.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Event(a)
	if e.DurMs > 0 {
		e.Dur = time.Duration(e.DurMs * float64(time.Millisecond))
	}
	return nil
}
