package otel

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Filter selects events when reading a log. Zero value matches everything.
type Filter struct {
	KindPrefix string
	MinLevel   Level
	Comp       string
	Item       string
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev Event) bool {
	if f.KindPrefix != "" && !strings.HasPrefix(string(ev.Kind), f.KindPrefix) {
		return false
	}
	if f.MinLevel != "" && LevelRank(ev.Level) < LevelRank(f.MinLevel) {
		return false
	}
	if f.Comp != "" && ev.Comp != f.Comp {
		return false
	}
	if f.Item != "" && ev.Item != f.Item {
		return false
	}
	return true
}

// LevelRank orders levels by severity; unknown levels rank as debug.
func LevelRank(l Level) int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// ReadTail decodes JSONL events from r and returns the last n that match f,
// oldest first. Lines that do not decode are skipped. n <= 0 returns all.
func ReadTail(r io.Reader, n int, f Filter) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events may have big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	var ring *RingBuffer
	var all []Event
	if n > 0 {
		ring = NewRingBuffer(n)
	}

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !f.Match(ev) {
			continue
		}
		if ring != nil {
			ring.Push(ev)
		} else {
			all = append(all, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if ring != nil {
		return ring.Snapshot(), nil
	}
	return all, nil
}
