// Package playlist builds the bounded in-memory playlist from a remote,
// per-profile playlist document.
package playlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/signage/internal/screen"
)

// Playlist is an ordered, non-empty list of items. Insertion order is display
// order. A Playlist is never modified after Build returns it; a rebuild
// produces a new one.
type Playlist struct {
	Generation string
	Profile    string
	BuiltAt    time.Time
	Items      []*screen.Item
}

func newPlaylist(profile string, now time.Time) *Playlist {
	return &Playlist{
		Generation: uuid.NewString(),
		Profile:    profile,
		BuiltAt:    now,
	}
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// Contains reports whether it belongs to this playlist (by identity).
func (p *Playlist) Contains(it *screen.Item) bool {
	if p == nil {
		return false
	}
	for _, x := range p.Items {
		if x == it {
			return true
		}
	}
	return false
}

// Snapshots returns a snapshot of every item, in order.
func (p *Playlist) Snapshots() []screen.Snapshot {
	if p == nil {
		return nil
	}
	out := make([]screen.Snapshot, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Snapshot()
	}
	return out
}
