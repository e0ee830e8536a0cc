// Package screen holds the playlist data model shared by the sequencing engine
// and its presentation layer.
package screen

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Spec is the validated, immutable part of a playlist item.
type Spec struct {
	Enabled        bool
	FriendlyName   string
	Resource       string
	DisplaySecs    int
	RefreshMinutes int
	TimeBug        string
	Month          string // reserved, never consulted
}

// RefreshInterval returns the configured refresh cadence.
func (s Spec) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshMinutes) * time.Minute
}

// Dwell returns how long the item stays on screen.
func (s Spec) Dwell() time.Duration {
	return time.Duration(s.DisplaySecs) * time.Second
}

// Image is a decoded image handle. Owned by exactly one Item.
type Image struct {
	Type   string // "jpeg", "png", "gif", "webp"
	Size   int    // raw byte length
	Width  int
	Height int
	URI    string // data:image/<type>;base64,...
}

// Item is one schedulable display entry.
//
// Spec never changes after construction. The runtime state (schedule, cached
// image, status message) is written by the refresher and read by the cursor,
// so every access goes through the per-item lock.
type Item struct {
	ID   string
	Spec Spec

	mu            sync.RWMutex
	nextRefreshAt time.Time
	image         *Image
	message       string
}

// NewItem creates an item with fresh runtime state: no image, no schedule,
// no message.
func NewItem(spec Spec) *Item {
	return &Item{ID: uuid.NewString(), Spec: spec}
}

// Synthetic reports whether the item was manufactured by the engine rather
// than read from the playlist document. Synthetic items have no resource.
func (it *Item) Synthetic() bool {
	return it.Spec.Resource == ""
}

// DueAt initializes an unset schedule to now and returns the schedule.
func (it *Item) DueAt(now time.Time) time.Time {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.nextRefreshAt.IsZero() {
		it.nextRefreshAt = now
	}
	return it.nextRefreshAt
}

// SetImage stores a freshly decoded image, clears the status message and
// schedules the next refresh.
func (it *Item) SetImage(img *Image, next time.Time) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.image = img
	it.message = ""
	it.nextRefreshAt = next
}

// Fail records a diagnostic and schedules a retry. The cached image, if any,
// is left in place so the last good picture keeps showing.
func (it *Item) Fail(message string, next time.Time) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.message = message
	it.nextRefreshAt = next
}

// HasImage reports whether a decoded image is cached.
func (it *Item) HasImage() bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.image != nil
}

// Snapshot returns a read-only view of the item for presentation.
func (it *Item) Snapshot() Snapshot {
	it.mu.RLock()
	defer it.mu.RUnlock()

	s := Snapshot{
		ID:             it.ID,
		FriendlyName:   it.Spec.FriendlyName,
		Resource:       it.Spec.Resource,
		DisplaySecs:    it.Spec.DisplaySecs,
		RefreshMinutes: it.Spec.RefreshMinutes,
		TimeBug:        it.Spec.TimeBug,
		Message:        it.message,
		NextRefreshAt:  it.nextRefreshAt,
		Placeholder:    it.Spec.Resource == "",
	}
	if it.image != nil {
		s.HasImage = true
		s.ImageURI = it.image.URI
		s.ImageType = it.image.Type
		s.Width = it.image.Width
		s.Height = it.image.Height
	}
	return s
}

// Snapshot is the value handed to presentation by First and Next.
type Snapshot struct {
	ID             string
	FriendlyName   string
	Resource       string
	ImageURI       string
	ImageType      string
	Width          int
	Height         int
	HasImage       bool
	DisplaySecs    int
	RefreshMinutes int
	TimeBug        string
	Message        string
	NextRefreshAt  time.Time
	Placeholder    bool
}

// Dwell returns how long the snapshot should stay on screen.
func (s Snapshot) Dwell() time.Duration {
	return time.Duration(s.DisplaySecs) * time.Second
}
