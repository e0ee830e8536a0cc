// Package rotation hands out the next item to display, cycling through the
// playlist and skipping items whose image has not arrived yet.
package rotation

import (
	"sync"

	"github.com/abelbrown/signage/internal/logging"
	"github.com/abelbrown/signage/internal/screen"
)

// Observer is told about skipped items and full-loop misses. Optional.
type Observer interface {
	Skipped(name string)
	NoImages(length int)
}

// Cursor is a cyclic pointer over a list of items. The list itself is never
// modified; Reset swaps it wholesale.
type Cursor struct {
	mu        sync.Mutex
	items     []*screen.Item
	next      int
	publicURL string
	obs       Observer
}

// New creates an empty cursor. publicURL prefixes the starting image.
func New(publicURL string, obs Observer) *Cursor {
	return &Cursor{publicURL: publicURL, obs: obs}
}

// Reset replaces the list and moves the cursor back to the first item.
func (c *Cursor) Reset(items []*screen.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
	c.next = 0
}

// First returns the starting placeholder. It never touches the list.
func (c *Cursor) First() screen.Snapshot {
	return screen.Starting(c.publicURL)
}

// Next returns the next item that has an image.
//
// With no list it returns the "still starting" placeholder and leaves the
// cursor alone. If a full loop finds no image it returns the "no images"
// placeholder; the cursor stays where the loop ended, which is one past where
// the call started. Worst case is one pass over the list.
func (c *Cursor) Next() screen.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	if n == 0 {
		return screen.StillStarting()
	}

	item := c.items[c.next]
	c.next = (c.next + 1) % n
	start := c.next

	for !item.HasImage() {
		logging.Debug("rotation: skipping, no image", "name", item.Spec.FriendlyName)
		if c.obs != nil {
			c.obs.Skipped(item.Spec.FriendlyName)
		}

		item = c.items[c.next]
		c.next = (c.next + 1) % n

		if c.next == start {
			logging.Warn("rotation: no item has an image", "items", n)
			if c.obs != nil {
				c.obs.NoImages(n)
			}
			return screen.NoImages()
		}
	}

	return item.Snapshot()
}
