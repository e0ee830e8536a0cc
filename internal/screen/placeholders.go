package screen

import "strings"

// Time bug tags understood by the presenter. The engine passes them through.
const (
	TimeBugNone            = ""
	TimeBugLowerRightLight = "lower-right-light"
	TimeBugLowerRightDark  = "lower-right-dark"
	TimeBugUpperRightLight = "upper-right-light"
	TimeBugUpperRightDark  = "upper-right-dark"
)

// Placeholder names, shown verbatim.
const (
	NameStarting      = "Starting (dawn)"
	NameStillStarting = "Still starting"
	NameNoImages      = "No images"
	NameNoList        = "No list"
)

// Diagnostic messages for the "No list" item.
const (
	MsgNoProfile       = "http://host:port/<profile> - no profile"
	MsgNoSourceBase    = "http://host:port/<profile> - No SCREEN_LIST_URL_BASE"
	MsgNoActiveScreens = "No active screens"
)

const placeholderDisplaySecs = 10

// Starting is the first screen shown, before the playlist is consulted.
// publicURL is the prefix the dawn image is served from.
func Starting(publicURL string) Snapshot {
	return Snapshot{
		FriendlyName: NameStarting,
		ImageURI:     strings.TrimRight(publicURL, "/") + "/dawn.jpg",
		DisplaySecs:  placeholderDisplaySecs,
		TimeBug:      TimeBugLowerRightLight,
		Message:      "Starting...",
		Placeholder:  true,
	}
}

// StillStarting is returned while no playlist has been built yet.
func StillStarting() Snapshot {
	return Snapshot{
		FriendlyName: NameStillStarting,
		DisplaySecs:  placeholderDisplaySecs,
		TimeBug:      TimeBugNone,
		Message:      "Still starting...",
		Placeholder:  true,
	}
}

// NoImages is returned when no playlist item has a cached image.
func NoImages() Snapshot {
	return Snapshot{
		FriendlyName: NameNoImages,
		DisplaySecs:  placeholderDisplaySecs,
		TimeBug:      TimeBugLowerRightLight,
		Message:      "No images...",
		Placeholder:  true,
	}
}

// NoList builds the synthetic item that stands in for an empty playlist.
func NoList(message string) *Item {
	it := NewItem(Spec{
		Enabled:        true,
		FriendlyName:   NameNoList,
		DisplaySecs:    60,
		RefreshMinutes: 999999,
		TimeBug:        TimeBugNone,
	})
	it.message = message
	return it
}
