package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abelbrown/signage/internal/otel"
)

// debugPanelChrome is the number of lines taken by DebugPanel's border and
// vertical padding.
const debugPanelChrome = 4

// maxFailing caps the failing items section.
const maxFailing = 5

// debugView is one page of the event log: a named filter over the ring.
type debugView struct {
	name   string
	filter otel.Filter
}

// debugViews cycle with "f" while the overlay is open.
var debugViews = []debugView{
	{"all", otel.Filter{}},
	{"problems", otel.Filter{MinLevel: otel.LevelWarn}},
	{"refresh", otel.Filter{KindPrefix: "refresh."}},
	{"rotation", otel.Filter{KindPrefix: "rotate."}},
}

// debugInput is everything the overlay draws from.
type debugInput struct {
	ring    *otel.RingBuffer
	view    debugView
	dropped uint64
	now     time.Time
	width   int
	height  int
}

// failingItem is an item whose latest refresh failed.
type failingItem struct {
	name    string
	count   int // failures since its last success
	lastErr string
	at      time.Time
}

// debugOverlay renders engine counters, the items currently failing to
// refresh and the filtered event log. Empty when there is no ring.
func debugOverlay(in debugInput) string {
	if in.ring == nil {
		return ""
	}
	stats := in.ring.Stats()
	panelWidth := min(76, in.width-4)
	if panelWidth < 20 {
		panelWidth = 20
	}
	// Content width inside DebugPanel's horizontal padding.
	textWidth := panelWidth - 4

	lines := []string{
		DebugHeaderStyle.Render("Engine"),
		fmt.Sprintf("  lists     %d built, %d fallback, %d invalid entries",
			stats[otel.KindPlaylistBuild], stats[otel.KindPlaylistFallback], stats[otel.KindPlaylistInvalid]),
		fmt.Sprintf("  refresh   %d sweeps, %d ok, %d failed",
			stats[otel.KindRefreshSweep], stats[otel.KindRefreshComplete], stats[otel.KindRefreshError]),
		fmt.Sprintf("  rotation  %d shown, %d skipped",
			stats[otel.KindShow], stats[otel.KindRotateSkip]),
		fmt.Sprintf("  events    %d/%d buffered, %d dropped", in.ring.Len(), in.ring.Cap(), in.dropped),
	}
	if n := stats[otel.KindStoreError]; n > 0 {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("  history   %d write errors", n)))
	}
	if last := in.ring.Matching(otel.Filter{KindPrefix: string(otel.KindRotateNoImages)}, 1); len(last) == 1 {
		lines = append(lines, ErrorStyle.Render("  no images to show, last seen "+age(in.now, last[0].Time)+" ago"))
	}

	if failing := failingItems(in.ring); len(failing) > 0 {
		lines = append(lines, "", DebugHeaderStyle.Render("Failing"))
		for _, f := range failing {
			line := fmt.Sprintf("  %-22s x%-3d %4s  %s",
				truncateRunes(f.name, 22), f.count, age(in.now, f.at), f.lastErr)
			lines = append(lines, truncateRunes(line, textWidth))
		}
	}

	lines = append(lines, "", DebugHeaderStyle.Render("Events: "+in.view.name))
	room := in.height - debugPanelChrome - len(lines)
	if room < 1 {
		room = 1
	}
	events := in.ring.Matching(in.view.filter, room)
	if len(events) == 0 {
		lines = append(lines, MetaStyle.Render("  nothing yet"))
	}
	for _, e := range events {
		lines = append(lines, truncateRunes(eventLine(in.now, e), textWidth))
	}

	maxHeight := in.height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// failingItems replays buffered refresh events and returns the items whose
// most recent attempt failed, worst first.
func failingItems(ring *otel.RingBuffer) []failingItem {
	byName := map[string]*failingItem{}
	for _, e := range ring.Matching(otel.Filter{KindPrefix: "refresh."}, 0) {
		if e.Item == "" {
			continue
		}
		switch e.Kind {
		case otel.KindRefreshComplete:
			delete(byName, e.Item)
		case otel.KindRefreshError:
			f := byName[e.Item]
			if f == nil {
				f = &failingItem{name: e.Item}
				byName[e.Item] = f
			}
			f.count++
			f.lastErr = e.Msg
			if f.lastErr == "" {
				f.lastErr = e.Err
			}
			f.at = e.Time
		}
	}

	out := make([]failingItem, 0, len(byName))
	for _, f := range byName {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	if len(out) > maxFailing {
		out = out[:maxFailing]
	}
	return out
}

// eventLine formats one buffered event for the log section.
func eventLine(now time.Time, e otel.Event) string {
	line := fmt.Sprintf("  %4s %-5s %-17s", age(now, e.Time), e.Level, e.Kind)
	if e.Item != "" {
		line += " " + truncateRunes(e.Item, 20)
	}
	if e.Msg != "" {
		line += " " + truncateRunes(e.Msg, 30)
	}
	if e.Err != "" {
		line += " err=" + truncateRunes(e.Err, 24)
	}
	return line
}

// age formats how long before now t happened, in whole units.
func age(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

// truncateRunes cuts s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// debugStatusBar renders the key hints shown under the overlay.
func debugStatusBar(width int, view debugView) string {
	keys := StatusBarKey.Render("D") + StatusBarText.Render(":close") + " " +
		StatusBarKey.Render("f") + StatusBarText.Render(":filter")
	return StatusBar.Width(width).Render("  [DEBUG " + view.name + "]  " + keys)
}
