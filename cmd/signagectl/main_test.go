package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/signage/internal/otel"
	"github.com/abelbrown/signage/internal/store"
)

const sampleDoc = `{"screens": [
  {"enabled": true, "friendlyName": "Lobby", "resource": "https://cdn/lobby.jpg", "displaySecs": "10", "refreshMinutes": "30"},
  {"enabled": false, "friendlyName": "Old"},
  {"enabled": true, "friendlyName": "Radar", "resource": "https://cdn/radar-[01:10].png", "displaySecs": "5", "refreshMinutes": "15"},
  {"enabled": true, "resource": "https://cdn/anon.jpg"}
]}`

func TestCheckDocument(t *testing.T) {
	res, err := checkDocument([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, 4, res.Entries)
	assert.Equal(t, 1, res.Disabled)
	assert.Equal(t, 11, res.Items, "lobby plus ten radar frames")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "Item: 3")

	require.Len(t, res.Lines, 11)
	assert.Contains(t, res.Lines[0], "Lobby")
	assert.Contains(t, res.Lines[1], "Radar-01")
	assert.Contains(t, res.Lines[1], "https://cdn/radar-01.png")
	assert.Contains(t, res.Lines[10], "https://cdn/radar-10.png")
}

func TestCheckDocumentMalformed(t *testing.T) {
	_, err := checkDocument([]byte("{not json"))
	require.Error(t, err)
}

func TestCheckDocumentEmpty(t *testing.T) {
	res, err := checkDocument([]byte(`{"screens": []}`))
	require.NoError(t, err)
	assert.Zero(t, res.Items)

	var buf bytes.Buffer
	res.print(&buf, false)
	assert.Contains(t, buf.String(), "0 entries: 0 items")
	assert.Contains(t, buf.String(), "No list")
}

func TestCheckResultPrintQuiet(t *testing.T) {
	res, err := checkDocument([]byte(sampleDoc))
	require.NoError(t, err)

	var buf bytes.Buffer
	res.print(&buf, true)
	out := buf.String()
	assert.NotContains(t, out, "Lobby", "quiet mode hides the item list")
	assert.Contains(t, out, "invalid: Item: 3")
	assert.Contains(t, out, "4 entries: 11 items, 1 disabled, 1 invalid")
}

func TestFormatEvent(t *testing.T) {
	ev := otel.Event{
		Time:       time.Date(2026, 3, 14, 9, 26, 53, 500_000_000, time.UTC),
		Level:      otel.LevelWarn,
		Kind:       otel.KindRefreshError,
		Comp:       "refresh",
		Generation: "0123456789abcdef",
		Item:       "Lobby",
		Status:     503,
		Dur:        1500 * time.Microsecond,
		Msg:        "Lobby: Fetch failed (503)",
		Err:        "status 503",
	}
	got := formatEvent(ev)

	for _, want := range []string{
		"09:26:53.500", "WARN", "[refresh]", "refresh.error",
		`"Lobby"`, "- Lobby: Fetch failed (503)", "(1.5ms)", "status=503",
		"gen=01234...", "err=status 503",
	} {
		assert.Contains(t, got, want)
	}
}

func TestFormatEventMinimal(t *testing.T) {
	got := formatEvent(otel.Event{Kind: otel.KindStartup})
	assert.Contains(t, got, "?")
	assert.Contains(t, got, "sys.startup")
	assert.NotContains(t, got, "n=")
	assert.NotContains(t, got, "err=")
}

func TestRenderJSON(t *testing.T) {
	got := render(otel.Event{Kind: otel.KindShow, Item: "Lobby"}, true)
	assert.True(t, strings.HasPrefix(got, "{"))
	assert.Contains(t, got, `"kind":"ui.show"`)
	assert.Contains(t, got, `"item":"Lobby"`)
}

func TestDurPrecision(t *testing.T) {
	assert.Equal(t, 0, durPrecision(250))
	assert.Equal(t, 1, durPrecision(12.5))
	assert.Equal(t, 2, durPrecision(0.25))
}

func TestTrimLine(t *testing.T) {
	assert.Equal(t, "abc", string(trimLine([]byte("abc\r\n"))))
	assert.Equal(t, "", string(trimLine([]byte("\n"))))
}

func TestSince(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, since(now, now.Add(-tt.ago)), "ago=%v", tt.ago)
	}
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	resources := []store.Resource{
		{Item: "Lobby", Resource: "https://cdn/lobby.jpg", Successes: 2, Failures: 3, Consecutive: 1,
			LastOK: now.Add(-time.Hour), LastMessage: "Lobby: Fetch failed (504)"},
		{Item: "Radar-01", Resource: "https://cdn/radar-01.png", Successes: 0, Failures: 1, Consecutive: 1},
	}
	attempts := []store.Attempt{
		{Item: "Lobby", At: now.Add(-time.Minute), OK: true, ImageType: "jpeg", Width: 1920, Height: 1080,
			Took: 120 * time.Millisecond},
		{Item: "Radar-01", At: now.Add(-2 * time.Minute), Status: 404},
	}
	builds := []store.Build{
		{Profile: "lobby", BuiltAt: now.Add(-3 * time.Hour), Items: 11, Invalid: 1, Disabled: 1},
	}

	var buf bytes.Buffer
	printStatus(&buf, now, resources, attempts, builds)
	out := buf.String()

	for _, want := range []string{
		"Resources (2)", "Lobby", "Fetch failed (504)", "never",
		"Recent refreshes (2)", "jpeg 1920x1080", "failed (404)", "120ms",
		"Playlist builds (1)", "lobby", "3h",
	} {
		assert.Contains(t, out, want)
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("http://cfg/lobby.json"))
	assert.True(t, isURL("https://cfg/lobby.json"))
	assert.False(t, isURL("lobby.json"))
	assert.False(t, isURL("/etc/signage/lobby.json"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "much lo...", truncate("much longer than that", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
