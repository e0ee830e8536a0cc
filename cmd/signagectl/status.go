package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/abelbrown/signage/internal/store"
)

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	recent := fs.Int("recent", 20, "Number of recent refresh attempts to show")
	builds := fs.Int("builds", 5, "Number of recent playlist builds to show")
	fs.Parse(os.Args[1:])

	st := openDB(loadConfig(*configPath))
	defer st.Close()

	resources, err := st.Resources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	attempts, err := st.Recent(*recent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	history, err := st.Builds(*builds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	printStatus(os.Stdout, time.Now(), resources, attempts, history)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))

// printStatus writes the three status tables to w. now anchors relative ages.
func printStatus(w io.Writer, now time.Time, resources []store.Resource, attempts []store.Attempt, builds []store.Build) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Resources (%d)", len(resources))))
	rt := newTable("Item", "OK", "Fail", "Streak", "Last OK", "Last message")
	for _, r := range resources {
		lastOK := "never"
		if !r.LastOK.IsZero() {
			lastOK = since(now, r.LastOK)
		}
		rt.Row(truncate(r.Item, 25), strconv.Itoa(r.Successes), strconv.Itoa(r.Failures),
			strconv.Itoa(r.Consecutive), lastOK, truncate(r.LastMessage, 40))
	}
	fmt.Fprintln(w, rt.String())

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Recent refreshes (%d)", len(attempts))))
	at := newTable("Age", "Item", "Result", "Image", "Took")
	for _, a := range attempts {
		result := "ok"
		if !a.OK {
			result = "failed"
			if a.Status != 0 {
				result = fmt.Sprintf("failed (%d)", a.Status)
			}
		}
		img := ""
		if a.ImageType != "" {
			img = fmt.Sprintf("%s %dx%d", a.ImageType, a.Width, a.Height)
		}
		at.Row(since(now, a.At), truncate(a.Item, 25), result, img, a.Took.Round(time.Millisecond).String())
	}
	fmt.Fprintln(w, at.String())

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Playlist builds (%d)", len(builds))))
	bt := newTable("Age", "Profile", "Items", "Invalid", "Disabled", "Diagnostic")
	for _, b := range builds {
		bt.Row(since(now, b.BuiltAt), b.Profile, strconv.Itoa(b.Items), strconv.Itoa(b.Invalid),
			strconv.Itoa(b.Disabled), truncate(b.Diagnostic, 40))
	}
	fmt.Fprintln(w, bt.String())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)
}

// since formats the age of t relative to now.
func since(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
