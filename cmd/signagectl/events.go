package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abelbrown/signage/internal/otel"
)

func runEvents() {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	file := fs.String("file", "", "Event log to read (default: today's log in the data dir)")
	tail := fs.Int("tail", 50, "Number of recent lines to show")
	follow := fs.Bool("f", false, "Follow mode (like tail -f)")
	kind := fs.String("kind", "", "Filter by event kind prefix (e.g. 'refresh')")
	level := fs.String("level", "", "Minimum level: debug, info, warn, error")
	comp := fs.String("comp", "", "Filter by component name")
	item := fs.String("item", "", "Filter by item name")
	rawJSON := fs.Bool("json", false, "Output raw JSON lines")
	fs.Parse(os.Args[1:])

	logPath := *file
	if logPath == "" {
		logPath = otel.EventFile(loadConfig(*configPath).EventDir(), time.Now())
	}

	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "  Event log not found at %s\n", logPath)
		fmt.Fprintf(os.Stderr, "  Run signage first to generate events.\n")
		os.Exit(1)
	}
	defer f.Close()

	filter := otel.Filter{
		KindPrefix: *kind,
		MinLevel:   otel.Level(*level),
		Comp:       *comp,
		Item:       *item,
	}

	events, err := otel.ReadTail(f, *tail, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, ev := range events {
		fmt.Println(render(ev, *rawJSON))
	}
	if !*follow {
		return
	}

	// ReadTail consumed the file; poll for new lines from here.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return
		}
		line = trimLine(line)
		if len(line) == 0 {
			continue
		}
		var ev otel.Event
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if filter.Match(ev) {
			fmt.Println(render(ev, *rawJSON))
		}
	}
}

func render(ev otel.Event, rawJSON bool) string {
	if rawJSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Sprintf("{\"err\":%q}", err.Error())
		}
		return string(data)
	}
	return formatEvent(ev)
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(ev otel.Event) string {
	ts := ev.Time.Format("15:04:05.000")
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-7s] %-18s", ts, lvl, ev.Comp, ev.Kind)}

	if ev.Item != "" {
		parts = append(parts, fmt.Sprintf("%q", ev.Item))
	}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ms := float64(ev.Dur) / float64(time.Millisecond); ms > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ms), ms))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", ev.Status))
	}
	if ev.Generation != "" {
		parts = append(parts, "gen="+truncate(ev.Generation, 8))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}

	return strings.Join(parts, " ")
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
