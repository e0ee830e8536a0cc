// Command signage runs the display: it builds the playlist for a profile,
// keeps item images fresh in the background and rotates through them in the
// terminal.
//
// Usage:
//
//	signage [-config FILE] [profile]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/signage/internal/config"
	"github.com/abelbrown/signage/internal/coord"
	"github.com/abelbrown/signage/internal/fetch"
	"github.com/abelbrown/signage/internal/logging"
	"github.com/abelbrown/signage/internal/otel"
	"github.com/abelbrown/signage/internal/playlist"
	"github.com/abelbrown/signage/internal/store"
	"github.com/abelbrown/signage/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: $CONFIG_PATH or ./signage.yaml)")
	flag.Parse()

	cfg := config.MustLoad(*configPath).WithProfile(flag.Arg(0))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	if err := logging.Init(cfg.LogDir(), cfg.LogLevel); err != nil {
		log.Fatalf("Failed to start logging: %v", err)
	}
	defer logging.Close()

	// Event log + ring buffer for the debug overlay
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events, err := otel.OpenFile(cfg.EventDir())
	if err != nil {
		logging.Warn("event log unavailable, continuing without it", "err", err)
		events = otel.NewNullLogger()
	}
	events.SetRingBuffer(ring)
	defer events.Close()

	// Refresh history. Optional: the display runs without it.
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		logging.Warn("history unavailable, continuing without it", "err", err)
		events.Error(otel.KindStoreError, "main", err)
	} else {
		defer st.Close()
	}

	fetcher := fetch.NewFetcher(cfg.Schedule.RequestTimeout)

	builder := playlist.NewBuilder(fetcher, cfg.SourceBase, cfg.Schedule.RequestTimeout)
	refresher := coord.NewRefresher(fetcher, coord.RefresherConfig{
		Timeout:           cfg.Schedule.RequestTimeout,
		RetryDelay:        cfg.Schedule.RetryDelay,
		MaxConcurrent:     cfg.Fetch.MaxConcurrent,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})
	engine := coord.NewEngine(builder, refresher, coord.EngineConfig{
		Profile:      cfg.Profile,
		PublicURL:    cfg.PublicURL,
		RefreshEvery: cfg.Schedule.RefreshEvery,
		RebuildEvery: cfg.Schedule.RebuildEvery,
	})
	if st != nil {
		refresher.SetRecorder(st)
		engine.SetHistory(st)
	}
	engine.SetEvents(events)

	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "main", Profile: cfg.Profile,
		Extra: map[string]any{"source_base": cfg.SourceBase, "public_url": cfg.PublicURL}})
	logging.Info("starting", "profile", cfg.Profile, "source", builder.URL(cfg.Profile))

	app := ui.NewApp(ui.AppConfig{
		Source: engine,
		Timing: ui.Timing{
			InitialDisplay: cfg.UI.InitialDisplay,
			Fade:           cfg.UI.Fade,
			NoImageDwell:   cfg.UI.NoImageDwell,
		},
		Ring:   ring,
		Events: events,
		Refresh: func() tea.Cmd {
			return func() tea.Msg {
				sw := engine.RefreshNow(ctx)
				return ui.ActionDone{Action: "refresh",
					Summary: fmt.Sprintf("%d refreshed, %d failed", sw.Refreshed, sw.Failed)}
			}
		},
		Rebuild: func() tea.Cmd {
			return func() tea.Msg {
				rep := engine.RebuildNow(ctx)
				if rep.Err != nil {
					return ui.ActionDone{Action: "rebuild", Err: rep.Err}
				}
				return ui.ActionDone{Action: "rebuild",
					Summary: fmt.Sprintf("%d items (%d invalid)", rep.Items, rep.Invalid)}
			}
		},
	})

	// Create program
	program := tea.NewProgram(app, tea.WithAltScreen())

	engine.Start(ctx)

	// Run UI (blocks until quit)
	if _, err := program.Run(); err != nil {
		logging.Error("ui exited", "err", err)
		log.Printf("Error running program: %v", err)
	}

	// Graceful shutdown
	engine.Stop()
	engine.Wait()
	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "main"})
}
