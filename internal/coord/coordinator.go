// Package coord runs the background work of the signage engine: rebuilding
// the playlist and refreshing item images on their own cadence.
package coord

import (
	"context"
	"sync"
	"time"

	"github.com/abelbrown/signage/internal/logging"
	"github.com/abelbrown/signage/internal/otel"
	"github.com/abelbrown/signage/internal/playlist"
	"github.com/abelbrown/signage/internal/rotation"
	"github.com/abelbrown/signage/internal/screen"
	"github.com/abelbrown/signage/internal/store"
)

// DefaultRefreshEvery is the time between refresh sweeps.
const DefaultRefreshEvery = 60 * time.Second

// DefaultRebuildEvery is the time between playlist rebuilds.
const DefaultRebuildEvery = 24 * time.Hour

// builder interface for dependency injection (testing).
type builder interface {
	Build(ctx context.Context, profile string) (*playlist.Playlist, playlist.Report)
}

// BuildRecorder persists playlist builds. *store.Store implements it.
type BuildRecorder interface {
	RecordBuild(b store.Build) error
}

// EngineConfig configures an Engine. Zero durations take the defaults.
type EngineConfig struct {
	Profile      string
	PublicURL    string
	RefreshEvery time.Duration
	RebuildEvery time.Duration
}

// Engine owns the current playlist and the timers that maintain it.
// Uses context cancellation as the ONLY stop mechanism; Stop cancels the
// context derived in Start.
//
// The playlist pointer is swapped under mu together with the cursor reset,
// so Next never sees a new list with an old position. Items are only ever
// written by the refresher, through their own locks.
type Engine struct {
	builder   builder
	refresher *Refresher
	cursor    *rotation.Cursor
	history   BuildRecorder // optional
	events    *otel.Logger  // optional

	profile      string
	refreshEvery time.Duration
	rebuildEvery time.Duration
	clock        func() time.Time

	mu      sync.RWMutex
	current *playlist.Playlist
	cancel  context.CancelFunc

	sweepMu sync.Mutex // one sweep at a time across ticker, RefreshNow and RebuildNow

	wg sync.WaitGroup
}

// NewEngine wires a builder and refresher into an Engine.
func NewEngine(b builder, r *Refresher, cfg EngineConfig) *Engine {
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = DefaultRefreshEvery
	}
	if cfg.RebuildEvery <= 0 {
		cfg.RebuildEvery = DefaultRebuildEvery
	}

	e := &Engine{
		builder:      b,
		refresher:    r,
		profile:      cfg.Profile,
		refreshEvery: cfg.RefreshEvery,
		rebuildEvery: cfg.RebuildEvery,
		clock:        time.Now,
	}
	e.cursor = rotation.New(cfg.PublicURL, e)
	r.SetCurrent(e.Current)
	return e
}

// SetHistory attaches build history storage. The refresher's recorder is
// set separately.
func (e *Engine) SetHistory(h BuildRecorder) {
	e.history = h
}

// SetEvents attaches an event logger to the engine and its refresher.
func (e *Engine) SetEvents(l *otel.Logger) {
	e.events = l
	e.refresher.SetEvents(l)
}

// Start builds the playlist, runs a first refresh sweep, then keeps both up
// to date in the background: a sweep every refresh period and a rebuild
// (followed by a sweep) every rebuild period.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		e.rebuild(ctx)
		e.refresh(ctx)

		refreshTicker := time.NewTicker(e.refreshEvery)
		defer refreshTicker.Stop()
		rebuildTicker := time.NewTicker(e.rebuildEvery)
		defer rebuildTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-rebuildTicker.C:
				e.rebuild(ctx)
				e.refresh(ctx)
			case <-refreshTicker.C:
				e.refresh(ctx)
			}
		}
	}()
}

// Stop cancels the background loop. In-flight fetches are abandoned.
func (e *Engine) Stop() {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the background goroutine exits.
// Call after Stop or after canceling the context passed to Start.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// First returns the starting placeholder.
func (e *Engine) First() screen.Snapshot {
	return e.cursor.First()
}

// Next returns the next item to display.
func (e *Engine) Next() screen.Snapshot {
	return e.cursor.Next()
}

// Current returns the current playlist, or nil before the first build.
func (e *Engine) Current() *playlist.Playlist {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// RefreshNow runs one refresh sweep synchronously.
func (e *Engine) RefreshNow(ctx context.Context) Sweep {
	return e.refresh(ctx)
}

// RebuildNow rebuilds the playlist and sweeps it synchronously.
func (e *Engine) RebuildNow(ctx context.Context) playlist.Report {
	rep := e.rebuild(ctx)
	e.refresh(ctx)
	return rep
}

// rebuild fetches a new playlist and swaps it in.
func (e *Engine) rebuild(ctx context.Context) playlist.Report {
	logging.Info("engine: rebuilding playlist", "profile", e.profile)
	pl, rep := e.builder.Build(ctx, e.profile)

	// A build cut short by shutdown would only replace a good list with a
	// diagnostic.
	if ctx.Err() != nil {
		return rep
	}

	e.mu.Lock()
	e.current = pl
	e.cursor.Reset(pl.Items)
	e.mu.Unlock()

	logging.Info("engine: playlist ready",
		"profile", rep.Profile, "generation", pl.Generation, "items", pl.Len(),
		"accepted", rep.Accepted, "invalid", rep.Invalid, "disabled", rep.Disabled,
		"took", rep.Took)

	ev := otel.Event{
		Level:      otel.LevelInfo,
		Kind:       otel.KindPlaylistBuild,
		Comp:       "engine",
		Generation: pl.Generation,
		Profile:    rep.Profile,
		Count:      pl.Len(),
		Dur:        rep.Took,
		Extra: map[string]any{
			"accepted": rep.Accepted,
			"invalid":  rep.Invalid,
			"disabled": rep.Disabled,
			"expanded": rep.Expanded,
		},
	}
	e.emit(ev)
	for _, err := range rep.Errors {
		e.emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindPlaylistInvalid, Comp: "engine",
			Generation: pl.Generation, Profile: rep.Profile, Err: err.Error()})
	}
	if rep.Fallback() {
		logging.Warn("engine: showing diagnostic", "message", rep.Diagnostic, "err", rep.Err)
		fallback := otel.Event{Level: otel.LevelWarn, Kind: otel.KindPlaylistFallback, Comp: "engine",
			Generation: pl.Generation, Profile: rep.Profile, Msg: rep.Diagnostic}
		if rep.Err != nil {
			fallback.Err = rep.Err.Error()
		}
		e.emit(fallback)
	}

	if e.history != nil {
		err := e.history.RecordBuild(store.Build{
			Generation: pl.Generation,
			Profile:    rep.Profile,
			URL:        rep.URL,
			BuiltAt:    pl.BuiltAt,
			Items:      pl.Len(),
			Accepted:   rep.Accepted,
			Invalid:    rep.Invalid,
			Disabled:   rep.Disabled,
			Diagnostic: rep.Diagnostic,
			Took:       rep.Took,
		})
		if err != nil {
			logging.Warn("engine: record build", "err", err)
			e.emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Comp: "engine", Err: err.Error()})
		}
	}
	return rep
}

// refresh sweeps the current playlist. A sweep that arrives while another is
// running waits for it, then finds only the items still due.
func (e *Engine) refresh(ctx context.Context) Sweep {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	pl := e.Current()
	if pl == nil || ctx.Err() != nil {
		return Sweep{}
	}
	return e.refresher.RefreshDue(ctx, pl, e.clock())
}

// Skipped implements rotation.Observer.
func (e *Engine) Skipped(name string) {
	e.events.Item(otel.KindRotateSkip, "engine", name, "", nil)
}

// NoImages implements rotation.Observer.
func (e *Engine) NoImages(length int) {
	e.emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindRotateNoImages, Comp: "engine", Count: length})
}

func (e *Engine) emit(ev otel.Event) {
	if e.events != nil {
		e.events.Emit(ev)
	}
}
