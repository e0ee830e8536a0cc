package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelbrown/signage/internal/asset"
	"github.com/abelbrown/signage/internal/fetch"
	"github.com/abelbrown/signage/internal/logging"
	"github.com/abelbrown/signage/internal/otel"
	"github.com/abelbrown/signage/internal/playlist"
	"github.com/abelbrown/signage/internal/screen"
	"github.com/abelbrown/signage/internal/store"
)

// DefaultRetryDelay is how long a failed item waits before the next attempt.
const DefaultRetryDelay = 10 * time.Minute

// defaultMaxConcurrent limits parallel image fetches.
const defaultMaxConcurrent = 8

// getter interface for dependency injection (testing).
type getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Recorder persists refresh attempts. *store.Store implements it.
type Recorder interface {
	RecordRefresh(a store.Attempt) error
}

// RefresherConfig tunes a Refresher. Zero values take the defaults.
type RefresherConfig struct {
	Timeout           time.Duration // per-item fetch bound, default fetch.DefaultTimeout
	RetryDelay        time.Duration // default DefaultRetryDelay
	MaxConcurrent     int           // default 8
	RequestsPerSecond float64       // 0 = unlimited
	Burst             int           // limiter burst, default MaxConcurrent
}

// Sweep summarizes one RefreshDue pass.
type Sweep struct {
	Generation string
	Items      int // items in the playlist
	Synthetic  int // placeholders, never fetched
	Skipped    int // not yet due
	Due        int // fetch attempted
	Refreshed  int // new image stored
	Failed     int // fetch or decode failed, retry scheduled
	Discarded  int // result dropped because the playlist was replaced
	Took       time.Duration
}

// Refresher brings each due item's cached image up to date.
type Refresher struct {
	getter     getter // interface for testing
	timeout    time.Duration
	retryDelay time.Duration
	limit      int
	limiter    *rate.Limiter // nil = unlimited
	recorder   Recorder      // optional
	events     *otel.Logger  // optional
	current    func() *playlist.Playlist // nil = never discard
	clock      func() time.Time
}

// NewRefresher creates a Refresher with the given getter.
func NewRefresher(g getter, cfg RefresherConfig) *Refresher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = fetch.DefaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}

	r := &Refresher{
		getter:     g,
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		limit:      cfg.MaxConcurrent,
		clock:      time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.MaxConcurrent
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return r
}

// SetRecorder attaches refresh history storage.
func (r *Refresher) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SetEvents attaches an event logger.
func (r *Refresher) SetEvents(l *otel.Logger) {
	r.events = l
}

// SetCurrent installs the lookup used to discard results for items that
// left the playlist while their fetch was in flight.
func (r *Refresher) SetCurrent(fn func() *playlist.Playlist) {
	r.current = fn
}

// RefreshDue fetches every item of pl whose refresh time has come, in
// parallel, and returns once all of them have finished. Failures are
// isolated per item: each one sets that item's message and retry time and
// never affects the others.
func (r *Refresher) RefreshDue(ctx context.Context, pl *playlist.Playlist, now time.Time) Sweep {
	start := r.clock()
	sw := Sweep{}
	if pl == nil {
		return sw
	}
	sw.Generation = pl.Generation
	sw.Items = len(pl.Items)

	r.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRefreshStart, Comp: "refresh",
		Generation: pl.Generation, Count: len(pl.Items)})

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.limit)

	for _, it := range pl.Items {
		if it.Synthetic() {
			sw.Synthetic++
			continue
		}

		due := it.DueAt(now)
		if due.After(now) {
			sw.Skipped++
			logging.Debug(fmt.Sprintf("refresh: %-25.25s up-to-date, %.0f secs to go",
				it.Spec.FriendlyName, due.Sub(now).Seconds()))
			continue
		}

		sw.Due++
		g.Go(func() error {
			// Early exit if context cancelled
			if ctx.Err() != nil {
				return nil
			}
			res := r.refreshItem(ctx, pl, it, now)

			mu.Lock()
			switch res {
			case resultRefreshed:
				sw.Refreshed++
			case resultFailed:
				sw.Failed++
			case resultDiscarded:
				sw.Discarded++
			}
			mu.Unlock()
			return nil // never fail the group - errors reported per-item
		})
	}

	_ = g.Wait()

	sw.Took = r.clock().Sub(start)
	logging.Info("refresh: sweep complete",
		"items", sw.Items, "due", sw.Due, "refreshed", sw.Refreshed,
		"failed", sw.Failed, "discarded", sw.Discarded, "took", sw.Took)
	r.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRefreshSweep, Comp: "refresh",
		Generation: pl.Generation, Count: sw.Due, Dur: sw.Took,
		Extra: map[string]any{"refreshed": sw.Refreshed, "failed": sw.Failed, "discarded": sw.Discarded}})
	return sw
}

type result int

const (
	resultCancelled result = iota
	resultRefreshed
	resultFailed
	resultDiscarded
)

// refreshItem fetches and decodes one item and applies the outcome.
func (r *Refresher) refreshItem(ctx context.Context, pl *playlist.Playlist, it *screen.Item, now time.Time) result {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return resultCancelled
		}
	}

	name := it.Spec.FriendlyName
	resource := it.Spec.Resource
	logging.Info("refresh: time to update", "name", name, "resource", resource)

	started := r.clock()
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	body, err := r.getter.Get(fetchCtx, resource)
	cancel()
	took := r.clock().Sub(started)

	// The playlist may have been rebuilt while we were waiting.
	if r.current != nil && !r.current().Contains(it) {
		logging.Debug("refresh: discarding result for replaced playlist", "name", name)
		return resultDiscarded
	}

	attempt := store.Attempt{
		Generation: pl.Generation,
		Item:       name,
		Resource:   resource,
		At:         now,
		Took:       took,
	}

	if err != nil {
		// Shutdown is not a failure of the resource.
		if ctx.Err() != nil {
			return resultCancelled
		}
		msg := fetchFailedMessage(name, err)
		next := now.Add(r.retryDelay)
		it.Fail(msg, next)

		logging.Warn("refresh: fetch failed", "name", name, "resource", resource, "err", err)
		attempt.Message = msg
		attempt.NextAt = next
		if code, ok := fetch.StatusCode(err); ok {
			attempt.Status = code
		}
		r.record(attempt, err)
		return resultFailed
	}

	img, err := asset.Decode(resource, body)
	if err != nil {
		msg := decodeFailedMessage(name, err)
		next := now.Add(r.retryDelay)
		it.Fail(msg, next)

		logging.Warn("refresh: decode failed", "name", name, "resource", resource, "bytes", len(body), "err", err)
		attempt.Message = msg
		attempt.NextAt = next
		attempt.Bytes = len(body)
		r.record(attempt, err)
		return resultFailed
	}

	next := now.Add(it.Spec.RefreshInterval())
	it.SetImage(img, next)

	attempt.OK = true
	attempt.NextAt = next
	attempt.ImageType = img.Type
	attempt.Bytes = img.Size
	attempt.Width = img.Width
	attempt.Height = img.Height
	r.record(attempt, nil)
	return resultRefreshed
}

// record writes the attempt to history and the event log. Storage errors are
// logged and otherwise ignored: history never blocks a refresh.
func (r *Refresher) record(a store.Attempt, cause error) {
	if r.recorder != nil {
		if err := r.recorder.RecordRefresh(a); err != nil {
			logging.Warn("refresh: record attempt", "name", a.Item, "err", err)
			r.events.Item(otel.KindStoreError, "refresh", a.Item, a.Resource, err)
		}
	}

	ev := otel.Event{
		Level:      otel.LevelInfo,
		Kind:       otel.KindRefreshComplete,
		Comp:       "refresh",
		Generation: a.Generation,
		Item:       a.Item,
		Resource:   a.Resource,
		Dur:        a.Took,
		Count:      a.Bytes,
	}
	if cause != nil {
		ev.Level = otel.LevelWarn
		ev.Kind = otel.KindRefreshError
		ev.Status = a.Status
		ev.Err = cause.Error()
		ev.Msg = a.Message
	}
	r.emit(ev)
}

func (r *Refresher) emit(ev otel.Event) {
	if r.events != nil {
		r.events.Emit(ev)
	}
}

// fetchFailedMessage is the on-screen message for a failed retrieval.
func fetchFailedMessage(name string, err error) string {
	if code, ok := fetch.StatusCode(err); ok {
		return fmt.Sprintf("%s: Fetch failed (%d)", name, code)
	}
	return name + ": Fetch failed"
}

// decodeFailedMessage is the on-screen message for bytes that did not decode.
func decodeFailedMessage(name string, err error) string {
	var de *screen.DecodeError
	if errors.As(err, &de) && de.Reason == asset.ReasonUnknownType {
		return name + ": Unknown image type"
	}
	return name + ": Failed to load image data"
}
