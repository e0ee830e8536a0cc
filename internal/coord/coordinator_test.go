package coord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/signage/internal/fetch"
	"github.com/abelbrown/signage/internal/otel"
	"github.com/abelbrown/signage/internal/playlist"
	"github.com/abelbrown/signage/internal/screen"
	"github.com/abelbrown/signage/internal/store"
)

// pngBytes returns a small valid PNG.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// mockGetter implements the getter interface for testing.
type mockGetter struct {
	mu       sync.Mutex
	bodies   map[string][]byte
	errs     map[string]error
	fetched  []string
	delay    time.Duration
	getCount atomic.Int32
}

func (m *mockGetter) Get(ctx context.Context, url string) ([]byte, error) {
	m.getCount.Add(1)

	// Simulate delay if configured
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &fetch.Error{URL: url, Err: ctx.Err()}
		case <-time.After(m.delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, url)
	if err, ok := m.errs[url]; ok {
		return nil, err
	}
	if b, ok := m.bodies[url]; ok {
		return b, nil
	}
	return nil, &fetch.Error{URL: url, StatusCode: http.StatusNotFound, Err: errors.New("404 Not Found")}
}

func (m *mockGetter) getFetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.fetched))
	copy(result, m.fetched)
	return result
}

// customGetter delegates to a function (for concurrency tests).
type customGetter struct {
	getFunc func(ctx context.Context, url string) ([]byte, error)
}

func (c *customGetter) Get(ctx context.Context, url string) ([]byte, error) {
	return c.getFunc(ctx, url)
}

func newItem(name string, refreshMinutes int) *screen.Item {
	return screen.NewItem(screen.Spec{
		Enabled:        true,
		FriendlyName:   name,
		Resource:       "https://cdn.example.com/" + name + ".png",
		DisplaySecs:    10,
		RefreshMinutes: refreshMinutes,
	})
}

func newPlaylist(items ...*screen.Item) *playlist.Playlist {
	return &playlist.Playlist{Generation: "gen-1", Profile: "lobby", Items: items}
}

func TestRefreshDueFetchesAllDueItems(t *testing.T) {
	body := pngBytes(t)
	items := []*screen.Item{newItem("a", 30), newItem("b", 15), newItem("c", 5)}
	mock := &mockGetter{bodies: map[string][]byte{}}
	for _, it := range items {
		mock.bodies[it.Spec.Resource] = body
	}

	r := NewRefresher(mock, RefresherConfig{})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sw := r.RefreshDue(context.Background(), newPlaylist(items...), now)

	if sw.Due != 3 || sw.Refreshed != 3 || sw.Failed != 0 {
		t.Errorf("unexpected sweep: %+v", sw)
	}
	if len(mock.getFetched()) != 3 {
		t.Errorf("expected 3 fetches, got %d", len(mock.getFetched()))
	}

	for _, it := range items {
		if !it.HasImage() {
			t.Errorf("%s: expected image", it.Spec.FriendlyName)
			continue
		}
		snap := it.Snapshot()
		if snap.ImageType != "png" || snap.Width != 4 || snap.Height != 3 {
			t.Errorf("%s: unexpected image %+v", it.Spec.FriendlyName, snap)
		}
		want := now.Add(time.Duration(it.Spec.RefreshMinutes) * time.Minute)
		if !it.Snapshot().NextRefreshAt.Equal(want) {
			t.Errorf("%s: next refresh %v, want %v", it.Spec.FriendlyName, it.Snapshot().NextRefreshAt, want)
		}
		if it.Snapshot().Message != "" {
			t.Errorf("%s: message should be empty, got %q", it.Spec.FriendlyName, it.Snapshot().Message)
		}
	}
}

func TestRefreshDueSkipsItemsNotDue(t *testing.T) {
	now := time.Now()
	fresh := newItem("fresh", 30)
	fresh.SetImage(&screen.Image{Type: "png"}, now.Add(time.Hour))
	due := newItem("due", 30)
	due.SetImage(&screen.Image{Type: "png"}, now.Add(-time.Second))

	mock := &mockGetter{bodies: map[string][]byte{due.Spec.Resource: pngBytes(t)}}
	r := NewRefresher(mock, RefresherConfig{})
	sw := r.RefreshDue(context.Background(), newPlaylist(fresh, due), now)

	fetched := mock.getFetched()
	if len(fetched) != 1 || fetched[0] != due.Spec.Resource {
		t.Errorf("expected only the due item fetched, got %v", fetched)
	}
	if sw.Skipped != 1 || sw.Due != 1 {
		t.Errorf("unexpected sweep: %+v", sw)
	}
	if !fresh.Snapshot().NextRefreshAt.Equal(now.Add(time.Hour)) {
		t.Error("not-due item schedule must not change")
	}
}

func TestRefreshDueNeverFetchesPlaceholders(t *testing.T) {
	mock := &mockGetter{}
	r := NewRefresher(mock, RefresherConfig{})

	sw := r.RefreshDue(context.Background(), newPlaylist(screen.NoList("No active screens")), time.Now())

	if mock.getCount.Load() != 0 {
		t.Errorf("placeholder was fetched %d times", mock.getCount.Load())
	}
	if sw.Synthetic != 1 || sw.Due != 0 {
		t.Errorf("unexpected sweep: %+v", sw)
	}
}

func TestRefreshDueFetchFailures(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"status", &fetch.Error{URL: "x", StatusCode: 503, Err: errors.New("503 Service Unavailable")}, "Lobby: Fetch failed (503)"},
		{"network", &fetch.Error{URL: "x", Err: errors.New("connection refused")}, "Lobby: Fetch failed"},
		{"timeout", &fetch.Error{URL: "x", Err: context.DeadlineExceeded}, "Lobby: Fetch failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newItem("Lobby", 30)
			stale := &screen.Image{Type: "jpeg", URI: "data:image/jpeg;base64,old"}
			it.SetImage(stale, now.Add(-time.Minute))

			mock := &mockGetter{errs: map[string]error{it.Spec.Resource: tt.err}}
			r := NewRefresher(mock, RefresherConfig{})
			sw := r.RefreshDue(context.Background(), newPlaylist(it), now)

			if sw.Failed != 1 {
				t.Errorf("expected 1 failure, got %+v", sw)
			}
			if it.Snapshot().Message != tt.want {
				t.Errorf("message = %q, want %q", it.Snapshot().Message, tt.want)
			}
			if !it.Snapshot().NextRefreshAt.Equal(now.Add(10 * time.Minute)) {
				t.Errorf("retry at %v, want now+10m", it.Snapshot().NextRefreshAt)
			}
			if snap := it.Snapshot(); !snap.HasImage || snap.ImageURI != stale.URI {
				t.Error("stale image must be kept after a failed refresh")
			}
		})
	}
}

func TestRefreshDueDecodeFailures(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		body []byte
		want string
	}{
		// base64 of "hello" starts with 'a'
		{"unknown type", []byte("hello"), "Menu: Unknown image type"},
		// sniffs as PNG, does not decode
		{"corrupt png", []byte("\x89PNG not really"), "Menu: Failed to load image data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newItem("Menu", 30)
			mock := &mockGetter{bodies: map[string][]byte{it.Spec.Resource: tt.body}}
			r := NewRefresher(mock, RefresherConfig{RetryDelay: 5 * time.Minute})

			sw := r.RefreshDue(context.Background(), newPlaylist(it), now)

			if sw.Failed != 1 || sw.Refreshed != 0 {
				t.Errorf("unexpected sweep: %+v", sw)
			}
			if it.Snapshot().Message != tt.want {
				t.Errorf("message = %q, want %q", it.Snapshot().Message, tt.want)
			}
			if it.HasImage() {
				t.Error("item must not gain an image from undecodable data")
			}
			if !it.Snapshot().NextRefreshAt.Equal(now.Add(5 * time.Minute)) {
				t.Errorf("retry at %v, want now+5m", it.Snapshot().NextRefreshAt)
			}
		})
	}
}

func TestRefreshDueClearsMessageOnSuccess(t *testing.T) {
	now := time.Now()
	it := newItem("Lobby", 30)
	it.Fail("Lobby: Fetch failed (500)", now.Add(-time.Second))

	mock := &mockGetter{bodies: map[string][]byte{it.Spec.Resource: pngBytes(t)}}
	NewRefresher(mock, RefresherConfig{}).RefreshDue(context.Background(), newPlaylist(it), now)

	if it.Snapshot().Message != "" {
		t.Errorf("message should be cleared, got %q", it.Snapshot().Message)
	}
	if !it.HasImage() {
		t.Error("expected image after successful refresh")
	}
}

func TestRefreshDueHandlesFetchTimeout(t *testing.T) {
	it := newItem("Slow", 30)
	mock := &mockGetter{delay: 5 * time.Second}
	r := NewRefresher(mock, RefresherConfig{Timeout: 50 * time.Millisecond})

	start := time.Now()
	sw := r.RefreshDue(context.Background(), newPlaylist(it), start)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("sweep took %v, per-item timeout not applied", elapsed)
	}
	if sw.Failed != 1 {
		t.Errorf("expected a failure, got %+v", sw)
	}
	if it.Snapshot().Message != "Slow: Fetch failed" {
		t.Errorf("message = %q", it.Snapshot().Message)
	}
}

func TestRefreshDueRespectsContextCancellation(t *testing.T) {
	it := newItem("a", 30)
	mock := &mockGetter{delay: 5 * time.Second}
	r := NewRefresher(mock, RefresherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	sw := r.RefreshDue(ctx, newPlaylist(it), start)

	if time.Since(start) > 2*time.Second {
		t.Error("sweep did not stop on cancellation")
	}
	if sw.Failed != 0 {
		t.Errorf("cancellation must not count as failure: %+v", sw)
	}
	if it.Snapshot().Message != "" {
		t.Errorf("cancellation must not set a message, got %q", it.Snapshot().Message)
	}
}

func TestRefreshDueDiscardsResultsForReplacedPlaylist(t *testing.T) {
	it := newItem("a", 30)
	mock := &mockGetter{bodies: map[string][]byte{it.Spec.Resource: pngBytes(t)}}
	r := NewRefresher(mock, RefresherConfig{})
	r.SetCurrent(func() *playlist.Playlist { return newPlaylist(newItem("a", 30)) })

	sw := r.RefreshDue(context.Background(), newPlaylist(it), time.Now())

	if sw.Discarded != 1 || sw.Refreshed != 0 {
		t.Errorf("unexpected sweep: %+v", sw)
	}
	if it.HasImage() {
		t.Error("discarded result must not be applied")
	}
}

func TestRefreshDueKeepsResultsForItemsStillListed(t *testing.T) {
	it := newItem("a", 30)
	mock := &mockGetter{bodies: map[string][]byte{it.Spec.Resource: pngBytes(t)}}
	r := NewRefresher(mock, RefresherConfig{})
	// A different list holding the same item: identity is what counts.
	r.SetCurrent(func() *playlist.Playlist { return newPlaylist(newItem("b", 30), it) })

	sw := r.RefreshDue(context.Background(), newPlaylist(it), time.Now())

	if sw.Refreshed != 1 || sw.Discarded != 0 {
		t.Errorf("unexpected sweep: %+v", sw)
	}
	if !it.HasImage() {
		t.Error("result for a listed item must be applied")
	}
}

func TestRefreshDueDiscardsWhenNoPlaylist(t *testing.T) {
	it := newItem("a", 30)
	mock := &mockGetter{bodies: map[string][]byte{it.Spec.Resource: pngBytes(t)}}
	r := NewRefresher(mock, RefresherConfig{})
	r.SetCurrent(func() *playlist.Playlist { return nil })

	sw := r.RefreshDue(context.Background(), newPlaylist(it), time.Now())
	if sw.Discarded != 1 {
		t.Errorf("unexpected sweep: %+v", sw)
	}
}

func TestRefreshDueFetchesInParallel(t *testing.T) {
	items := []*screen.Item{newItem("a", 30), newItem("b", 30), newItem("c", 30)}
	body := pngBytes(t)

	// Each fetch signals it started, then waits for permission to continue.
	started := make(chan struct{}, 3)
	proceed := make(chan struct{})
	g := &customGetter{
		getFunc: func(ctx context.Context, url string) ([]byte, error) {
			started <- struct{}{}
			<-proceed
			return body, nil
		},
	}
	r := NewRefresher(g, RefresherConfig{})

	done := make(chan Sweep)
	go func() {
		done <- r.RefreshDue(context.Background(), newPlaylist(items...), time.Now())
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for fetch %d to start - not running in parallel", i+1)
		}
	}
	close(proceed)

	select {
	case sw := <-done:
		if sw.Refreshed != 3 {
			t.Errorf("expected 3 refreshed, got %+v", sw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sweep to complete")
	}
}

func TestRefreshDueParallelRespectsLimit(t *testing.T) {
	items := make([]*screen.Item, 10)
	for i := range items {
		items[i] = newItem(fmt.Sprintf("item%d", i), 30)
	}

	var current atomic.Int32
	var maxConcurrent atomic.Int32
	proceed := make(chan struct{})
	g := &customGetter{
		getFunc: func(ctx context.Context, url string) ([]byte, error) {
			n := current.Add(1)
			for {
				old := maxConcurrent.Load()
				if n <= old || maxConcurrent.CompareAndSwap(old, n) {
					break
				}
			}
			<-proceed
			current.Add(-1)
			return nil, &fetch.Error{URL: url, StatusCode: 500, Err: errors.New("500")}
		},
	}
	r := NewRefresher(g, RefresherConfig{MaxConcurrent: 3})

	done := make(chan struct{})
	go func() {
		r.RefreshDue(context.Background(), newPlaylist(items...), time.Now())
		close(done)
	}()

	// Wait a bit for goroutines to pile up at the limit
	time.Sleep(100 * time.Millisecond)
	close(proceed)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sweep to complete")
	}

	max := maxConcurrent.Load()
	if max > 3 {
		t.Errorf("max concurrent fetches was %d, expected at most 3", max)
	}
	if max < 2 {
		t.Errorf("max concurrent fetches was %d, expected at least 2 to prove parallelism", max)
	}
}

func TestRefreshDueRateLimited(t *testing.T) {
	items := make([]*screen.Item, 4)
	mock := &mockGetter{bodies: map[string][]byte{}}
	body := pngBytes(t)
	for i := range items {
		items[i] = newItem(fmt.Sprintf("item%d", i), 30)
		mock.bodies[items[i].Spec.Resource] = body
	}

	// 20/s with burst 1: four fetches need at least ~150ms.
	r := NewRefresher(mock, RefresherConfig{RequestsPerSecond: 20, Burst: 1})
	start := time.Now()
	sw := r.RefreshDue(context.Background(), newPlaylist(items...), start)

	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("rate limit not applied: sweep took %v", elapsed)
	}
	if sw.Refreshed != 4 {
		t.Errorf("expected 4 refreshed, got %+v", sw)
	}
}

func TestRefreshDueRecordsHistoryAndEvents(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	good := newItem("good", 30)
	bad := newItem("bad", 30)
	mock := &mockGetter{bodies: map[string][]byte{good.Spec.Resource: pngBytes(t)}}

	ring := otel.NewRingBuffer(64)
	events := otel.NewNullLogger()
	events.SetRingBuffer(ring)

	r := NewRefresher(mock, RefresherConfig{})
	r.SetRecorder(s)
	r.SetEvents(events)
	r.RefreshDue(context.Background(), newPlaylist(good, bad), time.Now())
	events.Close()

	attempts, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", len(attempts))
	}
	byItem := map[string]store.Attempt{}
	for _, a := range attempts {
		byItem[a.Item] = a
	}
	if !byItem["good"].OK || byItem["good"].Width != 4 {
		t.Errorf("good attempt: %+v", byItem["good"])
	}
	if byItem["bad"].OK || byItem["bad"].Status != 404 || byItem["bad"].Message != "bad: Fetch failed (404)" {
		t.Errorf("bad attempt: %+v", byItem["bad"])
	}

	stats := ring.Stats()
	if stats[otel.KindRefreshStart] != 1 || stats[otel.KindRefreshSweep] != 1 {
		t.Errorf("expected one start and one sweep event, got %v", stats)
	}
	if stats[otel.KindRefreshComplete] != 1 || stats[otel.KindRefreshError] != 1 {
		t.Errorf("expected one complete and one error event, got %v", stats)
	}
}

// brokenRecorder fails every write.
type brokenRecorder struct{}

func (brokenRecorder) RecordRefresh(store.Attempt) error {
	return errors.New("database is locked")
}

func TestRefreshDueReportsHistoryWriteFailures(t *testing.T) {
	it := newItem("lobby", 30)
	mock := &mockGetter{bodies: map[string][]byte{it.Spec.Resource: pngBytes(t)}}

	ring := otel.NewRingBuffer(64)
	events := otel.NewNullLogger()
	events.SetRingBuffer(ring)

	r := NewRefresher(mock, RefresherConfig{})
	r.SetRecorder(brokenRecorder{})
	r.SetEvents(events)
	sw := r.RefreshDue(context.Background(), newPlaylist(it), time.Now())
	events.Close()

	if sw.Refreshed != 1 {
		t.Errorf("history failure must not fail the refresh, got %+v", sw)
	}
	got := ring.Matching(otel.Filter{KindPrefix: string(otel.KindStoreError)}, 10)
	if len(got) != 1 {
		t.Fatalf("expected one store error event, got %d", len(got))
	}
	ev := got[0]
	if ev.Item != "lobby" || ev.Resource != it.Spec.Resource {
		t.Errorf("store error event names wrong item: %+v", ev)
	}
	if ev.Level != otel.LevelWarn || ev.Err != "database is locked" {
		t.Errorf("store error event: level=%v err=%q", ev.Level, ev.Err)
	}
}

func TestRefreshDueNilPlaylist(t *testing.T) {
	r := NewRefresher(&mockGetter{}, RefresherConfig{})
	sw := r.RefreshDue(context.Background(), nil, time.Now())
	if sw.Items != 0 || sw.Due != 0 {
		t.Errorf("expected empty sweep, got %+v", sw)
	}
}

// mockBuilder hands out queued playlists, then repeats the last one.
type mockBuilder struct {
	mu        sync.Mutex
	lists     []*playlist.Playlist
	profiles  []string
	buildFunc func(ctx context.Context) // optional hook
}

func (m *mockBuilder) Build(ctx context.Context, profile string) (*playlist.Playlist, playlist.Report) {
	if m.buildFunc != nil {
		m.buildFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = append(m.profiles, profile)
	pl := m.lists[0]
	if len(m.lists) > 1 {
		m.lists = m.lists[1:]
	}
	return pl, playlist.Report{Profile: profile, Accepted: len(pl.Items), Items: len(pl.Items)}
}

func (m *mockBuilder) builds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineNextBeforeStart(t *testing.T) {
	e := NewEngine(&mockBuilder{}, NewRefresher(&mockGetter{}, RefresherConfig{}), EngineConfig{PublicURL: "http://kiosk/"})

	if got := e.First(); got.ImageURI != "http://kiosk/dawn.jpg" {
		t.Errorf("First().ImageURI = %q", got.ImageURI)
	}
	if got := e.Next(); got.FriendlyName != screen.NameStillStarting {
		t.Errorf("Next() before build = %q, want %q", got.FriendlyName, screen.NameStillStarting)
	}
	if e.Current() != nil {
		t.Error("Current() should be nil before the first build")
	}
}

func TestEngineStartBuildsAndRefreshes(t *testing.T) {
	a, b := newItem("a", 30), newItem("b", 30)
	pl := newPlaylist(a, b)
	body := pngBytes(t)
	mock := &mockGetter{bodies: map[string][]byte{a.Spec.Resource: body, b.Spec.Resource: body}}
	mb := &mockBuilder{lists: []*playlist.Playlist{pl}}

	e := NewEngine(mb, NewRefresher(mock, RefresherConfig{}), EngineConfig{Profile: "lobby"})
	e.Start(context.Background())
	defer func() {
		e.Stop()
		e.Wait()
	}()

	waitFor(t, "initial refresh", func() bool { return a.HasImage() && b.HasImage() })

	if e.Current() != pl {
		t.Error("Current() should be the built playlist")
	}
	if got := e.Next().FriendlyName; got != "a" {
		t.Errorf("first Next() = %q, want a", got)
	}
	if got := e.Next().FriendlyName; got != "b" {
		t.Errorf("second Next() = %q, want b", got)
	}
	mb.mu.Lock()
	profile := mb.profiles[0]
	mb.mu.Unlock()
	if profile != "lobby" {
		t.Errorf("built profile %q, want lobby", profile)
	}
}

func TestEngineRefreshTicker(t *testing.T) {
	it := newItem("a", 30)
	var gets atomic.Int32
	g := &customGetter{getFunc: func(ctx context.Context, url string) ([]byte, error) {
		gets.Add(1)
		return nil, &fetch.Error{URL: url, StatusCode: 500, Err: errors.New("500")}
	}}
	r := NewRefresher(g, RefresherConfig{RetryDelay: time.Millisecond})
	e := NewEngine(&mockBuilder{lists: []*playlist.Playlist{newPlaylist(it)}}, r,
		EngineConfig{RefreshEvery: 20 * time.Millisecond})

	e.Start(context.Background())
	waitFor(t, "repeated refresh attempts", func() bool { return gets.Load() >= 3 })
	e.Stop()
	e.Wait()
}

func TestEngineSerializesManualAndScheduledSweeps(t *testing.T) {
	a, b := newItem("a", 30), newItem("b", 30)
	body := pngBytes(t)
	mock := &mockGetter{
		bodies: map[string][]byte{a.Spec.Resource: body, b.Spec.Resource: body},
		delay:  50 * time.Millisecond,
	}
	mb := &mockBuilder{lists: []*playlist.Playlist{newPlaylist(a, b)}}
	e := NewEngine(mb, NewRefresher(mock, RefresherConfig{}), EngineConfig{Profile: "lobby"})

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.RebuildNow(ctx)
	}()
	waitFor(t, "rebuild sweep to start fetching", func() bool { return mock.getCount.Load() > 0 })

	// Operator mashes "r" while the rebuild's sweep is still fetching.
	sweeps := make([]Sweep, 4)
	for i := range sweeps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sweeps[i] = e.RefreshNow(ctx)
		}(i)
	}
	wg.Wait()

	if got := mock.getCount.Load(); got != 2 {
		t.Errorf("expected each item fetched once, got %d fetches", got)
	}
	for i, sw := range sweeps {
		if sw.Due != 0 {
			t.Errorf("sweep %d found %d items due after the rebuild sweep", i, sw.Due)
		}
	}
}

func TestEngineRebuildSwapsAndResetsCursor(t *testing.T) {
	body := pngBytes(t)
	first := newPlaylist(newItem("a", 30), newItem("b", 30))
	second := newPlaylist(newItem("x", 30), newItem("y", 30))
	second.Generation = "gen-2"

	mock := &mockGetter{bodies: map[string][]byte{}}
	for _, pl := range []*playlist.Playlist{first, second} {
		for _, it := range pl.Items {
			mock.bodies[it.Spec.Resource] = body
		}
	}
	mb := &mockBuilder{lists: []*playlist.Playlist{first, second}}
	e := NewEngine(mb, NewRefresher(mock, RefresherConfig{}), EngineConfig{Profile: "lobby"})

	ctx := context.Background()
	e.RebuildNow(ctx)
	if e.Next().FriendlyName != "a" {
		t.Fatal("expected first item of first playlist")
	}

	rep := e.RebuildNow(ctx)
	if rep.Profile != "lobby" {
		t.Errorf("report profile %q", rep.Profile)
	}
	if e.Current() != second {
		t.Fatal("rebuild should swap in the new playlist")
	}
	if got := e.Next().FriendlyName; got != "x" {
		t.Errorf("after rebuild Next() = %q, want x (cursor reset)", got)
	}
	for _, it := range second.Items {
		if !it.HasImage() {
			t.Errorf("%s: rebuild should be followed by a sweep", it.Spec.FriendlyName)
		}
	}
}

func TestEngineDiscardsSweepOfReplacedPlaylist(t *testing.T) {
	old := newItem("old", 30)
	first := newPlaylist(old)
	second := newPlaylist(newItem("new", 30))
	second.Generation = "gen-2"

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	body := pngBytes(t)
	g := &customGetter{getFunc: func(ctx context.Context, url string) ([]byte, error) {
		if url == old.Spec.Resource {
			entered <- struct{}{}
			<-release
		}
		return body, nil
	}}

	mb := &mockBuilder{lists: []*playlist.Playlist{first, second}}
	e := NewEngine(mb, NewRefresher(g, RefresherConfig{}), EngineConfig{})
	ctx := context.Background()

	e.rebuild(ctx)
	done := make(chan Sweep)
	go func() { done <- e.RefreshNow(ctx) }()
	<-entered

	e.rebuild(ctx) // swap while the old item is in flight
	close(release)
	sw := <-done

	if sw.Discarded != 1 {
		t.Errorf("expected the stale result to be discarded, got %+v", sw)
	}
	if old.HasImage() {
		t.Error("item from the replaced playlist must not be updated")
	}
}

func TestEngineSkipsSwapWhenCancelledDuringBuild(t *testing.T) {
	good := newPlaylist(newItem("a", 30))
	diag := newPlaylist(screen.NoList("Profile 'lobby' unknown error"))

	ctx, cancel := context.WithCancel(context.Background())
	mb := &mockBuilder{lists: []*playlist.Playlist{good, diag}}
	e := NewEngine(mb, NewRefresher(&mockGetter{}, RefresherConfig{}), EngineConfig{})

	e.rebuild(ctx)
	mb.buildFunc = func(context.Context) { cancel() }
	e.rebuild(ctx)

	if e.Current() != good {
		t.Error("a build interrupted by shutdown must not replace the playlist")
	}
}

func TestEngineStartAndWait(t *testing.T) {
	mb := &mockBuilder{lists: []*playlist.Playlist{newPlaylist(newItem("a", 30))}}
	e := NewEngine(mb, NewRefresher(&mockGetter{delay: time.Second}, RefresherConfig{}), EngineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	waitFor(t, "first build", func() bool { return mb.builds() == 1 })
	cancel()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after cancel")
	}
}

func TestEngineRecordsBuildsAndRotationEvents(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	ring := otel.NewRingBuffer(64)
	events := otel.NewNullLogger()
	events.SetRingBuffer(ring)

	// Every fetch fails, so rotation finds no images.
	pl := newPlaylist(newItem("a", 30), newItem("b", 30))
	mb := &mockBuilder{lists: []*playlist.Playlist{pl}}
	e := NewEngine(mb, NewRefresher(&mockGetter{}, RefresherConfig{}), EngineConfig{Profile: "lobby"})
	e.SetHistory(s)
	e.SetEvents(events)

	e.RebuildNow(context.Background())
	if got := e.Next().FriendlyName; got != screen.NameNoImages {
		t.Errorf("Next() = %q, want %q", got, screen.NameNoImages)
	}
	events.Close()

	builds, err := s.Builds(10)
	if err != nil {
		t.Fatalf("Builds failed: %v", err)
	}
	if len(builds) != 1 || builds[0].Generation != pl.Generation || builds[0].Items != 2 {
		t.Errorf("unexpected build history: %+v", builds)
	}

	stats := ring.Stats()
	if stats[otel.KindPlaylistBuild] != 1 {
		t.Errorf("expected 1 build event, got %v", stats)
	}
	if stats[otel.KindRefreshError] != 2 {
		t.Errorf("expected 2 refresh errors, got %v", stats)
	}
	if stats[otel.KindRotateSkip] != 2 || stats[otel.KindRotateNoImages] != 1 {
		t.Errorf("expected 2 skips and 1 no-images event, got %v", stats)
	}
}
