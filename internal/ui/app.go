package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/signage/internal/logging"
	"github.com/abelbrown/signage/internal/otel"
	"github.com/abelbrown/signage/internal/screen"
)

// Source hands out screens in display order. *coord.Engine implements it.
type Source interface {
	First() screen.Snapshot
	Next() screen.Snapshot
}

// Timing controls the display cycle.
type Timing struct {
	InitialDisplay time.Duration // how long the first screen stays up
	Fade           time.Duration // fade-out before the next screen
	NoImageDwell   time.Duration // dwell for a screen without a picture
}

// DefaultTiming returns the standard cycle: 10s first screen, 100ms fade,
// 1s for screens with nothing to show.
func DefaultTiming() Timing {
	return Timing{
		InitialDisplay: 10 * time.Second,
		Fade:           100 * time.Millisecond,
		NoImageDwell:   time.Second,
	}
}

// AppConfig wires the App to the engine.
type AppConfig struct {
	Source Source
	Timing Timing

	Ring   *otel.RingBuffer // optional, feeds the debug overlay
	Events *otel.Logger     // optional

	Refresh func() tea.Cmd // optional, bound to "r"
	Rebuild func() tea.Cmd // optional, bound to "R"

	Now func() time.Time // defaults to time.Now
}

// Fade is the transition state of the screen on display.
type Fade int

const (
	FadeNone Fade = iota
	FadeOut
	FadeIn
)

// App is the root Bubble Tea model.
// App never touches playlist items directly: it only sees snapshots
// returned by Source.
type App struct {
	source  Source
	timing  Timing
	ring    *otel.RingBuffer
	events  *otel.Logger
	refresh func() tea.Cmd
	rebuild func() tea.Cmd
	now     func() time.Time

	current screen.Snapshot
	fade    Fade
	seq     int // bumped on every screen change; stale ticks are dropped
	shown   int

	clock   time.Time
	spinner spinner.Model
	status  string
	err     error

	width        int
	height       int
	ready        bool
	debugVisible bool
	debugView    int // index into debugViews
}

// NewApp creates an App. The first screen is taken from Source right away.
func NewApp(cfg AppConfig) App {
	t := cfg.Timing
	def := DefaultTiming()
	if t.InitialDisplay <= 0 {
		t.InitialDisplay = def.InitialDisplay
	}
	if t.Fade <= 0 {
		t.Fade = def.Fade
	}
	if t.NoImageDwell <= 0 {
		t.NoImageDwell = def.NoImageDwell
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	a := App{
		source:  cfg.Source,
		timing:  t,
		ring:    cfg.Ring,
		events:  cfg.Events,
		refresh: cfg.Refresh,
		rebuild: cfg.Rebuild,
		now:     now,
		clock:   now(),
		spinner: s,
	}
	if a.source != nil {
		a.current = a.source.First()
	}
	return a
}

// Init starts the display cycle, the clock and the spinner.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		after(a.timing.InitialDisplay, fadeOutMsg{seq: a.seq}),
		clockTick(),
		a.spinner.Tick,
	)
}

// after delivers msg once d has elapsed.
func after(d time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return msg })
}

// clockTick fires on the next whole second.
func clockTick() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg { return ClockTick{Time: t} })
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	a.events.Trace("ui", msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case fadeOutMsg:
		if msg.seq != a.seq {
			return a, nil
		}
		a.fade = FadeOut
		return a, after(a.timing.Fade, fadeInMsg{seq: a.seq})

	case fadeInMsg:
		if msg.seq != a.seq {
			return a, nil
		}
		return a.advance()

	case ClockTick:
		a.clock = msg.Time
		return a, clockTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case ActionDone:
		if msg.Err != nil {
			a.err = msg.Err
			a.status = ""
		} else {
			a.err = nil
			a.status = msg.Summary
		}
		return a, nil
	}

	return a, nil
}

// advance brings in the next screen and schedules its fade-out.
func (a App) advance() (tea.Model, tea.Cmd) {
	if a.source == nil {
		return a, nil
	}
	a.current = a.source.Next()
	a.fade = FadeIn
	a.seq++
	a.shown++

	dwell := a.dwell(a.current)
	logging.Debug("ui: showing screen", "name", a.current.FriendlyName, "dwell", dwell)
	if a.events != nil {
		a.events.Emit(otel.Event{
			Level: otel.LevelDebug,
			Kind:  otel.KindShow,
			Comp:  "ui",
			Item:  a.current.FriendlyName,
			Dur:   dwell,
			Msg:   a.current.Message,
		})
	}
	return a, after(dwell, fadeOutMsg{seq: a.seq})
}

// dwell returns how long s stays on screen. Screens with no picture move on
// after NoImageDwell.
func (a App) dwell(s screen.Snapshot) time.Duration {
	if s.ImageURI == "" {
		return a.timing.NoImageDwell
	}
	if d := s.Dwell(); d > 0 {
		return d
	}
	return a.timing.NoImageDwell
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.events != nil {
		a.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindKeyPress, Comp: "ui", Msg: msg.String()})
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "D":
		a.debugVisible = !a.debugVisible
		return a, nil

	case "f":
		if a.debugVisible {
			a.debugView = (a.debugView + 1) % len(debugViews)
		}
		return a, nil

	case "n", " ":
		// Invalidate the pending tick and start the fade now.
		a.seq++
		seq := a.seq
		return a, func() tea.Msg { return fadeOutMsg{seq: seq} }

	case "r":
		if a.refresh != nil {
			a.status = "refreshing..."
			return a, a.refresh()
		}
		return a, nil

	case "R":
		if a.rebuild != nil {
			a.status = "rebuilding..."
			return a, a.rebuild()
		}
		return a, nil
	}

	return a, nil
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.debugVisible {
		view := debugViews[a.debugView]
		var dropped uint64
		if a.events != nil {
			dropped = a.events.Dropped()
		}
		overlay := debugOverlay(debugInput{
			ring:    a.ring,
			view:    view,
			dropped: dropped,
			now:     a.now(),
			width:   a.width,
			height:  a.height - 1,
		})
		return lipgloss.JoinVertical(lipgloss.Left, overlay, debugStatusBar(a.width, view))
	}

	contentHeight := a.height - 1
	if a.err != nil {
		contentHeight--
	}

	top, bottom := a.timeBug()
	if top != "" {
		contentHeight--
	}
	if bottom != "" {
		contentHeight--
	}
	if contentHeight < 1 {
		contentHeight = 1
	}

	body := lipgloss.Place(a.width, contentHeight, lipgloss.Center, lipgloss.Center, a.renderScreen())
	if a.fade == FadeOut {
		body = FadedStyle.Render(body)
	}

	var parts []string
	if top != "" {
		parts = append(parts, top)
	}
	parts = append(parts, body)
	if bottom != "" {
		parts = append(parts, bottom)
	}
	if a.err != nil {
		parts = append(parts, ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()))
	}
	parts = append(parts, a.statusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderScreen draws the card for the current snapshot.
func (a App) renderScreen() string {
	s := a.current

	var lines []string
	title := TitleStyle.Render(s.FriendlyName)
	if s.FriendlyName == screen.NameStarting || s.FriendlyName == screen.NameStillStarting {
		title = a.spinner.View() + " " + title
	}
	lines = append(lines, title, "")

	switch {
	case s.HasImage:
		lines = append(lines, MetaStyle.Render(fmt.Sprintf("%s  %dx%d", s.ImageType, s.Width, s.Height)))
	case s.ImageURI != "":
		lines = append(lines, MetaStyle.Render(s.ImageURI))
	default:
		lines = append(lines, MetaStyle.Render("no image"))
	}
	if s.Resource != "" {
		lines = append(lines, ResourceStyle.Render(s.Resource))
	}
	if s.Message != "" {
		lines = append(lines, "", MessageStyle.Render(s.Message))
	}
	return lipgloss.JoinVertical(lipgloss.Center, lines...)
}

// timeBug returns the clock line to draw above or below the screen,
// according to the snapshot's time bug tag.
func (a App) timeBug() (top, bottom string) {
	clock := a.clock.Format("15:04")
	place := func(style lipgloss.Style) string {
		return lipgloss.PlaceHorizontal(a.width, lipgloss.Right, style.Render(clock))
	}
	switch a.current.TimeBug {
	case screen.TimeBugUpperRightLight:
		return place(TimeBugLight), ""
	case screen.TimeBugUpperRightDark:
		return place(TimeBugDark), ""
	case screen.TimeBugLowerRightLight:
		return "", place(TimeBugLight)
	case screen.TimeBugLowerRightDark:
		return "", place(TimeBugDark)
	}
	return "", ""
}

// statusBar renders key hints and the last action result.
func (a App) statusBar() string {
	keys := []string{
		StatusBarKey.Render("n") + StatusBarText.Render(":next"),
		StatusBarKey.Render("r") + StatusBarText.Render(":refresh"),
		StatusBarKey.Render("R") + StatusBarText.Render(":rebuild"),
		StatusBarKey.Render("D") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	left := fmt.Sprintf("  #%d", a.shown)
	if a.status != "" {
		left += "  " + a.status
	}
	return StatusBar.Width(a.width).Render(left + "  " + strings.Join(keys, " "))
}
