package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorLight     = lipgloss.Color("255")
	colorDark      = lipgloss.Color("232")
)

// TitleStyle renders the friendly name of the screen on display.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorLight).
	Background(colorPrimary).
	Padding(0, 2)

// MetaStyle renders image details below the title.
var MetaStyle = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ResourceStyle renders the resource URL.
var ResourceStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true)

// FadedStyle dims the whole screen while it fades out.
var FadedStyle = lipgloss.NewStyle().
	Faint(true)

// MessageStyle renders the item's status message.
var MessageStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("214")).
	Padding(0, 1)

// TimeBugLight is the clock on a dark picture.
var TimeBugLight = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorLight).
	Padding(0, 1)

// TimeBugDark is the clock on a light picture.
var TimeBugDark = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorDark).
	Background(lipgloss.Color("250")).
	Padding(0, 1)

// SpinnerStyle colors the starting spinner.
var SpinnerStyle = lipgloss.NewStyle().
	Foreground(colorHighlight)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(colorLight).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
