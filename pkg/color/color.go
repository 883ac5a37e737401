// Package color provides terminal styling for CLI output.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/enftaurus/vidyamitra/pkg/model"
)

var (
	state struct {
		mu       sync.RWMutex
		enabled  bool
		once     sync.Once
		disabled bool
	}
)

// Init initializes the color system based on environment and flags.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		state.mu.Lock()
		defer state.mu.Unlock()
		if _, exists := os.LookupEnv("NO_COLOR"); exists {
			state.disabled = true
		}
		if term := os.Getenv("TERM"); term == "dumb" {
			state.disabled = true
		}
		if noColorFlag {
			state.disabled = true
		}
		state.enabled = !state.disabled
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.enabled
}

// Disable turns off color output.
func Disable() {
	Init(false)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.disabled = true
	state.enabled = false
}

// Enable turns on color output.
func Enable() {
	Init(false)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.disabled = false
	state.enabled = true
}

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	bold   = lipgloss.NewStyle().Bold(true)
)

func render(style lipgloss.Style, s string) string {
	if !Enabled() {
		return s
	}
	return style.Render(s)
}

// Success formats a success message in green.
func Success(s string) string { return render(green, s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return Success(fmt.Sprintf(format, args...)) }

// Error formats an error message in red.
func Error(s string) string { return render(red, s) }

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string { return Error(fmt.Sprintf(format, args...)) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return render(yellow, s) }

// Info formats an informational message in cyan.
func Info(s string) string { return render(cyan, s) }

// Header formats a header in bold.
func Header(s string) string { return render(bold, s) }

// Dim formats secondary information.
func Dim(s string) string { return render(gray, s) }

// Status renders a round status label: completed green, in progress yellow,
// not started dim.
func Status(s model.RoundStatus) string {
	switch s {
	case model.StatusCompleted:
		return Success(s.Label())
	case model.StatusInProgress:
		return Warning(s.Label())
	default:
		return Dim(s.Label())
	}
}

// Locked renders the lock marker for a round.
func Locked(locked bool) string {
	if locked {
		return Error("locked")
	}
	return Success("open")
}
