package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"library-portal/library"
)

// Out is where every helper writes.
var Out io.Writer = os.Stdout

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	primaryStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Fprint(Out, successStyle.Render("✓ "))
	fmt.Fprintf(Out, format+"\n", args...)
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Fprint(Out, warningStyle.Render("⚠ "))
	fmt.Fprintf(Out, format+"\n", args...)
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Fprint(Out, errorStyle.Render("✗ "))
	fmt.Fprintf(Out, format+"\n", args...)
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Fprint(Out, infoStyle.Render("ℹ "))
	fmt.Fprintf(Out, format+"\n", args...)
}

func Muted(format string, args ...any) {
	fmt.Fprintln(Out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Section prints a section header
func Section(title string) {
	fmt.Fprintln(Out)
	fmt.Fprintln(Out, primaryStyle.Render(title))
	fmt.Fprintln(Out, mutedStyle.Render(strings.Repeat("═", lipgloss.Width(title))))
}

// Header renders a table header row.
func Header(row string) {
	fmt.Fprintln(Out, headerStyle.Render(row))
}

// Status colors a book status.
func Status(s library.BookStatus) string {
	switch s {
	case library.StatusAvailable:
		return successStyle.Render(string(s))
	case library.StatusBorrowed:
		return warningStyle.Render(string(s))
	}
	return mutedStyle.Render(string(s))
}

// Notifier reports dispatcher outcomes on the terminal.
type Notifier struct{}

var _ library.Notifier = Notifier{}

func (Notifier) Error(err error) {
	Error("%s", library.ErrorMessage(err, "Something went wrong"))
	if library.IsNetworkError(err) {
		Muted("Is the library server running? Check base_url in your config.")
	}
}

func (Notifier) Success(msg string) { Success("%s", msg) }

// Navigator prints route changes when verbose.
type Navigator struct {
	Verbose bool
}

func (n Navigator) Navigate(route string) {
	if n.Verbose {
		Muted("→ %s", route)
	}
}
