// Package ui renders CLI output: status lines, prompts and the terminal
// console of a running app.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Output receives every status line. Tests swap it for a buffer.
var Output io.Writer = os.Stdout

var (
	subtle     = lipgloss.AdaptiveColor{Light: "#666", Dark: "#999"}
	highlight  = lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}
	success    = lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	warning    = lipgloss.AdaptiveColor{Light: "#CC6600", Dark: "#FFAA00"}
	errorColor = lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF0000"}
	info       = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"}

	successStyle = lipgloss.NewStyle().Foreground(success)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(info)
	labelStyle   = lipgloss.NewStyle().Foreground(subtle)
	valueStyle   = lipgloss.NewStyle().Bold(true)
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"})
)

type Spinner struct {
	msg     string
	running bool
}

func NewSpinner(message string) *Spinner {
	return &Spinner{msg: message}
}

func (s *Spinner) Start() {
	if s == nil || s.running {
		return
	}
	s.running = true
	fmt.Fprintln(Output, "⏳", s.msg)
}

func (s *Spinner) Stop() {
	if s == nil || !s.running {
		return
	}
	s.running = false
}

func Success(msg string) {
	fmt.Fprintln(Output, successStyle.Render("✔")+" "+msg)
}

func Info(msg string) {
	fmt.Fprintln(Output, infoStyle.Render("ℹ")+" "+msg)
}

func Warn(msg string) {
	fmt.Fprintln(Output, warnStyle.Render("⚠")+" "+msg)
}

func Error(msg string) {
	fmt.Fprintln(Output, errorStyle.Render("✖")+" "+msg)
}

// Highlight prints an indented label/value pair.
func Highlight(label, value string) {
	fmt.Fprintln(Output, "  "+labelStyle.Render(label+":")+" "+valueStyle.Render(value))
}

func Divider() {
	fmt.Fprintln(Output, dividerStyle.Render("  "+strings.Repeat("─", 50)))
}
