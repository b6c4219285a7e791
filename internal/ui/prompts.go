package ui

import (
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	promptChosenStyle = lipgloss.NewStyle().Bold(true).Foreground(success)
	promptOtherStyle  = lipgloss.NewStyle().Foreground(subtle)
	promptHintStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
)

// PromptInput is read by prompts; tests replace it together with Output.
var PromptInput io.Reader

type promptKeys struct {
	yes     key.Binding
	no      key.Binding
	toggle  key.Binding
	confirm key.Binding
	cancel  key.Binding
}

var promptBindings = promptKeys{
	yes:     key.NewBinding(key.WithKeys("y", "Y", "left", "h")),
	no:      key.NewBinding(key.WithKeys("n", "N", "right", "l")),
	toggle:  key.NewBinding(key.WithKeys("tab")),
	confirm: key.NewBinding(key.WithKeys("enter")),
	cancel:  key.NewBinding(key.WithKeys("ctrl+c", "esc")),
}

// header renders the question and its optional description.
func header(title, description string) string {
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("? " + title))
	b.WriteString("\n")
	if description != "" {
		b.WriteString(promptHintStyle.Render("  " + description))
		b.WriteString("\n")
	}
	return b.String()
}

type confirmPrompt struct {
	question    string
	description string
	yes         bool
	done        bool
	cancelled   bool
}

func (m confirmPrompt) Init() tea.Cmd { return nil }

func (m confirmPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(k, promptBindings.yes):
		m.yes = true
	case key.Matches(k, promptBindings.no):
		m.yes = false
	case key.Matches(k, promptBindings.toggle):
		m.yes = !m.yes
	case key.Matches(k, promptBindings.confirm):
		m.done = true
		return m, tea.Quit
	case key.Matches(k, promptBindings.cancel):
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmPrompt) View() string {
	if m.done || m.cancelled {
		return ""
	}
	option := func(label string, chosen bool) string {
		if chosen {
			return promptTitleStyle.Render("❯ ") + promptChosenStyle.Render(label)
		}
		return "  " + promptOtherStyle.Render(label)
	}
	return header(m.question, m.description) + "\n" +
		option("Yes", m.yes) + "    " + option("No", !m.yes) + "\n\n" +
		promptHintStyle.Render("  y/n to choose • enter to confirm • esc to cancel")
}

// answer is the choice, counting a cancelled prompt as no.
func (m confirmPrompt) answer() bool { return m.yes && m.done && !m.cancelled }

// RunYesNoPrompt asks question and reports the answer. A cancelled prompt
// answers no.
func RunYesNoPrompt(question, description string, defaultYes bool) (bool, error) {
	model, err := runPrompt(confirmPrompt{question: question, description: description, yes: defaultYes})
	if err != nil {
		return false, err
	}
	return model.(confirmPrompt).answer(), nil
}

type textPrompt struct {
	title       string
	description string
	fallback    string
	input       textinput.Model
	done        bool
	cancelled   bool
}

func newTextPrompt(title, description, placeholder, fallback string) textPrompt {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 256
	ti.Width = 50
	ti.Focus()
	return textPrompt{title: title, description: description, fallback: fallback, input: ti}
}

func (m textPrompt) Init() tea.Cmd { return textinput.Blink }

func (m textPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, promptBindings.confirm):
			m.done = true
			return m, tea.Quit
		case key.Matches(k, promptBindings.cancel):
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textPrompt) View() string {
	if m.done || m.cancelled {
		return ""
	}
	view := header(m.title, m.description) + "\n  " + m.input.View() + "\n"
	if m.fallback != "" && m.input.Value() == "" {
		view += promptHintStyle.Render("  Press enter to use: "+m.fallback) + "\n"
	}
	return view + "\n" + promptHintStyle.Render("  enter to confirm • esc to cancel")
}

// value is the typed text, or the fallback when nothing was typed. A
// cancelled prompt yields "".
func (m textPrompt) value() string {
	if !m.done || m.cancelled {
		return ""
	}
	if v := strings.TrimSpace(m.input.Value()); v != "" {
		return v
	}
	return m.fallback
}

// RunTextInputPrompt asks for one line of text. A cancelled prompt returns
// "".
func RunTextInputPrompt(title, description, placeholder, fallback string) (string, error) {
	model, err := runPrompt(newTextPrompt(title, description, placeholder, fallback))
	if err != nil {
		return "", err
	}
	return model.(textPrompt).value(), nil
}

func runPrompt(m tea.Model) (tea.Model, error) {
	opts := []tea.ProgramOption{tea.WithOutput(Output)}
	if PromptInput != nil {
		opts = append(opts, tea.WithInput(PromptInput))
	}
	return tea.NewProgram(m, opts...).Run()
}
