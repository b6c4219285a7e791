package ui

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/octo-studio/internal/orchestrator"
	"github.com/harshul/octo-studio/internal/terminal"
)

// Controller drives the app shown in the console.
type Controller interface {
	Stop(ctx context.Context, appID int64) error
	Restart(ctx context.Context, appID int64, opts orchestrator.RestartOptions) error
	RespondToInput(appID int64, text string) error
	Running(appID int64) bool
}

// ConsoleModel is the bubbletea model showing one app's terminals.
type ConsoleModel struct {
	appID int64
	name  string
	logs  *terminal.Store
	ctl   Controller
	pids  func() []int32

	scope    terminal.Scope
	url      string
	proxyURL string
	prompt   string
	status   string
	running  bool

	resources ResourceStats

	width    int
	height   int
	viewport viewport.Model
	showHelp bool
	quitting bool

	updateChan chan tea.Msg
	keys       keyMap
	styles     *Styles
}

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	NextScope  key.Binding
	PrevScope  key.Binding
	Yes        key.Binding
	No         key.Binding
	Stop       key.Binding
	Restart    key.Binding
	CleanStart key.Binding
	Clear      key.Binding
	OpenURL    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k", "pgup"), key.WithHelp("↑/k", "scroll up")),
		Down:       key.NewBinding(key.WithKeys("down", "j", "pgdown"), key.WithHelp("↓/j", "scroll down")),
		NextScope:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next terminal")),
		PrevScope:  key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous terminal")),
		Yes:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "answer yes")),
		No:         key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "answer no")),
		Stop:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Restart:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
		CleanStart: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "clean restart")),
		Clear:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear terminal")),
		OpenURL:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) all() []key.Binding {
	return []key.Binding{k.NextScope, k.Up, k.Down, k.Yes, k.No, k.Stop, k.Restart, k.CleanStart, k.Clear, k.OpenURL, k.Quit}
}

// Styles holds the console's lipgloss styles.
type Styles struct {
	App       lipgloss.Style
	Header    lipgloss.Style
	Tab       lipgloss.Style
	TabActive lipgloss.Style
	URL       lipgloss.Style
	Viewport  lipgloss.Style
	Prompt    lipgloss.Style
	Running   lipgloss.Style
	Stopped   lipgloss.Style
	Status    lipgloss.Style
	HelpKey   lipgloss.Style
	HelpDesc  lipgloss.Style
}

func DefaultStyles() *Styles {
	return &Styles{
		App: lipgloss.NewStyle().Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle),
		Tab:       lipgloss.NewStyle().Padding(0, 1).Foreground(subtle),
		TabActive: lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(highlight),
		URL:       lipgloss.NewStyle().Bold(true).Underline(true).Foreground(success),
		Viewport: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1),
		Prompt:   lipgloss.NewStyle().Bold(true).Foreground(warning),
		Running:  lipgloss.NewStyle().Bold(true).Foreground(info),
		Stopped:  lipgloss.NewStyle().Foreground(warning),
		Status:   lipgloss.NewStyle().Foreground(subtle),
		HelpKey:  lipgloss.NewStyle().Bold(true).Foreground(highlight),
		HelpDesc: lipgloss.NewStyle().Foreground(subtle),
	}
}

type tickMsg time.Time
type resourceUpdateMsg ResourceStats
type lineMsg terminal.Line
type eventMsg orchestrator.Event
type actionDoneMsg struct {
	action string
	err    error
}

// ConsoleConfig configures NewConsole.
type ConsoleConfig struct {
	AppID      int64
	Name       string
	Logs       *terminal.Store
	Controller Controller
	// PIDs returns the root process ids of the app for resource sampling.
	PIDs func() []int32
	// Events subscribes to engine events, typically Engine.Subscribe.
	Events func(buffer int) (<-chan orchestrator.Event, func())
}

func NewConsole(cfg ConsoleConfig) *ConsoleModel {
	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true
	m := &ConsoleModel{
		appID:      cfg.AppID,
		name:       cfg.Name,
		logs:       cfg.Logs,
		ctl:        cfg.Controller,
		pids:       cfg.PIDs,
		scope:      cfg.Logs.Active(),
		running:    cfg.Controller.Running(cfg.AppID),
		viewport:   vp,
		keys:       defaultKeyMap(),
		styles:     DefaultStyles(),
		updateChan: make(chan tea.Msg, 256),
	}
	m.refresh()
	return m
}

// SendLine notifies the console of a new terminal line. It never blocks;
// the view re-reads the store so a dropped notification loses nothing.
func (m *ConsoleModel) SendLine(l terminal.Line) {
	select {
	case m.updateChan <- lineMsg(l):
	default:
	}
}

// SendEvent forwards an engine event for this app.
func (m *ConsoleModel) SendEvent(ev orchestrator.Event) {
	if ev.AppID != m.appID {
		return
	}
	select {
	case m.updateChan <- eventMsg(ev):
	default:
	}
}

func (m *ConsoleModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.listenForUpdates())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *ConsoleModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

func (m *ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-6, 20)
		m.viewport.Height = max(msg.Height-10, 5)
		m.refresh()

	case tickMsg:
		m.running = m.ctl.Running(m.appID)
		return m, tea.Batch(tickCmd(), m.fetchResourceStats())

	case resourceUpdateMsg:
		m.resources = ResourceStats(msg)

	case lineMsg:
		prev := m.scope
		m.scope = m.logs.Active()
		if msg.Scope == m.scope || prev != m.scope {
			m.refresh()
		}
		return m, m.listenForUpdates()

	case eventMsg:
		m.handleEvent(orchestrator.Event(msg))
		return m, m.listenForUpdates()

	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = msg.action + " done"
		}
		m.running = m.ctl.Running(m.appID)
	}
	return m, nil
}

func (m *ConsoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = m.ctl.Stop(ctx, m.appID)
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextScope):
		m.selectScope(1)
	case key.Matches(msg, m.keys.PrevScope):
		m.selectScope(-1)

	case key.Matches(msg, m.keys.Yes), key.Matches(msg, m.keys.No):
		if m.prompt == "" {
			return m, nil
		}
		answer := "n"
		if key.Matches(msg, m.keys.Yes) {
			answer = "y"
		}
		if err := m.ctl.RespondToInput(m.appID, answer); err != nil {
			m.status = "input failed: " + err.Error()
		}
		m.prompt = ""

	case key.Matches(msg, m.keys.Stop):
		m.status = "stopping..."
		return m, m.action("stop", func(ctx context.Context) error { return m.ctl.Stop(ctx, m.appID) })
	case key.Matches(msg, m.keys.Restart):
		m.resetRun()
		return m, m.action("restart", func(ctx context.Context) error {
			return m.ctl.Restart(ctx, m.appID, orchestrator.RestartOptions{})
		})
	case key.Matches(msg, m.keys.CleanStart):
		m.resetRun()
		return m, m.action("clean restart", func(ctx context.Context) error {
			return m.ctl.Restart(ctx, m.appID, orchestrator.RestartOptions{RemoveNodeModules: true})
		})

	case key.Matches(msg, m.keys.Clear):
		m.logs.Clear(m.scope)
		m.refresh()
	case key.Matches(msg, m.keys.OpenURL):
		if u := m.previewURL(); u != "" {
			openInBrowser(u)
		}
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ConsoleModel) handleEvent(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventReady:
		m.url, m.proxyURL = ev.URL, ev.ProxyURL
		m.running = true
	case orchestrator.EventInputRequested:
		m.prompt = ev.Message
	case orchestrator.EventStartupTimeout:
		m.status = ev.Message
	case orchestrator.EventExited:
		m.status = fmt.Sprintf("process %s exited with code %d", ev.Key, ev.ExitCode)
		m.running = m.ctl.Running(m.appID)
	}
}

func (m *ConsoleModel) action(name string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		return actionDoneMsg{action: name, err: fn(ctx)}
	}
}

func (m *ConsoleModel) resetRun() {
	m.url, m.proxyURL, m.prompt = "", "", ""
	m.status = "restarting..."
}

func (m *ConsoleModel) selectScope(step int) {
	idx := 0
	for i, s := range terminal.Scopes {
		if s == m.scope {
			idx = i
		}
	}
	n := len(terminal.Scopes)
	m.scope = terminal.Scopes[((idx+step)%n+n)%n]
	m.logs.Select(m.scope)
	m.refresh()
}

// refresh reloads the viewport from the selected log, following the tail
// only when the user was already at the bottom.
func (m *ConsoleModel) refresh() {
	lines := m.logs.Lines(m.scope)
	msgs := make([]string, len(lines))
	for i, l := range lines {
		msgs[i] = l.Message
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(msgs, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *ConsoleModel) previewURL() string {
	if m.proxyURL != "" {
		return m.proxyURL
	}
	return m.url
}

func (m *ConsoleModel) fetchResourceStats() tea.Cmd {
	if m.pids == nil {
		return nil
	}
	pids := m.pids()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return resourceUpdateMsg(GetResourceStats(ctx, pids))
	}
}

func openInBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return
	}
	_ = cmd.Start()
}

func (m *ConsoleModel) View() string {
	if m.quitting {
		return "Stopping app...\n"
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if u := m.previewURL(); u != "" {
		b.WriteString(m.styles.URL.Render("➜ " + u))
		if m.proxyURL != "" && m.url != "" && m.proxyURL != m.url {
			b.WriteString(m.styles.Status.Render("  (app at " + m.url + ")"))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(m.styles.Viewport.Render(m.viewport.View()))
	b.WriteString("\n")
	if m.prompt != "" {
		b.WriteString(m.styles.Prompt.Render("? "+m.prompt) + "  " + m.styles.HelpKey.Render("y") + "/" + m.styles.HelpKey.Render("n") + "\n")
	}
	if m.status != "" {
		b.WriteString(m.styles.Status.Render(m.status) + "\n")
	}
	b.WriteString(m.renderFooter())
	return m.styles.App.Render(b.String())
}

func (m *ConsoleModel) renderHeader() string {
	state := m.styles.Stopped.Render("○ stopped")
	if m.running {
		state = m.styles.Running.Render("● running")
	}
	stats := ""
	if m.resources.Processes > 0 {
		stats += fmt.Sprintf("  App: %.0f%% CPU, %s", m.resources.AppCPU, FormatBytes(m.resources.AppRSS))
	}
	if m.resources.CPUPercent > 0 {
		stats += fmt.Sprintf("  Host: %.0f%% CPU, %.0f%% Mem", m.resources.CPUPercent, m.resources.MemPercent)
	}
	return m.styles.Header.Render(fmt.Sprintf("🐙 %s", m.name)) + "  " + state + m.styles.Status.Render(stats)
}

func (m *ConsoleModel) renderTabs() string {
	tabs := make([]string, 0, len(terminal.Scopes))
	for _, s := range terminal.Scopes {
		label := fmt.Sprintf("%s (%d)", s, len(m.logs.Lines(s)))
		if s == m.scope {
			tabs = append(tabs, m.styles.TabActive.Render(label))
		} else {
			tabs = append(tabs, m.styles.Tab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *ConsoleModel) renderFooter() string {
	bindings := []key.Binding{m.keys.NextScope, m.keys.Stop, m.keys.Restart, m.keys.OpenURL, m.keys.Help, m.keys.Quit}
	if m.showHelp {
		bindings = m.keys.all()
	}
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, m.styles.HelpKey.Render(h.Key)+" "+m.styles.HelpDesc.Render(h.Desc))
	}
	return strings.Join(parts, " • ")
}
