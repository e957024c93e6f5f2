package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/rlm/internal/orchestrator"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// maxLogEntries bounds the activity log.
const maxLogEntries = 200

// RunState is the live state of a run as shown by the progress view.
type RunState struct {
	RunID       string
	Query       string
	Path        string
	Phase       orchestrator.EventType
	Role        models.Role
	Description string
	Depth       int
	MaxDepth    int
	StackSize   int
	Stats       models.Stats
	Resumed     bool
}

// Apply folds an orchestrator event into the state.
func (s *RunState) Apply(e orchestrator.Event) {
	s.RunID = e.RunID
	s.Phase = e.Type
	s.Role = e.Role
	s.Description = e.Description
	s.Depth = e.Depth
	s.StackSize = e.StackSize
	s.Stats = e.Stats
	if e.Type == orchestrator.EventStarted {
		s.Resumed = e.Resumed
	}
}

// EventMsg carries an orchestrator event into the program.
type EventMsg struct {
	Event orchestrator.Event
}

// DoneMsg signals that the run finished. Summary is shown on success.
type DoneMsg struct {
	Err     error
	Summary string
}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Phase     string
	Message   string
}

// ProgressView renders the run state.
type ProgressView struct {
	state  RunState
	width  int
	height int

	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	phaseStyle    lipgloss.Style
	roleStyle     lipgloss.Style
	mutedStyle    lipgloss.Style
}

// NewProgressView creates a ProgressView.
func NewProgressView() *ProgressView {
	return &ProgressView{
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(16),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		roleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Bold(true),

		mutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// SetState replaces the displayed state.
func (v *ProgressView) SetState(state RunState) {
	v.state = state
}

// State returns the displayed state.
func (v *ProgressView) State() RunState {
	return v.state
}

// SetSize sets the view dimensions.
func (v *ProgressView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// View renders the run state.
func (v *ProgressView) View() string {
	var b strings.Builder
	s := v.state

	title := "Recursive Analysis"
	if s.Resumed {
		title += " (resumed)"
	}
	b.WriteString(v.headerStyle.Render(title))
	b.WriteString("\n")

	if s.Query != "" {
		v.row(&b, "Query:", v.valueStyle.Render(truncate(s.Query, v.textWidth())))
	}
	if s.Path != "" {
		v.row(&b, "Path:", s.Path)
	}
	if s.RunID != "" {
		v.row(&b, "Run:", v.mutedStyle.Render(s.RunID))
	}
	b.WriteString("\n")

	phase := string(s.Phase)
	if phase == "" {
		phase = "waiting"
	}
	v.row(&b, "Phase:", v.phaseStyle.Render(phase))

	if s.Role != "" {
		v.row(&b, "Task:", v.roleStyle.Render(s.Role.String())+"  "+truncate(s.Description, v.textWidth()-12))
	}

	pct := 0.0
	if s.MaxDepth > 0 {
		pct = float64(s.Depth) / float64(s.MaxDepth) * 100
	}
	v.row(&b, "Depth:", v.valueStyle.Render(fmt.Sprintf("%d/%d", s.Depth, s.MaxDepth))+
		fmt.Sprintf("  (stack %d, deepest %d)", s.StackSize, s.Stats.MaxDepthReached))
	b.WriteString(v.renderProgressBar(pct, 30))
	b.WriteString("\n\n")

	v.row(&b, "Iterations:", v.valueStyle.Render(fmt.Sprintf("%d", s.Stats.Iterations)))
	v.row(&b, "Dispatches:", v.valueStyle.Render(fmt.Sprintf("%d", s.Stats.SubagentCalls))+
		fmt.Sprintf("  cache hits %d", s.Stats.CacheHits))
	v.row(&b, "Tokens:", v.valueStyle.Render(fmt.Sprintf("%d", s.Stats.TotalTokens))+
		fmt.Sprintf("  $%.4f", s.Stats.TotalCostUSD))
	if !s.Stats.StartTime.IsZero() {
		v.row(&b, "Elapsed:", time.Since(s.Stats.StartTime).Round(time.Second).String())
	}

	return b.String()
}

func (v *ProgressView) row(b *strings.Builder, label, value string) {
	b.WriteString(v.labelStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func (v *ProgressView) textWidth() int {
	if v.width <= 20 {
		return 60
	}
	return v.width - 20
}

// renderProgressBar renders a progress bar.
func (v *ProgressView) renderProgressBar(pct float64, width int) string {
	pct = min(max(pct, 0), 100)
	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := v.progressFull.Render(strings.Repeat("█", filled)) +
		v.progressEmpty.Render(strings.Repeat("░", empty))
	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

func truncate(s string, n int) string {
	if n <= 3 {
		n = 4
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// ProgressApp is the bubbletea model for the analyze --progress view.
type ProgressApp struct {
	view     *ProgressView
	spinner  spinner.Model
	logs     []LogEntry
	width    int
	height   int
	quitting bool
	done     bool
	err      error
	summary  string

	logStyle     lipgloss.Style
	logTimeStyle lipgloss.Style
	errorStyle   lipgloss.Style
	doneStyle    lipgloss.Style
}

// NewProgressApp creates a ProgressApp for a run of query over path.
func NewProgressApp(path, query string, maxDepth int) *ProgressApp {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	view := NewProgressView()
	view.SetState(RunState{Path: path, Query: query, MaxDepth: maxDepth})

	return &ProgressApp{
		view:         view,
		spinner:      sp,
		logs:         make([]LogEntry, 0),
		logStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		logTimeStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true),
	}
}

// Init implements tea.Model.
func (a *ProgressApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *ProgressApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.view.SetSize(msg.Width, msg.Height)

	case EventMsg:
		state := a.view.State()
		state.Apply(msg.Event)
		a.view.SetState(state)
		a.appendLog(msg.Event.Timestamp, string(msg.Event.Type), describe(msg.Event))

	case DoneMsg:
		a.done = true
		a.err = msg.Err
		a.summary = msg.Summary
		return a, nil

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *ProgressApp) appendLog(ts time.Time, phase, message string) {
	if ts.IsZero() {
		ts = time.Now()
	}
	a.logs = append(a.logs, LogEntry{Timestamp: ts, Phase: phase, Message: message})
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[len(a.logs)-maxLogEntries:]
	}
}

// describe renders an event as one log line.
func describe(e orchestrator.Event) string {
	switch e.Type {
	case orchestrator.EventStarted:
		if e.Resumed {
			return fmt.Sprintf("resumed at depth %d with %d suspended tasks", e.Depth, e.StackSize)
		}
		return "started"
	case orchestrator.EventDispatch:
		return fmt.Sprintf("%s @%d: %s", e.Role, e.Depth, truncate(e.Description, 60))
	case orchestrator.EventCacheHit:
		return fmt.Sprintf("%s @%d answered from cache", e.Role, e.Depth)
	case orchestrator.EventDescend:
		return fmt.Sprintf("-> %s @%d for %q", e.Role, e.Depth, e.ReturnTo)
	case orchestrator.EventAscend:
		return fmt.Sprintf("<- %q returned to %s @%d", e.ReturnTo, e.Role, e.Depth)
	case orchestrator.EventComplete:
		return fmt.Sprintf("complete after %d dispatches", e.Stats.SubagentCalls)
	case orchestrator.EventFailed:
		if e.Error != nil {
			return "failed: " + e.Error.Error()
		}
		return "failed"
	default:
		return string(e.Type)
	}
}

// View implements tea.Model.
func (a *ProgressApp) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(a.view.View())
	b.WriteString("\n")

	b.WriteString(a.logStyle.Render("Activity"))
	b.WriteString("\n")
	for _, entry := range a.visibleLogs() {
		b.WriteString(a.logTimeStyle.Render(entry.Timestamp.Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(a.logStyle.Render(fmt.Sprintf("[%s] %s", entry.Phase, entry.Message)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case a.done && a.err != nil:
		b.WriteString(a.errorStyle.Render("Error: " + a.err.Error()))
		b.WriteString("\n")
		b.WriteString(a.logTimeStyle.Render("Press q to exit"))
	case a.done:
		b.WriteString(a.doneStyle.Render("Done"))
		if a.summary != "" {
			b.WriteString("  ")
			b.WriteString(a.summary)
		}
		b.WriteString("\n")
		b.WriteString(a.logTimeStyle.Render("Press q to exit"))
	default:
		b.WriteString(a.spinner.View())
		b.WriteString(" ")
		b.WriteString(a.logTimeStyle.Render("working... press q to detach (the run keeps its checkpoint)"))
	}
	return b.String()
}

// visibleLogs returns the tail of the log that fits the window.
func (a *ProgressApp) visibleLogs() []LogEntry {
	n := 10
	if a.height > 0 {
		n = max(a.height-22, 3)
	}
	if len(a.logs) <= n {
		return a.logs
	}
	return a.logs[len(a.logs)-n:]
}

// Done reports whether a DoneMsg was received.
func (a *ProgressApp) Done() bool {
	return a.done
}

// Err returns the error of the finished run.
func (a *ProgressApp) Err() error {
	return a.err
}

// Logs returns the activity log.
func (a *ProgressApp) Logs() []LogEntry {
	return a.logs
}

// State returns the current run state.
func (a *ProgressApp) State() RunState {
	return a.view.State()
}

// NewProgressProgram creates a Bubbletea program for the progress view.
func NewProgressProgram(path, query string, maxDepth int) (*tea.Program, *ProgressApp) {
	app := NewProgressApp(path, query, maxDepth)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Forward sends every event on events to program until the channel closes.
func Forward(program *tea.Program, events <-chan orchestrator.Event) {
	for e := range events {
		program.Send(EventMsg{Event: e})
	}
}
