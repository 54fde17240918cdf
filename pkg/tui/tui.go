// Package tui is the live view: verdicts stream in as go test emits them,
// with captured output for the selected test in a detail pane.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/halvard/xpect/pkg/expect"
	"github.com/halvard/xpect/pkg/render"
	"github.com/halvard/xpect/pkg/runner"
	"github.com/halvard/xpect/pkg/testjson"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Run executes the suite under a live bubbletea view and returns the final
// classified report once the run ends and the user quits.
func Run(ctx context.Context, opts runner.Options, table *expect.Table, theme render.Theme) (*expect.Report, error) {
	// Bubbletea's raw mode captures ctrl+c as a key event, so no signal
	// ever reaches the runner. The quit path must cancel this context
	// itself, or the go test process group outlives the view.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 256)
	opts.OnEvent = func(ev testjson.Event) {
		events <- eventMsg(ev)
	}

	go func() {
		res, err := runner.Run(ctx, opts)
		if err != nil {
			events <- doneMsg{err: err}
			return
		}
		events <- doneMsg{report: expect.Classify(res.Packages, table)}
	}()

	program := tea.NewProgram(newModel(table, theme, events, cancel), tea.WithContext(ctx))
	finalModel, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	m := finalModel.(model)
	if m.err != nil {
		return nil, m.err
	}
	if m.report == nil {
		return nil, fmt.Errorf("run interrupted")
	}
	return m.report, nil
}

type eventMsg testjson.Event
type tickMsg struct{}

type doneMsg struct {
	report *expect.Report
	err    error
}

// line is one test row in the list pane.
type line struct {
	pkg      string
	test     string
	status   string // "", pass, fail, skip while running
	kind     expect.Kind
	final    bool
	duration time.Duration
}

type model struct {
	table  *expect.Table
	theme  render.Theme
	events <-chan tea.Msg
	cancel context.CancelFunc

	lines    []line
	index    map[string]int // pkg+"\x00"+test -> lines index
	output   map[string][]string
	selected int
	viewport viewport.Model
	ready    bool
	done     bool
	report   *expect.Report
	err      error
	width    int
	height   int
	started  time.Time
}

func newModel(table *expect.Table, theme render.Theme, events <-chan tea.Msg, cancel context.CancelFunc) model {
	vp := viewport.New(0, 0)
	vp.SetContent("Waiting for test output...")
	return model{
		table:    table,
		theme:    theme,
		events:   events,
		cancel:   cancel,
		index:    make(map[string]int),
		output:   make(map[string][]string),
		viewport: vp,
		started:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.listen(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/8, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) listen() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			if msg.String() == "ctrl+c" {
				// Reap the child before leaving: cancellation runs
				// through runner.Run, which kills the process group.
				m.cancel()
				m.err = context.Canceled
				return m, tea.Quit
			}
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.refreshViewport()
			}
		case "down", "j":
			if m.selected < len(m.lines)-1 {
				m.selected++
				m.refreshViewport()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.width - 4
		m.viewport.Height = m.height/2 - 2
		m.ready = true
		m.refreshViewport()

	case tickMsg:
		return m, tick()

	case eventMsg:
		m.apply(testjson.Event(msg))
		return m, m.listen()

	case doneMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		if m.err != nil {
			return m, tea.Quit
		}
		if m.report != nil {
			m.applyReport(m.report)
		}
		m.refreshViewport()
		return m, nil
	}
	return m, nil
}

// apply folds one stream event into the visible lines.
func (m *model) apply(ev testjson.Event) {
	if ev.Test == "" {
		return
	}
	key := ev.Package + "\x00" + ev.Test
	i, ok := m.index[key]
	if !ok {
		i = len(m.lines)
		m.index[key] = i
		m.lines = append(m.lines, line{pkg: ev.Package, test: ev.Test})
	}
	switch ev.Action {
	case testjson.ActionPass, testjson.ActionFail, testjson.ActionSkip:
		m.lines[i].status = ev.Action
		m.lines[i].duration = time.Duration(ev.Elapsed * float64(time.Second))
	case testjson.ActionOutput:
		out := strings.TrimRight(ev.Output, "\n")
		if out != "" {
			m.output[key] = append(m.output[key], out)
			if m.selected == i {
				m.refreshViewport()
			}
		}
	}
}

// applyReport overwrites in-flight statuses with final verdicts.
func (m *model) applyReport(rep *expect.Report) {
	for _, v := range rep.Verdicts {
		key := v.Package + "\x00" + v.Test
		i, ok := m.index[key]
		if !ok {
			// Synthesized skip verdicts never produced events.
			i = len(m.lines)
			m.index[key] = i
			m.lines = append(m.lines, line{pkg: v.Package, test: v.Test})
		}
		m.lines[i].kind = v.Kind
		m.lines[i].final = true
		m.lines[i].duration = v.Duration
	}
}

func (m *model) refreshViewport() {
	if m.selected < 0 || m.selected >= len(m.lines) {
		return
	}
	l := m.lines[m.selected]
	out := m.output[l.pkg+"\x00"+l.test]
	if len(out) == 0 {
		m.viewport.SetContent(m.theme.Muted.Render("no output"))
		return
	}
	m.viewport.SetContent(strings.Join(out, "\n"))
}

func (m model) View() string {
	if !m.ready {
		return "Starting suite..."
	}

	listHeight := m.height/2 - 2
	if listHeight < 3 {
		listHeight = 3
	}

	header := m.theme.Bold.Render(m.headerLine())
	list := m.renderList(listHeight)
	detail := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 2).
		Render(m.viewport.View())
	help := m.theme.Muted.Render("↑/↓ select · q quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, list, detail, help)
}

func (m model) headerLine() string {
	if m.done && m.report != nil {
		c := m.report.Counts
		return fmt.Sprintf("done · pass %d  fail %d  xfail %d  upass %d  skip %d",
			c.Pass, c.Fail, c.XFail, c.UPass, c.Skipped)
	}
	frame := spinnerFrames[int(time.Since(m.started)/(time.Second/8))%len(spinnerFrames)]
	return fmt.Sprintf("%s running · %d tests seen", frame, len(m.lines))
}

func (m model) renderList(height int) string {
	start := 0
	if m.selected >= height {
		start = m.selected - height + 1
	}
	end := start + height
	if end > len(m.lines) {
		end = len(m.lines)
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		l := m.lines[i]
		cursor := "  "
		if i == m.selected {
			cursor = "▶ "
		}
		sb.WriteString(cursor)
		sb.WriteString(m.lineIcon(l))
		sb.WriteString(" ")
		sb.WriteString(l.test)
		if l.duration > 0 {
			sb.WriteString(m.theme.Muted.Render(fmt.Sprintf(" %dms", l.duration.Milliseconds())))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) lineIcon(l line) string {
	if l.final {
		switch l.kind {
		case expect.Pass:
			return m.theme.Success.Render(m.theme.Icons.Pass)
		case expect.Fail:
			return m.theme.Error.Render(m.theme.Icons.Fail)
		case expect.XFail:
			return m.theme.Muted.Render(m.theme.Icons.XFail)
		case expect.UPass:
			return m.theme.Warning.Render(m.theme.Icons.UPass)
		default:
			return m.theme.Muted.Render(m.theme.Icons.Skip)
		}
	}
	switch l.status {
	case testjson.ActionPass:
		return m.theme.Success.Render(m.theme.Icons.Pass)
	case testjson.ActionFail:
		return m.theme.Error.Render(m.theme.Icons.Fail)
	case testjson.ActionSkip:
		return m.theme.Muted.Render(m.theme.Icons.Skip)
	default:
		frame := spinnerFrames[int(time.Since(m.started)/(time.Second/8))%len(spinnerFrames)]
		return m.theme.Primary.Render(frame)
	}
}
