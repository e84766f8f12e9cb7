package approval

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/policy"
)

// ConsoleGate asks the operator at the terminal. No answer before the
// timeout is a denial.
type ConsoleGate struct {
	trail   *audit.Trail
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	logger  *zap.Logger
}

// NewConsoleGate creates a prompt reading keys from in and drawing to out.
func NewConsoleGate(trail *audit.Trail, in io.Reader, out io.Writer, timeout time.Duration, logger *zap.Logger) *ConsoleGate {
	if timeout <= 0 {
		timeout = defaultGateTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleGate{trail: trail, in: in, out: out, timeout: timeout, logger: logger}
}

func (g *ConsoleGate) RequestApproval(ctx context.Context, action string, pctx policy.Context, runID string) bool {
	writeAudit(ctx, g.trail, runID, action, pctx, AuditPending, map[string]any{"channel": "console"})

	promptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	m := newPromptModel(action, pctx, runID, time.Now().Add(g.timeout))
	final, err := tea.NewProgram(m,
		tea.WithContext(promptCtx),
		tea.WithInput(g.in),
		tea.WithOutput(g.out),
	).Run()
	if err != nil {
		g.logger.Debug("console approval prompt ended", zap.String("run_id", runID), zap.Error(err))
		writeAudit(ctx, g.trail, runID, action, pctx, AuditTimeout, map[string]any{"channel": "console"})
		return false
	}

	result, ok := final.(promptModel)
	if !ok {
		writeAudit(ctx, g.trail, runID, action, pctx, AuditError, map[string]any{"channel": "console"})
		return false
	}
	status := result.auditStatus()
	writeAudit(ctx, g.trail, runID, action, pctx, status, map[string]any{"channel": "console", "decided_by": "console"})
	return status == AuditApproved
}

type promptKeys struct {
	Approve key.Binding
	Reject  key.Binding
	Quit    key.Binding
}

func defaultPromptKeys() promptKeys {
	return promptKeys{
		Approve: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "approve")),
		Reject:  key.NewBinding(key.WithKeys("n", "N"), key.WithHelp("n", "reject")),
		Quit:    key.NewBinding(key.WithKeys("esc", "ctrl+c", "q"), key.WithHelp("esc", "reject")),
	}
}

type tickMsg time.Time

type promptState int

const (
	promptWaiting promptState = iota
	promptApproved
	promptRejected
	promptTimedOut
)

type promptModel struct {
	action   string
	pctx     policy.Context
	runID    string
	deadline time.Time
	now      time.Time
	keys     promptKeys
	state    promptState
}

func newPromptModel(action string, pctx policy.Context, runID string, deadline time.Time) promptModel {
	return promptModel{
		action:   action,
		pctx:     pctx,
		runID:    runID,
		deadline: deadline,
		now:      time.Now(),
		keys:     defaultPromptKeys(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m promptModel) Init() tea.Cmd {
	return tick()
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Approve):
			m.state = promptApproved
			return m, tea.Quit
		case key.Matches(msg, m.keys.Reject), key.Matches(msg, m.keys.Quit):
			m.state = promptRejected
			return m, tea.Quit
		}
	case tickMsg:
		m.now = time.Time(msg)
		if !m.now.Before(m.deadline) {
			m.state = promptTimedOut
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

var (
	promptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#C2410C")).Padding(0, 1)
	promptLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	promptHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

func (m promptModel) View() string {
	if m.state != promptWaiting {
		return ""
	}
	remaining := m.deadline.Sub(m.now).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}

	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("Approval required"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n", promptLabelStyle.Render("action:     "), m.action)
	fmt.Fprintf(&b, "%s %s\n", promptLabelStyle.Render("run:        "), m.runID)
	fmt.Fprintf(&b, "%s %d\n", promptLabelStyle.Render("limit:      "), m.pctx.Limit)
	fmt.Fprintf(&b, "%s %t\n", promptLabelStyle.Render("time filter:"), m.pctx.HasTimeFilter)
	b.WriteString("\n")
	b.WriteString(promptHelpStyle.Render(fmt.Sprintf("%s • %s • denies in %s",
		m.keys.Approve.Help().Key+" "+m.keys.Approve.Help().Desc,
		m.keys.Reject.Help().Key+" "+m.keys.Reject.Help().Desc,
		remaining,
	)))
	b.WriteString("\n")
	return b.String()
}

func (m promptModel) auditStatus() string {
	switch m.state {
	case promptApproved:
		return AuditApproved
	case promptRejected:
		return AuditRejected
	default:
		return AuditTimeout
	}
}
