package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jwebster45206/enlisted/internal/handlers"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const PlaceHolderText = "enlist <lord_id>, discharge, !battle_started, /help ..."

const helpText = `Commands:
• enlist <lord_id> [name]   - Enlist with a lord
• discharge [reason]        - voluntary, desertion, lord_defeated_or_captured, story_forced
• begin_leave / end_leave   - Take or end leave
• enter_reserve / deploy    - Wait in reserve, or leave it for the field
• advance_tier              - Promote one tier
• visit <id> / end_visit    - Visit a settlement from the status menu
• !<event> [args]           - Send a host event, e.g. !battle_ended b1 attacker
• /economy                  - Show economy isolation
• /refresh                  - Reload status
• /quit                     - Quit`

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config         *ConsoleConfig
	client         *http.Client
	record         *session.Record
	query          *session.Query
	logLines       []string
	logViewport    viewport.Model
	statusViewport viewport.Model
	textarea       textarea.Model
	events         <-chan SSEEvent
	ready          bool
	width          int
	height         int
	loading        bool

	showQuitModal bool
	progressTick  int
}

type commandResultMsg struct {
	resp *handlers.CommandResponse
	err  error
}

type eventQueuedMsg struct {
	resp *handlers.EventQueuedResponse
	err  error
}

type queryMsg struct {
	query *session.Query
	err   error
}

type economyMsg struct {
	resp *handlers.EconomyResponse
	err  error
}

type streamOpenedMsg struct {
	events <-chan SSEEvent
	err    error
}

type streamEventMsg struct {
	event SSEEvent
	ok    bool
}

type progressTickMsg struct{}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	statusPanelStyle = lipgloss.NewStyle().
				PaddingTop(2).
				PaddingBottom(0).
				PaddingLeft(0).
				PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, rec *session.Record) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	statusVp := viewport.New(20, 20)

	return ConsoleUI{
		config:         cfg,
		client:         client,
		record:         rec,
		textarea:       ta,
		logViewport:    logVp,
		statusViewport: statusVp,
	}
}

// humanize turns a snake_case identifier into title case.
func humanize(s string) string {
	if s == "" {
		return "-"
	}
	return titler.String(strings.ReplaceAll(s, "_", " "))
}

func gold(n int) string {
	return printer.Sprintf("%d denars", n)
}

func yesNo(b bool) string {
	if b {
		return okStyle.Render("yes")
	}
	return "no"
}

func writeStatus(rec *session.Record, q *session.Query) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("ENLISTMENT") + "\n\n")

	content.WriteString(labelStyle.Render("Session:") + "\n")
	content.WriteString(rec.ID.String()[:8] + "...\n\n")

	policy := rec.PolicyName
	if policy == "" {
		policy = "default"
	}
	content.WriteString(labelStyle.Render("Policy:") + "\n")
	content.WriteString(policy + "\n\n")

	if q == nil {
		content.WriteString("Loading status...\n")
		return content.String()
	}

	content.WriteString(labelStyle.Render("Status:") + "\n")
	content.WriteString(humanize(string(q.Status)) + "\n\n")

	content.WriteString(labelStyle.Render("Lord:") + "\n")
	switch {
	case q.Lord == nil:
		content.WriteString("None\n\n")
	case q.Lord.Name != "":
		content.WriteString(q.Lord.Name + "\n\n")
	default:
		content.WriteString(q.Lord.ID + "\n\n")
	}

	fmt.Fprintf(&content, "%s %d\n", labelStyle.Render("Tier:"), q.Tier)
	fmt.Fprintf(&content, "%s %s\n\n", labelStyle.Render("Wage:"), gold(q.ProjectedDailyWage))

	fmt.Fprintf(&content, "Active:    %s\n", yesNo(q.IsActive))
	fmt.Fprintf(&content, "On leave:  %s\n", yesNo(q.IsOnLeave))
	fmt.Fprintf(&content, "Grace:     %s\n", yesNo(q.IsInGracePeriod))
	fmt.Fprintf(&content, "Reserve:   %s\n", yesNo(q.IsWaitingInReserve))
	fmt.Fprintf(&content, "Captive:   %s\n", yesNo(q.IsCaptive))
	fmt.Fprintf(&content, "Embedded:  %s\n\n", yesNo(q.IsEmbeddedWithLord))

	if q.HasActiveGraceProtection {
		content.WriteString(labelStyle.Render("Protected until:") + "\n")
		content.WriteString(q.GraceProtectionUntil.Local().Format("Jan 2 15:04") + "\n\n")
	}

	content.WriteString(labelStyle.Render("Battle:") + "\n")
	content.WriteString(humanize(string(q.BattlePhase)))
	if q.BattleID != "" {
		content.WriteString(" (" + q.BattleID + ")")
	}
	content.WriteString("\n\n")

	if q.VisitingSettlement != "" {
		content.WriteString(labelStyle.Render("Visiting:") + "\n")
		content.WriteString(q.VisitingSettlement + "\n\n")
	}

	content.WriteString("Ctrl+C: Quit\n")
	content.WriteString("/help: Help\n")
	return content.String()
}

// appendLog adds an entry to the log and redraws it at the current width.
func (m *ConsoleUI) appendLog(entry string) {
	m.logLines = append(m.logLines, entry)
	m.writeLogContent()
}

func (m *ConsoleUI) writeLogContent() {
	width := m.logViewport.Width - 6 // Account for left(3) + right(3) padding
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("ENLISTED") + "\n\n")
	content.WriteString("Type commands below. /help lists them.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	for _, line := range m.logLines {
		content.WriteString(wordwrap.String(line, width) + "\n")
	}
	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.refreshQuery(), m.openStream())
}

func (m *ConsoleUI) resize() {
	logWidth := int(float64(m.width)*0.7) - 4
	statusWidth := m.width - logWidth - 6

	m.logViewport.Width = logWidth - 2
	m.logViewport.Height = m.height - 7
	m.statusViewport.Width = statusWidth - 2
	m.statusViewport.Height = m.height - 4
	m.textarea.SetWidth(logWidth - 4)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		svCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.logViewport, vpCmd = m.logViewport.Update(msg)
		m.statusViewport, svCmd = m.statusViewport.Update(msg)
		return m, tea.Batch(vpCmd, svCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeLogContent()
		m.statusViewport.SetContent(writeStatus(m.record, m.query))

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			return m.handleInput(input)
		}

	case commandResultMsg:
		m.loading = false
		if msg.err != nil {
			m.appendLog(errorStyle.Render("Rejected: " + msg.err.Error()))
			return m, nil
		}
		m.query = &msg.resp.Query
		m.statusViewport.SetContent(writeStatus(m.record, m.query))
		m.appendLog(describeCommand(msg.resp))
		return m, nil

	case eventQueuedMsg:
		m.loading = false
		if msg.err != nil {
			m.appendLog(errorStyle.Render("Event failed: " + msg.err.Error()))
			return m, nil
		}
		reqID := msg.resp.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		m.appendLog(promptStyle.Render(fmt.Sprintf("Event %s (%s)", msg.resp.Status, reqID)))
		if m.events == nil {
			// No stream to report the result, so poll
			return m, m.refreshQuery()
		}
		return m, nil

	case queryMsg:
		if msg.err != nil {
			m.appendLog(errorStyle.Render("Status failed: " + msg.err.Error()))
			return m, nil
		}
		m.query = msg.query
		m.statusViewport.SetContent(writeStatus(m.record, m.query))
		return m, nil

	case economyMsg:
		m.loading = false
		if msg.err != nil {
			m.appendLog(errorStyle.Render("Economy failed: " + msg.err.Error()))
			return m, nil
		}
		m.appendLog(describeEconomy(msg.resp))
		return m, nil

	case streamOpenedMsg:
		if msg.err != nil {
			m.appendLog(promptStyle.Render("Live events unavailable: " + msg.err.Error()))
			return m, nil
		}
		m.events = msg.events
		return m, waitForEvent(m.events)

	case streamEventMsg:
		if !msg.ok {
			m.events = nil
			m.appendLog(promptStyle.Render("Event stream closed"))
			return m, nil
		}
		m.appendLog(eventStyle.Render(describeStreamEvent(msg.event)))
		return m, tea.Batch(waitForEvent(m.events), m.refreshQuery())

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeLogContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.logViewport, vpCmd = m.logViewport.Update(msg)
	m.statusViewport, svCmd = m.statusViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, svCmd)
}

func (m ConsoleUI) handleInput(input string) (tea.Model, tea.Cmd) {
	m.appendLog(userStyle.Render("> ") + input)

	a, err := parseInput(input)
	if err != nil {
		m.appendLog(errorStyle.Render(err.Error()))
		return m, nil
	}

	switch {
	case a.Command != nil:
		m.loading = true
		m.progressTick = 0
		return m, tea.Batch(m.runCommand(*a.Command), progressTick())
	case a.Event != nil:
		m.loading = true
		m.progressTick = 0
		return m, tea.Batch(m.queueEvent(*a.Event), progressTick())
	}

	switch a.Local {
	case "/help":
		m.appendLog(titleStyle.Render("Help:") + "\n" + helpText)
	case "/refresh":
		return m, m.refreshQuery()
	case "/economy":
		m.loading = true
		return m, m.loadEconomy()
	case "/quit":
		m.showQuitModal = true
	default:
		m.appendLog(errorStyle.Render("Unknown command " + a.Local))
	}
	return m, nil
}

func describeCommand(resp *handlers.CommandResponse) string {
	r := resp.Result
	var b strings.Builder
	if r.Changed {
		b.WriteString(okStyle.Render(humanize(string(r.Command)) + ": done"))
	} else {
		b.WriteString(humanize(string(r.Command)) + ": no change")
	}
	if r.Tier > 0 {
		fmt.Fprintf(&b, ", tier %d", r.Tier)
	}
	if d := r.Discharge; d != nil {
		fmt.Fprintf(&b, "\n  retained tier %d", d.RetainedTier)
		if d.RelationPenaltySuppressed {
			b.WriteString(", faction relations untouched")
		}
	}
	if r.Decision != nil {
		fmt.Fprintf(&b, "\n  battle: %s", humanize(string(r.Decision.Outcome)))
	}
	for _, a := range resp.Raised.Anomalies {
		fmt.Fprintf(&b, "\n  %s", eventStyle.Render("corrected: "+a.Kind))
	}
	return b.String()
}

func describeEconomy(resp *handlers.EconomyResponse) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Economy:") + "\n")
	fmt.Fprintf(&b, "  daily wage      %s\n", gold(resp.DailyWage))
	fmt.Fprintf(&b, "  native pay off  %s\n", yesNo(resp.Report.NativePay))
	fmt.Fprintf(&b, "  loot isolated   %s", yesNo(resp.Report.Loot))
	if resp.Report.Loot {
		fmt.Fprintf(&b, " (share %.0f%%)", resp.Report.LootShare*100)
	}
	fmt.Fprintf(&b, "\n  food isolated   %s", yesNo(resp.Report.Food))
	if resp.Report.FoodSource != "" {
		b.WriteString(" (" + resp.Report.FoodSource + ")")
	}
	fmt.Fprintf(&b, "\n  expense off     %s", yesNo(resp.Report.Expense))
	for _, l := range resp.IncomeLines {
		fmt.Fprintf(&b, "\n  %-15s %s", l.Label, gold(l.Amount))
	}
	return b.String()
}

func describeStreamEvent(ev SSEEvent) string {
	data, _ := ev.Data["data"].(map[string]any)
	switch ev.Type {
	case "enlistment.status_changed":
		return fmt.Sprintf("Status: %v -> %v", humanize(fmt.Sprint(data["old"])), humanize(fmt.Sprint(data["new"])))
	case "enlistment.anomaly":
		return fmt.Sprintf("Corrected: %v", data["kind"])
	case "battle.participation_decided":
		return fmt.Sprintf("Battle: %v", humanize(fmt.Sprint(data["outcome"])))
	case "host_event.processed":
		return fmt.Sprintf("Processed %v", humanize(fmt.Sprint(data["type"])))
	case "host_event.failed":
		return errorStyle.Render(fmt.Sprintf("Host event failed: %v", data["error"]))
	default:
		return humanize(ev.Type)
	}
}

func (m ConsoleUI) runCommand(cmd session.Command) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendCommand(m.client, m.config.APIBaseURL, m.record.ID, cmd)
		return commandResultMsg{resp, err}
	}
}

func (m ConsoleUI) queueEvent(ev session.Event) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendEvent(m.client, m.config.APIBaseURL, m.record.ID, ev)
		return eventQueuedMsg{resp, err}
	}
}

func (m ConsoleUI) refreshQuery() tea.Cmd {
	return func() tea.Msg {
		q, err := getQuery(m.client, m.config.APIBaseURL, m.record.ID)
		return queryMsg{q, err}
	}
}

func (m ConsoleUI) loadEconomy() tea.Cmd {
	return func() tea.Msg {
		resp, err := getEconomy(m.client, m.config.APIBaseURL, m.record.ID)
		return economyMsg{resp, err}
	}
}

func (m ConsoleUI) openStream() tea.Cmd {
	return func() tea.Msg {
		ch, err := listenToSSE(m.config.APIBaseURL, m.record.ID)
		return streamOpenedMsg{ch, err}
	}
}

func waitForEvent(ch <-chan SSEEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return streamEventMsg{ev, ok}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("The session is saved on the server.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	logWidth := int(float64(m.width)*0.7) - 4
	statusWidth := m.width - logWidth - 6

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.logViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", logWidth-4)),
			m.textarea.View(),
		),
	)

	statusPanel := statusPanelStyle.Width(statusWidth).Height(m.height - 2).Render(
		m.statusViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, statusPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.logViewport.Width - 6
	if usable > 60 {
		usable = 60
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 20
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*150, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
