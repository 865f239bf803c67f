package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/butancak6/constructionos/appstate"
	"github.com/butancak6/constructionos/notify"
	"github.com/butancak6/constructionos/pipeline"
	"github.com/butancak6/constructionos/records"
	"github.com/butancak6/constructionos/session"
)

// TUI message types
type sessionStateMsg struct{ State session.State }
type recordingTickMsg struct{ Elapsed time.Duration }
type audioLevelMsg struct{ Level float64 }
type noVoiceMsg struct{ On bool }
type processedMsg struct {
	Result pipeline.Result
	Err    error
}
type toastMsg struct{ Toast notify.Toast }
type stateChangedMsg struct{}
type tickMsg time.Time

// tuiActions are the key bindings that reach outside the model.
type tuiActions struct {
	ToggleRecord func()
	Approve      func()
	CopyDraft    func()
	Discard      func()
}

type tuiModel struct {
	state   *appstate.State
	actions tuiActions
	ready   func()

	session    session.State
	frame      int
	elapsed    time.Duration
	level      float64
	noVoice    bool
	processing bool

	toast      *notify.Toast
	transcript string
	deviceLine string
	modeLine   string

	width, height int
}

var (
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleFaint   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleKey     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	styleTitle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	styleRec     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleRecDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("88")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleErr     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleText    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleMeterOn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleBox     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

func newTUIModel(state *appstate.State, actions tuiActions, ready func(), deviceLine, modeLine string) tuiModel {
	return tuiModel{
		state:      state,
		actions:    actions,
		ready:      ready,
		deviceLine: deviceLine,
		modeLine:   modeLine,
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	ready := m.ready
	return tea.Batch(tuiTick(), func() tea.Msg {
		if ready != nil {
			ready()
		}
		return nil
	})
}

func call(fn func()) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r", " ":
			return m, call(m.actions.ToggleRecord)
		case "a":
			return m, call(m.actions.Approve)
		case "c":
			return m, call(m.actions.CopyDraft)
		case "x":
			return m, call(m.actions.Discard)
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case sessionStateMsg:
		m.session = msg.State
		switch msg.State {
		case session.Recording:
			m.elapsed = 0
			m.level = 0
			m.noVoice = false
		case session.Stopping:
			m.processing = true
			m.level = 0
		}

	case recordingTickMsg:
		m.elapsed = msg.Elapsed

	case audioLevelMsg:
		if m.session == session.Recording {
			m.level = m.level*0.6 + msg.Level*0.4
		}

	case noVoiceMsg:
		m.noVoice = msg.On

	case processedMsg:
		m.processing = false
		if msg.Result.Transcript != "" {
			m.transcript = msg.Result.Transcript
		}

	case toastMsg:
		t := msg.Toast
		m.toast = &t

	case stateChangedMsg:
		// re-render from the shared state
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const leftWidth = 36
	left := strings.Join(m.statusLines(), "\n")

	rightWidth := max(m.width-leftWidth-1, 20)
	right := strings.Join(m.contentLines(rightWidth-2), "\n")

	leftPanel := lipgloss.NewStyle().Width(leftWidth).Height(m.height).Render(left)
	rightPanel := lipgloss.NewStyle().Width(rightWidth).Height(m.height).PaddingLeft(1).Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func (m tuiModel) statusLines() []string {
	var lines []string
	lines = append(lines, styleTitle.Render("ConstructionOS"), "")

	switch {
	case m.session == session.Recording:
		// pulse between two reds
		st := styleRec
		if m.frame%8 >= 4 {
			st = styleRecDim
		}
		lines = append(lines, st.Render(fmt.Sprintf("● REC %.1fs", m.elapsed.Seconds())))
		lines = append(lines, renderMeter(m.level, 24))
		if m.noVoice {
			lines = append(lines, styleWarn.Render("⚠ no voice detected"))
		}
	case m.session == session.Starting:
		lines = append(lines, styleWarn.Render("◌ STARTING"))
	case m.session == session.Stopping || m.processing:
		spin := []string{"◐", "◓", "◑", "◒"}[m.frame%4]
		lines = append(lines, styleWarn.Render(spin+" PROCESSING"))
	default:
		lines = append(lines, styleDim.Render("○ IDLE"))
	}

	lines = append(lines, "")
	if m.modeLine != "" {
		lines = append(lines, styleDim.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, styleDim.Render(m.deviceLine))
	}

	lines = append(lines, "",
		styleKey.Render("Ctrl+Shift+Space")+styleFaint.Render(" hold or tap"),
		styleKey.Render("r")+styleFaint.Render(" record  ")+styleKey.Render("q")+styleFaint.Render(" quit"),
		styleFaint.Render("constructionos "+version),
	)
	return lines
}

func renderMeter(level float64, width int) string {
	n := min(int(level*float64(width)*8), width)
	return styleMeterOn.Render(strings.Repeat("▮", n)) + styleFaint.Render(strings.Repeat("▯", width-n))
}

func (m tuiModel) contentLines(width int) []string {
	var lines []string
	if m.toast != nil {
		st := styleOK
		if m.toast.Level == notify.Error {
			st = styleErr
		}
		lines = append(lines, st.Render(m.toast.Message), "")
	}
	if m.transcript != "" {
		lines = append(lines, styleDim.Render("Last command"))
		for _, l := range wrapText(m.transcript, width) {
			lines = append(lines, styleText.Render(l))
		}
		lines = append(lines, "")
	}

	if m.state == nil {
		return lines
	}
	if draft, ok := m.state.Draft(); ok {
		lines = append(lines, styleBox.Width(min(width, 60)).Render(renderDraft(draft)), "")
	}

	snap := m.state.Snapshot()
	lines = append(lines, styleDim.Render(fmt.Sprintf("%d clients · %d tasks · %d events · %d invoices",
		len(snap.Clients), len(snap.Tasks), len(snap.Events), len(snap.Invoices))))
	for _, t := range snap.Tasks[:min(3, len(snap.Tasks))] {
		lines = append(lines, styleFaint.Render(fmt.Sprintf("  [%s] %s", t.Priority, t.Description)))
	}
	for _, e := range snap.Events[:min(2, len(snap.Events))] {
		lines = append(lines, styleFaint.Render(fmt.Sprintf("  %s %s", e.StartTime.Local().Format("Jan 2 15:04"), e.Title)))
	}

	lines = append(lines, "", styleDim.Render("Log"))
	room := max(m.height-len(lines)-1, 3)
	for i, e := range m.state.DebugLog() {
		if i >= room {
			break
		}
		lines = append(lines, styleFaint.Render(truncate(e.String(), width)))
	}
	return lines
}

func renderDraft(inv records.Invoice) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Invoice "+inv.ID) + "  " + styleWarn.Render(inv.Status) + "\n")
	fmt.Fprintf(&b, "Client:  %s\n", inv.Client)
	if inv.ClientCompany != "" {
		fmt.Fprintf(&b, "Company: %s\n", inv.ClientCompany)
	}
	if inv.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone:   %s\n", inv.ClientPhone)
	}
	fmt.Fprintf(&b, "For:     %s\n", inv.Description)
	fmt.Fprintf(&b, "Amount:  $%.2f\n\n", inv.Amount)
	b.WriteString(styleKey.Render("a") + styleFaint.Render(" approve  ") +
		styleKey.Render("c") + styleFaint.Render(" copy  ") +
		styleKey.Render("x") + styleFaint.Render(" discard"))
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// tuiSink forwards events to a running program.
type tuiSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *tuiSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s *tuiSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *tuiSink) SessionState(st session.State)            { s.send(sessionStateMsg{State: st}) }
func (s *tuiSink) RecordingTick(d time.Duration)            { s.send(recordingTickMsg{Elapsed: d}) }
func (s *tuiSink) AudioLevel(level float64)                 { s.send(audioLevelMsg{Level: level}) }
func (s *tuiSink) NoVoiceWarning(on bool)                   { s.send(noVoiceMsg{On: on}) }
func (s *tuiSink) Processed(res pipeline.Result, err error) { s.send(processedMsg{Result: res, Err: err}) }
func (s *tuiSink) Toast(t notify.Toast)                     { s.send(toastMsg{Toast: t}) }
func (s *tuiSink) StateChanged()                            { s.send(stateChangedMsg{}) }
