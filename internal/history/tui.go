package history

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/autoapply/internal/model"
)

const timeLayout = "2006-01-02 15:04 MST"

const (
	paneAll = iota
	paneResponses
)

// statusKeys maps detail-view keys to the status they record.
var statusKeys = map[string]model.ApplicationStatus{
	"v": model.StatusViewed,
	"i": model.StatusInterview,
	"f": model.StatusOffer,
	"x": model.StatusRejected,
}

// StatusUpdater records a response for one application.
type StatusUpdater func(ctx context.Context, id int64, status model.ApplicationStatus, at time.Time) error

type statusUpdatedMsg struct {
	app model.Application
	err error
}

// detailState is the open application, if any.
type detailState struct {
	open       bool
	app        model.Application
	vp         viewport.Model
	showLetter bool
	saving     bool
	err        string
}

type historyModel struct {
	userID string
	panes  [2]pane
	focus  int
	width  int
	height int
	ready  bool

	detail detailState

	update StatusUpdater
	now    func() time.Time

	wantQuit bool
}

func newHistoryModel(userID string, apps []model.Application, update StatusUpdater) historyModel {
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].AppliedAt.After(apps[j].AppliedAt)
	})
	m := historyModel{userID: userID, update: update, now: time.Now}
	m.panes[paneAll] = pane{title: "Applications", items: apps}
	m.panes[paneResponses] = pane{title: "Responses", items: responsesOf(apps)}
	return m
}

func (m historyModel) all() []model.Application { return m.panes[paneAll].items }

func (m historyModel) Init() tea.Cmd {
	return nil
}

func (m historyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case statusUpdatedMsg:
		m.detail.saving = false
		if msg.err != nil {
			m.detail.err = fmt.Sprintf("status update failed: %v", msg.err)
		} else {
			m.detail.err = ""
			m.detail.app = msg.app
			m.replace(msg.app)
		}
		m.detail.vp.SetContent(m.renderDetail())
		return m, nil

	case tea.KeyMsg:
		if m.detail.open {
			return m.handleDetailKey(msg)
		}
		return m.handleListKey(msg)
	}
	return m, nil
}

func (m historyModel) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.panes[m.focus]
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		return m, tea.Quit
	case "tab", "left", "right":
		m.focus = 1 - m.focus
		m.refreshPanes()
		return m, nil
	case "up", "k":
		p.move(-1)
		m.refreshPanes()
		return m, nil
	case "down", "j":
		p.move(1)
		m.refreshPanes()
		return m, nil
	case "enter":
		if app, ok := p.selected(); ok {
			m.openDetail(app)
		}
		return m, nil
	}

	var cmd tea.Cmd
	p.vp, cmd = p.vp.Update(msg)
	return m, cmd
}

func (m historyModel) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.detail.open = false
		return m, nil
	case "o":
		openURL(m.detail.app.JobURL)
		return m, nil
	case "c":
		if m.detail.app.CoverLetter != "" {
			m.detail.showLetter = !m.detail.showLetter
			m.detail.vp.SetContent(m.renderDetail())
			m.detail.vp.SetYOffset(0)
		}
		return m, nil
	}

	if next, ok := statusKeys[key]; ok {
		return m.recordStatus(next)
	}

	var cmd tea.Cmd
	m.detail.vp, cmd = m.detail.vp.Update(msg)
	return m, cmd
}

// recordStatus validates the transition locally, then saves it off the UI
// goroutine.
func (m historyModel) recordStatus(next model.ApplicationStatus) (tea.Model, tea.Cmd) {
	if m.update == nil || m.detail.saving {
		return m, nil
	}
	app := m.detail.app
	if !app.Status.CanTransitionTo(next) {
		m.detail.err = fmt.Sprintf("cannot move from %s to %s", app.Status, next)
		m.detail.vp.SetContent(m.renderDetail())
		return m, nil
	}
	m.detail.saving = true
	m.detail.err = ""
	m.detail.vp.SetContent(m.renderDetail())

	update, at := m.update, m.now()
	return m, func() tea.Msg {
		if err := update(context.Background(), app.ID, next, at); err != nil {
			return statusUpdatedMsg{err: err}
		}
		app.Status = next
		app.ResponseReceived = true
		app.ResponseAt = &at
		return statusUpdatedMsg{app: app}
	}
}

func (m *historyModel) openDetail(app model.Application) {
	m.detail = detailState{
		open: true,
		app:  app,
		vp:   viewport.New(m.width-4, m.height-4),
	}
	m.detail.vp.SetContent(m.renderDetail())
}

// replace swaps in an updated record and rebuilds the responses pane.
func (m *historyModel) replace(app model.Application) {
	all := m.panes[paneAll].items
	for i := range all {
		if all[i].ID == app.ID {
			all[i] = app
			break
		}
	}
	m.panes[paneResponses].setItems(responsesOf(all))
	if m.ready {
		m.refreshPanes()
	}
}

func (m *historyModel) layout() {
	// Two bordered panes plus a gap; header, borders and status bar take four rows.
	w := max((m.width-5)/2, 20)
	h := max(m.height-4, 5)
	for i := range m.panes {
		m.panes[i].resize(w, h)
	}
	m.ready = true
	m.refreshPanes()

	if m.detail.open {
		m.detail.vp.Width = m.width - 4
		m.detail.vp.Height = m.height - 4
		m.detail.vp.SetContent(m.renderDetail())
	}
}

func (m *historyModel) refreshPanes() {
	for i := range m.panes {
		m.panes[i].refresh(i == m.focus)
	}
}

func (m historyModel) View() string {
	switch {
	case !m.ready:
		return "Initializing..."
	case m.detail.open:
		return m.detailView()
	default:
		return m.listView()
	}
}

func (m historyModel) listView() string {
	var headers, bodies []string
	for i := range m.panes {
		p := &m.panes[i]
		if i > 0 {
			headers = append(headers, " ")
			bodies = append(bodies, " ")
		}
		headers = append(headers, lipgloss.NewStyle().Width(p.vp.Width+2).Render(p.header(i == m.focus)))
		bodies = append(bodies, p.view(i == m.focus))
	}

	total, responded := len(m.all()), len(m.panes[paneResponses].items)
	status := statusBarStyle.Width(m.width).Render(fmt.Sprintf(
		" %s | %d applied | %s response rate    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		m.userID, total, responseRate(responded, total)))

	return lipgloss.JoinHorizontal(lipgloss.Top, headers...) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, bodies...) + "\n" + status
}

func (m historyModel) detailView() string {
	heading := detailHeading.Render("Application Details")
	if m.detail.saving {
		heading += "  (saving...)"
	}

	hints := " o open URL  c cover letter  esc back  q quit"
	if m.update != nil {
		hints = " o open URL  c cover letter  v/i/f/x mark viewed/interview/offer/rejected  esc back  q quit"
	}

	return heading + "\n" +
		borderFor(true).Width(m.width-2).Render(m.detail.vp.View()) + "\n" +
		statusBarStyle.Width(m.width).Render(hints)
}

func (m historyModel) renderDetail() string {
	a := m.detail.app
	var b strings.Builder

	field := func(label, value string) {
		if value != "" {
			b.WriteString(fieldLabel.Render(label) + value + "\n")
		}
	}

	field("Title", a.JobTitle)
	field("Company", a.Company)
	field("Source", string(a.Source))
	field("Match Score", fmt.Sprintf("%.2f", a.MatchScore))
	b.WriteByte('\n')
	field("Applied At", a.AppliedAt.Local().Format(timeLayout))
	field("Status", string(a.Status))
	if a.ResponseAt != nil {
		field("Response At", a.ResponseAt.Local().Format(timeLayout))
	}
	b.WriteByte('\n')
	field("Job URL", a.JobURL)

	if m.detail.err != "" {
		b.WriteString("\n" + errorStyle.Render("⚠ "+m.detail.err) + "\n")
	}

	if a.CoverLetter == "" {
		return b.String()
	}

	width := max(m.width-8, 20)
	b.WriteByte('\n')
	if !m.detail.showLetter {
		b.WriteString(hintStyle.Render("  press c to read the cover letter") + "\n")
		return b.String()
	}
	label := "── Cover Letter "
	b.WriteString(dividerStyle.Render(label+strings.Repeat("─", max(width-len(label), 3))) + "\n\n")
	for _, para := range strings.Split(a.CoverLetter, "\n\n") {
		b.WriteString(letterBodyStyle.Render(wordWrap(para, width)) + "\n\n")
	}
	return b.String()
}

func responsesOf(apps []model.Application) []model.Application {
	var out []model.Application
	for _, a := range apps {
		if a.Status.IsResponse() {
			out = append(out, a)
		}
	}
	return out
}

func responseRate(responses, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(responses)*100/float64(total))
}

// wordWrap breaks text on spaces so no line exceeds width, except single
// words longer than width.
func wordWrap(text string, width int) string {
	var lines []string
	var line strings.Builder
	for _, w := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(w) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(w)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	if url == "" {
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the two-pane history browser for one user's applications.
// update may be nil, in which case statuses are read-only.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed
// esc to return to the picker.
func Run(userID string, apps []model.Application, update StatusUpdater) (bool, error) {
	p := tea.NewProgram(newHistoryModel(userID, apps, update), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	return result.(historyModel).wantQuit, nil
}
