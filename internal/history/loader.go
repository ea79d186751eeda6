package history

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/autoapply/internal/model"
)

type loadDoneMsg struct {
	apps []model.Application
	err  error
}

type loaderModel struct {
	userID  string
	loadFn  func(ctx context.Context) ([]model.Application, error)
	spinner spinner.Model
	result  []model.Application
	err     error
	done    bool
}

func newLoaderModel(userID string, loadFn func(ctx context.Context) ([]model.Application, error)) loaderModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	return loaderModel{userID: userID, loadFn: loadFn, spinner: s}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.doLoad(), m.spinner.Tick)
}

func (m loaderModel) doLoad() tea.Cmd {
	loadFn := m.loadFn
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		apps, err := loadFn(ctx)
		return loadDoneMsg{apps: apps, err: err}
	}
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDoneMsg:
		m.result = msg.apps
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = fmt.Errorf("cancelled")
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Loading applications for %s...\n", m.spinner.View(), m.userID)
}

// RunLoader shows a spinner while loading a user's applications. It renders
// inline (no alt screen).
func RunLoader(userID string, loadFn func(ctx context.Context) ([]model.Application, error)) ([]model.Application, error) {
	p := tea.NewProgram(newLoaderModel(userID, loadFn))
	result, err := p.Run()
	if err != nil {
		return nil, err
	}
	final := result.(loaderModel)
	return final.result, final.err
}
