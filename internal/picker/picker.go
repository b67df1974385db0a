// Package picker is an interactive terminal directory chooser used to pick a
// workspace folder.
package picker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user quits without choosing.
var ErrCancelled = errors.New("picker: cancelled")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).MarginBottom(1)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type model struct {
	fp      filepicker.Model
	chosen  string
	message string
}

func newModel(start string) model {
	fp := filepicker.New()
	fp.CurrentDirectory = start
	fp.DirAllowed = true
	fp.FileAllowed = false
	fp.ShowHidden = false
	fp.AutoHeight = true
	return model{fp: fp}
}

func (m model) Init() tea.Cmd {
	return m.fp.Init()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case ".":
			m.chosen = m.fp.CurrentDirectory
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.fp, cmd = m.fp.Update(msg)

	if ok, path := m.fp.DidSelectFile(msg); ok {
		m.chosen = path
		return m, tea.Quit
	}
	if ok, path := m.fp.DidSelectDisabledFile(msg); ok {
		m.message = filepath.Base(path) + " is not a folder"
	}
	return m, cmd
}

func (m model) View() string {
	s := titleStyle.Render("Open folder") + "\n" + m.fp.CurrentDirectory + "\n\n" + m.fp.View()
	if m.message != "" {
		s += "\n" + errStyle.Render(m.message)
	}
	return s + "\n" + helpStyle.Render("enter: open/select  .: choose current  q: cancel")
}

// Pick runs the picker starting in start (the working directory when empty)
// and returns the absolute path of the chosen directory.
func Pick(ctx context.Context, start string) (string, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		start = wd
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	p := tea.NewProgram(newModel(abs),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("picker: %w", err)
	}
	return result(final)
}

func result(final tea.Model) (string, error) {
	m, ok := final.(model)
	if !ok || m.chosen == "" {
		return "", ErrCancelled
	}
	return filepath.Abs(m.chosen)
}
