// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aplane-algo/zklogin/internal/engine"
	"github.com/aplane-algo/zklogin/internal/ledger"
)

var (
	stepDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	stepActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

var steps = []engine.State{engine.StateProving, engine.StateSigned, engine.StateSubmitted}

type stateMsg engine.State

type doneMsg struct {
	res *ledger.ExecutionResult
	err error
}

type progressModel struct {
	spinner spinner.Model
	state   engine.State
	seen    bool
	done    bool
	cancel  context.CancelFunc
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
		}
		return m, nil
	case stateMsg:
		m.state = engine.State(msg)
		m.seen = true
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	var out string
	for _, s := range steps {
		switch {
		case m.seen && s <= m.state:
			out += stepDoneStyle.Render("  ✓ "+s.String()) + "\n"
		case !m.seen && s == engine.StateProving, m.seen && s == m.state+1:
			out += fmt.Sprintf("  %s %s\n", m.spinner.View(), stepActiveStyle.Render(s.String()))
		default:
			out += helpStyle.Render("    "+s.String()) + "\n"
		}
	}
	return out + helpStyle.Render("  ctrl+c to cancel") + "\n"
}

// progress renders engine transitions with a spinner while Execute runs.
type progress struct {
	program *tea.Program
}

func newProgress() *progress {
	return &progress{}
}

func (p *progress) send(s engine.State) {
	if p.program != nil {
		p.program.Send(stateMsg(s))
	}
}

func (p *progress) run(ctx context.Context, fn func(context.Context) (*ledger.ExecutionResult, error)) (*ledger.ExecutionResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stepActiveStyle

	p.program = tea.NewProgram(progressModel{spinner: sp, cancel: cancel})

	result := make(chan doneMsg, 1)
	go func() {
		res, err := fn(ctx)
		d := doneMsg{res: res, err: err}
		result <- d
		p.program.Send(d)
	}()

	if _, err := p.program.Run(); err != nil {
		cancel()
		<-result
		return nil, fmt.Errorf("progress display failed: %w", err)
	}
	d := <-result
	return d.res, d.err
}
