package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sour-is/pager"
	"github.com/sour-is/pager/pkg/math"
)

// viewState is the engine's handle on the scroll position. The engine
// adjusts it from its own goroutine when the window shifts, and the
// program's Send hook is wired after the engine is already running,
// so both fields are atomic.
type viewState struct {
	offset atomic.Int64
	send   atomic.Value // func(tea.Msg)
}

func newViewState() *viewState { return &viewState{} }

func (v *viewState) ScrollTo(offset int64) {
	v.offset.Store(offset)
	if send, ok := v.send.Load().(func(tea.Msg)); ok {
		send(refreshMsg{})
	}
}

func (v *viewState) notify(fn func(tea.Msg)) { v.send.Store(fn) }

var _ pager.Viewport = (*viewState)(nil)

type refreshMsg struct{}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	rowStyle      = lipgloss.NewStyle()
	skeletonStyle = lipgloss.NewStyle().Faint(true)
	idStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	footerStyle   = lipgloss.NewStyle().Faint(true)
)

type model struct {
	ctx    context.Context
	pager  *pager.Pager[Entry]
	view   *viewState
	height int
	width  int
}

func newModel(ctx context.Context, p *pager.Pager[Entry], view *viewState) model {
	return model{ctx: ctx, pager: p, view: view}
}

func (m model) Init() tea.Cmd { return m.waitUpdate() }

func (m model) waitUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return tea.Quit()
		case <-m.pager.Updates():
			return refreshMsg{}
		}
	}
}

func (m model) rows() int64 {
	if m.height < 3 {
		return 1
	}
	return int64(m.height - 2) // header and footer
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.pager.Resize(m.ctx, m.rows())
		m.reportScroll()
		return m, nil

	case refreshMsg:
		m.reportScroll()
		return m, m.waitUpdate()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.scrollBy(-1)
		case "down", "j":
			m.scrollBy(1)
		case "pgup", "b":
			m.scrollBy(-m.rows())
		case "pgdown", "f", " ":
			m.scrollBy(m.rows())
		case "home", "g":
			m.view.offset.Store(0)
			m.reportScroll()
		case "end", "G":
			total := m.pager.EstimatedTotal(m.ctx)
			m.view.offset.Store(math.Max(int64(0), total-m.rows()))
			m.reportScroll()
		}
		return m, nil
	}
	return m, nil
}

func (m model) scrollBy(delta int64) {
	offset := math.Max(int64(0), m.view.offset.Load()+delta)
	if total := m.pager.EstimatedTotal(m.ctx); total > 0 {
		offset = math.Min(offset, math.Max(int64(0), total-1))
	}
	m.view.offset.Store(offset)
	m.reportScroll()
}

func (m model) reportScroll() {
	offset := m.view.offset.Load()
	m.pager.Scroll(m.ctx, offset, offset, offset+m.rows()-1)
}

func (m model) View() string {
	var b strings.Builder

	offset := m.view.offset.Load()
	rows := m.rows()

	title := "pager-tui"
	if total, exact := m.pager.DisplayTotal(m.ctx); exact {
		title = fmt.Sprintf("pager-tui - %d records", total)
	} else if total > 0 {
		title = fmt.Sprintf("pager-tui - about %d records", total)
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	switch {
	case m.pager.PermalinkNotFound(m.ctx):
		b.WriteString(skeletonStyle.Render("record not found"))
		b.WriteString("\n")
	case m.pager.Empty(m.ctx):
		b.WriteString(skeletonStyle.Render("no records"))
		b.WriteString("\n")
	default:
		for i := offset; i < offset+rows; i++ {
			if entry, ok := m.pager.WindowAt(m.ctx, i); ok {
				line := fmt.Sprintf("%s %s", idStyle.Render(entry.ID), entry.Text)
				b.WriteString(rowStyle.Render(truncate(line, m.width)))
			} else {
				b.WriteString(skeletonStyle.Render(fmt.Sprintf("%8d ...", i)))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(footerStyle.Render("j/k scroll · f/b page · g/G ends · q quit"))
	return b.String()
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}
