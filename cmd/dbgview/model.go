package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
)

// Model is dbgview's sole screen: a scrollable list of cell hashes on
// the left, and for the selected hash a scrollable offset table on the
// right — a tree-pane/value-pane split over a *.dbg.json map.
type Model struct {
	path   string
	info   *debug.Info
	hashes []cell.Hash

	cursor        int
	detail        viewport.Model
	keys          KeyMap
	width         int
	height        int
	statusMessage string
}

// NewModel builds a Model over info, the debug map loaded from path.
func NewModel(path string, info *debug.Info) Model {
	hashes := info.Hashes()
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].String() < hashes[j].String() })

	m := Model{
		path:   path,
		info:   info,
		hashes: hashes,
		detail: viewport.New(0, 0),
		keys:   DefaultKeyMap(),
	}
	m.updateDetail()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = m.width/2 - 4
		m.detail.Height = m.height - 3
		m.updateDetail()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.updateDetail()
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.hashes)-1 {
				m.cursor++
				m.updateDetail()
			}
			return m, nil
		case key.Matches(msg, m.keys.Copy):
			if len(m.hashes) > 0 {
				if err := clipboard.WriteAll(m.hashes[m.cursor].String()); err != nil {
					m.statusMessage = fmt.Sprintf("copy failed: %v", err)
				} else {
					m.statusMessage = "copied hash to clipboard"
				}
			}
			return m, nil
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// updateDetail regenerates the detail viewport's content for the
// currently selected hash.
func (m *Model) updateDetail() {
	if len(m.hashes) == 0 {
		m.detail.SetContent("(no cells recorded)")
		return
	}
	hash := m.hashes[m.cursor]
	offsets, _ := m.info.Get(hash)

	offs := make([]int, 0, len(offsets))
	for off := range offsets {
		offs = append(offs, off)
	}
	sort.Ints(offs)

	var b strings.Builder
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	b.WriteString(titleStyle.Render(fmt.Sprintf("hash %s", hash.String())))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%-8s  %s\n", "offset", "source"))
	b.WriteString(strings.Repeat("─", 40))
	b.WriteString("\n")
	for _, off := range offs {
		b.WriteString(fmt.Sprintf("%-8d  %s\n", off, offsets[off]))
	}
	m.detail.SetContent(b.String())
}

// View implements tea.Model.
func (m Model) View() string {
	listWidth := m.width/2 - 2
	if listWidth < 10 {
		listWidth = 10
	}

	var list strings.Builder
	cursorStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	for i, h := range m.hashes {
		line := h.String()
		if len(line) > listWidth-2 {
			line = line[:listWidth-2]
		}
		if i == m.cursor {
			list.WriteString(cursorStyle.Render("> " + line))
		} else {
			list.WriteString("  " + line)
		}
		list.WriteString("\n")
	}

	listStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(lipgloss.Color("240")).
		Width(listWidth).
		Height(m.height - 3)

	pane := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(list.String()), m.detail.View())

	status := fmt.Sprintf("%d cells  %s", len(m.hashes), m.statusMessage)
	help := "↑/k ↓/j move · y copy hash · q quit"
	footer := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(status + "   " + help)

	return pane + "\n" + footer
}
