package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rsynctui/backend/internal/types"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dirStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	linkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	markStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF9500"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444"))
)

const (
	defaultWidth = 120
	cursorMark   = "➤ "
)

func (m Model) View() string {
	if m.mode == Quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	// two borders per pane
	listWidth := width*3/5 - 2
	outWidth := width - listWidth - 4

	title := titleStyle.Render(fmt.Sprintf("Remote: %s@%s:%s", m.opts.Credentials.User, m.opts.Credentials.Host, m.state.CurrentPath()))
	header := title
	if m.lastLocal != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Top, title, mutedStyle.Render("  local: "+m.lastLocal))
	}

	listing := paneStyle.Width(listWidth).Height(m.state.PageSize()).Render(m.renderEntries(listWidth))
	output := paneStyle.Width(outWidth).Height(m.state.PageSize()).Render(m.renderOutput(outWidth))
	body := lipgloss.JoinHorizontal(lipgloss.Top, listing, output)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatus(), m.help.View(m.keys))
}

func (m Model) renderEntries(width int) string {
	visible := m.state.Visible()
	if len(visible) == 0 {
		return mutedStyle.Render("(empty)")
	}
	lines := make([]string, 0, len(visible))
	for i, e := range visible {
		idx := m.state.PageStart() + i
		lines = append(lines, m.renderEntry(e, idx == m.state.Cursor(), width))
	}
	return strings.Join(lines, "\n")
}

// FormatEntry is one listing row without styling.
func FormatEntry(e types.DirectoryEntry, marked bool) string {
	mark := "[ ]"
	if marked {
		mark = "[*]"
	}
	if e.IsParent() {
		return fmt.Sprintf("%s %s", mark, e.Name)
	}
	return fmt.Sprintf("%s %-10s %-8s %-8s %10s %s %s %s",
		mark, e.Permissions, e.Owner, e.Group, e.Size, e.ModifiedDate, e.ModifiedTime, e.Name)
}

func (m Model) renderEntry(e types.DirectoryEntry, selected bool, width int) string {
	marked := m.state.IsMarked(e.Name)
	prefix := "  "
	if selected {
		prefix = cursorMark
	}
	line := truncate(prefix+FormatEntry(e, marked), width)

	switch {
	case selected:
		return selectedStyle.Render(line)
	case marked:
		return markStyle.Render(line)
	case e.Type == types.TypeDirectory:
		return dirStyle.Render(line)
	case e.Type == types.TypeSymlink:
		return linkStyle.Render(line)
	default:
		return line
	}
}

func (m Model) renderOutput(width int) string {
	out := m.state.Output()
	// the pane shows as many of the newest lines as fit
	if n := m.state.PageSize(); len(out) > n {
		out = out[len(out)-n:]
	}
	lines := make([]string, 0, len(out))
	for _, l := range out {
		lines = append(lines, truncate(l, width))
	}
	return mutedStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatus() string {
	status := m.state.Status()
	if m.mode == Transferring && status == "" {
		status = "transferring..."
	}
	line := statusStyle.Render(status)
	if frac, ok := m.state.Progress(); ok {
		line = lipgloss.JoinHorizontal(lipgloss.Center, m.bar.ViewAs(frac), " ", line)
	}
	return line
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width {
		r = r[:width]
	}
	return string(r)
}
