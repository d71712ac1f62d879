package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/streamtts/internal/links"
	"github.com/MrWong99/streamtts/internal/stats"
)

// View implements tea.Model.
func (m Model) View() string {
	title := titleStyle.Render("🎤 streamtts")

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStats(),
		m.renderStream(),
		panelStyle.Render(m.log.View()),
	)
	if m.showLinks {
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, m.renderLinks())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		main,
		m.renderStatus(),
		m.help.View(m.keys),
	)
}

func field(label, value string) string {
	return labelStyle.Render(label+": ") + valueStyle.Render(value)
}

func (m Model) renderStats() string {
	s := m.snap
	conn := connectionStyle(s.Connection).Render(strings.ToUpper(s.Connection))
	if s.Countdown > 0 {
		conn += mutedStyle.Render(fmt.Sprintf(" (retry in %ds)", int(s.Countdown.Round(time.Second).Seconds())))
	}
	running := "stopped"
	if s.Running {
		running = "running"
	}
	last := "never"
	if !s.LastActivity.IsZero() {
		last = s.LastActivity.Format("15:04:05")
	}

	rows := []string{
		labelStyle.Render("Connection: ") + conn + "   " + field("Bot", running),
		field("Stream", strings.ToUpper(s.StreamStatus)) + "   " + field("Uptime", stats.FormatUptime(s.Uptime)),
		field("Messages", fmt.Sprint(s.Messages)) + "   " + field("Jokes", fmt.Sprint(s.Jokes)) + "   " + field("Welcomes", fmt.Sprint(s.Welcomes)),
		field("Users", fmt.Sprintf("%d unique / %d joins", s.UniqueUsers, s.JoinEvents)) + "   " + field("Checks", fmt.Sprint(s.ConnectionChecks)),
		field("Voice", m.voiceLabel()) + "   " + field("Last activity", last),
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) voiceLabel() string {
	v := m.ctrl.Voice()
	if v.Name != "" {
		return v.Name + " (" + v.ID + ")"
	}
	if v.ID == "" {
		return "default"
	}
	return v.ID
}

func (m Model) renderStream() string {
	if m.editing {
		return m.stream.View() + mutedStyle.Render("  enter to save, esc to cancel")
	}
	id := m.stream.Value()
	if id == "" {
		id = mutedStyle.Render("not set, press u")
	}
	return labelStyle.Render("Stream: @") + id
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return errorStyle.Render("✗ " + m.status)
	}
	return successStyle.Render("✓ " + m.status)
}

func (m Model) renderLinks() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("🔗 Links"))
	b.WriteString("\n")

	if m.linksErr != nil {
		b.WriteString(errorStyle.Render(m.linksErr.Error()))
		return panelStyle.Render(b.String())
	}
	if len(m.doc.Sections) == 0 {
		b.WriteString(mutedStyle.Render("No links yet."))
		return panelStyle.Render(b.String())
	}

	idx := 0
	for _, sec := range m.doc.Sections {
		if sec.Title != "" {
			b.WriteString("\n" + headerStyle.Render(sec.Title) + "\n")
		}
		for _, it := range sec.Items {
			if it.Kind != links.KindLink {
				b.WriteString("  " + mutedStyle.Render(it.Text) + "\n")
				continue
			}
			line := "  " + it.Text
			if idx == m.cursor {
				line = cursorStyle.Render("▸ " + it.Text)
			}
			b.WriteString(line + "\n")
			idx++
		}
	}
	style := panelStyle
	if m.width > 0 {
		style = style.Width(max(m.width*2/5-4, 20))
	}
	return style.Render(strings.TrimRight(b.String(), "\n"))
}
