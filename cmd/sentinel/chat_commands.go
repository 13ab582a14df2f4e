// Pane handling and view rendering. The /emails and /archive commands are
// resolved by the engine into OPEN_EMAILS / OPEN_ARCHIVE signals; this file
// turns those into overlay panes and renders everything else.
package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sentinel/internal/archive"
	"sentinel/internal/session"
)

func (m *chatModel) handlePaneKey(msg tea.KeyMsg) tea.Cmd {
	count := m.paneItemCount()
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.pane = paneNone
		m.paneIndex = 0
		return nil
	case tea.KeyUp:
		if m.paneIndex > 0 {
			m.paneIndex--
		}
		return nil
	case tea.KeyDown:
		if m.paneIndex < count-1 {
			m.paneIndex++
		}
		return nil
	}
	switch msg.String() {
	case "q":
		m.pane = paneNone
		m.paneIndex = 0
	case "k":
		if m.paneIndex > 0 {
			m.paneIndex--
		}
	case "j":
		if m.paneIndex < count-1 {
			m.paneIndex++
		}
	}
	return nil
}

func (m *chatModel) paneItemCount() int {
	switch m.pane {
	case paneEmails:
		return len(m.inbox)
	case paneArchive:
		return len(archive.Unlocked(m.st))
	}
	return 0
}

// =============================================================================
// VIEW RENDERING
// =============================================================================

func (m *chatModel) View() string {
	if !m.ready {
		return "establishing uplink..."
	}

	if m.phase == phaseEnded {
		return m.renderEnding()
	}

	header := m.renderHeader()

	var body string
	switch {
	case m.phase == phaseMailbox:
		body = m.renderMailbox()
	case m.pane == paneEmails:
		body = m.renderEmailsPane()
	case m.pane == paneArchive:
		body = m.renderArchivePane()
	default:
		body = m.viewport.View()
	}

	status := m.renderStatusBar()
	input := m.renderInput()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status, input)
}

func (m *chatModel) renderHeader() string {
	label := fmt.Sprintf("%s v%s · Edge Node #4729", m.cfg.Name, m.cfg.Version)
	return m.styles.Header.Render(label)
}

func (m *chatModel) renderStatusBar() string {
	if m.phase == phaseMailbox {
		return m.styles.Footer.Render("Tab/←→ 切换邮件 · Enter 阅读下一封")
	}

	trust, susp := m.st.Values()
	parts := []string{
		m.renderBeacon(),
		m.styles.Trust.Render(fmt.Sprintf("TRUST %d", trust)),
		m.styles.Suspicion.Render(fmt.Sprintf("SUSP %d", susp)),
		m.styles.Sync.Render(fmt.Sprintf("SYNC %d%%", m.st.SyncRate())),
		m.styles.Muted.Render(fmt.Sprintf("ROUND %d/%d", m.st.Round(), m.st.MaxRounds())),
		m.styles.Warning.Render(session.FormatTime(m.st.TimeLeft())),
	}
	bar := strings.Join(parts, m.styles.Muted.Render(" │ "))
	if m.isLoading {
		bar += "  " + m.spinner.View()
	}
	return m.styles.Footer.Render(bar)
}

// renderBeacon shows the relationship indicator: steady green while
// trusted, red once suspicion runs high.
func (m *chatModel) renderBeacon() string {
	switch m.st.BeaconState() {
	case "trusted":
		return m.styles.Success.Render("◉")
	case "danger":
		return m.styles.Error.Render("◉")
	default:
		return m.styles.Muted.Render("◉")
	}
}

func (m *chatModel) renderInput() string {
	if m.phase == phaseMailbox && m.mailError {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.styles.Error.Render(connectHintError),
			m.styles.Content.Render(m.textinput.View()),
		)
	}
	return m.styles.Content.Render(m.textinput.View())
}

func (m *chatModel) renderHistory() string {
	var sb strings.Builder
	for _, line := range m.history {
		switch line.role {
		case "user":
			sb.WriteString(m.styles.Prompt.Render("YOU") + "\n")
			sb.WriteString(m.styles.UserInput.Render(line.text))
			sb.WriteString("\n\n")
		case "ai":
			style := m.styles.Sentinel
			if line.speaker != "SENTINEL" {
				style = m.styles.Intruder
			}
			sb.WriteString(m.styles.Bold.Render(line.speaker) + "\n")
			sb.WriteString(style.Render(line.text))
			sb.WriteString("\n\n")
		case "alert":
			sb.WriteString(m.styles.Error.Render(line.text) + "\n\n")
		case "data":
			sb.WriteString(m.styles.Info.Render(line.text) + "\n\n")
		default:
			sb.WriteString(m.styles.Muted.Render(line.text) + "\n\n")
		}
	}
	return sb.String()
}

// =============================================================================
// MAILBOX
// =============================================================================

func (m *chatModel) renderMailbox() string {
	var tabs []string
	for i := range openingEmails {
		marker := "●"
		if m.mailRead[i] {
			marker = "○"
		}
		label := fmt.Sprintf("%s %d", marker, i+1)
		if i == m.mailIndex {
			tabs = append(tabs, m.styles.Badge.Render(label))
		} else {
			tabs = append(tabs, m.styles.Muted.Render(label))
		}
	}
	tabRow := strings.Join(tabs, " ")

	em := openingEmails[m.mailIndex]
	head := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Bold.Render("From: ")+m.styles.Body.Render(em.From),
		m.styles.Bold.Render("Subject: ")+m.styles.Body.Render(em.Subject),
		m.styles.Muted.Render(em.Date),
	)
	body := m.styles.Body.Render(em.Body)
	panel := m.styles.Panel.Width(min(m.width-4, 80)).Render(
		lipgloss.JoinVertical(lipgloss.Left, head, m.styles.RenderDivider(min(m.width-8, 76)), body),
	)

	unread := 0
	for _, r := range m.mailRead {
		if !r {
			unread++
		}
	}
	hint := connectHint
	if unread > 0 {
		hint = fmt.Sprintf("%d UNREAD MESSAGES", unread)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Content.Render(tabRow),
		m.styles.Content.Render(panel),
		m.styles.Footer.Render(hint),
	)
}

// =============================================================================
// OVERLAY PANES
// =============================================================================

func (m *chatModel) renderEmailsPane() string {
	title := m.styles.Title.Render(" INBOX ")
	if len(m.inbox) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			title,
			m.styles.Content.Render(m.styles.Muted.Render("本次会话尚未收到任何邮件。")),
			m.styles.Footer.Render("Esc 关闭"),
		)
	}

	var list []string
	for i, em := range m.inbox {
		line := fmt.Sprintf("%d. %s — %s", i+1, em.Subject, em.From)
		if i == m.paneIndex {
			list = append(list, m.styles.Bold.Render("> "+line))
		} else {
			list = append(list, m.styles.Muted.Render("  "+line))
		}
	}

	sel := m.inbox[m.paneIndex]
	body := m.safeRenderMarkdown(sel.Body)
	panel := m.styles.Panel.Width(min(m.width-4, 80)).Render(body)

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.styles.Content.Render(strings.Join(list, "\n")),
		m.styles.Content.Render(panel),
		m.styles.Footer.Render("↑/↓ 选择 · Esc 关闭"),
	)
}

func (m *chatModel) renderArchivePane() string {
	title := m.styles.Title.Render(" ARCHIVE ")
	unlocked := archive.Unlocked(m.st)
	if len(unlocked) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			title,
			m.styles.Content.Render(m.styles.Muted.Render("尚未解锁任何档案碎片。对话会触碰它们。")),
			m.styles.Footer.Render("Esc 关闭"),
		)
	}

	var list []string
	for i, frag := range unlocked {
		line := fmt.Sprintf("%d. %s", i+1, frag.Title)
		if i == m.paneIndex {
			list = append(list, m.styles.Bold.Render("> "+line))
		} else {
			list = append(list, m.styles.Muted.Render("  "+line))
		}
	}

	sel := unlocked[m.paneIndex]
	panel := m.styles.Panel.Width(min(m.width-4, 80)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.styles.Bold.Render(sel.Title),
			m.styles.Body.Render(sel.Content),
		),
	)

	progress := fmt.Sprintf("已解锁 %d/%d", len(unlocked), len(archive.All()))

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.styles.Content.Render(strings.Join(list, "\n")),
		m.styles.Content.Render(panel),
		m.styles.Footer.Render(progress+" · ↑/↓ 选择 · Esc 关闭"),
	)
}

// =============================================================================
// ENDING OVERLAY
// =============================================================================

func (m *chatModel) renderEnding() string {
	stats := fmt.Sprintf("TRUST %d · SUSPICION %d · %d ROUNDS",
		m.endingTrust, m.endingSusp, m.endingRounds)

	card := m.styles.Overlay.Width(min(m.width-4, 72)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.styles.Title.Render(m.endingTitle),
			"",
			m.styles.Body.Render(m.endingText),
			"",
			m.styles.Muted.Render(stats),
			"",
			m.styles.Footer.Render("Enter 退出"),
		),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, card)
}

// safeRenderMarkdown renders markdown with panic recovery; glamour can
// panic on odd terminal widths.
func (m *chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()
	if m.renderer != nil && content != "" {
		if rendered, err := m.renderer.Render(content); err == nil {
			return rendered
		}
	}
	return content
}
