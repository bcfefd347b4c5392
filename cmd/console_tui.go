// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/braise/pkg/amorce"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	consoleMaxTranscript = 500 // Scrollback entries kept
	consoleHistoryMax    = 100 // Command history entries kept

	reconnectInitialWait = 1 * time.Second
	reconnectMaxWait     = 30 * time.Second
)

// Transcript entry kinds
const (
	entrySent = iota
	entryReply
	entryError
	entryNotice
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// transcriptEntry is one fragment of the scrollback: a sent command, a
// device response, an error, or a console notice.
type transcriptEntry struct {
	timestamp time.Time
	kind      int
	text      string
}

// consoleModel is the Bubble Tea model for the console TUI
type consoleModel struct {
	sess     *consoleSession
	connInfo string

	// Scrollback
	transcript []transcriptEntry
	viewport   viewport.Model

	// Input
	input   textinput.Model
	history []string
	histIdx int
	draft   string

	// Status bar
	version  string
	commands uint64
	errors   uint64
	started  time.Time

	busy          bool
	connLost      bool
	reconnectWait time.Duration

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

type consoleResultMsg struct {
	line   string
	output string
	err    error
	over   bool // The command ended the session (exit, reset, jump-to)
}

type consoleVersionMsg struct {
	version string
}

type consoleRetryMsg struct {
	err error
}

type consoleReconnectedMsg struct {
	connInfo string
	banner   string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialConsoleModel(sess *consoleSession, connInfo, banner string) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "version"
	ti.Prompt = "> "
	// The device receive buffer holds one line, terminator included.
	ti.CharLimit = amorce.CmdBufSize - 2
	ti.Width = 74
	ti.Focus()

	m := consoleModel{
		sess:          sess,
		connInfo:      connInfo,
		transcript:    make([]transcriptEntry, 0),
		viewport:      viewport.New(74, 18),
		input:         ti,
		history:       make([]string, 0),
		started:       time.Now(),
		reconnectWait: reconnectInitialWait,
		width:         80,
		height:        24,
	}

	if text := bannerText(banner); text != "" {
		m.appendEntry(entryReply, text)
	}
	m.appendEntry(entryNotice, "Connected - type a command, ctrl+c to quit")

	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, consoleTickCmd(), consoleVersionCmd(m.sess))
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()

	case consoleTickMsg:
		// Keeps the uptime in the status bar moving.
		return m, consoleTickCmd()

	case consoleResultMsg:
		return m.handleResult(msg)

	case consoleVersionMsg:
		if msg.version != "" {
			m.version = msg.version
		}

	case consoleRetryMsg:
		m.reconnectWait *= 2
		if m.reconnectWait > reconnectMaxWait {
			m.reconnectWait = reconnectMaxWait
		}
		return m, consoleReconnectCmd(m.sess, m.reconnectWait)

	case consoleReconnectedMsg:
		m.connLost = false
		m.reconnectWait = reconnectInitialWait
		m.connInfo = msg.connInfo
		if text := bannerText(msg.banner); text != "" {
			m.appendEntry(entryReply, text)
		}
		m.appendEntry(entryNotice, "Reconnected")
		return m, consoleVersionCmd(m.sess)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		return m.submitLine()

	case "up":
		m.historyMove(-1)
		return m, nil

	case "down":
		m.historyMove(1)
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) submitLine() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	if m.connLost {
		m.appendEntry(entryNotice, "Not connected yet - hold on")
		return m, nil
	}
	if m.busy {
		m.appendEntry(entryNotice, "Still waiting for the previous command")
		return m, nil
	}

	m.appendEntry(entrySent, line)
	m.pushHistory(line)
	m.input.Reset()
	m.draft = ""
	m.commands++
	m.busy = true
	return m, consoleExecCmd(m.sess, line)
}

func (m *consoleModel) handleResult(msg consoleResultMsg) (tea.Model, tea.Cmd) {
	m.busy = false

	var devErr *deviceError
	switch {
	case msg.err == nil:
		if msg.output != "" {
			m.appendEntry(entryReply, responseText(msg.output))
		}
		if !msg.over {
			return m, nil
		}
		m.appendEntry(entryNotice, fmt.Sprintf("Session ended by %s - reconnecting...", strings.Fields(msg.line)[0]))

	case errors.As(msg.err, &devErr):
		// The device rejected the command; the session itself is fine.
		m.errors++
		m.appendEntry(entryError, devErr.Error())
		return m, nil

	default:
		m.errors++
		m.appendEntry(entryError, fmt.Sprintf("Connection lost: %v", msg.err))
	}

	m.connLost = true
	m.reconnectWait = reconnectInitialWait
	return m, consoleReconnectCmd(m.sess, m.reconnectWait)
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("BRAISE CONSOLE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	version := m.version
	if version == "" {
		version = "-"
	}
	helpText := "ctrl+c=quit up/down=history pgup/pgdn=scroll"
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s | %s", connStatus, version, helpText)))
	s.WriteString("\n")

	// Transcript
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.viewport.View()))
	s.WriteString("\n")

	// Input line
	s.WriteString(m.input.View())
	s.WriteString("\n")

	// Status bar
	s.WriteString(m.renderStatusBar(statsLabelStyle, statsValueStyle, warningStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m consoleModel) renderStatusBar(statsLabelStyle, statsValueStyle, warningStyle lipgloss.Style) string {
	up := time.Since(m.started).Round(time.Second)
	bar := fmt.Sprintf("%s %s  %s %s  %s %s",
		statsLabelStyle.Render("Commands:"), statsValueStyle.Render(fmt.Sprintf("%d", m.commands)),
		statsLabelStyle.Render("Errors:"), statsValueStyle.Render(fmt.Sprintf("%d", m.errors)),
		statsLabelStyle.Render("Up:"), statsValueStyle.Render(up.String()))
	if m.busy {
		bar += "  " + warningStyle.Render("BUSY")
	}
	return bar
}

func (m consoleModel) renderTranscript() string {
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	sentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	noticeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	var s strings.Builder
	for _, entry := range m.transcript {
		timestamp := timeStyle.Render(entry.timestamp.Format("15:04:05.000"))

		icon := " "
		style := timeStyle
		switch entry.kind {
		case entrySent:
			icon, style = ">", sentStyle
		case entryError:
			icon, style = "x", errStyle
		case entryNotice:
			icon, style = "i", noticeStyle
		}

		for i, line := range strings.Split(entry.text, "\n") {
			if i == 0 {
				s.WriteString(fmt.Sprintf("%s %s %s\n", timestamp, style.Render(icon), line))
			} else {
				s.WriteString(fmt.Sprintf("%s %s\n", strings.Repeat(" ", 14), line))
			}
		}
	}
	return s.String()
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func consoleExecCmd(sess *consoleSession, line string) tea.Cmd {
	return func() tea.Msg {
		out, over, err := sess.run(line)
		return consoleResultMsg{line: line, output: out, err: err, over: over}
	}
}

func consoleVersionCmd(sess *consoleSession) tea.Cmd {
	return func() tea.Msg {
		out, _, err := sess.run(amorce.CmdVersion)
		if err != nil {
			return consoleVersionMsg{}
		}
		return consoleVersionMsg{version: strings.TrimSpace(out)}
	}
}

func consoleReconnectCmd(sess *consoleSession, wait time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(wait)
		conn, connInfo, err := OpenConnection()
		if err != nil {
			return consoleRetryMsg{err: err}
		}
		banner, err := sess.attach(conn)
		if err != nil {
			return consoleRetryMsg{err: err}
		}
		return consoleReconnectedMsg{connInfo: connInfo, banner: banner}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

// appendEntry adds one transcript entry and keeps the viewport pinned to
// the bottom unless the user has scrolled away.
func (m *consoleModel) appendEntry(kind int, text string) {
	stick := m.viewport.AtBottom() || kind == entrySent

	m.transcript = append(m.transcript, transcriptEntry{
		timestamp: time.Now(),
		kind:      kind,
		text:      text,
	})
	if len(m.transcript) > consoleMaxTranscript {
		m.transcript = m.transcript[len(m.transcript)-consoleMaxTranscript:]
	}

	m.viewport.SetContent(m.renderTranscript())
	if stick {
		m.viewport.GotoBottom()
	}
}

func (m *consoleModel) pushHistory(line string) {
	if len(m.history) == 0 || m.history[len(m.history)-1] != line {
		m.history = append(m.history, line)
		if len(m.history) > consoleHistoryMax {
			m.history = m.history[len(m.history)-consoleHistoryMax:]
		}
	}
	m.histIdx = len(m.history)
}

// historyMove walks the command history; delta -1 is older, +1 newer. The
// line being edited is parked while browsing and restored past the newest
// entry.
func (m *consoleModel) historyMove(delta int) {
	if len(m.history) == 0 {
		return
	}
	if m.histIdx == len(m.history) {
		if delta > 0 {
			return
		}
		m.draft = m.input.Value()
	}

	idx := m.histIdx + delta
	if idx < 0 {
		return
	}
	if idx >= len(m.history) {
		m.histIdx = len(m.history)
		m.input.SetValue(m.draft)
		m.input.CursorEnd()
		return
	}

	m.histIdx = idx
	m.input.SetValue(m.history[idx])
	m.input.CursorEnd()
}

func (m *consoleModel) updateSizes() {
	vh := m.height - 5
	if vh < 3 {
		vh = 3
	}
	vw := m.width - 6
	if vw < 20 {
		vw = 20
	}
	m.viewport.Width = vw
	m.viewport.Height = vh
	m.input.Width = vw
	m.viewport.SetContent(m.renderTranscript())
}

// bannerText normalizes a device greeting for the transcript.
func bannerText(banner string) string {
	return strings.TrimSpace(strings.ReplaceAll(banner, "\r\n", "\n"))
}

// responseText normalizes a command response for the transcript.
func responseText(out string) string {
	return strings.TrimRight(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
}
