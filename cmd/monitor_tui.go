// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxListedEvents  = 200
	commandTimeout   = 30 * time.Second
	promptCharLimit  = 256
	eventPanelWidth  = 40
	eventLogMaxLines = 8
)

// Focus states
const (
	focusEventList = iota
	focusPrompt
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// eventItem is a poll event shown in the event list
type eventItem struct {
	event ssp.Event
}

// Implement list.Item interface
func (e eventItem) Title() string {
	return fmt.Sprintf("%s %s", e.event.Time.Format("15:04:05"), e.event.Name)
}

func (e eventItem) Description() string {
	if e.event.Poll == nil {
		return ""
	}
	return strings.TrimPrefix(ssp.FormatPollEvent(e.event.Poll), e.event.Poll.Name.String()+" ")
}

func (e eventItem) FilterValue() string { return e.event.Name.String() }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	// Connection manager (for running commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Poll events
	eventList list.Model

	// Device, refreshed from the session every tick
	state     ssp.State
	stats     ssp.Statistics
	setup     *ssp.SetupInfo
	serial    uint32
	hasSerial bool

	// Start-up
	bringingUp bool
	ready      bool

	// Log
	errorLog      []errorLogEntry
	maxLogEntries int

	// Control
	prompt       textinput.Model
	focusedField int
	busy         bool

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type sessionEventMsg struct {
	event ssp.Event
}

type stepMsg struct {
	name string
	resp *ssp.Response
	err  error
}

type bringUpDoneMsg struct{}

type commandResultMsg struct {
	line string
	resp *ssp.Response
	err  error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(connMgr *connectionManager, connInfo string) monitorModel {
	// Initialize command prompt
	ti := textinput.New()
	ti.Placeholder = `SET_CHANNEL_INHIBITS {"channels":[true,true]}`
	ti.CharLimit = promptCharLimit
	ti.Width = 50

	// Initialize event list with empty items
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	eventList := list.New([]list.Item{}, delegate, eventPanelWidth, 10)
	eventList.Title = "Poll Events"
	eventList.SetShowStatusBar(false)
	eventList.SetShowHelp(false)
	eventList.SetFilteringEnabled(false)

	return monitorModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		eventList:     eventList,
		bringingUp:    true,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		prompt:        ti,
		focusedField:  focusEventList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.eventList, _ = m.eventList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		m.refresh()
		return m, monitorTickCmd()

	case sessionEventMsg:
		m.handleSessionEvent(msg.event)

	case stepMsg:
		m.handleStep(msg)

	case bringUpDoneMsg:
		m.bringingUp = false
		m.ready = true
		m.refresh()
		m.addLogEntry("Device ready", false)

	case commandResultMsg:
		m.busy = false
		m.logResult(msg.line, msg.resp, msg.err)
		m.refresh()

	case connectionLostMsg:
		m.connectionLost = true
		m.ready = false
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.resetDevice()
		m.addLogEntry("Reconnected - bringing device up", false)
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusPrompt {
		m.prompt, cmd = m.prompt.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusEventList {
		m.eventList, cmd = m.eventList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()
	}

	// Pass through to focused component
	if m.focusedField == focusPrompt {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "r":
		if !m.bringingUp && !m.connectionLost {
			m.bringingUp = true
			m.addLogEntry("Restarting device bring-up", false)
			m.connMgr.requestBringUp()
		}

	case "c":
		m.eventList.SetItems([]list.Item{})

	case "up", "k", "down", "j":
		if m.focusedField == focusEventList {
			m.eventList, _ = m.eventList.Update(msg)
		}
	}

	return m, nil
}

func (m *monitorModel) cycleFocus(delta int) *monitorModel {
	const maxFocus = focusButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	// Update focus state
	if m.focusedField == focusPrompt {
		m.prompt.Focus()
	} else {
		m.prompt.Blur()
	}

	return m
}

func (m *monitorModel) handleEnter() (tea.Model, tea.Cmd) {
	// Don't allow commands while connection is lost
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}
	if m.busy {
		m.addLogEntry("Previous command still running", true)
		return m, nil
	}

	switch m.focusedField {
	case focusPrompt:
		line := strings.TrimSpace(m.prompt.Value())
		if line == "" {
			return m, nil
		}
		c, args, err := parsePromptLine(line)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		m.prompt.SetValue("")
		return m.runCommand(line, c, args)

	case focusButton:
		if m.state.Enabled {
			return m.runCommand("DISABLE", ssp.CmdDisable, nil)
		}
		return m.runCommand("ENABLE", ssp.CmdEnable, nil)
	}

	return m, nil
}

func (m monitorModel) View() string {
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

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("SSPCTL MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | id 0x%02X | q=quit Tab=switch r=restart c=clear", connStatus, deviceID)))
	s.WriteString("\n\n")

	// Layout: left panel (events) | right panel (device and control)
	leftWidth := eventPanelWidth
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 30 {
		rightWidth = 30
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusEventList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	eventPanel := listStyle.Render(m.eventList.View())

	devicePanel := boxStyle.Width(rightWidth).Render(
		m.renderDevicePanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle, buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, eventPanel, " ", devicePanel))
	s.WriteString("\n\n")

	// Command prompt
	promptStyle := boxStyle.Width(m.width - 4)
	if m.focusedField == focusPrompt {
		promptStyle = focusedBoxStyle.Width(m.width - 4)
	}
	s.WriteString(promptStyle.Render(statsLabelStyle.Render("Command: ") + m.prompt.View()))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderDevicePanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	switch {
	case m.connectionLost:
		s.WriteString(warningStyle.Render("Waiting for connection..."))
		return s.String()
	case m.bringingUp:
		s.WriteString(warningStyle.Render("Bringing device up..."))
		s.WriteString("\n\n")
	case !m.ready:
		s.WriteString(warningStyle.Render("Bring-up failed, press r to retry"))
		s.WriteString("\n\n")
	}

	unit := "-"
	if m.setup != nil {
		unit = m.setup.UnitType.String()
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Unit:"), statsValueStyle.Render(unit)))

	if m.setup != nil {
		s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
			statsLabelStyle.Render("Firmware:"), statsValueStyle.Render(m.setup.FirmwareVersion),
			statsLabelStyle.Render("Country:"), statsValueStyle.Render(m.setup.CountryCode)))
		if len(m.setup.ChannelValue) > 0 {
			s.WriteString(fmt.Sprintf("%s %v\n", statsLabelStyle.Render("Channels:"), m.setup.ChannelValue))
		}
	}
	if m.hasSerial {
		s.WriteString(fmt.Sprintf("%s %d\n", statsLabelStyle.Render("Serial:"), m.serial))
	}

	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		statsLabelStyle.Render("Protocol:"), statsValueStyle.Render(fmt.Sprintf("%d", m.state.ProtocolVersion)),
		statsLabelStyle.Render("Sequence:"), statsValueStyle.Render(fmt.Sprintf("0x%02X", m.state.Sequence))))

	if m.state.Encrypted() {
		s.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Encryption:"),
			statsValueStyle.Render(fmt.Sprintf("on (count %d)", m.state.EncryptionCounter))))
	} else {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Encryption:"), headerStyle.Render("off")))
	}

	polling := headerStyle.Render("stopped")
	if m.state.Polling {
		polling = statsValueStyle.Render("running")
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n\n",
		statsLabelStyle.Render("Enabled:"), statsValueStyle.Render(fmt.Sprintf("%t", m.state.Enabled)),
		statsLabelStyle.Render("Polling:"), polling))

	btnText := "[ Enable ]"
	if m.state.Enabled {
		btnText = "[ Disable ]"
	}
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}
	if m.busy {
		s.WriteString(headerStyle.Render("  running..."))
	}

	return s.String()
}

func (m monitorModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	st := m.stats
	var answered float64
	if st.Attempts > 0 {
		answered = float64(st.ValidResponses) * 100.0 / float64(st.Attempts)
	}
	failures := st.Timeouts + st.CRCErrors + st.SequenceMismatches + st.CounterMismatches + st.DecryptErrors

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Commands:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Commands)),
		statsLabelStyle.Render("Answered:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", answered)),
		statsLabelStyle.Render("Retries:"), func() string {
			if st.Retries > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", st.Retries))
			}
			return statsValueStyle.Render("0")
		}(),
		statsLabelStyle.Render("Errors:"), func() string {
			if failures > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", failures))
			}
			return statsValueStyle.Render("0")
		}(),
		statsLabelStyle.Render("Events:"), statsValueStyle.Render(fmt.Sprintf("%d", st.PollEvents)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("LOG"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	// Calculate available height for log
	logHeight := eventLogMaxLines
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}

	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) handleSessionEvent(e ssp.Event) {
	switch {
	case e.Poll != nil:
		items := append([]list.Item{eventItem{event: e}}, m.eventList.Items()...)
		if len(items) > maxListedEvents {
			items = items[:maxListedEvents]
		}
		m.eventList.SetItems(items)

		switch e.Name {
		case ssp.EventSlaveReset:
			m.addLogEntry("Device reset", true)
		case ssp.EventDisabled:
			m.addLogEntry("Device reports DISABLED", false)
		}

	case e.Name == ssp.EventError:
		m.addLogEntry(fmt.Sprintf("ERROR: %v", e.Err), true)
		m.refresh()

	case e.Name == ssp.EventOpen:
		m.addLogEntry("Session open", false)

	case e.Name == ssp.EventClose:
		m.addLogEntry("Session closed", false)
	}
}

func (m *monitorModel) handleStep(msg stepMsg) {
	m.absorb(msg.resp)
	if msg.err != nil {
		m.bringingUp = false
		m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.name, msg.err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("%s OK", msg.name), false)
	m.refresh()
}

// absorb keeps the device details carried by a response
func (m *monitorModel) absorb(resp *ssp.Response) {
	if resp == nil {
		return
	}
	switch info := resp.Info.(type) {
	case *ssp.SetupInfo:
		m.setup = info
	case *ssp.SerialNumberInfo:
		m.serial = info.SerialNumber
		m.hasSerial = true
	}
}

func (m *monitorModel) logResult(line string, resp *ssp.Response, err error) {
	m.absorb(resp)
	if resp != nil {
		for _, text := range strings.Split(strings.TrimRight(ssp.FormatResponse(resp), "\n"), "\n") {
			m.addLogEntry(strings.TrimSpace(text), !resp.Success)
		}
	}
	if err != nil && resp == nil {
		m.addLogEntry(fmt.Sprintf("%s: %v", line, err), true)
	}
}

// refresh copies the session state and counters into the model
func (m *monitorModel) refresh() {
	ds := m.connMgr.getSession()
	if ds == nil {
		return
	}
	m.state = ds.State()
	m.stats = ds.Stats()
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// parsePromptLine splits a prompt line into a command and its JSON arguments
func parsePromptLine(line string) (ssp.Command, ssp.Args, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	c, err := ssp.ParseCommand(name)
	if err != nil {
		return 0, nil, err
	}
	args, err := parseCommandArgs(c, rest)
	if err != nil {
		return 0, nil, err
	}
	return c, args, nil
}

func (m *monitorModel) runCommand(line string, c ssp.Command, args ssp.Args) (tea.Model, tea.Cmd) {
	ds := m.connMgr.getSession()
	if ds == nil {
		m.addLogEntry("Cannot send command: no session", true)
		return m, nil
	}

	m.busy = true
	m.addLogEntry(fmt.Sprintf("> %s", line), false)

	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		var resp *ssp.Response
		var err error
		switch c {
		case ssp.CmdEnable:
			resp, err = ds.Enable(ctx)
		case ssp.CmdDisable:
			resp, err = ds.Disable(ctx)
		default:
			resp, err = executeWhenIdle(ctx, ds.Session, c, args)
		}
		return commandResultMsg{line: line, resp: resp, err: err}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *monitorModel) resetDevice() {
	m.setup = nil
	m.hasSerial = false
	m.serial = 0
	m.state = ssp.State{}
	m.stats = ssp.Statistics{}
	m.ready = false
	m.bringingUp = true
	m.busy = false
}

func (m *monitorModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 2
	if listHeight < 6 {
		listHeight = 6
	}
	m.eventList.SetSize(eventPanelWidth-2, listHeight)
}
