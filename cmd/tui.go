// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// deviceActivity is what the sniffer has seen for one device id
type deviceActivity struct {
	lastSeen    time.Time
	frames      uint64
	encrypted   uint64
	lastCommand string
	lastStatus  string
	failures    uint64 // replies with a status other than OK
}

// TUI model
type model struct {
	connInfo       string
	statsInterval  int
	showAll        bool
	stats          *ssp.Statistics
	devices        map[uint8]*deviceActivity
	errorLog       []errorLogEntry
	maxLogEntries  int
	synchronized   bool
	invalidFrames  int
	connectionLost bool
	width          int
	height         int
	quitting       bool
}

// Messages
type tickMsg time.Time
type serialDataMsg struct {
	frame            *ssp.Frame
	decodeErr        error
	validationErrors []ssp.ValidationError
}
type syncMsg struct {
	invalidFrames int
}
type connectionLostMsg struct{}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         ssp.NewStatistics(),
		devices:       make(map[uint8]*deviceActivity),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.devices = make(map[uint8]*deviceActivity)
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		// Update statistics rates
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidFrames = msg.invalidFrames
		if msg.invalidFrames > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d bad frames", msg.invalidFrames), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection closed", true)

	case serialDataMsg:
		if msg.decodeErr != nil {
			m.stats.Update(nil, msg.decodeErr, nil)
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		} else if msg.frame != nil {
			m.stats.Update(msg.frame, nil, msg.validationErrors)
			m.trackDevice(msg.frame)

			label := strings.TrimSuffix(frameLabel(msg.frame), "\n")
			if len(msg.validationErrors) > 0 {
				for _, err := range msg.validationErrors {
					m.addLogEntry(fmt.Sprintf("%s: %s", label, err.Message), true)
				}
			} else if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (valid)", label), false)
			}
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// trackDevice records a frame against the device id in its sequence byte.
// Host commands and device replies share the id, so both land on the same row.
func (m *model) trackDevice(frame *ssp.Frame) {
	id := frame.DeviceID()
	dev, ok := m.devices[id]
	if !ok {
		dev = &deviceActivity{}
		m.devices[id] = dev
	}
	dev.frames++
	dev.lastSeen = frame.Timestamp()

	data := frame.Data()
	switch {
	case len(data) == 0:
	case frame.Encrypted():
		dev.encrypted++
	case data[0]&ssp.SequenceFlag == 0:
		dev.lastCommand = ssp.Command(data[0]).String()
	default:
		status := ssp.Status(data[0])
		dev.lastStatus = status.String()
		if status != ssp.StatusOK {
			dev.failures++
		}
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SSPCTL - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset, 'q' quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for a valid frame..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidFrames > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d bad frames)", m.invalidFrames)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	totalErrors := m.stats.CRCErrors + m.stats.DecodeErrors + m.stats.MalformedFrames + m.stats.UnknownStatuses
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if m.stats.EncryptedFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Encrypted:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.EncryptedFrames)),
		))
	}

	if m.stats.CRCErrors > 0 || m.stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.CRCErrors)),
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.DecodeErrors)),
		))
	}

	if m.stats.MalformedFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.MalformedFrames)),
		))
		if m.stats.LengthMismatches > 0 {
			statsContent.WriteString(fmt.Sprintf(" (%s: %d)",
				headerStyle.Render("length mismatches"), m.stats.LengthMismatches,
			))
		}
		statsContent.WriteString("\n")
	}

	if m.stats.UnknownStatuses > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Unknown Status:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.UnknownStatuses)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Devices section (only shown once traffic is seen)
	if len(m.devices) > 0 {
		s.WriteString(statsLabelStyle.Render("Bus Activity:"))
		s.WriteString("\n")

		ids := make([]int, 0, len(m.devices))
		for id := range m.devices {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)

		deviceContent := strings.Builder{}
		for i, id := range ids {
			dev := m.devices[uint8(id)]
			if i > 0 {
				deviceContent.WriteString("\n")
			}
			deviceContent.WriteString(fmt.Sprintf("%s %s frames",
				statsLabelStyle.Render(fmt.Sprintf("0x%02X:", id)),
				statsValueStyle.Render(fmt.Sprintf("%d", dev.frames)),
			))
			if dev.encrypted > 0 {
				deviceContent.WriteString(fmt.Sprintf(" (%d encrypted)", dev.encrypted))
			}
			if dev.lastCommand != "" {
				deviceContent.WriteString(fmt.Sprintf("   %s %s", headerStyle.Render("last command"), dev.lastCommand))
			}
			if dev.lastStatus != "" {
				style := statsValueStyle
				if dev.lastStatus != ssp.StatusOK.String() {
					style = warningStyle
				}
				deviceContent.WriteString(fmt.Sprintf("   %s %s", headerStyle.Render("last reply"), style.Render(dev.lastStatus)))
			}
			if dev.failures > 0 {
				deviceContent.WriteString(fmt.Sprintf("   %s", errorStyle.Render(fmt.Sprintf("%d non-OK", dev.failures))))
			}
			deviceContent.WriteString(headerStyle.Render(fmt.Sprintf("   %s ago", time.Since(dev.lastSeen).Round(time.Second))))
		}

		s.WriteString(boxStyle.Render(deviceContent.String()))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 - len(m.devices) // Reserve space for header, stats and devices
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
