// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	monitorLogFile   string
	monitorProtocol  uint8
	monitorNoEncrypt bool
	monitorNoEnable  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for driving an SSP device",
	Long: `Drive an SSP device from an interactive terminal UI.

On start the device is brought up the way a host application would:
  - SYNC
  - HOST_PROTOCOL_VERSION (stepping down until accepted)
  - SETUP_REQUEST, GET_SERIAL_NUMBER
  - Key exchange (unless --no-encrypt)
  - ENABLE and polling (unless --no-enable)

Poll events are listed as they arrive. Commands can be typed into the prompt
as NAME or NAME {json}, for example:

  SET_CHANNEL_INHIBITS {"channels":[true,true,true]}
  PAYOUT_AMOUNT {"amount":500,"country_code":"EUR"}

Tab switches between the event list, the prompt and the enable button.
The connection is reopened with backoff if it is lost.

Logs go to --log-file since the TUI owns the terminal.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorLogFile, "log-file", "sspctl.log", "File receiving session logs")
	monitorCmd.Flags().Uint8Var(&monitorProtocol, "protocol", 8, "Highest protocol version to negotiate")
	monitorCmd.Flags().BoolVar(&monitorNoEncrypt, "no-encrypt", false, "Skip the key exchange")
	monitorCmd.Flags().BoolVar(&monitorNoEnable, "no-enable", false, "Do not enable the device or start polling")
}

// connectionManager owns the session and reopens it when the link is lost
type connectionManager struct {
	ds       *deviceSession
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	logFile  *os.File
	lost     chan struct{}
	retry    chan struct{}
	done     chan struct{}
}

func (cm *connectionManager) getSession() *deviceSession {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.ds
}

func (cm *connectionManager) setSession(ds *deviceSession) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.ds = ds
	if ds != nil {
		cm.connInfo = ds.connInfo
	}
}

// HandleEvent forwards session events to the TUI. DEBUG events are left to
// the trace recorder and the log file.
func (cm *connectionManager) HandleEvent(e ssp.Event) {
	if e.Name == ssp.EventDebug {
		return
	}
	if e.Name == ssp.EventError && errors.Is(e.Err, ssp.ErrLinkLost) {
		select {
		case cm.lost <- struct{}{}:
		default:
		}
	}
	cm.p.Send(sessionEventMsg{event: e})
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logFile, err := os.OpenFile(monitorLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	cm := &connectionManager{
		logFile: logFile,
		lost:    make(chan struct{}, 1),
		retry:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	// Fail early on a bad --log-level, before the TUI takes the screen
	if _, err := newLoggerFactory(logFile); err != nil {
		return err
	}

	// Open initial connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	cm.connInfo = connInfo

	// Create TUI model with connection manager
	m := initialMonitorModel(cm, connInfo)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	// The session emits OPEN as soon as it starts, and p.Send blocks until
	// the program runs, so the session is started from the supervisor.
	go cm.supervise(conn, connInfo)

	// Run TUI
	_, runErr := p.Run()

	close(cm.done) // Signal goroutines to stop
	if ds := cm.getSession(); ds != nil {
		ds.Close()
	}
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

// supervise starts the session on conn, brings the device up and reconnects
// whenever the link is lost
func (cm *connectionManager) supervise(conn Connection, connInfo string) {
	ds, err := startSession(conn, connInfo, deviceID, cm.logFile, cm)
	if err != nil {
		conn.Close()
		cm.p.Send(stepMsg{name: "Open session", err: err})
		if !cm.reconnect() {
			return
		}
	} else {
		cm.setSession(ds)
	}

	for {
		cm.bringUp()

		select {
		case <-cm.done:
			return
		case <-cm.retry:
			continue
		case <-cm.lost:
		}

		// Notify TUI about connection loss
		cm.p.Send(connectionLostMsg{})

		if !cm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// bringUp runs the host start-up sequence, reporting each step to the TUI
func (cm *connectionManager) bringUp() {
	ds := cm.getSession()
	if ds == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-cm.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	step := func(name string, fn func() (*ssp.Response, error)) bool {
		resp, err := fn()
		cm.p.Send(stepMsg{name: name, resp: resp, err: err})
		return err == nil
	}

	if !step("SYNC", func() (*ssp.Response, error) {
		return ds.Execute(ctx, ssp.CmdSync, nil)
	}) {
		return
	}

	pv, err := negotiateProtocol(ctx, ds.Session, monitorProtocol)
	cm.p.Send(stepMsg{name: fmt.Sprintf("HOST_PROTOCOL_VERSION %d", pv), err: err})
	if err != nil {
		return
	}

	for _, c := range []ssp.Command{ssp.CmdSetupRequest, ssp.CmdGetSerialNumber} {
		if !step(c.String(), func() (*ssp.Response, error) {
			return ds.Execute(ctx, c, nil)
		}) {
			return
		}
	}

	if !monitorNoEncrypt {
		if !step("Key exchange", func() (*ssp.Response, error) {
			return ds.InitEncryption(ctx)
		}) {
			return
		}
	}

	if !monitorNoEnable {
		if !step("ENABLE", func() (*ssp.Response, error) {
			return ds.Enable(ctx)
		}) {
			return
		}
	}
	cm.p.Send(bringUpDoneMsg{})
}

// requestBringUp asks the supervisor to run the start-up sequence again
func (cm *connectionManager) requestBringUp() {
	select {
	case cm.retry <- struct{}{}:
	default:
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	// Close old session and its connection
	if ds := cm.getSession(); ds != nil {
		ds.Close()
		cm.setSession(nil)
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		// Attempt to reconnect
		conn, connInfo, err := OpenConnection()
		if err == nil {
			ds, err := startSession(conn, connInfo, deviceID, cm.logFile, cm)
			if err == nil {
				cm.setSession(ds)

				// Notify TUI about reconnection
				cm.p.Send(reconnectedMsg{connInfo: connInfo})
				return true
			}
			conn.Close()
		}

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// executeWhenIdle runs cmd as soon as the session is free. The poll loop
// may take the link between the idle signal and admission, in which case
// the command waits for the next gap.
func executeWhenIdle(ctx context.Context, s *ssp.Session, cmd ssp.Command, args ssp.Args) (*ssp.Response, error) {
	for {
		select {
		case <-s.Idle():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		resp, err := s.Execute(ctx, cmd, args)
		if errors.Is(err, ssp.ErrAlreadyProcessing) {
			continue
		}
		return resp, err
	}
}
