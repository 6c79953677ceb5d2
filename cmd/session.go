// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/Thermoquad/sspctl/pkg/trace"
	"github.com/pion/logging"
)

// traceOpened is set once --trace has been created in this process. Later
// sessions (the monitor reconnecting) append a new run to the same file.
var traceOpened bool

// deviceSession bundles an open session with the resources it owns
type deviceSession struct {
	*ssp.Session
	conn     Connection
	connInfo string
	recorder *trace.Recorder
}

// parseLogLevel maps a --log-level value to a pion log level
func parseLogLevel(level string) (logging.LogLevel, error) {
	switch strings.ToLower(level) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", level)
	}
}

// newLoggerFactory builds the logger factory for --log-level writing to w
func newLoggerFactory(w io.Writer) (logging.LoggerFactory, error) {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = level
	lf.Writer = w
	return lf, nil
}

// resolveFixedKey picks --fixed-key, then $SSP_FIXED_KEY, then the factory key
func resolveFixedKey() string {
	if fixedKey != "" {
		return fixedKey
	}
	if key := os.Getenv("SSP_FIXED_KEY"); key != "" {
		return key
	}
	return ssp.DefaultFixedKey
}

// parseSessionKey decodes a 16-byte AES session key given in hex
func parseSessionKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid session key: %w", err)
	}
	if len(key) != ssp.KeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", ssp.KeySize, len(key))
	}
	return key, nil
}

// sessionConfig builds the session configuration from the persistent flags
func sessionConfig(id uint8) ssp.SessionConfig {
	cfg := ssp.DefaultSessionConfig()
	cfg.ID = id
	cfg.Timeout = timeout
	cfg.Retries = retries
	cfg.PollingInterval = pollInterval
	cfg.FixedKey = resolveFixedKey()
	cfg.EncryptAll = !noEncryptAll
	return cfg
}

// openSession opens the connection and starts a session on it.
//
// logOutput receives log lines; the TUI passes a file so logs do not corrupt
// the screen. handler may be nil.
func openSession(logOutput io.Writer, handler ssp.EventHandler) (*deviceSession, error) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, err
	}
	ds, err := startSession(conn, connInfo, deviceID, logOutput, handler)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ds, nil
}

// startSession runs a session with device id on an already open connection
func startSession(conn Connection, connInfo string, id uint8, logOutput io.Writer, handler ssp.EventHandler) (*deviceSession, error) {
	lf, err := newLoggerFactory(logOutput)
	if err != nil {
		return nil, err
	}

	ds := &deviceSession{conn: conn, connInfo: connInfo}

	handlers := ssp.MultiHandler{handler}
	if tracePath != "" {
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if traceOpened {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(tracePath, flags, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		rec, err := trace.NewRecorder(f, connInfo, id)
		if err != nil {
			f.Close()
			return nil, err
		}
		traceOpened = true
		ds.recorder = rec
		handlers = append(handlers, rec)
	}

	cfg := sessionConfig(id)
	cfg.LoggerFactory = lf
	cfg.EventHandler = handlers

	s, err := ssp.NewSession(conn, ssp.WithConfig(cfg))
	if err != nil {
		ds.closeRecorder()
		return nil, err
	}
	if err := s.Open(); err != nil {
		ds.closeRecorder()
		return nil, err
	}
	ds.Session = s
	return ds, nil
}

func (ds *deviceSession) closeRecorder() {
	if ds.recorder == nil {
		return
	}
	if err := ds.recorder.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Trace error: %v\n", err)
	}
	ds.recorder = nil
}

// Close closes the session, which closes the connection, then the trace
func (ds *deviceSession) Close() error {
	var err error
	if ds.Session != nil {
		err = ds.Session.Close()
	} else {
		err = ds.conn.Close()
	}
	ds.closeRecorder()
	return err
}
