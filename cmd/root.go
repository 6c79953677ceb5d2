// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Session flags
	deviceID     uint8
	timeout      time.Duration
	retries      int
	pollInterval time.Duration
	fixedKey     string
	noEncryptAll bool

	// Output flags
	logLevel  string
	tracePath string
)

var rootCmd = &cobra.Command{
	Use:   "sspctl",
	Short: "Smart Serial Protocol host tool",
	Long: `sspctl - A CLI tool for driving and analyzing SSP cash handling devices.

Talks to banknote validators, SMART Payout, SMART Hopper and Note Float units
over the Smart Serial Protocol: runs single commands, performs the encryption
key exchange, polls for events and decodes sniffed traffic.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Serial lines are opened at 8 data bits, 2 stop bits, no parity.

For WebSocket authentication, the password is read from the SSP_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

The fixed encryption key defaults to the factory key and can be supplied with
--fixed-key or the SSP_FIXED_KEY environment variable.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", ssp.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Session flags
	rootCmd.PersistentFlags().Uint8Var(&deviceID, "id", ssp.DefaultDeviceID, "Device id (0-126)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", ssp.DefaultTimeout, "Per-attempt response timeout")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", ssp.DefaultRetries, "Attempts before a command fails")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", ssp.DefaultPollingInterval, "Interval between polls")
	rootCmd.PersistentFlags().StringVar(&fixedKey, "fixed-key", "", "Fixed encryption key, 16 hex digits (default $SSP_FIXED_KEY or the factory key)")
	rootCmd.PersistentFlags().BoolVar(&noEncryptAll, "no-encrypt-all", false, "Only encrypt commands that require it")

	// Output flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "Record session traffic to a CBOR trace file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
