// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/spf13/cobra"
)

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid SSP frame",
	Long: `Wait for a valid SSP frame on the connection until timeout.

This command connects to a serial port or WebSocket and listens without
transmitting. It ignores noise and waits for a complete frame that passes the
CRC check. Run it against a line where a host is already polling a device.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing a tap on a live bus or a WebSocket bridge.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "wait", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("sspctl - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid SSP frame...\n\n")

	decoder := ssp.NewDecoder()
	buf := make([]byte, 128)

	frameChan := make(chan *ssp.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		badFrames := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for _, raw := range decoder.Decode(buf[:n]) {
				frame, err := ssp.ParseFrame(raw)
				if err != nil {
					badFrames++
					continue
				}
				if skipped := decoder.Discarded(); skipped > 0 || badFrames > 0 {
					fmt.Printf("(skipped %d bytes and %d bad frames before sync)\n", skipped, badFrames)
				}
				frameChan <- frame
				return
			}
		}
	}()

	// Wait for frame or timeout
	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Print(ssp.FormatFrame(frame))
		fmt.Printf("  Device ID: 0x%02X\n", frame.DeviceID())
		fmt.Printf("  Length: %d bytes\n", frame.Length())
		fmt.Printf("  CRC: 0x%04X\n", frame.CRC())
		conn.Close()
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		conn.Close()
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		conn.Close()
		os.Exit(1)
	}

	return nil
}
