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
	scanTimeout time.Duration
	scanFirst   uint8
	scanLast    uint8
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find devices on the bus",
	Long: `Send SYNC to every device id and list the ids that answer.

Each id gets one SYNC with the sequence flag set. Id 0x7F is not probed: once
the flag clears its SEQ byte collides with the start marker. A device answers with OK and
echoes the sequence byte; anything else on the line is ignored.

Examples:
  # Scan the whole bus
  sspctl scan --port /dev/ttyUSB0

  # Scan the usual validator and hopper ids only
  sspctl scan --port /dev/ttyUSB0 --first 0 --last 16

Exit codes:
  0 - At least one device found
  1 - No devices answered
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().DurationVar(&scanTimeout, "wait", 100*time.Millisecond, "How long to wait for each id")
	scanCmd.Flags().Uint8Var(&scanFirst, "first", 0x00, "First id to probe")
	scanCmd.Flags().Uint8Var(&scanLast, "last", ssp.MaxDeviceID, "Last id to probe")
}

// readFrames decodes frames from conn until it fails
func readFrames(conn Connection, frames chan<- []byte, errs chan<- error) {
	decoder := ssp.NewDecoder()
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			errs <- err
			return
		}
		for _, frame := range decoder.Decode(buf[:n]) {
			select {
			case frames <- frame:
			default:
			}
		}
	}
}

// probe sends SYNC to id and waits for an OK carrying the same sequence byte
func probe(conn Connection, frames <-chan []byte, errs <-chan error, id uint8) (bool, time.Duration, error) {
	seq := id | ssp.SequenceFlag
	packet, err := ssp.BuildPacket(ssp.CmdSync, nil, seq, nil, 0)
	if err != nil {
		return false, 0, err
	}

	// Drop anything left over from the previous id
	for len(frames) > 0 {
		<-frames
	}

	start := time.Now()
	if _, err := conn.Write(packet); err != nil {
		return false, 0, err
	}

	deadline := time.After(scanTimeout)
	for {
		select {
		case frame := <-frames:
			data, err := ssp.ExtractPacketData(frame, nil, 0)
			if err != nil || frame[1] != seq || len(data) == 0 {
				continue
			}
			return ssp.Status(data[0]) == ssp.StatusOK, time.Since(start), nil
		case err := <-errs:
			return false, 0, err
		case <-deadline:
			return false, 0, nil
		}
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFirst > ssp.MaxDeviceID || scanLast > ssp.MaxDeviceID || scanFirst > scanLast {
		return fmt.Errorf("invalid id range 0x%02X-0x%02X", scanFirst, scanLast)
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("sspctl - Bus Scan\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Range: 0x%02X-0x%02X, %v per id\n\n", scanFirst, scanLast, scanTimeout)

	frames := make(chan []byte, 16)
	errs := make(chan error, 1)
	go readFrames(conn, frames, errs)

	found := 0
	for id := int(scanFirst); id <= int(scanLast); id++ {
		ok, rtt, err := probe(conn, frames, errs, uint8(id))
		if err != nil {
			fmt.Printf("\nREAD FAILED: %v\n", err)
			conn.Close()
			os.Exit(2)
		}
		if ok {
			found++
			fmt.Printf("Device found: id=0x%02X rtt=%v\n", id, rtt.Round(time.Millisecond))
		}
	}

	// Summary
	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Devices found: %d\n", found)

	if found == 0 {
		fmt.Printf("No devices answered. Check connection, baud rate and device power.\n")
		conn.Close()
		os.Exit(1)
	}
	return nil
}
