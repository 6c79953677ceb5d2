// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/Thermoquad/sspctl/pkg/trace"
	"github.com/spf13/cobra"
)

var replayDebug bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print a recorded trace",
	Long: `Print the records of a CBOR trace written with --trace.

Poll events and session lifecycle events are always shown. Individual command
attempts (TX and RX bytes) are shown with --debug.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayDebug, "debug", false, "Show every command attempt")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rd, err := trace.NewReader(f)
	if err != nil {
		return err
	}

	h := rd.Header()
	fmt.Printf("sspctl - Trace Replay\n")
	fmt.Printf("Run: %s\n", h.RunID)
	fmt.Printf("Started: %s\n", h.Start.Format("2006-01-02 15:04:05.000"))
	if h.Connection != "" {
		fmt.Printf("Connection: %s\n", h.Connection)
	}
	fmt.Printf("Device ID: 0x%02X\n\n", h.DeviceID)

	var records, attempts, failed, pollEvents int
	var last time.Time

	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		records++

		if rec.Kind == trace.KindHeader && rec.Header != nil {
			fmt.Printf("\n--- Run %s (%s) ---\n", rec.Header.RunID, rec.Header.Start.Format("15:04:05.000"))
			continue
		}

		e, ok := rec.SessionEvent()
		if !ok {
			continue
		}
		last = e.Time

		if e.Name == ssp.EventDebug {
			attempts++
			if e.Transaction.Error != "" {
				failed++
			}
			if !replayDebug {
				continue
			}
		} else if e.Name.IsPoll() {
			pollEvents++
		}
		fmt.Println(ssp.FormatEvent(e))
	}

	fmt.Printf("\n--- Replay summary ---\n")
	fmt.Printf("Records: %d\n", records)
	fmt.Printf("Attempts: %d (%d failed)\n", attempts, failed)
	fmt.Printf("Poll events: %d\n", pollEvents)
	if !last.IsZero() {
		fmt.Printf("Duration: %v\n", last.Sub(h.Start).Round(time.Millisecond))
	}
	return nil
}
