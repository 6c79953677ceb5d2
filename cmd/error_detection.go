// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed data and protocol anomalies with statistics.

This command listens to the line without transmitting, validates each frame
and detects:
  - CRC errors
  - Length mismatches (empty DATA, broken encrypted envelopes)
  - Unknown commands and status codes
  - Commands sent without their required arguments
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// sniffer turns raw bytes into validated frames.
//
// Until the first frame passes its CRC the line is considered unsynchronized
// and failures are only counted, since joining a bus mid-frame is expected.
type sniffer struct {
	decoder      *ssp.Decoder
	synchronized bool
	skipped      int
}

func newSniffer() *sniffer {
	return &sniffer{decoder: ssp.NewDecoder()}
}

// feed decodes a chunk and calls emit for each frame. sync is called once,
// with the number of bad frames seen before the first good one.
func (s *sniffer) feed(chunk []byte, sync func(skipped int), emit func(serialDataMsg)) {
	for _, raw := range s.decoder.Decode(chunk) {
		frame, err := ssp.ParseFrame(raw)
		if err != nil {
			if !s.synchronized {
				s.skipped++
				continue
			}
			emit(serialDataMsg{frame: frame, decodeErr: err})
			continue
		}
		if !s.synchronized {
			s.synchronized = true
			sync(s.skipped)
		}
		emit(serialDataMsg{frame: frame, validationErrors: ssp.ValidateFrame(frame)})
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(frame *ssp.Frame, err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	if frame != nil {
		fmt.Printf("  Raw: % X\n", frame.Raw())
	}
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(frame *ssp.Frame, errs []ssp.ValidationError) {
	timestamp := frame.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s", timestamp, frameLabel(frame))
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errs {
		switch err.Type {
		case ssp.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				fmt.Printf("    DATA length=%d\n", length)
			}

		case ssp.AnomalyUnknownCommand, ssp.AnomalyUnknownStatus, ssp.AnomalyInvalidValue:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case ssp.AnomalyMissingArgs:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  Raw: % X\n", frame.Raw())
	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// frameLabel names the first DATA byte of a frame with its sequence byte
func frameLabel(frame *ssp.Frame) string {
	data := frame.Data()
	switch {
	case len(data) == 0:
		return fmt.Sprintf("EMPTY seq=0x%02X\n", frame.Seq())
	case frame.Encrypted():
		return fmt.Sprintf("ENCRYPTED seq=0x%02X\n", frame.Seq())
	case data[0]&ssp.SequenceFlag == 0:
		return fmt.Sprintf("%s (0x%02X) seq=0x%02X\n", ssp.Command(data[0]), data[0], frame.Seq())
	default:
		return fmt.Sprintf("%s (0x%02X) seq=0x%02X\n", ssp.Status(data[0]), data[0], frame.Seq())
	}
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn Connection, connInfo string) error {
	sn := newSniffer()

	// Create TUI program
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	// Reader goroutine
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if errors.Is(err, ErrConnectionClosed) {
					p.Send(connectionLostMsg{})
					return
				}
				log.Printf("Read error: %v", err)
				continue
			}

			sn.feed(buf[:n],
				func(skipped int) { p.Send(syncMsg{invalidFrames: skipped}) },
				func(msg serialDataMsg) { p.Send(msg) },
			)
		}
	}()

	// Run TUI
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("sspctl - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sn := newSniffer()
	stats := ssp.NewStatistics()

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	readBuf := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if errors.Is(err, ErrConnectionClosed) {
					readErr <- err
					return
				}
				log.Printf("Read error: %v", err)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			readBuf <- data
		}
	}()

	onSync := func(skipped int) {
		if skipped > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d bad frames\n\n", skipped)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}
	}
	onFrame := func(msg serialDataMsg) {
		if msg.decodeErr != nil {
			stats.Update(nil, msg.decodeErr, nil)
			printDecodeError(msg.frame, msg.decodeErr)
			return
		}
		stats.Update(msg.frame, nil, msg.validationErrors)
		if len(msg.validationErrors) > 0 {
			printValidationErrors(msg.frame, msg.validationErrors)
		} else if showAll {
			fmt.Print(ssp.FormatFrame(msg.frame))
		}
	}

	for {
		select {
		case data := <-readBuf:
			sn.feed(data, onSync, onFrame)

		case err := <-readErr:
			fmt.Printf("\nConnection closed: %v\n\n", err)
			fmt.Print(stats.String())
			return nil

		case <-statsTicker.C:
			// Print statistics
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
