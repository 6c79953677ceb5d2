// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/spf13/cobra"
)

var rawLogDecrypt string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display SSP frames as they arrive.

The tool only listens: it never transmits. Point it at a tap on the line
between a host and a device to see both directions. Each frame is shown with
timestamp, sequence byte, command or status name and its data.

Encrypted frames are shown as envelopes unless --decrypt is given the
negotiated 16-byte session key in hex.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogDecrypt, "decrypt", "", "Session key (32 hex digits) for decrypting envelopes")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	var key []byte
	if rawLogDecrypt != "" {
		var err error
		if key, err = parseSessionKey(rawLogDecrypt); err != nil {
			return err
		}
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("sspctl - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := ssp.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for _, raw := range decoder.Decode(buf[:n]) {
			frame, err := ssp.ParseFrame(raw)
			if err != nil {
				fmt.Printf("[ERROR] %v: % X\n", err, raw)
				continue
			}
			fmt.Print(ssp.FormatFrame(frame))
			if key != nil && frame.Encrypted() {
				printDecrypted(frame, key)
			}
		}
	}
}

// printDecrypted opens an envelope with a known key. The counter is shown
// rather than checked because a sniffer cannot know which side is which.
func printDecrypted(frame *ssp.Frame, key []byte) {
	plain, err := ssp.DecryptBlock(key, frame.Data()[1:])
	if err != nil {
		fmt.Printf("  Decrypt: %v\n", err)
		return
	}
	count, payload, err := ssp.SplitEnvelope(plain)
	if err != nil {
		fmt.Printf("  Decrypt: %v\n", err)
		return
	}
	fmt.Printf("  Decrypted: count=%d data=% X\n", count, payload)
}
