// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure SYNC round-trip time",
	Long: `Send SYNC repeatedly and report the round-trip time of each exchange.

Every SYNC goes through the normal retry logic, so a reply that needed
retries is reported with its attempt count. This is useful for verifying:
  - Wiring and baud rate
  - The device id
  - Latency added by a WebSocket bridge

Exit codes:
  0 - All pings successful
  1 - One or more pings failed
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 5, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 200*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	ds, err := openSession(os.Stderr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer ds.Close()

	fmt.Printf("sspctl - Ping\n")
	fmt.Printf("Connection: %s\n", ds.connInfo)
	fmt.Printf("Device ID: 0x%02X, timeout %v, %d retries\n\n", deviceID, timeout, retries)

	ctx := context.Background()
	successCount := 0
	failCount := 0
	var total, best, worst time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		before := ds.Stats().Attempts
		start := time.Now()
		_, err := ds.Execute(ctx, ssp.CmdSync, nil)
		rtt := time.Since(start)
		attempts := ds.Stats().Attempts - before

		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			successCount++
			total += rtt
			if best == 0 || rtt < best {
				best = rtt
			}
			if rtt > worst {
				worst = rtt
			}
			if attempts > 1 {
				fmt.Printf("OK rtt=%v (%d attempts)\n", rtt.Round(time.Millisecond), attempts)
			} else {
				fmt.Printf("OK rtt=%v\n", rtt.Round(time.Millisecond))
			}
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d answered, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			best.Round(time.Millisecond),
			(total / time.Duration(successCount)).Round(time.Millisecond),
			worst.Round(time.Millisecond))
	}

	if failCount > 0 {
		ds.Close()
		os.Exit(1)
	}
	return nil
}
