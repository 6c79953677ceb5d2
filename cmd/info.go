// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/spf13/cobra"
)

var infoProtocolVersion uint8

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the device",
	Long: `Synchronize with the device and print what it reports about itself.

Sends SYNC, HOST_PROTOCOL_VERSION, SETUP_REQUEST, GET_SERIAL_NUMBER and
GET_FIRMWARE_VERSION. If the device rejects the requested protocol version the
tool steps down one version at a time until it is accepted.

Exit codes:
  0 - Device identified
  1 - Device did not answer
  2 - Connection error`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Uint8Var(&infoProtocolVersion, "protocol", 8, "Highest protocol version to negotiate")
}

// negotiateProtocol offers versions from highest down to 1 and returns the
// first one the device accepts
func negotiateProtocol(ctx context.Context, s *ssp.Session, highest uint8) (uint8, error) {
	for v := highest; v > 0; v-- {
		_, err := s.Execute(ctx, ssp.CmdHostProtocolVersion, &ssp.ProtocolVersionArgs{Version: v})
		if err == nil {
			return v, nil
		}
		var cmdErr *ssp.CommandError
		if !errors.As(err, &cmdErr) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("device accepted no protocol version up to %d", highest)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ds, err := openSession(os.Stderr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer ds.Close()

	ctx := context.Background()

	fmt.Printf("sspctl - Device Info\n")
	fmt.Printf("Connection: %s\n", ds.connInfo)
	fmt.Printf("Device ID: 0x%02X\n\n", deviceID)

	if _, err := ds.Execute(ctx, ssp.CmdSync, nil); err != nil {
		fmt.Fprintf(os.Stderr, "SYNC failed: %v\n", err)
		ds.Close()
		os.Exit(1)
	}

	pv, err := negotiateProtocol(ctx, ds.Session, infoProtocolVersion)
	if err != nil {
		return err
	}
	fmt.Printf("Host protocol version: %d\n\n", pv)

	for _, c := range []ssp.Command{ssp.CmdSetupRequest, ssp.CmdGetSerialNumber, ssp.CmdGetFirmwareVersion} {
		resp, err := ds.Execute(ctx, c, nil)
		if resp != nil {
			fmt.Print(ssp.FormatResponse(resp))
			fmt.Println()
		}
		if err != nil {
			var cmdErr *ssp.CommandError
			if errors.As(err, &cmdErr) {
				continue
			}
			return err
		}
	}

	st := ds.State()
	fmt.Printf("Unit: %s, protocol %d\n", st.UnitType, st.ProtocolVersion)
	return nil
}
