// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/spf13/cobra"
)

var (
	commandArgs    string
	commandSync    bool
	commandEncrypt bool
	commandJSON    bool
	commandList    bool
)

var commandCmd = &cobra.Command{
	Use:   "command NAME",
	Short: "Send a single SSP command and print the response",
	Long: `Send one SSP command by name and print the decoded response.

Arguments are given as a JSON object whose fields depend on the command:

  sspctl command SET_CHANNEL_INHIBITS --args '{"channels":[true,true,false]}'
  sspctl command PAYOUT_AMOUNT --encrypt --args '{"amount":500,"country_code":"EUR"}'

--sync sends SYNC first to reset the sequence flag. --encrypt performs the key
exchange first; it is required for payout, float and empty commands.

Use --list to print every known command with its code.

Exit codes:
  0 - Device answered OK
  1 - Device answered with an error status or did not answer
  2 - Connection error`,
	Args: func(cmd *cobra.Command, args []string) error {
		if commandList {
			return nil
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
	commandCmd.Flags().StringVar(&commandArgs, "args", "", "Command arguments as a JSON object")
	commandCmd.Flags().BoolVar(&commandSync, "sync", true, "Send SYNC before the command")
	commandCmd.Flags().BoolVar(&commandEncrypt, "encrypt", false, "Negotiate an encryption key before the command")
	commandCmd.Flags().BoolVar(&commandJSON, "json", false, "Print the response as JSON")
	commandCmd.Flags().BoolVar(&commandList, "list", false, "List known commands")
}

// parseCommandArgs decodes JSON arguments into the argument type of c
func parseCommandArgs(c ssp.Command, raw string) (ssp.Args, error) {
	args := ssp.ArgsFor(c)
	if strings.TrimSpace(raw) == "" {
		if c.RequiresArgs() {
			return nil, fmt.Errorf("%s: %w (use --args)", c, ssp.ErrArgsRequired)
		}
		return nil, nil
	}
	if args == nil {
		return nil, fmt.Errorf("%s takes no arguments", c)
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", c, err)
	}
	return args, nil
}

func printCommandList() {
	for _, c := range ssp.Commands() {
		flags := ""
		if c.RequiresArgs() {
			flags += " args"
		}
		if c.RequiresEncryption() {
			flags += " encrypted"
		}
		fmt.Printf("0x%02X  %-34s%s\n", c.Code(), c, flags)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	if commandList {
		printCommandList()
		return nil
	}

	c, err := ssp.ParseCommand(args[0])
	if err != nil {
		return err
	}
	cmdArgs, err := parseCommandArgs(c, commandArgs)
	if err != nil {
		return err
	}

	ds, err := openSession(os.Stderr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer ds.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if commandSync {
		if _, err := ds.Execute(ctx, ssp.CmdSync, nil); err != nil {
			return fmt.Errorf("SYNC failed: %w", err)
		}
	}
	if commandEncrypt || c.RequiresEncryption() {
		if _, err := ds.InitEncryption(ctx); err != nil {
			return err
		}
	}

	resp, err := ds.Execute(ctx, c, cmdArgs)
	if resp != nil {
		if perr := printResponse(resp); perr != nil {
			return perr
		}
	}
	if err != nil {
		var cmdErr *ssp.CommandError
		if errors.As(err, &cmdErr) {
			ds.Close()
			os.Exit(1)
		}
		return err
	}
	return nil
}

func printResponse(resp *ssp.Response) error {
	if !commandJSON {
		fmt.Print(ssp.FormatResponse(resp))
		return nil
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
