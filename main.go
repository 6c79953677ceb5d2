// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// sspctl - Smart Serial Protocol host tool
//
// A CLI tool for driving and analyzing cash handling devices that speak
// SSP over serial or through a WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/sspctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
