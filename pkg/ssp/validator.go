// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyUnknownCommand
	AnomalyUnknownStatus
	AnomalyMissingArgs
	AnomalyInvalidValue
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a sniffed frame for anomalies.
// Returns a slice of validation errors (empty if the frame looks sane).
//
// Frames are classified by their first DATA byte: command codes are below
// 0x80 and status codes start at 0xF0. Encrypted envelopes can only be
// checked for size.
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	data := f.Data()
	if len(data) == 0 {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: "empty DATA section",
			Details: map[string]interface{}{"length": 0},
		}}
	}

	first := data[0]
	switch {
	case first == STEX:
		errors = append(errors, validateEnvelope(data)...)
	case first&SequenceFlag == 0:
		errors = append(errors, validateCommand(Command(first), data[1:])...)
	case first >= byte(StatusOK):
		if _, ok := statusNames[Status(first)]; !ok {
			errors = append(errors, ValidationError{
				Type:    AnomalyUnknownStatus,
				Message: fmt.Sprintf("Unknown status 0x%02X", first),
				Details: map[string]interface{}{"status": first},
			})
		}
	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("First DATA byte 0x%02X is neither a command nor a status", first),
			Details: map[string]interface{}{"value": first},
		})
	}

	return errors
}

// validateEnvelope checks that an encrypted envelope is a whole number of AES blocks
func validateEnvelope(data []byte) []ValidationError {
	body := len(data) - 1
	if body < aesBlockSize || body%aesBlockSize != 0 {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("Encrypted envelope is %d bytes, not a multiple of %d", body, aesBlockSize),
			Details: map[string]interface{}{"length": body, "block": aesBlockSize},
		}}
	}
	return nil
}

// validateCommand checks a plain host command
func validateCommand(cmd Command, args []byte) []ValidationError {
	if !cmd.Valid() {
		return []ValidationError{{
			Type:    AnomalyUnknownCommand,
			Message: fmt.Sprintf("Unknown command 0x%02X", uint8(cmd)),
			Details: map[string]interface{}{"command": uint8(cmd)},
		}}
	}
	if cmd.RequiresArgs() && len(args) == 0 {
		return []ValidationError{{
			Type:    AnomalyMissingArgs,
			Message: fmt.Sprintf("%s sent without arguments", cmd),
			Details: map[string]interface{}{"command": cmd.String()},
		}}
	}
	return nil
}
