// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the codec and the session.
var (
	ErrUnknownResponse    = errors.New("unknown response")
	ErrWrongCRC           = errors.New("wrong CRC16")
	ErrCounterMismatch    = errors.New("encrypted counter mismatch")
	ErrSequenceMismatch   = errors.New("sequence flag mismatch")
	ErrTimeout            = errors.New("timeout")
	ErrDecryption         = errors.New("decryption failure")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrEncryptionRequired = errors.New("command requires encryption")
	ErrAlreadyProcessing  = errors.New("already processing another command")
	ErrArgsRequired       = errors.New("command requires arguments")
	ErrKeyExchange        = errors.New("key exchange error")
	ErrNotOpen            = errors.New("session not open")
	ErrShortPayload       = errors.New("payload too short")
	ErrInvalidKey         = errors.New("invalid key")
	ErrLinkLost           = errors.New("link read failed")
)

// RetryError is returned when a command exhausted its attempt budget.
// It wraps the cause of the final attempt.
type RetryError struct {
	Command  Command
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s: command failed after %d retries: %v", e.Command, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// CommandError is returned when the device answered with a status other than OK.
// The decoded response is attached so callers can inspect failure details.
type CommandError struct {
	Response *Response
}

func (e *CommandError) Error() string {
	r := e.Response
	if f, ok := r.Info.(*FailureInfo); ok && f.Error != "" {
		return fmt.Sprintf("%s: %s (%s, code %d)", r.Command, r.Status, f.Error, f.ErrorCode)
	}
	return fmt.Sprintf("%s: %s", r.Command, r.Status)
}

// KeyExchangeError reports the step of the key exchange that failed.
type KeyExchangeError struct {
	Step Command
	Err  error
}

func (e *KeyExchangeError) Error() string {
	return fmt.Sprintf("key exchange failed at %s: %v", e.Step, e.Err)
}

func (e *KeyExchangeError) Unwrap() error {
	return e.Err
}

// Is reports ErrKeyExchange for every KeyExchangeError.
func (e *KeyExchangeError) Is(target error) bool {
	return target == ErrKeyExchange
}
