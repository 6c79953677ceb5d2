// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ssp provides a host-side Go implementation of the Smart Serial Protocol.
//
// SSP is the half-duplex, master/slave protocol spoken by cash handling
// peripherals (banknote validators, payouts, hoppers). This package provides
// framing, CRC16, byte stuffing, the AES-128 encrypted envelope, key exchange,
// command/response codecs and a Session that serializes commands over any
// io.ReadWriter.
package ssp

import "time"

// Protocol framing bytes
const (
	STX  = 0x7F // Start of frame, doubled when it appears inside a frame
	STEX = 0x7E // First DATA byte of an encrypted envelope
)

// Frame layout
const (
	FrameOverhead  = 5 // STX + SEQ + LEN + CRC_LO + CRC_HI
	MaxDataSize    = 255
	MaxFrameSize   = MaxDataSize + FrameOverhead
	SequenceFlag   = 0x80
	DeviceIDMask   = 0x7F
	MaxDeviceID    = 0x7E // SEQ 0x7F with the flag clear cannot be framed
	encryptedExtra = 7 // inner length + 4-byte counter + 2-byte inner CRC
	aesBlockSize   = 16
)

// CRC16 configuration (unreflected, MSB first)
const (
	crcPolynomial = 0x8005
	crcInitial    = 0xFFFF
	crcCheck      = 0xAEE7 // CRC of "123456789"
)

// Session defaults
const (
	DefaultTimeout         = 1000 * time.Millisecond
	DefaultRetries         = 20
	DefaultPollingInterval = 300 * time.Millisecond
	DefaultFixedKey        = "0123456701234567"
	DefaultDeviceID        = 0x00
)

// Serial line settings
const (
	DefaultBaudRate = 9600
	DataBits        = 8
	StopBits        = 2
)

// Frame decoder states
const (
	stateIdle = iota
	stateInFrame
	stateAwaitStuff
)
