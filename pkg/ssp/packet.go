// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"encoding/binary"
	"fmt"
	"time"
)

// ExtractPacketData validates a reassembled frame and returns its plain payload.
//
// When key is non-nil and the frame carries an encrypted envelope, the
// envelope is decrypted and its counter must equal eCount+1. Frames without
// the envelope marker are returned as-is even when a key is set.
func ExtractPacketData(frame, key []byte, eCount uint32) ([]byte, error) {
	if len(frame) == 0 || frame[0] != STX {
		return nil, ErrUnknownResponse
	}

	buf := frame[1:]
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: frame truncated", ErrWrongCRC)
	}
	n := int(buf[1])
	if len(buf) < n+4 {
		return nil, fmt.Errorf("%w: frame truncated (%d of %d bytes)", ErrWrongCRC, len(buf), n+4)
	}

	expected := CRCBytes(buf[:n+2])
	if buf[n+2] != expected[0] || buf[n+3] != expected[1] {
		return nil, fmt.Errorf("%w: expected %02X%02X, got %02X%02X",
			ErrWrongCRC, expected[0], expected[1], buf[n+2], buf[n+3])
	}

	data := buf[2 : n+2]
	if key == nil || len(data) == 0 || data[0] != STEX {
		return append([]byte(nil), data...), nil
	}
	return openEnvelope(data[1:], key, eCount)
}

func openEnvelope(ciphertext, key []byte, eCount uint32) ([]byte, error) {
	plain, err := DecryptBlock(key, ciphertext)
	if err != nil {
		return nil, err
	}

	count, payload, err := SplitEnvelope(plain)
	if err != nil {
		return nil, err
	}
	if count != eCount+1 {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCounterMismatch, count, eCount+1)
	}
	return payload, nil
}

// SplitEnvelope returns the counter and payload of a decrypted envelope.
// The inner CRC is not checked.
func SplitEnvelope(plain []byte) (uint32, []byte, error) {
	if len(plain) < 5 {
		return 0, nil, fmt.Errorf("%w: envelope is %d bytes", ErrDecryption, len(plain))
	}
	innerLen := int(plain[0])
	if 5+innerLen > len(plain) {
		return 0, nil, fmt.Errorf("%w: inner length %d exceeds envelope", ErrDecryption, innerLen)
	}
	count := binary.LittleEndian.Uint32(plain[1:5])
	return count, append([]byte(nil), plain[5:5+innerLen]...), nil
}

// IsEncryptedFrame reports whether a reassembled frame carries the envelope marker
func IsEncryptedFrame(frame []byte) bool {
	return len(frame) > 3 && frame[0] == STX && frame[2] > 0 && frame[3] == STEX
}

// Frame is a reassembled frame as seen on the wire
type Frame struct {
	seq       byte
	data      []byte
	crc       uint16
	raw       []byte
	timestamp time.Time
}

// ParseFrame splits a reassembled frame into its fields and checks its CRC
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) == 0 || raw[0] != STX {
		return nil, ErrUnknownResponse
	}
	if len(raw) < FrameOverhead || len(raw) != int(raw[2])+FrameOverhead {
		return nil, fmt.Errorf("%w: frame length %d does not match header", ErrWrongCRC, len(raw))
	}

	n := int(raw[2])
	f := &Frame{
		seq:       raw[1],
		data:      append([]byte(nil), raw[3:3+n]...),
		crc:       uint16(raw[3+n]) | uint16(raw[4+n])<<8,
		raw:       append([]byte(nil), raw...),
		timestamp: time.Now(),
	}
	if calc := CalculateCRC(raw[1 : 3+n]); calc != f.crc {
		return f, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrWrongCRC, calc, f.crc)
	}
	return f, nil
}

// Seq returns the raw sequence byte
func (f *Frame) Seq() byte {
	return f.seq
}

// DeviceID returns the device id packed into the sequence byte
func (f *Frame) DeviceID() uint8 {
	return f.seq & DeviceIDMask
}

// SequenceBit returns true when the sequence flag is set
func (f *Frame) SequenceBit() bool {
	return f.seq&SequenceFlag != 0
}

// Length returns the declared DATA length
func (f *Frame) Length() uint8 {
	return uint8(len(f.data))
}

// Data returns the DATA section
func (f *Frame) Data() []byte {
	return f.data
}

// CRC returns the transmitted CRC
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Raw returns the unstuffed frame including STX
func (f *Frame) Raw() []byte {
	return f.raw
}

// Timestamp returns when the frame was parsed
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Encrypted reports whether DATA is an encrypted envelope
func (f *Frame) Encrypted() bool {
	return len(f.data) > 0 && f.data[0] == STEX
}
