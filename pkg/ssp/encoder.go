// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Stuff doubles every STX byte in data.
func Stuff(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, b)
		if b == STX {
			out = append(out, STX)
		}
	}
	return out
}

// Unstuff collapses every doubled STX pair back to a single byte.
// A lone STX is copied through unchanged.
func Unstuff(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		out = append(out, data[i])
		if data[i] == STX && i+1 < len(data) && data[i+1] == STX {
			i++
		}
	}
	return out
}

// BuildPacket assembles a complete wire frame for cmd.
//
// When key is non-nil the payload is wrapped in the encrypted envelope using
// eCount as the inner counter. The returned bytes start with STX and are
// already stuffed.
func BuildPacket(cmd Command, args []byte, seq byte, key []byte, eCount uint32) ([]byte, error) {
	return buildPacket(cmd, args, seq, key, eCount, rand.Reader)
}

func buildPacket(cmd Command, args []byte, seq byte, key []byte, eCount uint32, padSource io.Reader) ([]byte, error) {
	if !cmd.Valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(cmd))
	}
	if cmd.RequiresArgs() && len(args) == 0 {
		return nil, fmt.Errorf("%s: %w", cmd, ErrArgsRequired)
	}

	data := make([]byte, 0, 1+len(args))
	data = append(data, cmd.Code())
	data = append(data, args...)

	if key != nil {
		sealed, err := sealEnvelope(data, key, eCount, padSource)
		if err != nil {
			return nil, err
		}
		data = sealed
	}

	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("%s: data too large: %d bytes (max %d)", cmd, len(data), MaxDataSize)
	}

	core := make([]byte, 0, len(data)+4)
	core = append(core, seq, byte(len(data)))
	core = append(core, data...)
	core = appendCRC(core)

	packet := make([]byte, 0, len(core)*2+1)
	packet = append(packet, STX)
	packet = append(packet, Stuff(core)...)
	return packet, nil
}

// sealEnvelope wraps payload as STEX | AES(len | count | payload | pad | crc).
func sealEnvelope(payload, key []byte, eCount uint32, padSource io.Reader) ([]byte, error) {
	padLen := (aesBlockSize - ((len(payload) + encryptedExtra) % aesBlockSize)) % aesBlockSize
	pad := make([]byte, padLen)
	if _, err := io.ReadFull(padSource, pad); err != nil {
		return nil, fmt.Errorf("failed to read padding: %w", err)
	}

	inner := make([]byte, 0, len(payload)+encryptedExtra+padLen)
	inner = append(inner, byte(len(payload)))
	inner = binary.LittleEndian.AppendUint32(inner, eCount)
	inner = append(inner, payload...)
	inner = append(inner, pad...)
	inner = appendCRC(inner)

	ciphertext, err := EncryptBlock(key, inner)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ciphertext)+1)
	out = append(out, STEX)
	return append(out, ciphertext...), nil
}
