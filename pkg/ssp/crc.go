// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.Params{
	Poly:   crcPolynomial,
	Init:   crcInitial,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x0000,
	Check:  crcCheck,
	Name:   "CRC-16/SSP",
})

// CalculateCRC computes the SSP CRC16 (seed 0xFFFF, poly 0x8005) over data
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// CRCBytes returns the CRC of data in wire order (low byte first)
func CRCBytes(data []byte) [2]byte {
	crc := CalculateCRC(data)
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// appendCRC appends the little-endian CRC of data to data
func appendCRC(data []byte) []byte {
	crc := CRCBytes(data)
	return append(data, crc[0], crc[1])
}
