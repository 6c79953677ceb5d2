// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const timeFormat = "15:04:05.000"

// FormatFrame formats a sniffed frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format(timeFormat)
	data := f.Data()

	seqBit := 0
	if f.SequenceBit() {
		seqBit = 1
	}
	header := fmt.Sprintf("id=0x%02X seq=%d len=%d", f.DeviceID(), seqBit, f.Length())

	if len(data) == 0 {
		return fmt.Sprintf("[%s] EMPTY %s\n", timestamp, header)
	}

	first := data[0]
	switch {
	case first == STEX:
		return fmt.Sprintf("[%s] ENCRYPTED (0x%02X) %s\n", timestamp, first, header)
	case first&SequenceFlag == 0:
		cmd := Command(first)
		result := fmt.Sprintf("[%s] %s (0x%02X) %s\n", timestamp, cmd, first, header)
		if len(data) > 1 {
			result += fmt.Sprintf("  Args: % X\n", data[1:])
		}
		return result
	default:
		st := Status(first)
		result := fmt.Sprintf("[%s] %s (0x%02X) %s\n", timestamp, st, first, header)
		if len(data) > 1 {
			result += fmt.Sprintf("  Data: % X\n", data[1:])
		}
		return result
	}
}

// FormatResponse formats a decoded response
func FormatResponse(r *Response) string {
	result := fmt.Sprintf("%s: %s (0x%02X)\n", r.Command, r.Status, uint8(r.Status))
	if r.Info != nil {
		result += FormatInfo(r.Info)
	}
	return result
}

// FormatInfo formats the typed payload of a response
func FormatInfo(info interface{}) string {
	switch v := info.(type) {
	case []PollEvent:
		if len(v) == 0 {
			return "  No events\n"
		}
		var b strings.Builder
		for i := range v {
			b.WriteString("  ")
			b.WriteString(FormatPollEvent(&v[i]))
			b.WriteString("\n")
		}
		return b.String()
	case *SetupInfo:
		result := fmt.Sprintf("  Unit: %s (%d), Firmware: %s, Country: %s, Protocol: %d\n",
			v.UnitType, uint8(v.UnitType), v.FirmwareVersion, v.CountryCode, v.ProtocolVersion)
		if len(v.CoinValues) > 0 {
			result += fmt.Sprintf("  Coins: %v\n", v.CoinValues)
		}
		if len(v.ChannelValue) > 0 {
			result += fmt.Sprintf("  Channels: %v (multiplier %d)\n", v.ChannelValue, v.ValueMultiplier)
		}
		return result
	case *UnitDataInfo:
		return fmt.Sprintf("  Unit: %s (%d), Firmware: %s, Country: %s, Multiplier: %d, Protocol: %d\n",
			v.UnitType, uint8(v.UnitType), v.FirmwareVersion, v.CountryCode, v.ValueMultiplier, v.ProtocolVersion)
	case *SerialNumberInfo:
		return fmt.Sprintf("  Serial: %d\n", v.SerialNumber)
	case *KeyExchangeInfo:
		return fmt.Sprintf("  Key: % X\n", v.Key)
	case *FailureInfo:
		return fmt.Sprintf("  Error: %s (%d)\n", v.Error, v.ErrorCode)
	case *ChannelSecurityInfo:
		keys := make([]int, 0, len(v.Channel))
		for k := range v.Channel {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "  Channel %d: %s\n", k, v.Channel[k])
		}
		return b.String()
	default:
		return fmt.Sprintf("  %+v\n", info)
	}
}

// FormatPollEvent formats one poll event on a single line
func FormatPollEvent(e *PollEvent) string {
	result := fmt.Sprintf("%s (0x%02X)", e.Name, e.Code)
	if e.Channel != 0 {
		result += fmt.Sprintf(" channel=%d", e.Channel)
	}
	if e.Value != 0 {
		result += fmt.Sprintf(" value=%d", e.Value)
	}
	for _, v := range e.Values {
		result += fmt.Sprintf(" %d %s", v.Value, v.CountryCode)
	}
	if e.Actual != 0 || e.Requested != 0 {
		result += fmt.Sprintf(" actual=%d requested=%d", e.Actual, e.Requested)
	}
	for _, v := range e.Incomplete {
		result += fmt.Sprintf(" %d/%d %s", v.Actual, v.Requested, v.CountryCode)
	}
	if e.Error != "" {
		result += fmt.Sprintf(" error=%q", e.Error)
	}
	return result
}

// FormatEvent formats a session event
func FormatEvent(e Event) string {
	timestamp := e.Time.Format(timeFormat)
	switch {
	case e.Poll != nil:
		return fmt.Sprintf("[%s] %s", timestamp, FormatPollEvent(e.Poll))
	case e.Transaction != nil:
		return fmt.Sprintf("[%s] %s", timestamp, FormatTransaction(e.Transaction))
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", timestamp, e.Name, e.Err)
	default:
		return fmt.Sprintf("[%s] %s", timestamp, e.Name)
	}
}

// FormatTransaction formats a DEBUG record
func FormatTransaction(t *Transaction) string {
	result := fmt.Sprintf("%s #%d TX % X", t.Command, t.Attempt, t.TxPlain)
	if t.TxEncrypted != nil {
		result += " (encrypted)"
	}
	if t.RxPlain != nil {
		result += fmt.Sprintf(" RX % X (%s)", t.RxPlain, t.RxTime.Sub(t.TxTime).Round(time.Microsecond))
	}
	if t.Error != "" {
		result += " ERR " + t.Error
	}
	return result
}
