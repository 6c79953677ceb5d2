// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Response is a decoded device reply
type Response struct {
	Command Command     `json:"command"`
	Success bool        `json:"success"`
	Status  Status      `json:"status"`
	Info    interface{} `json:"info,omitempty"`
}

// Events returns the poll events carried by a POLL or POLL_WITH_ACK response
func (r *Response) Events() []PollEvent {
	events, _ := r.Info.([]PollEvent)
	return events
}

// ParseResponse decodes the plain payload of a reply to cmd.
//
// Layouts that vary by protocol version or device use protocolVersion and
// unit. A non-OK status is not an error here; it is reported through
// Success and Status. An error is returned only when the payload is too
// short for its declared layout.
func ParseResponse(cmd Command, data []byte, protocolVersion uint8, unit UnitType) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w: empty response", cmd, ErrShortPayload)
	}

	resp := &Response{
		Command: cmd,
		Status:  Status(data[0]),
		Success: Status(data[0]) == StatusOK,
	}

	if !resp.Success {
		if resp.Status == StatusCommandCannotBeProcessed && len(data) > 1 {
			resp.Info = decodeFailure(cmd, data[1])
		}
		return resp, nil
	}

	info, err := decodeInfo(cmd, data[1:], protocolVersion, unit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	resp.Info = info
	return resp, nil
}

func decodeInfo(cmd Command, body []byte, pv uint8, unit UnitType) (interface{}, error) {
	r := &payloadReader{data: body}
	var info interface{}

	switch cmd {
	case CmdRequestKeyExchange:
		info = &KeyExchangeInfo{Key: append([]byte(nil), body...)}
	case CmdSetupRequest:
		info = decodeSetup(r)
	case CmdGetSerialNumber:
		info = &SerialNumberInfo{SerialNumber: r.u32be(0)}
	case CmdUnitData:
		info = &UnitDataInfo{
			UnitType:        UnitType(r.u8(0)),
			FirmwareVersion: firmwareVersion(r.str(1, 4)),
			CountryCode:     r.str(5, 3),
			ValueMultiplier: r.u24be(8),
			ProtocolVersion: r.u8(11),
		}
	case CmdChannelValueRequest:
		info = decodeChannelValues(r, pv)
	case CmdChannelSecurityData:
		levels := map[int]string{}
		for i := 1; i <= int(r.u8(0)); i++ {
			levels[i] = securityLevels[r.u8(i)]
		}
		info = &ChannelSecurityInfo{Channel: levels}
	case CmdChannelReTeachData:
		info = &ReTeachInfo{Source: append([]byte(nil), body...)}
	case CmdLastRejectCode:
		code := r.u8(0)
		reason, _ := LookupRejectReason(code)
		info = &RejectInfo{Code: code, Name: reason.Name, Description: reason.Description}
	case CmdGetFirmwareVersion, CmdGetDatasetVersion:
		info = &VersionInfo{Version: string(body)}
	case CmdGetAllLevels:
		n := int(r.u8(0))
		levels := make([]DenominationLevel, n)
		for i := range levels {
			off := 1 + i*9
			levels[i] = DenominationLevel{Level: r.u16(off), Value: r.u32(off + 2), CountryCode: r.str(off+6, 3)}
		}
		info = &LevelsInfo{Counters: levels}
	case CmdGetBarCodeReaderConfiguration:
		info = &BarCodeReaderInfo{
			HardwareStatus:     barCodeHardware[r.u8(0)],
			ReadersEnabled:     barCodeReaders[r.u8(1)],
			Format:             barCodeFormats[r.u8(2)],
			NumberOfCharacters: r.u8(3),
		}
	case CmdGetBarCodeInhibitStatus:
		b := r.u8(0)
		info = &BarCodeInhibitInfo{CurrencyReadEnable: b&0x01 == 0, BarCodeEnable: b&0x02 == 0}
	case CmdGetBarCodeData:
		info = &BarCodeDataInfo{Status: barCodeStatuses[r.u8(0)], Data: r.str(2, int(r.u8(1)))}
	case CmdGetDenominationLevel:
		info = &DenominationLevelInfo{Level: r.u16(0)}
	case CmdGetDenominationRoute:
		code := r.u8(0)
		info = &DenominationRouteInfo{Code: code, Value: denominationRoutes[code]}
	case CmdGetMinimumPayout:
		info = &MinimumPayoutInfo{Value: r.u32(0)}
	case CmdGetNotePositions:
		info = decodeNotePositions(r)
	case CmdGetBuildRevision:
		devices := make([]DeviceRevision, len(body)/3)
		for i := range devices {
			devices[i] = DeviceRevision{UnitType: UnitType(r.u8(i * 3)), Revision: r.u16(i*3 + 1)}
		}
		info = &BuildRevisionInfo{Devices: devices}
	case CmdGetCounters:
		info = &CountersInfo{
			Stacked:                       r.u32(1),
			Stored:                        r.u32(5),
			Dispensed:                     r.u32(9),
			TransferredFromStoreToStacker: r.u32(13),
			Rejected:                      r.u32(17),
		}
	case CmdGetHopperOptions:
		v := r.u16(0)
		info = &HopperOptionsInfo{
			PayMode:          v&0x01 != 0,
			LevelCheck:       v&0x02 != 0,
			MotorSpeed:       v&0x04 != 0,
			CashBoxPayActive: v&0x08 != 0,
		}
	case CmdPoll, CmdPollWithAck:
		events, err := decodePoll(body, pv, unit)
		if err != nil {
			return nil, err
		}
		info = events
	case CmdCashboxPayoutOperationData:
		n := int(r.u8(0))
		entries := make([]CashboxEntry, n)
		for i := range entries {
			off := 1 + i*9
			entries[i] = CashboxEntry{Quantity: r.u16(off), Value: r.u32(off + 2), CountryCode: r.str(off+6, 3)}
		}
		info = &CashboxPayoutInfo{Data: entries}
	case CmdSetRefillMode:
		if len(body) == 1 {
			info = &RefillModeInfo{Enabled: body[0] == 0x01}
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return info, nil
}

func decodeSetup(r *payloadReader) *SetupInfo {
	info := &SetupInfo{
		UnitType:        UnitType(r.u8(0)),
		FirmwareVersion: firmwareVersion(r.str(1, 4)),
		CountryCode:     r.str(5, 3),
	}

	if info.UnitType == UnitSmartHopper {
		info.ProtocolVersion = r.u8(8)
		n := int(r.u8(9))
		info.NumberOfCoinValues = uint8(n)
		info.CoinValues = make([]uint16, n)
		for i := range info.CoinValues {
			info.CoinValues[i] = r.u16(10 + i*2)
		}
		if info.ProtocolVersion >= 6 {
			info.CountryCodesForValues = make([]string, n)
			for i := range info.CountryCodesForValues {
				info.CountryCodesForValues[i] = r.str(10+n*2+i*3, 3)
			}
		}
		return info
	}

	n := int(r.u8(11))
	info.NumberOfChannels = uint8(n)
	info.ValueMultiplier = r.u24be(8)
	info.ChannelValue = make([]uint32, n)
	for i := range info.ChannelValue {
		info.ChannelValue[i] = uint32(r.u8(12+i)) * info.ValueMultiplier
	}
	info.ChannelSecurity = r.bytes(12+n, n)
	info.RealValueMultiplier = r.u24be(12 + n*2)
	info.ProtocolVersion = r.u8(15 + n*2)

	if info.ProtocolVersion >= 6 {
		info.ExpandedChannelCountryCode = make([]string, n)
		info.ExpandedChannelValue = make([]uint32, n)
		for i := 0; i < n; i++ {
			info.ExpandedChannelCountryCode[i] = r.str(16+n*2+i*3, 3)
			info.ExpandedChannelValue[i] = r.u32(16 + n*5 + i*4)
		}
	}
	return info
}

func decodeChannelValues(r *payloadReader, pv uint8) *ChannelValueInfo {
	n := int(r.u8(0))
	info := &ChannelValueInfo{Channel: r.bytes(1, n)}
	if pv >= 6 {
		info.CountryCode = make([]string, n)
		info.Value = make([]uint32, n)
		for i := 0; i < n; i++ {
			info.CountryCode[i] = r.str(n+1+i*3, 3)
			info.Value[i] = r.u32(n + 1 + n*3 + i*4)
		}
	}
	return info
}

func decodeNotePositions(r *payloadReader) *NotePositionsInfo {
	n := int(r.u8(0))
	slots := make([]NoteSlot, n)
	if len(r.data)-1 == n {
		for i := range slots {
			slots[i] = NoteSlot{Channel: r.u8(1 + i)}
		}
	} else {
		for i := range slots {
			slots[i] = NoteSlot{Value: r.u32(1 + i*4)}
		}
	}
	return &NotePositionsInfo{Slots: slots}
}

func decodePoll(body []byte, pv uint8, unit UnitType) ([]PollEvent, error) {
	r := &payloadReader{data: body}
	events := []PollEvent{}

	for k := 0; k < len(body); {
		spec, ok := pollEvents[body[k]]
		if !ok {
			k++
			continue
		}
		ev := PollEvent{Code: body[k], Name: spec.name, Description: spec.description}

		switch spec.name {
		case EventReadNote, EventCreditNote, EventNoteClearedFromFront, EventNoteClearedToCashbox:
			ev.Channel = r.u8(k + 1)
			k += 2

		case EventFraudAttempt:
			switch {
			case pv >= 6 && unit.IsSmartDevice():
				ev.Values, k = r.countryValues(k + 1)
			case unit.IsSmartDevice():
				ev.Value = r.u32(k + 1)
				k += 5
			default:
				ev.Channel = r.u8(k + 1)
				k += 2
			}

		case EventDispensing, EventDispensed, EventJammed, EventHalted, EventFloating, EventFloated,
			EventTimeOut, EventCashboxPaid, EventCoinCredit, EventSmartEmptying, EventSmartEmptied:
			if pv >= 6 {
				ev.Values, k = r.countryValues(k + 1)
			} else {
				ev.Value = r.u32(k + 1)
				k += 5
			}

		case EventIncompletePayout, EventIncompleteFloat:
			if pv >= 6 {
				n := int(r.u8(k + 1))
				ev.Incomplete = make([]IncompleteValue, 0, n)
				for i := 0; i < n && r.err == nil; i++ {
					off := k + 2 + i*11
					ev.Incomplete = append(ev.Incomplete, IncompleteValue{
						Actual:      r.u32(off),
						Requested:   r.u32(off + 4),
						CountryCode: r.str(off+8, 3),
					})
				}
				k += 2 + n*11
			} else {
				ev.Actual = r.u32(k + 1)
				ev.Requested = r.u32(k + 5)
				k += 9
			}

		case EventErrorDuringPayout:
			if pv >= 7 {
				ev.Values, k = r.countryValues(k + 1)
				ev.Error = payoutErrors[r.u8(k)]
				k++
			} else {
				ev.Error = payoutErrors[r.u8(k+1)]
				k += 2
			}

		case EventNoteTransferedToStacker, EventNoteDispensedAtPowerUp:
			k = r.singleValue(&ev, k, pv >= 6)

		case EventNoteHeldInBezel, EventNotePaidIntoStackerAtPowerUp, EventNotePaidIntoStoreAtPowerUp:
			k = r.singleValue(&ev, k, pv >= 8)

		default:
			k++
		}

		if r.err != nil {
			return events, fmt.Errorf("%s: %w", ev.Name, r.err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeFailure(cmd Command, code uint8) *FailureInfo {
	var table map[uint8]string
	switch cmd {
	case CmdEnablePayoutDevice:
		table = enablePayoutFailures
	case CmdPayoutByDenomination, CmdFloatAmount, CmdPayoutAmount, CmdFloatByDenomination:
		table = payoutFailures
	case CmdSetValueReportingType, CmdGetDenominationRoute, CmdSetDenominationRoute:
		table = routeFailures
	case CmdStackNote, CmdPayoutNote:
		table = noteFloatFailures
	case CmdGetNotePositions:
		if code == 2 {
			return &FailureInfo{ErrorCode: code, Error: "Invalid currency"}
		}
		return &FailureInfo{ErrorCode: code}
	default:
		return nil
	}
	msg, ok := table[code]
	if !ok {
		msg = "Unknown error"
	}
	return &FailureInfo{ErrorCode: code, Error: msg}
}

var enablePayoutFailures = map[uint8]string{
	1: "No device connected",
	2: "Invalid currency detected",
	3: "Device busy",
	4: "Empty only (Note float only)",
	5: "Device error",
}

var payoutFailures = map[uint8]string{
	0: "Not enough value in device",
	1: "Cannot pay exact amount",
	3: "Device busy",
	4: "Device disabled",
}

var routeFailures = map[uint8]string{
	1: "No payout connected",
	2: "Invalid currency detected",
	3: "Payout device error",
}

var noteFloatFailures = map[uint8]string{
	1: "Note float unit not connected",
	2: "Note float empty",
	3: "Note float busy",
	4: "Note float disabled",
}

// firmwareVersion renders the four ASCII digits as major.minor
func firmwareVersion(s string) string {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return s
	}
	return fmt.Sprintf("%d.%02d", n/100, n%100)
}

// payloadReader reads fixed offsets and records the first out-of-range access
type payloadReader struct {
	data []byte
	err  error
}

func (r *payloadReader) check(off, n int) bool {
	if r.err != nil {
		return false
	}
	if off < 0 || n < 0 || off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortPayload, n, off, len(r.data))
		return false
	}
	return true
}

func (r *payloadReader) u8(off int) uint8 {
	if !r.check(off, 1) {
		return 0
	}
	return r.data[off]
}

func (r *payloadReader) u16(off int) uint16 {
	if !r.check(off, 2) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.data[off:])
}

func (r *payloadReader) u32(off int) uint32 {
	if !r.check(off, 4) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.data[off:])
}

func (r *payloadReader) u32be(off int) uint32 {
	if !r.check(off, 4) {
		return 0
	}
	return binary.BigEndian.Uint32(r.data[off:])
}

func (r *payloadReader) u24be(off int) uint32 {
	if !r.check(off, 3) {
		return 0
	}
	return uint32(r.data[off])<<16 | uint32(r.data[off+1])<<8 | uint32(r.data[off+2])
}

func (r *payloadReader) str(off, n int) string {
	if !r.check(off, n) {
		return ""
	}
	return string(r.data[off : off+n])
}

func (r *payloadReader) bytes(off, n int) []byte {
	if !r.check(off, n) {
		return nil
	}
	return append([]byte(nil), r.data[off:off+n]...)
}

// countryValues reads a count byte at off followed by value/currency pairs.
// Returns the values and the offset after them.
func (r *payloadReader) countryValues(off int) ([]CountryValue, int) {
	n := int(r.u8(off))
	values := make([]CountryValue, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		p := off + 1 + i*7
		values = append(values, CountryValue{Value: r.u32(p), CountryCode: r.str(p+4, 3)})
	}
	return values, off + 1 + n*7
}

func (r *payloadReader) singleValue(ev *PollEvent, k int, extended bool) int {
	if !extended {
		return k + 1
	}
	ev.Values = []CountryValue{{Value: r.u32(k + 1), CountryCode: r.str(k+5, 3)}}
	return k + 8
}
