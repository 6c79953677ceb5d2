// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"errors"
	"reflect"
	"testing"
)

// ============================================================
// Generic Status Tests
// ============================================================

func TestParseResponse_Statuses(t *testing.T) {
	tests := []struct {
		data    []byte
		status  Status
		success bool
	}{
		{[]byte{0xf0}, StatusOK, true},
		{[]byte{0xf2}, StatusCommandNotKnown, false},
		{[]byte{0xf3}, StatusWrongNoParameters, false},
		{[]byte{0xf4}, StatusParameterOutOfRange, false},
		{[]byte{0xf5}, StatusCommandCannotBeProcessed, false},
		{[]byte{0xf6}, StatusSoftwareError, false},
		{[]byte{0xf8}, StatusFail, false},
		{[]byte{0xfa}, StatusKeyNotSet, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			resp, err := ParseResponse(CmdSync, tt.data, 6, UnitSmartPayout)
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, resp.Status)
			}
			if resp.Success != tt.success {
				t.Errorf("expected success=%t", tt.success)
			}
			if resp.Info != nil {
				t.Errorf("expected no info, got %+v", resp.Info)
			}
		})
	}
}

func TestParseResponse_UndefinedStatus(t *testing.T) {
	resp, err := ParseResponse(CmdSync, []byte{0xff}, 6, UnitSmartPayout)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if resp.Success {
		t.Errorf("0xFF must not be a success")
	}
	if resp.Status.String() != "UNDEFINED" {
		t.Errorf("expected UNDEFINED, got %s", resp.Status)
	}
}

func TestParseResponse_Empty(t *testing.T) {
	if _, err := ParseResponse(CmdSync, nil, 6, UnitSmartPayout); !errors.Is(err, ErrShortPayload) {
		t.Errorf("expected ErrShortPayload, got %v", err)
	}
}

func TestParseResponse_Failures(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		code byte
		want *FailureInfo
	}{
		{"enable payout no device", CmdEnablePayoutDevice, 0x01, &FailureInfo{ErrorCode: 1, Error: "No device connected"}},
		{"enable payout invalid currency", CmdEnablePayoutDevice, 0x02, &FailureInfo{ErrorCode: 2, Error: "Invalid currency detected"}},
		{"enable payout busy", CmdEnablePayoutDevice, 0x03, &FailureInfo{ErrorCode: 3, Error: "Device busy"}},
		{"enable payout empty only", CmdEnablePayoutDevice, 0x04, &FailureInfo{ErrorCode: 4, Error: "Empty only (Note float only)"}},
		{"enable payout device error", CmdEnablePayoutDevice, 0x05, &FailureInfo{ErrorCode: 5, Error: "Device error"}},
		{"enable payout unknown", CmdEnablePayoutDevice, 0xff, &FailureInfo{ErrorCode: 0xff, Error: "Unknown error"}},
		{"payout not enough value", CmdPayoutByDenomination, 0x00, &FailureInfo{ErrorCode: 0, Error: "Not enough value in device"}},
		{"payout exact amount", CmdPayoutAmount, 0x01, &FailureInfo{ErrorCode: 1, Error: "Cannot pay exact amount"}},
		{"float disabled", CmdFloatAmount, 0x04, &FailureInfo{ErrorCode: 4, Error: "Device disabled"}},
		{"route no payout", CmdGetDenominationRoute, 0x01, &FailureInfo{ErrorCode: 1, Error: "No payout connected"}},
		{"reporting type device error", CmdSetValueReportingType, 0x03, &FailureInfo{ErrorCode: 3, Error: "Payout device error"}},
		{"stack note empty", CmdStackNote, 0x02, &FailureInfo{ErrorCode: 2, Error: "Note float empty"}},
		{"payout note disabled", CmdPayoutNote, 0x04, &FailureInfo{ErrorCode: 4, Error: "Note float disabled"}},
		{"note positions code only", CmdGetNotePositions, 0x01, &FailureInfo{ErrorCode: 1}},
		{"note positions invalid currency", CmdGetNotePositions, 0x02, &FailureInfo{ErrorCode: 2, Error: "Invalid currency"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse(tt.cmd, []byte{0xf5, tt.code}, 6, UnitSmartPayout)
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			if resp.Success || resp.Status != StatusCommandCannotBeProcessed {
				t.Errorf("expected COMMAND_CANNOT_BE_PROCESSED, got %s", resp.Status)
			}
			if !reflect.DeepEqual(resp.Info, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, resp.Info)
			}
		})
	}
}

// ============================================================
// Command Payload Tests
// ============================================================

func TestParseResponse_Payloads(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		data []byte
		pv   uint8
		unit UnitType
		want interface{}
	}{
		{
			name: "UNIT_DATA",
			cmd:  CmdUnitData,
			data: []byte{240, 6, 48, 52, 53, 57, 85, 83, 68, 0, 0, 1, 6},
			pv:   6, unit: UnitSmartPayout,
			want: &UnitDataInfo{UnitType: UnitSmartPayout, FirmwareVersion: "4.59", CountryCode: "USD", ValueMultiplier: 1, ProtocolVersion: 6},
		},
		{
			name: "GET_SERIAL_NUMBER",
			cmd:  CmdGetSerialNumber,
			data: []byte{240, 0, 74, 120, 180},
			pv:   6, unit: UnitSmartPayout,
			want: &SerialNumberInfo{SerialNumber: 4880564},
		},
		{
			name: "GET_COUNTERS",
			cmd:  CmdGetCounters,
			data: []byte{
				0xf0, 0x05, 0x2c, 0x01, 0x00, 0x00, 0xd2, 0x00, 0x00, 0x00, 0xb4, 0x00, 0x00, 0x00,
				0x68, 0x01, 0x00, 0x00, 0x19, 0x00, 0x00, 0x00,
			},
			pv: 6, unit: UnitSmartPayout,
			want: &CountersInfo{Stacked: 300, Stored: 210, Dispensed: 180, TransferredFromStoreToStacker: 360, Rejected: 25},
		},
		{
			name: "REQUEST_KEY_EXCHANGE",
			cmd:  CmdRequestKeyExchange,
			data: []byte{0xf0, 0xcb, 0xe1, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			pv:   6, unit: UnitSmartPayout,
			want: &KeyExchangeInfo{Key: []byte{0xcb, 0xe1, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		},
		{
			name: "GET_HOPPER_OPTIONS",
			cmd:  CmdGetHopperOptions,
			data: []byte{0xf0, 0x04, 0x00},
			pv:   6, unit: UnitSmartHopper,
			want: &HopperOptionsInfo{MotorSpeed: true},
		},
		{
			name: "GET_BUILD_REVISION",
			cmd:  CmdGetBuildRevision,
			data: []byte{0xf0, 0x00, 0x14, 0x00, 0x06, 0x15, 0x00},
			pv:   6, unit: UnitSmartPayout,
			want: &BuildRevisionInfo{Devices: []DeviceRevision{
				{UnitType: UnitBanknoteValidator, Revision: 20},
				{UnitType: UnitSmartPayout, Revision: 21},
			}},
		},
		{
			name: "GET_MINIMUM_PAYOUT",
			cmd:  CmdGetMinimumPayout,
			data: []byte{0xf0, 0xc8, 0x00, 0x00, 0x00},
			pv:   6, unit: UnitSmartPayout,
			want: &MinimumPayoutInfo{Value: 200},
		},
		{
			name: "GET_DENOMINATION_ROUTE payout",
			cmd:  CmdGetDenominationRoute,
			data: []byte{0xf0, 0x00},
			pv:   6, unit: UnitSmartPayout,
			want: &DenominationRouteInfo{Code: 0, Value: "Recycled and used for payouts"},
		},
		{
			name: "GET_DENOMINATION_ROUTE cashbox",
			cmd:  CmdGetDenominationRoute,
			data: []byte{0xf0, 0x01},
			pv:   6, unit: UnitSmartPayout,
			want: &DenominationRouteInfo{Code: 1, Value: "Detected denomination is routed to system cashbox"},
		},
		{
			name: "SET_REFILL_MODE read",
			cmd:  CmdSetRefillMode,
			data: []byte{0xf0, 0x01},
			pv:   6, unit: UnitSmartPayout,
			want: &RefillModeInfo{Enabled: true},
		},
		{
			name: "GET_BAR_CODE_DATA",
			cmd:  CmdGetBarCodeData,
			data: []byte{0xf0, 0x01, 0x06, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36},
			pv:   6, unit: UnitSmartPayout,
			want: &BarCodeDataInfo{Status: "ticket_in_escrow", Data: "123456"},
		},
		{
			name: "GET_DATASET_VERSION",
			cmd:  CmdGetDatasetVersion,
			data: []byte{0xf0, 0x45, 0x55, 0x52, 0x30, 0x31, 0x36, 0x31, 0x30},
			pv:   6, unit: UnitSmartPayout,
			want: &VersionInfo{Version: "EUR01610"},
		},
		{
			name: "GET_NOTE_POSITIONS by value",
			cmd:  CmdGetNotePositions,
			data: []byte{0xf0, 0x02, 0xf4, 0x01, 0x00, 0x00, 0xe8, 0x03, 0x00, 0x00},
			pv:   6, unit: UnitNoteFloat,
			want: &NotePositionsInfo{Slots: []NoteSlot{{Value: 500}, {Value: 1000}}},
		},
		{
			name: "GET_NOTE_POSITIONS by channel",
			cmd:  CmdGetNotePositions,
			data: []byte{0xf0, 0x02, 0x01, 0x02},
			pv:   6, unit: UnitNoteFloat,
			want: &NotePositionsInfo{Slots: []NoteSlot{{Channel: 1}, {Channel: 2}}},
		},
		{
			name: "GET_ALL_LEVELS",
			cmd:  CmdGetAllLevels,
			data: []byte{
				0xf0, 0x04, 0x64, 0x00, 0x14, 0x00, 0x00, 0x00, 0x45, 0x55, 0x52, 0x41, 0x00, 0x32, 0x00, 0x00, 0x00,
				0x45, 0x55, 0x52, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00, 0x45, 0x55, 0x52, 0x0c, 0x00, 0xc8, 0x00, 0x00,
				0x00, 0x45, 0x55, 0x52, 0x84, 0xd0,
			},
			pv: 6, unit: UnitSmartPayout,
			want: &LevelsInfo{Counters: []DenominationLevel{
				{Level: 100, Value: 20, CountryCode: "EUR"},
				{Level: 65, Value: 50, CountryCode: "EUR"},
				{Level: 0, Value: 100, CountryCode: "EUR"},
				{Level: 12, Value: 200, CountryCode: "EUR"},
			}},
		},
		{
			name: "CHANNEL_SECURITY_DATA",
			cmd:  CmdChannelSecurityData,
			data: []byte{0xf0, 0x07, 0x02, 0x02, 0x00, 0x02, 0x00, 0x02, 0x02},
			pv:   6, unit: UnitSmartPayout,
			want: &ChannelSecurityInfo{Channel: map[int]string{
				1: "std", 2: "std", 3: "not_implemented", 4: "std", 5: "not_implemented", 6: "std", 7: "std",
			}},
		},
		{
			name: "CHANNEL_VALUE_REQUEST v5",
			cmd:  CmdChannelValueRequest,
			data: []byte{0xf0, 0x07, 0x05, 0x0a, 0x00, 0x14, 0x00, 0x32, 0x64},
			pv:   5, unit: UnitSmartPayout,
			want: &ChannelValueInfo{Channel: []byte{5, 10, 0, 20, 0, 50, 100}},
		},
		{
			name: "CHANNEL_VALUE_REQUEST v6",
			cmd:  CmdChannelValueRequest,
			data: []byte{
				240, 7, 1, 2, 5, 10, 20, 50, 100, 85, 83, 68, 85, 83, 68, 85, 83, 68, 85, 83, 68, 85, 83, 68, 85, 83, 68,
				85, 83, 68, 1, 0, 0, 0, 2, 0, 0, 0, 5, 0, 0, 0, 10, 0, 0, 0, 20, 0, 0, 0, 50, 0, 0, 0, 100, 0, 0, 0,
			},
			pv: 6, unit: UnitSmartPayout,
			want: &ChannelValueInfo{
				Channel:     []byte{1, 2, 5, 10, 20, 50, 100},
				CountryCode: []string{"USD", "USD", "USD", "USD", "USD", "USD", "USD"},
				Value:       []uint32{1, 2, 5, 10, 20, 50, 100},
			},
		},
		{
			name: "CASHBOX_PAYOUT_OPERATION_DATA",
			cmd:  CmdCashboxPayoutOperationData,
			data: []byte{
				240, 3, 0, 0, 100, 0, 0, 0, 85, 83, 68, 1, 0, 244, 1, 0, 0, 85, 83, 68, 0, 0, 16, 39, 0, 0, 85, 83, 68, 0, 0, 0, 0,
			},
			pv: 6, unit: UnitSmartPayout,
			want: &CashboxPayoutInfo{Data: []CashboxEntry{
				{Quantity: 0, Value: 100, CountryCode: "USD"},
				{Quantity: 1, Value: 500, CountryCode: "USD"},
				{Quantity: 0, Value: 10000, CountryCode: "USD"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse(tt.cmd, tt.data, tt.pv, tt.unit)
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			if !resp.Success {
				t.Fatalf("expected success, got %s", resp.Status)
			}
			if !reflect.DeepEqual(resp.Info, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, resp.Info)
			}
		})
	}
}

func TestParseResponse_LastRejectCode(t *testing.T) {
	resp, err := ParseResponse(CmdLastRejectCode, []byte{0xf0, 0x01}, 6, UnitSmartPayout)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	info, ok := resp.Info.(*RejectInfo)
	if !ok {
		t.Fatalf("expected *RejectInfo, got %T", resp.Info)
	}
	if info.Code != 1 || info.Name != "LENGTH_FAIL" {
		t.Errorf("expected LENGTH_FAIL, got %+v", info)
	}
}

func TestParseResponse_Truncated(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		data []byte
	}{
		{"serial number", CmdGetSerialNumber, []byte{0xf0, 0x00, 0x4a}},
		{"unit data", CmdUnitData, []byte{0xf0, 0x06, 0x30}},
		{"counters", CmdGetCounters, []byte{0xf0, 0x05, 0x2c, 0x01}},
		{"dispensing", CmdPoll, []byte{0xf0, 0xda, 0x02, 0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.cmd, tt.data, 6, UnitSmartPayout)
			if !errors.Is(err, ErrShortPayload) {
				t.Errorf("expected ErrShortPayload, got %v", err)
			}
		})
	}
}

// ============================================================
// Setup Request Tests
// ============================================================

func TestParseResponse_SetupRequest(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		pv   uint8
		unit UnitType
		want *SetupInfo
	}{
		{
			name: "smart hopper v5",
			data: []byte{0xf0, 0x03, 0x30, 0x31, 0x30, 0x30, 0x45, 0x55, 0x52, 0x05, 0x03, 0x01, 0x00, 0x02, 0x00, 0x05, 0x00},
			pv:   5, unit: UnitSmartHopper,
			want: &SetupInfo{
				UnitType: UnitSmartHopper, FirmwareVersion: "1.00", CountryCode: "EUR", ProtocolVersion: 5,
				NumberOfCoinValues: 3, CoinValues: []uint16{1, 2, 5},
			},
		},
		{
			name: "smart hopper v6",
			data: []byte{
				0xf0, 0x03, 0x30, 0x31, 0x30, 0x30, 0x45, 0x55, 0x52, 0x06, 0x03, 0x01, 0x00, 0x02, 0x00, 0x05, 0x00,
				0x45, 0x55, 0x52, 0x45, 0x55, 0x52, 0x45, 0x55, 0x52,
			},
			pv: 6, unit: UnitSmartHopper,
			want: &SetupInfo{
				UnitType: UnitSmartHopper, FirmwareVersion: "1.00", CountryCode: "EUR", ProtocolVersion: 6,
				NumberOfCoinValues: 3, CoinValues: []uint16{1, 2, 5},
				CountryCodesForValues: []string{"EUR", "EUR", "EUR"},
			},
		},
		{
			name: "banknote validator",
			data: []byte{
				0xf0, 0x00, 0x30, 0x31, 0x30, 0x30, 0x45, 0x55, 0x52, 0x00, 0x00, 0x01, 0x03, 0x05, 0x0a, 0x14,
				0x02, 0x02, 0x02, 0x00, 0x00, 0x64, 0x04,
			},
			pv: 4, unit: UnitBanknoteValidator,
			want: &SetupInfo{
				UnitType: UnitBanknoteValidator, FirmwareVersion: "1.00", CountryCode: "EUR", ProtocolVersion: 4,
				ValueMultiplier: 1, NumberOfChannels: 3, ChannelValue: []uint32{5, 10, 20},
				ChannelSecurity: []byte{2, 2, 2}, RealValueMultiplier: 100,
			},
		},
		{
			name: "smart payout v6",
			data: []byte{
				0xf0, 0x06, 0x30, 0x34, 0x35, 0x39, 0x55, 0x53, 0x44, 0x00, 0x00, 0x01, 0x07, 0x01, 0x02, 0x05, 0x0a,
				0x14, 0x32, 0x64, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x00, 0x00, 0x64, 0x06, 0x55, 0x53, 0x44,
				0x55, 0x53, 0x44, 0x55, 0x53, 0x44, 0x55, 0x53, 0x44, 0x55, 0x53, 0x44, 0x55, 0x53, 0x44, 0x55, 0x53,
				0x44, 0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00,
				0x14, 0x00, 0x00, 0x00, 0x32, 0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00,
			},
			pv: 6, unit: UnitSmartPayout,
			want: &SetupInfo{
				UnitType: UnitSmartPayout, FirmwareVersion: "4.59", CountryCode: "USD", ProtocolVersion: 6,
				ValueMultiplier: 1, NumberOfChannels: 7, ChannelValue: []uint32{1, 2, 5, 10, 20, 50, 100},
				ChannelSecurity: []byte{2, 2, 2, 2, 2, 2, 2}, RealValueMultiplier: 100,
				ExpandedChannelCountryCode: []string{"USD", "USD", "USD", "USD", "USD", "USD", "USD"},
				ExpandedChannelValue:       []uint32{1, 2, 5, 10, 20, 50, 100},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse(CmdSetupRequest, tt.data, tt.pv, tt.unit)
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			if !reflect.DeepEqual(resp.Info, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, resp.Info)
			}
		})
	}
}

// ============================================================
// Poll Tests
// ============================================================

func TestParseResponse_Poll(t *testing.T) {
	usdUah := func(a, b uint32) []CountryValue {
		return []CountryValue{{Value: a, CountryCode: "USD"}, {Value: b, CountryCode: "UAH"}}
	}

	tests := []struct {
		name string
		data []byte
		pv   uint8
		unit UnitType
		want []PollEvent
	}{
		{
			name: "no events",
			data: []byte{0xf0},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{},
		},
		{
			name: "slave reset",
			data: []byte{0xf0, 0xf1},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xf1, Name: EventSlaveReset}},
		},
		{
			name: "read note",
			data: []byte{0xf0, 0xef, 0x01},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xef, Name: EventReadNote, Channel: 1}},
		},
		{
			name: "fraud attempt validator",
			data: []byte{0xf0, 0xe6, 0x01},
			pv:   4, unit: UnitBanknoteValidator,
			want: []PollEvent{{Code: 0xe6, Name: EventFraudAttempt, Channel: 1}},
		},
		{
			name: "fraud attempt smart v4",
			data: []byte{0xf0, 0xe6, 0x01, 0x00, 0x00, 0x00},
			pv:   4, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xe6, Name: EventFraudAttempt, Value: 1}},
		},
		{
			name: "fraud attempt smart v6",
			data: []byte{0xf0, 0xe6, 0x02, 0x02, 0x00, 0x00, 0x00, 0x55, 0x53, 0x44, 0x01, 0x00, 0x00, 0x00, 0x55, 0x41, 0x48},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xe6, Name: EventFraudAttempt, Values: usdUah(2, 1)}},
		},
		{
			name: "dispensing v5",
			data: []byte{0xf0, 0xda, 0x01, 0x00, 0x00, 0x00},
			pv:   5, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xda, Name: EventDispensing, Value: 1}},
		},
		{
			name: "dispensing v6",
			data: []byte{0xf0, 0xda, 0x02, 0x01, 0x00, 0x00, 0x00, 0x55, 0x53, 0x44, 0x05, 0x00, 0x00, 0x00, 0x55, 0x41, 0x48},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xda, Name: EventDispensing, Values: usdUah(1, 5)}},
		},
		{
			name: "jammed note float v6",
			data: []byte{0xf0, 0xd5, 0x01, 0xe6, 0x00, 0x00, 0x00, 0x45, 0x55, 0x52},
			pv:   6, unit: UnitNoteFloat,
			want: []PollEvent{{Code: 0xd5, Name: EventJammed, Values: []CountryValue{{Value: 230, CountryCode: "EUR"}}}},
		},
		{
			name: "incomplete payout v5",
			data: []byte{0xf0, 0xdc, 0x01, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00},
			pv:   5, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xdc, Name: EventIncompletePayout, Actual: 1, Requested: 5}},
		},
		{
			name: "incomplete payout v6",
			data: []byte{
				0xf0, 0xdc, 0x02, 0x01, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x55, 0x53, 0x44,
				0x02, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x55, 0x41, 0x48,
			},
			pv: 6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xdc, Name: EventIncompletePayout, Incomplete: []IncompleteValue{
				{Actual: 1, Requested: 5, CountryCode: "USD"},
				{Actual: 2, Requested: 7, CountryCode: "UAH"},
			}}},
		},
		{
			name: "error during payout v6",
			data: []byte{0xf0, 0xb1, 0x00},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xb1, Name: EventErrorDuringPayout, Error: "Note not being correctly detected as it is routed"}},
		},
		{
			name: "error during payout v7",
			data: []byte{0xf0, 0xb1, 0x02, 0x01, 0x00, 0x00, 0x00, 0x55, 0x53, 0x44, 0x02, 0x00, 0x00, 0x00, 0x55, 0x41, 0x48, 0x00},
			pv:   7, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xb1, Name: EventErrorDuringPayout, Values: usdUah(1, 2), Error: "Note not being correctly detected as it is routed"}},
		},
		{
			name: "note transfered to stacker v6",
			data: []byte{0xf0, 0xc9, 0x01, 0x00, 0x00, 0x00, 0x55, 0x53, 0x44},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xc9, Name: EventNoteTransferedToStacker, Values: []CountryValue{{Value: 1, CountryCode: "USD"}}}},
		},
		{
			name: "unknown codes skipped",
			data: []byte{0xf0, 0x42, 0xe8, 0x43},
			pv:   6, unit: UnitSmartPayout,
			want: []PollEvent{{Code: 0xe8, Name: EventDisabled}},
		},
		{
			name: "multiple events",
			data: []byte{
				0xf0, 0xb1, 0x02, 0x01, 0x00, 0x00, 0x00, 0x55, 0x53, 0x44, 0x02, 0x00, 0x00, 0x00, 0x55, 0x41, 0x48, 0x00,
				0xb4, 0x02, 0x01, 0x00, 0x00, 0x00, 0x55, 0x53, 0x44, 0x02, 0x00, 0x00, 0x00, 0x55, 0x41, 0x48, 0xe4,
			},
			pv: 8, unit: UnitSmartPayout,
			want: []PollEvent{
				{Code: 0xb1, Name: EventErrorDuringPayout, Values: usdUah(1, 2), Error: "Note not being correctly detected as it is routed"},
				{Code: 0xb4, Name: EventSmartEmptied, Values: usdUah(1, 2)},
				{Code: 0xe4, Name: EventCashboxReplaced},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse(CmdPoll, tt.data, tt.pv, tt.unit)
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			got := resp.Events()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i].Description == "" {
					t.Errorf("event %d has no description", i)
				}
				got[i].Description = ""
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

// ============================================================
// Table Lookup Tests
// ============================================================

func TestParseEventName(t *testing.T) {
	for e := EventOpen; e < eventCount; e++ {
		got, err := ParseEventName(e.String())
		if err != nil {
			t.Errorf("ParseEventName(%q) failed: %v", e.String(), err)
			continue
		}
		if got != e {
			t.Errorf("expected %v, got %v", e, got)
		}
	}
	if _, err := ParseEventName("NOT_AN_EVENT"); err == nil {
		t.Errorf("expected an error for an unknown name")
	}
}

func TestPollEventCode(t *testing.T) {
	code, ok := PollEventCode(EventCreditNote)
	if !ok || code != 0xEE {
		t.Errorf("expected 0xEE, got 0x%02X (%t)", code, ok)
	}
	if _, ok := PollEventCode(EventOpen); ok {
		t.Errorf("OPEN is not a poll event")
	}
	if EventOpen.IsPoll() || !EventSlaveReset.IsPoll() {
		t.Errorf("IsPoll misclassifies lifecycle and poll events")
	}
}

func TestUnitTypeString(t *testing.T) {
	tests := []struct {
		unit UnitType
		want string
	}{
		{UnitSmartPayout, "SMART payout fitted"},
		{UnitSmartHopper, "Smart Hopper"},
		{UnitNoteFloat, "Note Float fitted"},
	}
	for _, tt := range tests {
		if tt.unit.String() != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.unit.String())
		}
	}
	if UnitUnknown.Known() {
		t.Errorf("UnitUnknown must not be known")
	}
}
