// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// frameFor builds and parses a plain frame carrying data
func frameFor(t *testing.T, seq byte, data []byte) *Frame {
	t.Helper()
	core := append([]byte{seq, byte(len(data))}, data...)
	raw := append([]byte{STX}, appendCRC(core)...)
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	return f
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected []AnomalyType
	}{
		{"sync", []byte{0x11}, nil},
		{"poll", []byte{0x07}, nil},
		{"ok status", []byte{0xF0, 0xE8}, nil},
		{"command with args", []byte{0x4A, 1, 2, 3, 4, 5, 6, 7, 8}, nil},
		{"empty data", []byte{}, []AnomalyType{AnomalyLengthMismatch}},
		{"unknown command", []byte{0x7D}, []AnomalyType{AnomalyUnknownCommand}},
		{"missing args", []byte{0x4A}, []AnomalyType{AnomalyMissingArgs}},
		{"unknown status", []byte{0xF9}, []AnomalyType{AnomalyUnknownStatus}},
		{"neither command nor status", []byte{0x90}, []AnomalyType{AnomalyInvalidValue}},
		{"envelope", append([]byte{STEX}, make([]byte, 16)...), nil},
		{"short envelope", append([]byte{STEX}, make([]byte, 15)...), []AnomalyType{AnomalyLengthMismatch}},
		{"ragged envelope", append([]byte{STEX}, make([]byte, 20)...), []AnomalyType{AnomalyLengthMismatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(frameFor(t, 0x80, tt.data))
			if len(errs) != len(tt.expected) {
				t.Fatalf("expected %d anomalies, got %d: %v", len(tt.expected), len(errs), errs)
			}
			for i, e := range errs {
				if e.Type != tt.expected[i] {
					t.Errorf("anomaly %d: expected type %d, got %d (%s)", i, tt.expected[i], e.Type, e.Message)
				}
				if e.Error() == "" {
					t.Errorf("anomaly %d has no message", i)
				}
			}
		})
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	valid := frameFor(t, 0x80, []byte{0x11})
	s.Update(valid, nil, ValidateFrame(valid))

	enc := frameFor(t, 0x00, append([]byte{STEX}, make([]byte, 16)...))
	s.Update(enc, nil, ValidateFrame(enc))

	bad := frameFor(t, 0x80, []byte{0xF9})
	s.Update(bad, nil, ValidateFrame(bad))

	empty := frameFor(t, 0x80, []byte{})
	s.Update(empty, nil, ValidateFrame(empty))

	s.Update(nil, ErrWrongCRC, nil)
	s.Update(nil, errors.New("garbage"), nil)

	if s.TotalFrames != 6 {
		t.Errorf("expected 6 frames, got %d", s.TotalFrames)
	}
	if s.ValidFrames != 2 {
		t.Errorf("expected 2 valid frames, got %d", s.ValidFrames)
	}
	if s.EncryptedFrames != 1 {
		t.Errorf("expected 1 encrypted frame, got %d", s.EncryptedFrames)
	}
	if s.UnknownStatuses != 1 {
		t.Errorf("expected 1 unknown status, got %d", s.UnknownStatuses)
	}
	if s.LengthMismatches != 1 || s.MalformedFrames != 1 {
		t.Errorf("expected 1 length mismatch, got %d (malformed %d)", s.LengthMismatches, s.MalformedFrames)
	}
	if s.CRCErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("expected 1 CRC and 1 decode error, got %d and %d", s.CRCErrors, s.DecodeErrors)
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.StartTime = time.Now().Add(-10 * time.Second)
	s.TotalFrames = 10
	s.ValidFrames = 9
	s.CRCErrors = 1
	s.Commands = 5
	s.Attempts = 6
	s.ValidResponses = 5
	s.Retries = 1
	s.Timeouts = 1

	out := s.String()
	for _, want := range []string{"=== Statistics", "Total Frames:", "CRC Errors:", "Commands:", "Retries:", "Timeouts:", "Error Rate:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if s.FrameRate <= 0 || s.CommandRate <= 0 || s.ErrorRate <= 0 {
		t.Errorf("rates not calculated: %+v", s)
	}

	s.Reset()
	if s.TotalFrames != 0 || s.Commands != 0 {
		t.Errorf("Reset left counters: %+v", s)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		name     string
		seq      byte
		data     []byte
		contains []string
	}{
		{"command", 0x80, []byte{0x4A, 0x01, 0x02}, []string{"SET_GENERATOR (0x4A)", "id=0x00 seq=1 len=3", "Args: 01 02"}},
		{"status", 0x05, []byte{0xF0, 0xE8}, []string{"OK (0xF0)", "id=0x05 seq=0", "Data: E8"}},
		{"encrypted", 0x80, append([]byte{STEX}, make([]byte, 16)...), []string{"ENCRYPTED (0x7E)"}},
		{"empty", 0x80, []byte{}, []string{"EMPTY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatFrame(frameFor(t, tt.seq, tt.data))
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("expected %q in %q", want, out)
				}
			}
		})
	}
}

func TestFormatResponse(t *testing.T) {
	resp, err := ParseResponse(CmdPoll, []byte{0xF0, 0xEF, 0x02, 0xE8}, 6, UnitSmartPayout)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	out := FormatResponse(resp)
	for _, want := range []string{"POLL: OK (0xF0)", "READ_NOTE (0xEF) channel=2", "DISABLED (0xE8)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	resp, err = ParseResponse(CmdEnablePayoutDevice, []byte{0xF5, 0x03}, 6, UnitSmartPayout)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if out := FormatResponse(resp); !strings.Contains(out, "Device busy (3)") {
		t.Errorf("failure detail missing: %q", out)
	}
}

func TestFormatEvent(t *testing.T) {
	now := time.Now()
	ev := PollEvent{Code: 0xDA, Name: EventDispensing, Values: []CountryValue{{Value: 500, CountryCode: "EUR"}}}

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"lifecycle", Event{Name: EventOpen, Time: now}, "OPEN"},
		{"poll", Event{Name: EventDispensing, Time: now, Poll: &ev}, "DISPENSING (0xDA) 500 EUR"},
		{"error", Event{Name: EventError, Time: now, Err: ErrTimeout}, "ERROR: timeout"},
		{"debug", Event{Name: EventDebug, Time: now, Transaction: &Transaction{
			Command: CmdSync, Attempt: 2, TxTime: now, TxPlain: []byte{0x7F, 0x80, 0x01, 0x11},
			Error: "timeout",
		}}, "SYNC #2 TX 7F 80 01 11 ERR timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := FormatEvent(tt.event); !strings.Contains(out, tt.want) {
				t.Errorf("expected %q in %q", tt.want, out)
			}
		})
	}
}
