// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package trace

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/google/uuid"
)

// ============================================================
// Round Trip Tests
// ============================================================

func TestRecorder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf, "/dev/ttyUSB0", 0x10)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	if rec.RunID() == uuid.Nil {
		t.Errorf("run id not set")
	}

	now := time.Date(2025, 3, 14, 12, 0, 0, 123456789, time.UTC)
	tr := &ssp.Transaction{
		Command: ssp.CmdSync,
		Attempt: 2,
		TxTime:  now,
		TxPlain: []byte{0x7F, 0x90, 0x01, 0x11, 0x65, 0x82},
		RxTime:  now.Add(12 * time.Millisecond),
		RxPlain: []byte{0x7F, 0x90, 0x01, 0xF0, 0x23, 0x80},
	}
	poll := &ssp.PollEvent{Code: 0xEE, Name: ssp.EventCreditNote, Channel: 3}

	events := []ssp.Event{
		{Name: ssp.EventOpen, Time: now},
		{Name: ssp.EventDebug, Time: now, Transaction: tr},
		{Name: ssp.EventCreditNote, Time: now, Poll: poll},
		{Name: ssp.EventError, Time: now, Err: ssp.ErrTimeout},
		{Name: ssp.EventDebug, Time: now},
		{Name: ssp.EventClose, Time: now},
	}
	for _, e := range events {
		rec.HandleEvent(e)
	}
	if err := rec.Err(); err != nil {
		t.Fatalf("recorder error: %v", err)
	}
	// DEBUG without a transaction is not recorded
	if rec.Count() != 5 {
		t.Errorf("expected 5 records, got %d", rec.Count())
	}

	rd, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	h := rd.Header()
	if h.RunID != rec.RunID() || h.Connection != "/dev/ttyUSB0" || h.DeviceID != 0x10 || h.Version != FormatVersion {
		t.Errorf("unexpected header: %+v", h)
	}

	var got []*Record
	for {
		r, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 records, got %d", len(got))
	}

	wantKinds := []Kind{KindEvent, KindTransaction, KindEvent, KindEvent, KindEvent}
	for i, r := range got {
		if r.Kind != wantKinds[i] {
			t.Errorf("record %d: expected %s, got %s", i, wantKinds[i], r.Kind)
		}
		if !r.Time.Equal(now) {
			t.Errorf("record %d: time %v lost precision", i, r.Time)
		}
	}

	gt := got[1].Transaction
	if gt.Command != tr.Command || gt.Attempt != tr.Attempt || !bytes.Equal(gt.TxPlain, tr.TxPlain) || !bytes.Equal(gt.RxPlain, tr.RxPlain) {
		t.Errorf("transaction mismatch: %+v", gt)
	}
	if !gt.RxTime.Equal(tr.RxTime) {
		t.Errorf("rx time mismatch: %v", gt.RxTime)
	}

	if !reflect.DeepEqual(got[2].Event.Poll, poll) {
		t.Errorf("poll event mismatch: %+v", got[2].Event.Poll)
	}
	if got[3].Event.Error != ssp.ErrTimeout.Error() {
		t.Errorf("expected error text %q, got %q", ssp.ErrTimeout.Error(), got[3].Event.Error)
	}
}

func TestRecord_SessionEvent(t *testing.T) {
	now := time.Now()
	tr := &ssp.Transaction{Command: ssp.CmdPoll, Attempt: 1}

	tests := []struct {
		name   string
		record Record
		want   ssp.EventName
		ok     bool
	}{
		{"transaction", Record{Kind: KindTransaction, Time: now, Transaction: tr}, ssp.EventDebug, true},
		{"empty transaction", Record{Kind: KindTransaction, Time: now}, ssp.EventDebug, false},
		{"event", Record{Kind: KindEvent, Time: now, Event: &EventRecord{Name: ssp.EventClose}}, ssp.EventClose, true},
		{"error", Record{Kind: KindEvent, Time: now, Event: &EventRecord{Name: ssp.EventError, Error: "boom"}}, ssp.EventError, true},
		{"header", Record{Kind: KindHeader, Time: now, Header: &Header{}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := tt.record.SessionEvent()
			if ok != tt.ok {
				t.Fatalf("expected ok=%t, got %t", tt.ok, ok)
			}
			if !ok {
				return
			}
			if e.Name != tt.want {
				t.Errorf("expected %s, got %s", tt.want, e.Name)
			}
			if tt.name == "error" && (e.Err == nil || e.Err.Error() != "boom") {
				t.Errorf("expected error boom, got %v", e.Err)
			}
		})
	}
}

// ============================================================
// Reader Error Tests
// ============================================================

func TestNewReader_Errors(t *testing.T) {
	if _, err := NewReader(bytes.NewReader(nil)); err == nil {
		t.Errorf("expected an error for an empty trace")
	}
	if _, err := NewReader(bytes.NewReader([]byte{0xFF, 0x00})); err == nil {
		t.Errorf("expected an error for garbage")
	}

	// A trace that starts with an event record
	var buf bytes.Buffer
	if err := encMode.NewEncoder(&buf).Encode(&Record{Kind: KindEvent, Event: &EventRecord{Name: ssp.EventOpen}}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := NewReader(&buf); err == nil {
		t.Errorf("expected an error for a missing header")
	}
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("disk full")
	}
	w.n--
	return len(p), nil
}

func TestRecorder_WriteError(t *testing.T) {
	rec, err := NewRecorder(&failWriter{n: 1}, "", 0)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	rec.HandleEvent(ssp.Event{Name: ssp.EventOpen})
	rec.HandleEvent(ssp.Event{Name: ssp.EventClose})
	if rec.Err() == nil {
		t.Errorf("expected the write error to be kept")
	}
	if rec.Count() != 0 {
		t.Errorf("expected no records counted, got %d", rec.Count())
	}
	if _, err := NewRecorder(&failWriter{}, "", 0); err == nil {
		t.Errorf("expected an error when the header cannot be written")
	}
}

// ============================================================
// Appended Run Tests
// ============================================================

func TestReader_AppendedRun(t *testing.T) {
	var buf bytes.Buffer
	now := time.Now()

	first, err := NewRecorder(&buf, "ws://bridge/ssp", 0)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	first.HandleEvent(ssp.Event{Name: ssp.EventOpen, Time: now})

	// A second session writing to the same file starts a new run
	second, err := NewRecorder(&buf, "ws://bridge/ssp", 0)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	second.HandleEvent(ssp.Event{Name: ssp.EventOpen, Time: now})

	rd, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if rd.Header().RunID != first.RunID() {
		t.Errorf("first header should belong to the first run")
	}

	var kinds []Kind
	var runs []uuid.UUID
	for {
		r, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		kinds = append(kinds, r.Kind)
		if r.Kind == KindHeader {
			runs = append(runs, r.Header.RunID)
		}
	}

	want := []Kind{KindEvent, KindHeader, KindEvent}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("expected kinds %v, got %v", want, kinds)
	}
	if len(runs) != 1 || runs[0] != second.RunID() {
		t.Errorf("expected second run header %s, got %v", second.RunID(), runs)
	}
}
