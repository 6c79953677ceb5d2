// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package trace records SSP session traffic to a CBOR sequence file and
// reads it back.
//
// A trace starts with a header record followed by one record per session
// event. DEBUG events carry the raw transaction of a command attempt.
package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// FormatVersion is written in every header
const FormatVersion = 1

// Kind identifies the payload of a record
type Kind uint8

const (
	KindHeader Kind = iota + 1
	KindTransaction
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "HEADER"
	case KindTransaction:
		return "TRANSACTION"
	case KindEvent:
		return "EVENT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Header opens every trace
type Header struct {
	Version    uint8     `cbor:"1,keyasint"`
	RunID      uuid.UUID `cbor:"2,keyasint"`
	Start      time.Time `cbor:"3,keyasint"`
	Connection string    `cbor:"4,keyasint,omitempty"`
	DeviceID   uint8     `cbor:"5,keyasint"`
}

// EventRecord is the serializable form of a non-DEBUG session event
type EventRecord struct {
	Name  ssp.EventName  `cbor:"1,keyasint"`
	Poll  *ssp.PollEvent `cbor:"2,keyasint,omitempty"`
	Error string         `cbor:"3,keyasint,omitempty"`
}

// Record is one entry of a trace
type Record struct {
	Kind        Kind             `cbor:"1,keyasint"`
	Time        time.Time        `cbor:"2,keyasint"`
	Header      *Header          `cbor:"3,keyasint,omitempty"`
	Transaction *ssp.Transaction `cbor:"4,keyasint,omitempty"`
	Event       *EventRecord     `cbor:"5,keyasint,omitempty"`
}

// SessionEvent converts the record back into a session event
func (r *Record) SessionEvent() (ssp.Event, bool) {
	switch r.Kind {
	case KindTransaction:
		return ssp.Event{Name: ssp.EventDebug, Time: r.Time, Transaction: r.Transaction}, r.Transaction != nil
	case KindEvent:
		if r.Event == nil {
			return ssp.Event{}, false
		}
		e := ssp.Event{Name: r.Event.Name, Time: r.Time, Poll: r.Event.Poll}
		if r.Event.Error != "" {
			e.Err = errors.New(r.Event.Error)
		}
		return e, true
	default:
		return ssp.Event{}, false
	}
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Recorder writes session events to a trace. It implements ssp.EventHandler.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	enc    *cbor.Encoder
	header Header
	count  int
	err    error
}

// NewRecorder writes a header to w and returns a recorder appending to it
func NewRecorder(w io.Writer, connection string, deviceID uint8) (*Recorder, error) {
	r := &Recorder{
		w:   w,
		enc: encMode.NewEncoder(w),
		header: Header{
			Version:    FormatVersion,
			RunID:      uuid.New(),
			Start:      time.Now(),
			Connection: connection,
			DeviceID:   deviceID,
		},
	}
	h := r.header
	if err := r.enc.Encode(&Record{Kind: KindHeader, Time: h.Start, Header: &h}); err != nil {
		return nil, fmt.Errorf("failed to write trace header: %w", err)
	}
	return r, nil
}

// RunID identifies this recording
func (r *Recorder) RunID() uuid.UUID {
	return r.header.RunID
}

// HandleEvent records e. Write errors are kept and reported by Err.
func (r *Recorder) HandleEvent(e ssp.Event) {
	rec := Record{Time: e.Time}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	if e.Name == ssp.EventDebug {
		if e.Transaction == nil {
			return
		}
		rec.Kind = KindTransaction
		rec.Transaction = e.Transaction
	} else {
		rec.Kind = KindEvent
		rec.Event = &EventRecord{Name: e.Name, Poll: e.Poll}
		if e.Err != nil {
			rec.Event.Error = e.Err.Error()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(&rec); err != nil {
		r.err = fmt.Errorf("failed to write trace record: %w", err)
		return
	}
	r.count++
}

// Count returns the number of records written after the header
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first write error
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the underlying writer if it is closable
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return r.err
}

// Reader iterates the records of a trace
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads the header from r
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{dec: cbor.NewDecoder(r)}

	var rec Record
	if err := rd.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty trace")
		}
		return nil, fmt.Errorf("failed to read trace header: %w", err)
	}
	if rec.Kind != KindHeader || rec.Header == nil {
		return nil, fmt.Errorf("trace does not start with a header (got %s)", rec.Kind)
	}
	if rec.Header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported trace version %d", rec.Header.Version)
	}
	rd.header = *rec.Header
	return rd, nil
}

// Header returns the trace header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the trace
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read trace record: %w", err)
	}
	return &rec, nil
}
