// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

// Decoder reassembles SSP frames from a raw byte stream.
//
// Emitted frames start with STX and have their stuffing removed. CRC is not
// checked here; candidates are validated by ExtractPacketData. Malformed input
// never produces an error, the decoder resynchronizes on the next STX.
type Decoder struct {
	state    int
	buffer   []byte
	expected int

	discarded uint64 // bytes dropped outside a frame
	resyncs   uint64 // frames abandoned on a new start marker
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset drops any partial frame and returns to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.expected = 0
}

// Discarded returns the number of bytes dropped while waiting for STX
func (d *Decoder) Discarded() uint64 {
	return d.discarded
}

// Resyncs returns the number of partial frames abandoned for a new start marker
func (d *Decoder) Resyncs() uint64 {
	return d.resyncs
}

// Decode feeds a chunk of bytes and returns every frame completed by it.
// Frames may span chunks.
func (d *Decoder) Decode(chunk []byte) [][]byte {
	var frames [][]byte
	for _, b := range chunk {
		if frame := d.DecodeByte(b); frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
func (d *Decoder) DecodeByte(b byte) []byte {
	switch d.state {
	case stateIdle:
		if b != STX {
			d.discarded++
			return nil
		}
		d.start()
		return nil

	case stateInFrame:
		if b == STX {
			if len(d.buffer) == 1 {
				// Doubled marker with nothing after STX is not a frame
				d.Reset()
				return nil
			}
			d.state = stateAwaitStuff
			return nil
		}
		return d.push(b)

	case stateAwaitStuff:
		d.state = stateInFrame
		if b == STX {
			return d.push(STX)
		}
		// Unpaired marker starts a new frame
		d.resyncs++
		d.start()
		return d.push(b)

	default:
		d.Reset()
		return nil
	}
}

// Flush emits the partial frame, if any, and resets the decoder.
// The caller is expected to reject it on CRC.
func (d *Decoder) Flush() []byte {
	if len(d.buffer) == 0 {
		d.Reset()
		return nil
	}
	frame := append([]byte(nil), d.buffer...)
	d.Reset()
	return frame
}

func (d *Decoder) start() {
	d.buffer = append(d.buffer[:0], STX)
	d.expected = 0
	d.state = stateInFrame
}

func (d *Decoder) push(b byte) []byte {
	d.buffer = append(d.buffer, b)
	if len(d.buffer) == 3 {
		d.expected = int(d.buffer[2]) + FrameOverhead
	}
	if d.expected > 0 && len(d.buffer) == d.expected {
		frame := append([]byte(nil), d.buffer...)
		d.Reset()
		return frame
	}
	return nil
}
