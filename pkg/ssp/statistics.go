// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame and command statistics and error rates.
//
// The frame counters are fed by Update from a passive sniffer. The command
// counters are maintained by a Session.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Frame counters
	TotalFrames      uint64
	ValidFrames      uint64
	CRCErrors        uint64
	DecodeErrors     uint64
	MalformedFrames  uint64
	LengthMismatches uint64
	UnknownStatuses  uint64
	EncryptedFrames  uint64

	// Command counters
	Commands           uint64
	Attempts           uint64
	Retries            uint64
	Timeouts           uint64
	ValidResponses     uint64
	SequenceMismatches uint64
	CounterMismatches  uint64
	DecryptErrors      uint64
	CommandErrors      uint64 // answered with a status other than OK
	Failures           uint64 // no usable answer
	PollEvents         uint64

	// Rates (calculated)
	FrameRate   float64 // frames/sec
	CommandRate float64 // commands/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates frame statistics from a sniffed frame and its errors
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrWrongCRC) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if frame != nil && frame.Encrypted() {
		s.EncryptedFrames++
	}

	if len(validationErrors) == 0 {
		s.ValidFrames++
		return
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyLengthMismatch:
			s.LengthMismatches++
			s.MalformedFrames++
		case AnomalyUnknownStatus:
			s.UnknownStatuses++
		default:
			s.MalformedFrames++
		}
	}
}

// CalculateRates calculates frame, command and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.CommandRate = float64(s.Commands) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.MalformedFrames + s.Timeouts +
		s.SequenceMismatches + s.CounterMismatches + s.DecryptErrors
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)
	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())

	if s.TotalFrames > 0 {
		pct := func(n uint64) float64 { return float64(n) * 100.0 / float64(s.TotalFrames) }
		result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
		result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, pct(s.ValidFrames))
		if s.EncryptedFrames > 0 {
			result += fmt.Sprintf("Encrypted:       %8d (%.1f%%)\n", s.EncryptedFrames, pct(s.EncryptedFrames))
		}
		if s.CRCErrors > 0 {
			result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, pct(s.CRCErrors))
		}
		if s.DecodeErrors > 0 {
			result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, pct(s.DecodeErrors))
		}
		if s.MalformedFrames > 0 {
			result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, pct(s.MalformedFrames))
			if s.LengthMismatches > 0 {
				result += fmt.Sprintf("  Length Mismatch:  %5d\n", s.LengthMismatches)
			}
		}
		if s.UnknownStatuses > 0 {
			result += fmt.Sprintf("Unknown Status:  %8d\n", s.UnknownStatuses)
		}
		result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	}

	if s.Commands > 0 {
		var okPercent float64
		if s.Attempts > 0 {
			okPercent = float64(s.ValidResponses) * 100.0 / float64(s.Attempts)
		}
		result += fmt.Sprintf("Commands:        %8d\n", s.Commands)
		result += fmt.Sprintf("Attempts:        %8d (%.1f%% answered)\n", s.Attempts, okPercent)
		if s.Retries > 0 {
			result += fmt.Sprintf("Retries:         %8d\n", s.Retries)
		}
		if s.Timeouts > 0 {
			result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
		}
		if s.CRCErrors > 0 && s.TotalFrames == 0 {
			result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
		}
		if s.SequenceMismatches > 0 {
			result += fmt.Sprintf("Seq Mismatch:    %8d\n", s.SequenceMismatches)
		}
		if s.CounterMismatches > 0 {
			result += fmt.Sprintf("Counter Mismatch:%8d\n", s.CounterMismatches)
		}
		if s.DecryptErrors > 0 {
			result += fmt.Sprintf("Decrypt Errors:  %8d\n", s.DecryptErrors)
		}
		if s.CommandErrors > 0 {
			result += fmt.Sprintf("Non-OK Status:   %8d\n", s.CommandErrors)
		}
		if s.Failures > 0 {
			result += fmt.Sprintf("Failed:          %8d\n", s.Failures)
		}
		if s.PollEvents > 0 {
			result += fmt.Sprintf("Poll Events:     %8d\n", s.PollEvents)
		}
		result += fmt.Sprintf("Command Rate:    %8.1f cmds/sec\n", s.CommandRate)
	}

	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
