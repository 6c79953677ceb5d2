// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"time"

	"github.com/pion/logging"
)

// SessionConfig configures a Session
type SessionConfig struct {
	ID              uint8         // device id, 0x00-0x7F
	Timeout         time.Duration // per attempt
	Retries         int           // attempts before a command fails
	PollingInterval time.Duration
	EncryptAll      bool   // encrypt every command once a key is established
	FixedKey        string // 16 hex digits
	LoggerFactory   logging.LoggerFactory
	EventHandler    EventHandler
}

// DefaultSessionConfig returns the documented protocol defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ID:              DefaultDeviceID,
		Timeout:         DefaultTimeout,
		Retries:         DefaultRetries,
		PollingInterval: DefaultPollingInterval,
		EncryptAll:      true,
		FixedKey:        DefaultFixedKey,
	}
}

// Option modifies a SessionConfig
type Option func(*SessionConfig)

func WithID(id uint8) Option {
	return func(c *SessionConfig) { c.ID = id }
}

func WithTimeout(d time.Duration) Option {
	return func(c *SessionConfig) { c.Timeout = d }
}

func WithRetries(n int) Option {
	return func(c *SessionConfig) { c.Retries = n }
}

func WithPollingInterval(d time.Duration) Option {
	return func(c *SessionConfig) { c.PollingInterval = d }
}

// WithEncryptAll controls whether commands that do not require encryption
// are still encrypted once a key is established.
func WithEncryptAll(on bool) Option {
	return func(c *SessionConfig) { c.EncryptAll = on }
}

func WithFixedKey(hexKey string) Option {
	return func(c *SessionConfig) { c.FixedKey = hexKey }
}

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *SessionConfig) { c.LoggerFactory = f }
}

func WithEventHandler(h EventHandler) Option {
	return func(c *SessionConfig) { c.EventHandler = h }
}

// WithConfig replaces the whole configuration
func WithConfig(cfg SessionConfig) Option {
	return func(c *SessionConfig) { *c = cfg }
}
