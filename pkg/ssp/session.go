// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
)

const (
	frameQueueSize = 16
	readBufferSize = 512
	closeTimeout   = time.Second
)

// Transaction records one attempt of a command: what was sent and what came
// back. It is carried by DEBUG events.
type Transaction struct {
	Command     Command   `cbor:"1,keyasint" json:"command"`
	Attempt     int       `cbor:"2,keyasint" json:"attempt"`
	TxTime      time.Time `cbor:"3,keyasint" json:"tx_time"`
	TxEncrypted []byte    `cbor:"4,keyasint,omitempty" json:"tx_encrypted,omitempty"`
	TxPlain     []byte    `cbor:"5,keyasint" json:"tx_plain"`
	RxTime      time.Time `cbor:"6,keyasint" json:"rx_time"`
	RxEncrypted []byte    `cbor:"7,keyasint,omitempty" json:"rx_encrypted,omitempty"`
	RxPlain     []byte    `cbor:"8,keyasint,omitempty" json:"rx_plain,omitempty"`
	Error       string    `cbor:"9,keyasint,omitempty" json:"error,omitempty"`
}

// State is a snapshot of the session state
type State struct {
	Sequence          byte
	EncryptionCounter uint32
	Processing        bool
	Enabled           bool
	Polling           bool
	ProtocolVersion   uint8
	UnitType          UnitType
	Keys              *KeyPair
	SessionKey        *SessionKey
}

// Encrypted reports whether a session key has been negotiated
func (s State) Encrypted() bool {
	return s.SessionKey != nil
}

type sessionState struct {
	sequence        byte
	eCount          uint32
	processing      bool
	enabled         bool
	polling         bool
	protocolVersion uint8
	unitType        UnitType
	keys            *KeyPair
	sessionKey      *SessionKey
}

// pending is a command that passed admission and owns the link
type pending struct {
	cmd       Command
	seq       byte
	packet    []byte
	plain     []byte
	encrypted bool
}

type outcome int

const (
	outcomeRetry outcome = iota
	outcomeAnswered
	outcomeFatal
)

// Session drives one SSP device over a byte link.
//
// At most one command is in flight. Commands issued while another is running
// fail with ErrAlreadyProcessing instead of queueing.
type Session struct {
	link     io.ReadWriter
	cfg      SessionConfig
	fixedKey []byte
	log      logging.LeveledLogger

	mu        sync.Mutex
	state     sessionState
	idle      chan struct{} // closed while no command is in flight
	pollTimer *time.Timer
	pollGen   uint64
	stats     *Statistics
	opened    bool
	closed    bool

	frames     chan []byte
	ctx        context.Context
	cancel     context.CancelFunc
	readerDone chan struct{}
}

// NewSession creates a session over link. The session does not touch the
// link until Open is called.
func NewSession(link io.ReadWriter, opts ...Option) (*Session, error) {
	if link == nil {
		return nil, errors.New("link is nil")
	}

	cfg := DefaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ID > MaxDeviceID {
		return nil, fmt.Errorf("device id 0x%02X out of range (max 0x%02X)", cfg.ID, MaxDeviceID)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollingInterval < 0 {
		cfg.PollingInterval = 0
	}

	fixedKey, err := ParseFixedKey(cfg.FixedKey)
	if err != nil {
		return nil, err
	}

	idle := make(chan struct{})
	close(idle)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		link:       link,
		cfg:        cfg,
		fixedKey:   fixedKey,
		idle:       idle,
		stats:      NewStatistics(),
		frames:     make(chan []byte, frameQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		readerDone: make(chan struct{}),
		state: sessionState{
			sequence: SequenceFlag,
			unitType: UnitUnknown,
		},
	}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("ssp")
	}
	return s, nil
}

// Config returns the effective configuration
func (s *Session) Config() SessionConfig {
	return s.cfg
}

// Open starts reading from the link and emits OPEN
func (s *Session) Open() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session closed", ErrNotOpen)
	}
	if s.opened {
		s.mu.Unlock()
		return errors.New("session already open")
	}
	s.opened = true
	s.stats.Reset()
	s.mu.Unlock()

	go s.readLoop()

	if s.log != nil {
		s.log.Infof("session open (id 0x%02X)", s.cfg.ID)
	}
	s.emit(Event{Name: EventOpen, Time: time.Now()})
	return nil
}

// Close stops polling, closes the link if it is closable and emits CLOSE.
// Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	opened := s.opened
	s.stopPollingLocked()
	s.mu.Unlock()

	s.cancel()

	var err error
	if c, ok := s.link.(io.Closer); ok {
		err = c.Close()
	}

	if opened {
		select {
		case <-s.readerDone:
		case <-time.After(closeTimeout):
			if s.log != nil {
				s.log.Warn("reader did not stop after close")
			}
		}
	}

	if s.log != nil {
		s.log.Info("session closed")
	}
	s.emit(Event{Name: EventClose, Time: time.Now()})
	return err
}

// readLoop owns the decoder and hands complete frames to the command in flight
func (s *Session) readLoop() {
	defer close(s.readerDone)

	dec := NewDecoder()
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.link.Read(buf)
		if n > 0 {
			if s.log != nil {
				s.log.Tracef("RX % X", buf[:n])
			}
			for _, frame := range dec.Decode(buf[:n]) {
				select {
				case s.frames <- frame:
				default:
					if s.log != nil {
						s.log.Warnf("frame queue full, dropping % X", frame)
					}
				}
			}
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if s.log != nil {
				s.log.Errorf("read failed: %v", err)
			}
			s.emit(Event{Name: EventError, Time: time.Now(), Err: fmt.Errorf("%w: %w", ErrLinkLost, err)})
			return
		}
	}
}

// State returns a snapshot of the session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Sequence:          s.state.sequence,
		EncryptionCounter: s.state.eCount,
		Processing:        s.state.processing,
		Enabled:           s.state.enabled,
		Polling:           s.state.polling,
		ProtocolVersion:   s.state.protocolVersion,
		UnitType:          s.state.unitType,
	}
	if s.state.keys != nil {
		k := *s.state.keys
		st.Keys = &k
	}
	if s.state.sessionKey != nil {
		k := *s.state.sessionKey
		k.EncryptKey = append([]byte(nil), k.EncryptKey...)
		st.SessionKey = &k
	}
	return st
}

// Stats returns a copy of the session statistics
func (s *Session) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.stats
}

// ResetStats clears the session statistics
func (s *Session) ResetStats() {
	s.mu.Lock()
	s.stats.Reset()
	s.mu.Unlock()
}

// Idle returns a channel that is closed once no command is in flight.
// The channel is replaced every time a command starts, so callers should
// fetch it again after it fires.
func (s *Session) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// Execute sends cmd with args and waits for the reply, retrying on timeouts
// and corrupted replies. A reply with a status other than OK is returned
// together with a *CommandError.
func (s *Session) Execute(ctx context.Context, cmd Command, args Args) (*Response, error) {
	p, err := s.begin(cmd, args)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, p)
}

func (s *Session) begin(cmd Command, args Args) (*pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(cmd, args)
}

// beginLocked admits cmd and marks the session busy
func (s *Session) beginLocked(cmd Command, args Args) (*pending, error) {
	if !s.opened || s.closed {
		return nil, ErrNotOpen
	}
	if !cmd.Valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(cmd))
	}
	if cmd.RequiresEncryption() && s.state.sessionKey == nil {
		return nil, fmt.Errorf("%s: %w", cmd, ErrEncryptionRequired)
	}
	if s.state.processing {
		return nil, fmt.Errorf("%s: %w", cmd, ErrAlreadyProcessing)
	}

	argBytes, err := EncodeArgs(cmd, args, s.state.protocolVersion)
	if err != nil {
		return nil, err
	}

	if cmd == CmdSync {
		s.state.sequence = SequenceFlag
	}
	seq := s.cfg.ID&DeviceIDMask | s.state.sequence

	encrypted := s.state.sessionKey != nil && (cmd.RequiresEncryption() || s.cfg.EncryptAll)
	var key []byte
	if encrypted {
		key = s.state.sessionKey.EncryptKey
	}

	packet, err := BuildPacket(cmd, argBytes, seq, key, s.state.eCount)
	if err != nil {
		return nil, err
	}
	plain := packet
	if encrypted {
		if plain, err = BuildPacket(cmd, argBytes, seq, nil, 0); err != nil {
			return nil, err
		}
	}

	s.state.processing = true
	s.idle = make(chan struct{})
	s.stats.Commands++

	return &pending{
		cmd:       cmd,
		seq:       seq,
		packet:    packet,
		plain:     plain,
		encrypted: encrypted,
	}, nil
}

func (s *Session) run(ctx context.Context, p *pending) (*Response, error) {
	if s.log != nil {
		s.log.Debugf("%s: start (seq 0x%02X, encrypted %t)", p.cmd, p.seq, p.encrypted)
	}

	resp, answered, err := s.transact(ctx, p)

	s.mu.Lock()
	if answered {
		s.state.sequence ^= SequenceFlag
	}
	s.state.processing = false
	close(s.idle)
	if err == nil && resp != nil && !resp.Success {
		s.stats.CommandErrors++
	}
	if err != nil && !answered {
		s.stats.Failures++
	}
	s.mu.Unlock()

	if err != nil {
		if s.log != nil {
			s.log.Debugf("%s: %v", p.cmd, err)
		}
		return resp, err
	}
	if s.log != nil {
		s.log.Debugf("%s: %s", p.cmd, resp.Status)
	}
	if !resp.Success {
		return resp, &CommandError{Response: resp}
	}
	return resp, nil
}

// transact runs the attempt loop. answered reports whether the device
// replied with a valid frame carrying the expected sequence flag.
func (s *Session) transact(ctx context.Context, p *pending) (*Response, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		resp, out, err := s.attempt(ctx, p, attempt)
		switch out {
		case outcomeAnswered:
			return resp, true, err
		case outcomeFatal:
			return nil, false, err
		}

		lastErr = err
		if attempt < s.cfg.Retries {
			s.mu.Lock()
			s.stats.Retries++
			s.mu.Unlock()
			if s.log != nil {
				s.log.Warnf("%s: attempt %d/%d failed: %v", p.cmd, attempt, s.cfg.Retries, err)
			}
		}
	}
	return nil, false, &RetryError{Command: p.cmd, Attempts: s.cfg.Retries, Err: lastErr}
}

func (s *Session) attempt(ctx context.Context, p *pending, n int) (resp *Response, out outcome, err error) {
	tr := &Transaction{Command: p.cmd, Attempt: n, TxPlain: p.plain}
	if p.encrypted {
		tr.TxEncrypted = p.packet
	}
	defer func() {
		if err != nil {
			tr.Error = err.Error()
		}
		s.emit(Event{Name: EventDebug, Time: tr.TxTime, Transaction: tr})
	}()

	s.drainFrames()

	s.mu.Lock()
	s.stats.Attempts++
	s.mu.Unlock()

	tr.TxTime = time.Now()
	if s.log != nil {
		s.log.Tracef("TX %s % X", p.cmd, p.packet)
	}
	if _, err := s.link.Write(p.packet); err != nil {
		return nil, outcomeFatal, fmt.Errorf("%s: write: %w", p.cmd, err)
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	var frame []byte
	select {
	case frame = <-s.frames:
	case <-timer.C:
		s.mu.Lock()
		s.stats.Timeouts++
		s.mu.Unlock()
		return nil, outcomeRetry, fmt.Errorf("%s: %w after %v", p.cmd, ErrTimeout, s.cfg.Timeout)
	case <-ctx.Done():
		return nil, outcomeFatal, ctx.Err()
	case <-s.readerDone:
		return nil, outcomeFatal, fmt.Errorf("%s: %w: link closed", p.cmd, ErrNotOpen)
	}
	tr.RxTime = time.Now()

	s.mu.Lock()
	var key []byte
	if s.state.sessionKey != nil {
		key = s.state.sessionKey.EncryptKey
	}
	eCount := s.state.eCount
	s.mu.Unlock()

	data, err := ExtractPacketData(frame, key, eCount)
	if err != nil {
		s.mu.Lock()
		switch {
		case errors.Is(err, ErrWrongCRC):
			s.stats.CRCErrors++
		case errors.Is(err, ErrCounterMismatch):
			s.stats.CounterMismatches++
		case errors.Is(err, ErrDecryption), errors.Is(err, ErrInvalidKey):
			s.stats.DecryptErrors++
		default:
			s.stats.DecodeErrors++
		}
		s.mu.Unlock()
		return nil, outcomeRetry, fmt.Errorf("%s: %w", p.cmd, err)
	}

	if key != nil && IsEncryptedFrame(frame) {
		tr.RxEncrypted = frame
	}
	tr.RxPlain = plainFrame(frame[1], data)

	if frame[1] != p.seq {
		s.mu.Lock()
		s.stats.SequenceMismatches++
		s.mu.Unlock()
		return nil, outcomeRetry, fmt.Errorf("%s: %w: sent 0x%02X, got 0x%02X", p.cmd, ErrSequenceMismatch, p.seq, frame[1])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The counter follows every accepted envelope, decodable or not
	if key != nil && IsEncryptedFrame(frame) {
		s.state.eCount++
	}

	resp, err = ParseResponse(p.cmd, data, s.state.protocolVersion, s.state.unitType)
	if err != nil {
		s.stats.DecodeErrors++
		return nil, outcomeRetry, err
	}
	s.stats.ValidResponses++
	return resp, outcomeAnswered, s.interpretLocked(resp)
}

// interpretLocked applies the side effects of a decoded reply
func (s *Session) interpretLocked(resp *Response) error {
	if !resp.Success {
		if resp.Command == CmdHostProtocolVersion {
			s.state.protocolVersion = 0
		}
		return nil
	}

	switch info := resp.Info.(type) {
	case *KeyExchangeInfo:
		if s.state.keys == nil {
			return &KeyExchangeError{Step: resp.Command, Err: errors.New("no host key pair")}
		}
		key, err := DeriveSessionKey(info.Key, s.fixedKey, s.state.keys.HostRandom, s.state.keys.Modulus)
		if err != nil {
			return &KeyExchangeError{Step: resp.Command, Err: err}
		}
		s.state.sessionKey = key
		if s.log != nil {
			s.log.Debugf("session key negotiated: % X", key.EncryptKey)
		}
	case *SetupInfo:
		s.state.protocolVersion = info.ProtocolVersion
		s.state.unitType = info.UnitType
	case *UnitDataInfo:
		s.state.unitType = info.UnitType
	}
	return nil
}

func (s *Session) drainFrames() {
	for {
		select {
		case frame := <-s.frames:
			if s.log != nil {
				s.log.Debugf("discarding stale frame % X", frame)
			}
		default:
			return
		}
	}
}

// plainFrame rebuilds an unstuffed plain frame around data for DEBUG records
func plainFrame(seq byte, data []byte) []byte {
	core := make([]byte, 0, len(data)+4)
	core = append(core, seq, byte(len(data)))
	core = append(core, data...)
	core = appendCRC(core)
	return append([]byte{STX}, core...)
}

// InitEncryption negotiates a new session key: SET_GENERATOR, SET_MODULUS
// and REQUEST_KEY_EXCHANGE are sent in plain text and the key is derived
// from the device's reply.
func (s *Session) InitEncryption(ctx context.Context) (*Response, error) {
	keys, err := GenerateKeyPair()
	if err != nil {
		return nil, &KeyExchangeError{Step: CmdSetGenerator, Err: err}
	}
	return s.exchangeKeys(ctx, keys)
}

func (s *Session) exchangeKeys(ctx context.Context, keys *KeyPair) (*Response, error) {
	s.mu.Lock()
	if s.state.processing {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", CmdSetGenerator, ErrAlreadyProcessing)
	}
	s.state.keys = keys
	s.state.sessionKey = nil
	s.state.eCount = 0
	s.mu.Unlock()

	steps := []struct {
		cmd Command
		key uint64
	}{
		{CmdSetGenerator, keys.Generator},
		{CmdSetModulus, keys.Modulus},
		{CmdRequestKeyExchange, keys.HostInter},
	}

	var resp *Response
	var err error
	for _, step := range steps {
		resp, err = s.Execute(ctx, step.cmd, &KeyArgs{Key: step.key})
		if err != nil {
			var kx *KeyExchangeError
			if errors.As(err, &kx) {
				return resp, err
			}
			return resp, &KeyExchangeError{Step: step.cmd, Err: err}
		}
	}

	if s.log != nil {
		s.log.Info("encryption established")
	}
	return resp, nil
}

// Enable sends ENABLE and starts polling
func (s *Session) Enable(ctx context.Context) (*Response, error) {
	resp, err := s.Execute(ctx, CmdEnable, nil)
	if err != nil {
		return resp, err
	}

	s.mu.Lock()
	s.state.enabled = true
	polling := s.state.polling
	s.mu.Unlock()

	if !polling {
		if _, err := s.Poll(ctx, true); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Disable stops polling and sends DISABLE
func (s *Session) Disable(ctx context.Context) (*Response, error) {
	s.mu.Lock()
	polling := s.state.polling
	s.mu.Unlock()

	if polling {
		if _, err := s.Poll(ctx, false); err != nil {
			return nil, err
		}
	}

	resp, err := s.Execute(ctx, CmdDisable, nil)
	if err != nil {
		return resp, err
	}

	s.mu.Lock()
	s.state.enabled = false
	s.mu.Unlock()
	return resp, nil
}

// Poll starts or stops the poll loop.
//
// Starting runs the first cycle immediately and returns its response; later
// cycles are scheduled every PollingInterval measured from the start of the
// previous cycle. Starting an active loop is a no-op. Every event in a poll
// reply is delivered to the event handler. A failed cycle stops the loop.
func (s *Session) Poll(ctx context.Context, run bool) (*Response, error) {
	s.mu.Lock()
	if err := s.waitIdleLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if !run {
		s.stopPollingLocked()
		s.mu.Unlock()
		if s.log != nil {
			s.log.Debug("polling stopped")
		}
		return nil, nil
	}

	if s.state.polling {
		s.mu.Unlock()
		return nil, nil
	}
	s.state.polling = true
	s.pollGen++
	return s.pollLocked(ctx, s.pollGen)
}

// pollLocked runs one poll cycle. It is entered with s.mu held and
// returns with it released.
func (s *Session) pollLocked(ctx context.Context, gen uint64) (*Response, error) {
	start := time.Now()

	p, err := s.beginLocked(CmdPoll, nil)
	if err != nil {
		s.stopPollingLocked()
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	resp, err := s.run(ctx, p)
	if err != nil {
		s.mu.Lock()
		if s.pollGen == gen {
			s.stopPollingLocked()
		}
		s.mu.Unlock()
		if s.log != nil {
			s.log.Errorf("poll failed, polling stopped: %v", err)
		}
		return resp, err
	}

	events := resp.Events()
	now := time.Now()
	for i := range events {
		s.emit(Event{Name: events[i].Name, Time: now, Poll: &events[i]})
	}

	s.mu.Lock()
	s.stats.PollEvents += uint64(len(events))
	if s.state.polling && s.pollGen == gen {
		delay := s.cfg.PollingInterval - time.Since(start)
		if delay < 0 {
			delay = 0
		}
		s.pollTimer = time.AfterFunc(delay, func() { s.scheduledPoll(gen) })
	}
	s.mu.Unlock()
	return resp, nil
}

func (s *Session) scheduledPoll(gen uint64) {
	s.mu.Lock()
	if err := s.waitIdleLocked(s.ctx); err != nil {
		s.mu.Unlock()
		return
	}
	if !s.state.polling || s.pollGen != gen {
		s.mu.Unlock()
		return
	}

	if _, err := s.pollLocked(s.ctx, gen); err != nil && s.ctx.Err() == nil {
		s.emit(Event{Name: EventError, Time: time.Now(), Err: err})
	}
}

// waitIdleLocked blocks until no command is in flight. s.mu is released
// while waiting and held again on return.
func (s *Session) waitIdleLocked(ctx context.Context) error {
	for s.state.processing {
		idle := s.idle
		s.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			s.mu.Lock()
			return ctx.Err()
		}
		s.mu.Lock()
	}
	return nil
}

func (s *Session) stopPollingLocked() {
	s.state.polling = false
	s.pollGen++
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
}

func (s *Session) emit(e Event) {
	if s.cfg.EventHandler != nil {
		s.cfg.EventHandler.HandleEvent(e)
	}
}
