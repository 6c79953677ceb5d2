// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/Thermoquad/sspctl/pkg/ssp"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// wireFrame builds a stuffed frame around data, optionally with a broken CRC
func wireFrame(seq byte, data []byte, badCRC bool) []byte {
	core := append([]byte{seq, byte(len(data))}, data...)
	crc := ssp.CRCBytes(core)
	if badCRC {
		crc[0] ^= 0x01
	}
	core = append(core, crc[0], crc[1])
	return append([]byte{ssp.STX}, ssp.Stuff(core)...)
}

// ============================================================
// Prompt Parsing Tests
// ============================================================

func TestParsePromptLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantCmd  ssp.Command
		wantArgs ssp.Args
		wantErr  error
	}{
		{
			name:    "plain command",
			line:    "sync",
			wantCmd: ssp.CmdSync,
		},
		{
			name:     "command with arguments",
			line:     `SET_CHANNEL_INHIBITS {"channels":[true,false,true]}`,
			wantCmd:  ssp.CmdSetChannelInhibits,
			wantArgs: &ssp.ChannelInhibitArgs{Channels: []bool{true, false, true}},
		},
		{
			name:     "surrounding whitespace",
			line:     `  HOST_PROTOCOL_VERSION   {"version":6} `,
			wantCmd:  ssp.CmdHostProtocolVersion,
			wantArgs: &ssp.ProtocolVersionArgs{Version: 6},
		},
		{
			name:    "unknown command",
			line:    "MAKE_COFFEE",
			wantErr: ssp.ErrUnknownCommand,
		},
		{
			name:    "missing arguments",
			line:    "SET_CHANNEL_INHIBITS",
			wantErr: ssp.ErrArgsRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, args, err := parsePromptLine(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c != tt.wantCmd {
				t.Errorf("expected %s, got %s", tt.wantCmd, c)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("expected args %+v, got %+v", tt.wantArgs, args)
			}
		})
	}
}

func TestParseCommandArgs_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cmd  ssp.Command
		raw  string
	}{
		{"arguments for a bare command", ssp.CmdSync, `{"x":1}`},
		{"unknown field", ssp.CmdHostProtocolVersion, `{"version":6,"extra":true}`},
		{"malformed json", ssp.CmdSetChannelInhibits, `{"channels":[true`},
		{"wrong type", ssp.CmdHostProtocolVersion, `{"version":"six"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCommandArgs(tt.cmd, tt.raw); err == nil {
				t.Errorf("expected an error for %s %s", tt.cmd, tt.raw)
			}
		})
	}
}

// ============================================================
// Configuration Tests
// ============================================================

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logging.LogLevel
	}{
		{"off", logging.LogLevelDisabled},
		{"error", logging.LogLevelError},
		{"WARN", logging.LogLevelWarn},
		{"warning", logging.LogLevelWarn},
		{"info", logging.LogLevelInfo},
		{"Debug", logging.LogLevelDebug},
		{"trace", logging.LogLevelTrace},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := parseLogLevel("loud"); err == nil {
		t.Errorf("expected an error for an unknown level")
	}
}

func TestParseSessionKey(t *testing.T) {
	key, err := parseSessionKey(" 00112233445566778899aabbccddeeff\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != ssp.KeySize || key[0] != 0x00 || key[15] != 0xFF {
		t.Errorf("unexpected key % X", key)
	}

	for _, bad := range []string{"0011", "zz112233445566778899aabbccddeeff", ""} {
		if _, err := parseSessionKey(bad); err == nil {
			t.Errorf("expected an error for %q", bad)
		}
	}
}

func TestResolveFixedKey(t *testing.T) {
	saved := fixedKey
	t.Cleanup(func() { fixedKey = saved })

	fixedKey = ""
	t.Setenv("SSP_FIXED_KEY", "")
	if got := resolveFixedKey(); got != ssp.DefaultFixedKey {
		t.Errorf("expected the default key, got %q", got)
	}

	t.Setenv("SSP_FIXED_KEY", "1122334411223344")
	if got := resolveFixedKey(); got != "1122334411223344" {
		t.Errorf("expected the environment key, got %q", got)
	}

	fixedKey = "AABBCCDDAABBCCDD"
	if got := resolveFixedKey(); got != "AABBCCDDAABBCCDD" {
		t.Errorf("expected the flag to win, got %q", got)
	}
}

func TestSessionConfig(t *testing.T) {
	saved := noEncryptAll
	t.Cleanup(func() { noEncryptAll = saved })

	noEncryptAll = true
	cfg := sessionConfig(0x10)
	if cfg.ID != 0x10 {
		t.Errorf("expected id 0x10, got 0x%02X", cfg.ID)
	}
	if cfg.EncryptAll {
		t.Errorf("expected EncryptAll off with --no-encrypt-all")
	}
}

// ============================================================
// Sniffer Tests
// ============================================================

func TestSniffer_SyncAndValidate(t *testing.T) {
	sn := newSniffer()

	var syncs []int
	var msgs []serialDataMsg
	onSync := func(skipped int) { syncs = append(syncs, skipped) }
	onFrame := func(msg serialDataMsg) { msgs = append(msgs, msg) }

	// Two corrupted frames before the first good one are only counted
	var stream []byte
	stream = append(stream, wireFrame(0x80, []byte{byte(ssp.CmdSync)}, true)...)
	stream = append(stream, wireFrame(0x80, []byte{byte(ssp.StatusOK)}, true)...)
	stream = append(stream, wireFrame(0x80, []byte{byte(ssp.CmdSync)}, false)...)
	sn.feed(stream, onSync, onFrame)

	if !reflect.DeepEqual(syncs, []int{2}) {
		t.Fatalf("expected one sync after 2 bad frames, got %v", syncs)
	}
	if len(msgs) != 1 || msgs[0].decodeErr != nil || len(msgs[0].validationErrors) != 0 {
		t.Fatalf("expected one clean frame, got %+v", msgs)
	}

	// After sync every failure is reported
	msgs = nil
	stream = nil
	stream = append(stream, wireFrame(0x00, []byte{byte(ssp.StatusOK)}, true)...)
	stream = append(stream, wireFrame(0x00, []byte{0x7D}, false)...)
	stream = append(stream, wireFrame(0x00, []byte{byte(ssp.CmdSetChannelInhibits)}, false)...)
	sn.feed(stream, onSync, onFrame)

	if len(syncs) != 1 {
		t.Errorf("sync must only be reported once, got %v", syncs)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(msgs))
	}
	if !errors.Is(msgs[0].decodeErr, ssp.ErrWrongCRC) {
		t.Errorf("expected a CRC error, got %v", msgs[0].decodeErr)
	}
	if len(msgs[1].validationErrors) != 1 || msgs[1].validationErrors[0].Type != ssp.AnomalyUnknownCommand {
		t.Errorf("expected an unknown command anomaly, got %+v", msgs[1].validationErrors)
	}
	if len(msgs[2].validationErrors) != 1 || msgs[2].validationErrors[0].Type != ssp.AnomalyMissingArgs {
		t.Errorf("expected a missing arguments anomaly, got %+v", msgs[2].validationErrors)
	}
}

func TestSniffer_SplitChunks(t *testing.T) {
	sn := newSniffer()
	frame := wireFrame(0x85, []byte{byte(ssp.StatusOK), 0x7F, 0x01}, false)

	var msgs []serialDataMsg
	for i := range frame {
		sn.feed(frame[i:i+1], func(int) {}, func(msg serialDataMsg) { msgs = append(msgs, msg) })
	}

	if len(msgs) != 1 || msgs[0].frame == nil {
		t.Fatalf("expected one frame from byte-sized chunks, got %+v", msgs)
	}
	if got := msgs[0].frame.Data(); !reflect.DeepEqual(got, []byte{byte(ssp.StatusOK), 0x7F, 0x01}) {
		t.Errorf("unexpected data % X", got)
	}
	if msgs[0].frame.DeviceID() != 0x05 {
		t.Errorf("expected device 0x05, got 0x%02X", msgs[0].frame.DeviceID())
	}
}

// ============================================================
// Dashboard Model Tests
// ============================================================

func TestModel_TracksDevices(t *testing.T) {
	m := initialModel("test", 10, false)

	feed := func(seq byte, data []byte) {
		frame, err := ssp.ParseFrame(ssp.Unstuff(wireFrame(seq, data, false)))
		if err != nil {
			t.Fatalf("ParseFrame failed: %v", err)
		}
		next, _ := m.Update(serialDataMsg{frame: frame, validationErrors: ssp.ValidateFrame(frame)})
		m = next.(model)
	}

	feed(0x80, []byte{byte(ssp.CmdPoll)})
	feed(0x80, []byte{byte(ssp.StatusOK)})
	feed(0x10, []byte{byte(ssp.CmdSync)})
	feed(0x10, []byte{byte(ssp.StatusFail)})

	if len(m.devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(m.devices))
	}
	dev := m.devices[0x00]
	if dev.frames != 2 || dev.lastCommand != ssp.CmdPoll.String() || dev.lastStatus != ssp.StatusOK.String() {
		t.Errorf("unexpected activity for 0x00: %+v", dev)
	}
	dev = m.devices[0x10]
	if dev.failures != 1 {
		t.Errorf("expected 1 failure for 0x10, got %d", dev.failures)
	}
	if m.stats.TotalFrames != 4 || m.stats.ValidFrames != 4 {
		t.Errorf("unexpected statistics: total %d valid %d", m.stats.TotalFrames, m.stats.ValidFrames)
	}
}

func TestEventItem(t *testing.T) {
	poll := &ssp.PollEvent{Code: 0xEE, Name: ssp.EventCreditNote, Channel: 2}
	item := eventItem{event: ssp.Event{Name: ssp.EventCreditNote, Poll: poll}}

	if item.FilterValue() != ssp.EventCreditNote.String() {
		t.Errorf("unexpected filter value %q", item.FilterValue())
	}
	if got := item.Description(); got != "(0xEE) channel=2" {
		t.Errorf("unexpected description %q", got)
	}
}

// ============================================================
// Connection Tests
// ============================================================

func TestCheckBaudRate(t *testing.T) {
	for _, rate := range []int{9600, 38400, 115200} {
		if err := checkBaudRate(rate); err != nil {
			t.Errorf("%d: unexpected error: %v", rate, err)
		}
	}
	for _, rate := range []int{0, 19200, 57600} {
		if err := checkBaudRate(rate); err == nil {
			t.Errorf("%d: expected an error", rate)
		}
	}
}

func TestWebSocketConnection_BridgeTraffic(t *testing.T) {
	frame := wireFrame(0x80, []byte{byte(ssp.StatusOK)}, false)
	echoed := make(chan []byte, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		// Status text from the bridge is not bus traffic
		_ = c.WriteMessage(websocket.TextMessage, []byte("bridge: uart open"))
		_ = c.WriteMessage(websocket.BinaryMessage, frame)

		if _, data, err := c.ReadMessage(); err == nil {
			echoed <- data
		}
	}))
	defer srv.Close()

	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(buf[:n], frame) {
		t.Errorf("expected % X, got % X", frame, buf[:n])
	}

	sync := wireFrame(0x80, []byte{byte(ssp.CmdSync)}, false)
	if _, err := conn.Write(sync); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := <-echoed; !bytes.Equal(got, sync) {
		t.Errorf("bridge received % X, want % X", got, sync)
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := conn.Read(buf); err == nil {
		t.Errorf("expected a read error after Close")
	}
}

func TestOpenWebSocketConnection_BadScheme(t *testing.T) {
	if _, err := OpenWebSocketConnection("http://bridge.local/ssp", "", "", false); err == nil {
		t.Errorf("expected an error for an http URL")
	}
}
