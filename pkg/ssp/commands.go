// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"fmt"
	"sort"
	"strings"
)

// Command is an SSP command code
type Command uint8

// Commands - general
const (
	CmdReset               Command = 0x01
	CmdSetChannelInhibits  Command = 0x02
	CmdDisplayOn           Command = 0x03
	CmdDisplayOff          Command = 0x04
	CmdSetupRequest        Command = 0x05
	CmdHostProtocolVersion Command = 0x06
	CmdPoll                Command = 0x07
	CmdRejectBanknote      Command = 0x08
	CmdDisable             Command = 0x09
	CmdEnable              Command = 0x0A
	CmdGetSerialNumber     Command = 0x0C
	CmdUnitData            Command = 0x0D
	CmdChannelValueRequest Command = 0x0E
	CmdChannelSecurityData Command = 0x0F
	CmdChannelReTeachData  Command = 0x10
	CmdSync                Command = 0x11
	CmdLastRejectCode      Command = 0x17
	CmdHold                Command = 0x18
	CmdGetFirmwareVersion  Command = 0x20
	CmdGetDatasetVersion   Command = 0x21
)

// Commands - bar code
const (
	CmdGetAllLevels                  Command = 0x22
	CmdGetBarCodeReaderConfiguration Command = 0x23
	CmdSetBarCodeConfiguration       Command = 0x24
	CmdGetBarCodeInhibitStatus       Command = 0x25
	CmdSetBarCodeInhibitStatus       Command = 0x26
	CmdGetBarCodeData                Command = 0x27
)

// Commands - payout and hopper
const (
	CmdSetRefillMode              Command = 0x30
	CmdPayoutAmount               Command = 0x33
	CmdSetDenominationLevel       Command = 0x34
	CmdGetDenominationLevel       Command = 0x35
	CmdCommunicationPassThrough   Command = 0x37
	CmdHaltPayout                 Command = 0x38
	CmdSetDenominationRoute       Command = 0x3B
	CmdGetDenominationRoute       Command = 0x3C
	CmdFloatAmount                Command = 0x3D
	CmdGetMinimumPayout           Command = 0x3E
	CmdEmptyAll                   Command = 0x3F
	CmdSetCoinMechInhibits        Command = 0x40
	CmdGetNotePositions           Command = 0x41
	CmdPayoutNote                 Command = 0x42
	CmdStackNote                  Command = 0x43
	CmdFloatByDenomination        Command = 0x44
	CmdSetValueReportingType      Command = 0x45
	CmdPayoutByDenomination       Command = 0x46
	CmdSetCoinMechGlobalInhibit   Command = 0x49
	CmdSetBaudRate                Command = 0x4D
	CmdGetBuildRevision           Command = 0x4F
	CmdSetHopperOptions           Command = 0x50
	CmdGetHopperOptions           Command = 0x51
	CmdSmartEmpty                 Command = 0x52
	CmdCashboxPayoutOperationData Command = 0x53
	CmdConfigureBezel             Command = 0x54
	CmdPollWithAck                Command = 0x56
	CmdEventAck                   Command = 0x57
	CmdGetCounters                Command = 0x58
	CmdResetCounters              Command = 0x59
	CmdCoinMechOptions            Command = 0x5A
	CmdDisablePayoutDevice        Command = 0x5B
	CmdEnablePayoutDevice         Command = 0x5C
)

// Commands - encryption
const (
	CmdSetGenerator            Command = 0x4A
	CmdSetModulus              Command = 0x4B
	CmdRequestKeyExchange      Command = 0x4C
	CmdSetFixedEncryptionKey   Command = 0x60
	CmdResetFixedEncryptionKey Command = 0x61
	CmdRequestTEBSBarcode      Command = 0x65
	CmdRequestTEBSLog          Command = 0x66
	CmdTEBSUnlockEnable        Command = 0x67
	CmdTEBSUnlockDisable       Command = 0x68
)

type commandSpec struct {
	name      string
	args      bool // a non-empty argument block is mandatory
	encrypted bool // refused until a session key is established
}

var commandTable = map[Command]commandSpec{
	CmdReset:                         {name: "RESET"},
	CmdSetChannelInhibits:            {name: "SET_CHANNEL_INHIBITS", args: true},
	CmdDisplayOn:                     {name: "DISPLAY_ON"},
	CmdDisplayOff:                    {name: "DISPLAY_OFF"},
	CmdSetupRequest:                  {name: "SETUP_REQUEST"},
	CmdHostProtocolVersion:           {name: "HOST_PROTOCOL_VERSION", args: true},
	CmdPoll:                          {name: "POLL"},
	CmdRejectBanknote:                {name: "REJECT_BANKNOTE"},
	CmdDisable:                       {name: "DISABLE"},
	CmdEnable:                        {name: "ENABLE"},
	CmdGetSerialNumber:               {name: "GET_SERIAL_NUMBER"},
	CmdUnitData:                      {name: "UNIT_DATA"},
	CmdChannelValueRequest:           {name: "CHANNEL_VALUE_REQUEST"},
	CmdChannelSecurityData:           {name: "CHANNEL_SECURITY_DATA"},
	CmdChannelReTeachData:            {name: "CHANNEL_RE_TEACH_DATA"},
	CmdSync:                          {name: "SYNC"},
	CmdLastRejectCode:                {name: "LAST_REJECT_CODE"},
	CmdHold:                          {name: "HOLD"},
	CmdGetFirmwareVersion:            {name: "GET_FIRMWARE_VERSION"},
	CmdGetDatasetVersion:             {name: "GET_DATASET_VERSION"},
	CmdGetAllLevels:                  {name: "GET_ALL_LEVELS"},
	CmdGetBarCodeReaderConfiguration: {name: "GET_BAR_CODE_READER_CONFIGURATION"},
	CmdSetBarCodeConfiguration:       {name: "SET_BAR_CODE_CONFIGURATION", args: true},
	CmdGetBarCodeInhibitStatus:       {name: "GET_BAR_CODE_INHIBIT_STATUS"},
	CmdSetBarCodeInhibitStatus:       {name: "SET_BAR_CODE_INHIBIT_STATUS", args: true},
	CmdGetBarCodeData:                {name: "GET_BAR_CODE_DATA"},
	CmdSetRefillMode:                 {name: "SET_REFILL_MODE", args: true},
	CmdPayoutAmount:                  {name: "PAYOUT_AMOUNT", args: true, encrypted: true},
	CmdSetDenominationLevel:          {name: "SET_DENOMINATION_LEVEL", args: true, encrypted: true},
	CmdGetDenominationLevel:          {name: "GET_DENOMINATION_LEVEL", args: true},
	CmdCommunicationPassThrough:      {name: "COMMUNICATION_PASS_THROUGH"},
	CmdHaltPayout:                    {name: "HALT_PAYOUT", encrypted: true},
	CmdSetDenominationRoute:          {name: "SET_DENOMINATION_ROUTE", args: true},
	CmdGetDenominationRoute:          {name: "GET_DENOMINATION_ROUTE", args: true},
	CmdFloatAmount:                   {name: "FLOAT_AMOUNT", args: true, encrypted: true},
	CmdGetMinimumPayout:              {name: "GET_MINIMUM_PAYOUT"},
	CmdEmptyAll:                      {name: "EMPTY_ALL", encrypted: true},
	CmdSetCoinMechInhibits:           {name: "SET_COIN_MECH_INHIBITS", args: true},
	CmdGetNotePositions:              {name: "GET_NOTE_POSITIONS"},
	CmdPayoutNote:                    {name: "PAYOUT_NOTE", encrypted: true},
	CmdStackNote:                     {name: "STACK_NOTE", encrypted: true},
	CmdFloatByDenomination:           {name: "FLOAT_BY_DENOMINATION", args: true, encrypted: true},
	CmdSetValueReportingType:         {name: "SET_VALUE_REPORTING_TYPE", args: true},
	CmdPayoutByDenomination:          {name: "PAYOUT_BY_DENOMINATION", args: true, encrypted: true},
	CmdSetCoinMechGlobalInhibit:      {name: "SET_COIN_MECH_GLOBAL_INHIBIT", args: true},
	CmdSetGenerator:                  {name: "SET_GENERATOR", args: true},
	CmdSetModulus:                    {name: "SET_MODULUS", args: true},
	CmdRequestKeyExchange:            {name: "REQUEST_KEY_EXCHANGE", args: true},
	CmdSetBaudRate:                   {name: "SET_BAUD_RATE", args: true},
	CmdGetBuildRevision:              {name: "GET_BUILD_REVISION"},
	CmdSetHopperOptions:              {name: "SET_HOPPER_OPTIONS", args: true},
	CmdGetHopperOptions:              {name: "GET_HOPPER_OPTIONS"},
	CmdSmartEmpty:                    {name: "SMART_EMPTY", encrypted: true},
	CmdCashboxPayoutOperationData:    {name: "CASHBOX_PAYOUT_OPERATION_DATA"},
	CmdConfigureBezel:                {name: "CONFIGURE_BEZEL", args: true},
	CmdPollWithAck:                   {name: "POLL_WITH_ACK"},
	CmdEventAck:                      {name: "EVENT_ACK"},
	CmdGetCounters:                   {name: "GET_COUNTERS"},
	CmdResetCounters:                 {name: "RESET_COUNTERS"},
	CmdCoinMechOptions:               {name: "COIN_MECH_OPTIONS", args: true},
	CmdDisablePayoutDevice:           {name: "DISABLE_PAYOUT_DEVICE"},
	CmdEnablePayoutDevice:            {name: "ENABLE_PAYOUT_DEVICE"},
	CmdSetFixedEncryptionKey:         {name: "SET_FIXED_ENCRYPTION_KEY", args: true, encrypted: true},
	CmdResetFixedEncryptionKey:       {name: "RESET_FIXED_ENCRYPTION_KEY"},
	CmdRequestTEBSBarcode:            {name: "REQUEST_TEBS_BARCODE"},
	CmdRequestTEBSLog:                {name: "REQUEST_TEBS_LOG"},
	CmdTEBSUnlockEnable:              {name: "TEBS_UNLOCK_ENABLE"},
	CmdTEBSUnlockDisable:             {name: "TEBS_UNLOCK_DISABLE"},
}

// ParseCommand looks up a command by its protocol name, case-insensitively
func ParseCommand(name string) (Command, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for cmd, spec := range commandTable {
		if spec.name == upper {
			return cmd, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Commands returns every known command ordered by code
func Commands() []Command {
	cmds := make([]Command, 0, len(commandTable))
	for cmd := range commandTable {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	_, ok := commandTable[c]
	return ok
}

// Code returns the wire code
func (c Command) Code() byte {
	return byte(c)
}

// RequiresArgs reports whether the command must carry an argument block
func (c Command) RequiresArgs() bool {
	return commandTable[c].args
}

// RequiresEncryption reports whether the command is refused without a session key
func (c Command) RequiresEncryption() bool {
	return commandTable[c].encrypted
}

func (c Command) String() string {
	if spec, ok := commandTable[c]; ok {
		return spec.name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(c))
}

// MarshalText renders the command by name
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
