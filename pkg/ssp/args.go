// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"
)

// Args encodes a command's argument block for a protocol version.
type Args interface {
	Encode(protocolVersion uint8) ([]byte, error)
}

// Test byte appended to payout requests from protocol 6 on
const (
	payoutExecute = 0x58
	payoutTest    = 0x19
)

// EncodeArgs encodes args for cmd. A nil args yields an empty block.
// Passing an argument type that does not belong to cmd is an error.
func EncodeArgs(cmd Command, args Args, protocolVersion uint8) ([]byte, error) {
	if args == nil {
		return nil, nil
	}
	if v := reflect.ValueOf(args); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, fmt.Errorf("%s: nil %T arguments", cmd, args)
	}
	want := ArgsFor(cmd)
	if want == nil {
		return nil, fmt.Errorf("%s takes no arguments", cmd)
	}
	if reflect.TypeOf(want) != reflect.TypeOf(args) {
		return nil, fmt.Errorf("%s: expected %T arguments, got %T", cmd, want, args)
	}
	b, err := args.Encode(protocolVersion)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return b, nil
}

// ArgsFor returns a zero value of the argument type cmd accepts,
// or nil when the command takes no arguments.
func ArgsFor(cmd Command) Args {
	switch cmd {
	case CmdSetGenerator, CmdSetModulus, CmdRequestKeyExchange:
		return &KeyArgs{}
	case CmdSetChannelInhibits:
		return &ChannelInhibitArgs{}
	case CmdHostProtocolVersion:
		return &ProtocolVersionArgs{}
	case CmdSetDenominationRoute:
		return &DenominationRouteArgs{}
	case CmdGetDenominationRoute:
		return &DenominationArgs{}
	case CmdSetDenominationLevel:
		return &DenominationLevelArgs{}
	case CmdGetDenominationLevel:
		return &AmountArgs{}
	case CmdSetRefillMode:
		return &RefillModeArgs{}
	case CmdSetBarCodeConfiguration:
		return &BarCodeConfigArgs{}
	case CmdSetBarCodeInhibitStatus:
		return &BarCodeInhibitArgs{}
	case CmdPayoutAmount:
		return &PayoutAmountArgs{}
	case CmdFloatAmount:
		return &FloatAmountArgs{}
	case CmdSetCoinMechInhibits:
		return &CoinMechInhibitArgs{}
	case CmdFloatByDenomination, CmdPayoutByDenomination:
		return &DenominationListArgs{}
	case CmdSetValueReportingType:
		return &ValueReportingArgs{}
	case CmdSetBaudRate:
		return &BaudRateArgs{}
	case CmdConfigureBezel:
		return &BezelArgs{}
	case CmdEnablePayoutDevice:
		return &PayoutDeviceArgs{}
	case CmdSetFixedEncryptionKey:
		return &FixedKeyArgs{}
	case CmdCoinMechOptions:
		return &CoinMechOptionsArgs{}
	case CmdSetCoinMechGlobalInhibit:
		return &GlobalInhibitArgs{}
	case CmdSetHopperOptions:
		return &HopperOptionsArgs{}
	default:
		return nil
	}
}

func countryCode(cc string) ([]byte, error) {
	if len(cc) != 3 {
		return nil, fmt.Errorf("country code %q must be 3 characters", cc)
	}
	for i := 0; i < len(cc); i++ {
		if cc[i] > 0x7F {
			return nil, fmt.Errorf("country code %q must be ASCII", cc)
		}
	}
	return []byte(cc), nil
}

func testByte(test bool) byte {
	if test {
		return payoutTest
	}
	return payoutExecute
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// KeyArgs carries a key exchange value (SET_GENERATOR, SET_MODULUS, REQUEST_KEY_EXCHANGE)
type KeyArgs struct {
	Key uint64 `json:"key"`
}

func (a *KeyArgs) Encode(uint8) ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, a.Key), nil
}

// ChannelInhibitArgs enables channels; index 0 is channel 1
type ChannelInhibitArgs struct {
	Channels []bool `json:"channels"`
}

func (a *ChannelInhibitArgs) Encode(uint8) ([]byte, error) {
	if len(a.Channels) > 16 {
		return nil, fmt.Errorf("at most 16 channels, got %d", len(a.Channels))
	}
	var mask uint16
	for i, on := range a.Channels {
		if on {
			mask |= 1 << i
		}
	}
	return binary.LittleEndian.AppendUint16(nil, mask), nil
}

type ProtocolVersionArgs struct {
	Version uint8 `json:"version"`
}

func (a *ProtocolVersionArgs) Encode(uint8) ([]byte, error) {
	return []byte{a.Version}, nil
}

// Routes for SET_DENOMINATION_ROUTE
const (
	RoutePayout  = "payout"
	RouteCashbox = "cashbox"
)

type DenominationRouteArgs struct {
	Route       string `json:"route"`
	Value       uint32 `json:"value"`
	CountryCode string `json:"country_code"`
	IsHopper    bool   `json:"isHopper"`
}

func (a *DenominationRouteArgs) Encode(pv uint8) ([]byte, error) {
	route := byte(1)
	if a.Route == RoutePayout {
		route = 0
	}
	value, err := (&DenominationArgs{Value: a.Value, CountryCode: a.CountryCode, IsHopper: a.IsHopper}).Encode(pv)
	if err != nil {
		return nil, err
	}
	return append([]byte{route}, value...), nil
}

// DenominationArgs selects a denomination (GET_DENOMINATION_ROUTE)
type DenominationArgs struct {
	Value       uint32 `json:"value"`
	CountryCode string `json:"country_code"`
	IsHopper    bool   `json:"isHopper"`
}

func (a *DenominationArgs) Encode(pv uint8) ([]byte, error) {
	if pv >= 6 {
		cc, err := countryCode(a.CountryCode)
		if err != nil {
			return nil, err
		}
		return append(binary.LittleEndian.AppendUint32(nil, a.Value), cc...), nil
	}
	if a.IsHopper {
		if a.Value > 0xFFFF {
			return nil, fmt.Errorf("hopper value %d exceeds 16 bits", a.Value)
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(a.Value)), nil
	}
	return binary.LittleEndian.AppendUint32(nil, a.Value), nil
}

type DenominationLevelArgs struct {
	Value        uint16 `json:"value"`
	Denomination uint32 `json:"denomination"`
	CountryCode  string `json:"country_code"`
}

func (a *DenominationLevelArgs) Encode(pv uint8) ([]byte, error) {
	out := binary.LittleEndian.AppendUint16(nil, a.Value)
	if pv >= 6 {
		cc, err := countryCode(a.CountryCode)
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint32(out, a.Denomination)
		return append(out, cc...), nil
	}
	if a.Denomination > 0xFFFF {
		return nil, fmt.Errorf("denomination %d exceeds 16 bits", a.Denomination)
	}
	return binary.LittleEndian.AppendUint16(out, uint16(a.Denomination)), nil
}

// AmountArgs selects a value (GET_DENOMINATION_LEVEL)
type AmountArgs struct {
	Amount      uint32 `json:"amount"`
	CountryCode string `json:"country_code"`
}

func (a *AmountArgs) Encode(pv uint8) ([]byte, error) {
	out := binary.LittleEndian.AppendUint32(nil, a.Amount)
	if pv >= 6 {
		cc, err := countryCode(a.CountryCode)
		if err != nil {
			return nil, err
		}
		out = append(out, cc...)
	}
	return out, nil
}

// Refill modes
const (
	RefillOn  = "on"
	RefillOff = "off"
	RefillGet = "get"
)

type RefillModeArgs struct {
	Mode string `json:"mode"`
}

func (a *RefillModeArgs) Encode(uint8) ([]byte, error) {
	switch a.Mode {
	case RefillOn:
		return []byte{0x05, 0x81, 0x10, 0x11, 0x01}, nil
	case RefillOff:
		return []byte{0x05, 0x81, 0x10, 0x11, 0x00}, nil
	case RefillGet:
		return []byte{0x05, 0x81, 0x10, 0x01}, nil
	default:
		return nil, fmt.Errorf("unknown refill mode %q", a.Mode)
	}
}

type BarCodeConfigArgs struct {
	Enable  string `json:"enable"` // none, top, bottom or both
	NumChar int    `json:"numChar"`
}

func (a *BarCodeConfigArgs) Encode(uint8) ([]byte, error) {
	readers := map[string]byte{"": 0, "none": 0, "top": 1, "bottom": 2, "both": 3}
	enable, ok := readers[a.Enable]
	if !ok {
		return nil, fmt.Errorf("unknown bar code reader %q", a.Enable)
	}
	n := a.NumChar
	if n == 0 {
		n = 6
	}
	n = min(max(n, 6), 24)
	return []byte{enable, 0x01, byte(n)}, nil
}

type BarCodeInhibitArgs struct {
	CurrencyRead bool `json:"currencyRead"`
	BarCode      bool `json:"barCode"`
}

func (a *BarCodeInhibitArgs) Encode(uint8) ([]byte, error) {
	b := byte(0xFF)
	if !a.CurrencyRead {
		b &= 0xFE
	}
	if !a.BarCode {
		b &= 0xFD
	}
	return []byte{b}, nil
}

type PayoutAmountArgs struct {
	Amount      uint32 `json:"amount"`
	CountryCode string `json:"country_code"`
	Test        bool   `json:"test"`
}

func (a *PayoutAmountArgs) Encode(pv uint8) ([]byte, error) {
	out := binary.LittleEndian.AppendUint32(nil, a.Amount)
	if pv >= 6 {
		cc, err := countryCode(a.CountryCode)
		if err != nil {
			return nil, err
		}
		out = append(out, cc...)
		out = append(out, testByte(a.Test))
	}
	return out, nil
}

type FloatAmountArgs struct {
	MinPossiblePayout uint16 `json:"min_possible_payout"`
	Amount            uint32 `json:"amount"`
	CountryCode       string `json:"country_code"`
	Test              bool   `json:"test"`
}

func (a *FloatAmountArgs) Encode(pv uint8) ([]byte, error) {
	out := binary.LittleEndian.AppendUint16(nil, a.MinPossiblePayout)
	out = binary.LittleEndian.AppendUint32(out, a.Amount)
	if pv >= 6 {
		cc, err := countryCode(a.CountryCode)
		if err != nil {
			return nil, err
		}
		out = append(out, cc...)
		out = append(out, testByte(a.Test))
	}
	return out, nil
}

type CoinMechInhibitArgs struct {
	Inhibited   bool   `json:"inhibited"`
	Amount      uint16 `json:"amount"`
	CountryCode string `json:"country_code"`
}

func (a *CoinMechInhibitArgs) Encode(pv uint8) ([]byte, error) {
	out := []byte{boolByte(!a.Inhibited)}
	out = binary.LittleEndian.AppendUint16(out, a.Amount)
	if pv >= 6 {
		cc, err := countryCode(a.CountryCode)
		if err != nil {
			return nil, err
		}
		out = append(out, cc...)
	}
	return out, nil
}

// Denomination is one entry of a payout or float request
type Denomination struct {
	Number       uint16 `json:"number"`
	Denomination uint32 `json:"denomination"`
	CountryCode  string `json:"country_code"`
}

// DenominationListArgs requests specific notes or coins (PAYOUT_BY_DENOMINATION, FLOAT_BY_DENOMINATION)
type DenominationListArgs struct {
	Value []Denomination `json:"value"`
	Test  bool           `json:"test"`
}

func (a *DenominationListArgs) Encode(uint8) ([]byte, error) {
	if len(a.Value) > 0xFF {
		return nil, fmt.Errorf("too many denominations: %d", len(a.Value))
	}
	out := []byte{byte(len(a.Value))}
	for _, d := range a.Value {
		cc, err := countryCode(d.CountryCode)
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint16(out, d.Number)
		out = binary.LittleEndian.AppendUint32(out, d.Denomination)
		out = append(out, cc...)
	}
	return append(out, testByte(a.Test)), nil
}

type ValueReportingArgs struct {
	ReportBy string `json:"reportBy"` // "channel" or "value"
}

func (a *ValueReportingArgs) Encode(uint8) ([]byte, error) {
	return []byte{boolByte(a.ReportBy == "channel")}, nil
}

type BaudRateArgs struct {
	BaudRate              int  `json:"baudrate"`
	ResetToDefaultOnReset bool `json:"reset_to_default_on_reset"`
}

func (a *BaudRateArgs) Encode(uint8) ([]byte, error) {
	var rate byte
	switch a.BaudRate {
	case 9600:
		rate = 0
	case 38400:
		rate = 1
	case 115200:
		rate = 2
	default:
		return nil, fmt.Errorf("unsupported baud rate %d", a.BaudRate)
	}
	return []byte{rate, boolByte(!a.ResetToDefaultOnReset)}, nil
}

type BezelArgs struct {
	RGB      string `json:"RGB"`
	Volatile bool   `json:"volatile"`
}

func (a *BezelArgs) Encode(uint8) ([]byte, error) {
	rgb, err := hex.DecodeString(a.RGB)
	if err != nil || len(rgb) != 3 {
		return nil, fmt.Errorf("invalid RGB colour %q", a.RGB)
	}
	return append(rgb, boolByte(!a.Volatile)), nil
}

type PayoutDeviceArgs struct {
	GiveValueOnStored     bool `json:"GIVE_VALUE_ON_STORED"`
	RequireFullStartup    bool `json:"REQUIRE_FULL_STARTUP"`
	NoHoldNoteOnPayout    bool `json:"NO_HOLD_NOTE_ON_PAYOUT"`
	OptimiseForPayinSpeed bool `json:"OPTIMISE_FOR_PAYIN_SPEED"`
}

func (a *PayoutDeviceArgs) Encode(uint8) ([]byte, error) {
	var b byte
	if a.GiveValueOnStored || a.RequireFullStartup {
		b |= 0x01
	}
	if a.NoHoldNoteOnPayout || a.OptimiseForPayinSpeed {
		b |= 0x02
	}
	return []byte{b}, nil
}

type FixedKeyArgs struct {
	FixedKey string `json:"fixedKey"`
}

func (a *FixedKeyArgs) Encode(uint8) ([]byte, error) {
	key, err := ParseFixedKey(a.FixedKey)
	if err != nil {
		return nil, err
	}
	return swap64(key), nil
}

type CoinMechOptionsArgs struct {
	CCTalk bool `json:"ccTalk"`
}

func (a *CoinMechOptionsArgs) Encode(uint8) ([]byte, error) {
	return []byte{boolByte(a.CCTalk)}, nil
}

type GlobalInhibitArgs struct {
	Enable bool `json:"enable"`
}

func (a *GlobalInhibitArgs) Encode(uint8) ([]byte, error) {
	return []byte{boolByte(a.Enable)}, nil
}

type HopperOptionsArgs struct {
	PayMode          bool `json:"payMode"`
	LevelCheck       bool `json:"levelCheck"`
	MotorSpeed       bool `json:"motorSpeed"`
	CashBoxPayActive bool `json:"cashBoxPayActive"`
}

func (a *HopperOptionsArgs) Encode(uint8) ([]byte, error) {
	var v uint16
	if a.PayMode {
		v |= 0x01
	}
	if a.LevelCheck {
		v |= 0x02
	}
	if a.MotorSpeed {
		v |= 0x04
	}
	if a.CashBoxPayActive {
		v |= 0x08
	}
	return binary.LittleEndian.AppendUint16(nil, v), nil
}
