// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

// Typed payloads carried in Response.Info

type KeyExchangeInfo struct {
	Key []byte `json:"key"`
}

// SetupInfo is the SETUP_REQUEST reply. Smart Hopper units fill the coin
// fields; every other unit fills the channel fields.
type SetupInfo struct {
	UnitType        UnitType `json:"unit_type"`
	FirmwareVersion string   `json:"firmware_version"`
	CountryCode     string   `json:"country_code"`
	ProtocolVersion uint8    `json:"protocol_version"`

	NumberOfCoinValues    uint8    `json:"number_of_coin_values,omitempty"`
	CoinValues            []uint16 `json:"coin_values,omitempty"`
	CountryCodesForValues []string `json:"country_codes_for_values,omitempty"`

	ValueMultiplier            uint32   `json:"value_multiplier,omitempty"`
	NumberOfChannels           uint8    `json:"number_of_channels,omitempty"`
	ChannelValue               []uint32 `json:"channel_value,omitempty"`
	ChannelSecurity            []uint8  `json:"channel_security,omitempty"`
	RealValueMultiplier        uint32   `json:"real_value_multiplier,omitempty"`
	ExpandedChannelCountryCode []string `json:"expanded_channel_country_code,omitempty"`
	ExpandedChannelValue       []uint32 `json:"expanded_channel_value,omitempty"`
}

type SerialNumberInfo struct {
	SerialNumber uint32 `json:"serial_number"`
}

type UnitDataInfo struct {
	UnitType        UnitType `json:"unit_type"`
	FirmwareVersion string   `json:"firmware_version"`
	CountryCode     string   `json:"country_code"`
	ValueMultiplier uint32   `json:"value_multiplier"`
	ProtocolVersion uint8    `json:"protocol_version"`
}

type ChannelValueInfo struct {
	Channel     []uint8  `json:"channel"`
	CountryCode []string `json:"country_code,omitempty"`
	Value       []uint32 `json:"value,omitempty"`
}

// ChannelSecurityInfo maps channel number (from 1) to its security level
type ChannelSecurityInfo struct {
	Channel map[int]string `json:"channel"`
}

type ReTeachInfo struct {
	Source []byte `json:"source"`
}

type RejectInfo struct {
	Code        uint8  `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// VersionInfo is the GET_FIRMWARE_VERSION and GET_DATASET_VERSION reply
type VersionInfo struct {
	Version string `json:"version"`
}

type DenominationLevel struct {
	Level       uint16 `json:"denomination_level"`
	Value       uint32 `json:"value"`
	CountryCode string `json:"country_code"`
}

// LevelsInfo lists stored levels; index 0 is the first denomination
type LevelsInfo struct {
	Counters []DenominationLevel `json:"counter"`
}

type BarCodeReaderInfo struct {
	HardwareStatus     string `json:"bar_code_hardware_status"`
	ReadersEnabled     string `json:"readers_enabled"`
	Format             string `json:"bar_code_format"`
	NumberOfCharacters uint8  `json:"number_of_characters"`
}

type BarCodeInhibitInfo struct {
	CurrencyReadEnable bool `json:"currency_read_enable"`
	BarCodeEnable      bool `json:"bar_code_enable"`
}

type BarCodeDataInfo struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

type DenominationLevelInfo struct {
	Level uint16 `json:"level"`
}

type DenominationRouteInfo struct {
	Code  uint8  `json:"code"`
	Value string `json:"value"`
}

type MinimumPayoutInfo struct {
	Value uint32 `json:"value"`
}

// NoteSlot holds a channel or a value depending on the reporting type
type NoteSlot struct {
	Channel uint8  `json:"channel,omitempty"`
	Value   uint32 `json:"value,omitempty"`
}

type NotePositionsInfo struct {
	Slots []NoteSlot `json:"slot"`
}

type DeviceRevision struct {
	UnitType UnitType `json:"unitType"`
	Revision uint16   `json:"revision"`
}

type BuildRevisionInfo struct {
	Devices []DeviceRevision `json:"device"`
}

type CountersInfo struct {
	Stacked                       uint32 `json:"stacked"`
	Stored                        uint32 `json:"stored"`
	Dispensed                     uint32 `json:"dispensed"`
	TransferredFromStoreToStacker uint32 `json:"transferred_from_store_to_stacker"`
	Rejected                      uint32 `json:"rejected"`
}

type HopperOptionsInfo struct {
	PayMode          bool `json:"payMode"`
	LevelCheck       bool `json:"levelCheck"`
	MotorSpeed       bool `json:"motorSpeed"`
	CashBoxPayActive bool `json:"cashBoxPayActive"`
}

type CashboxEntry struct {
	Quantity    uint16 `json:"quantity"`
	Value       uint32 `json:"value"`
	CountryCode string `json:"country_code"`
}

type CashboxPayoutInfo struct {
	Data []CashboxEntry `json:"data"`
}

type RefillModeInfo struct {
	Enabled bool `json:"enabled"`
}

// FailureInfo explains a COMMAND_CANNOT_BE_PROCESSED reply
type FailureInfo struct {
	ErrorCode uint8  `json:"errorCode"`
	Error     string `json:"error,omitempty"`
}
