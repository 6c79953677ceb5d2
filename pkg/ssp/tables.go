// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import "fmt"

// UnitType is the device category reported by SETUP_REQUEST and UNIT_DATA
type UnitType uint8

// Unit types
const (
	UnitBanknoteValidator   UnitType = 0x00
	UnitSmartHopper         UnitType = 0x03
	UnitSmartPayout         UnitType = 0x06
	UnitNoteFloat           UnitType = 0x07
	UnitAddonPrinter        UnitType = 0x08
	UnitStandalonePrinter   UnitType = 0x0B
	UnitTEBS                UnitType = 0x0D
	UnitTEBSWithSmartPayout UnitType = 0x0E
	UnitTEBSWithSmartTicket UnitType = 0x0F
	UnitUnknown             UnitType = 0xFF // not learned yet
)

var unitTypeNames = map[UnitType]string{
	UnitBanknoteValidator:   "Banknote validator",
	UnitSmartHopper:         "Smart Hopper",
	UnitSmartPayout:         "SMART payout fitted",
	UnitNoteFloat:           "Note Float fitted",
	UnitAddonPrinter:        "Addon Printer",
	UnitStandalonePrinter:   "Stand Alone Printer",
	UnitTEBS:                "TEBS",
	UnitTEBSWithSmartPayout: "TEBS with SMART Payout",
	UnitTEBSWithSmartTicket: "TEBS with SMART Ticket",
}

func (u UnitType) String() string {
	if name, ok := unitTypeNames[u]; ok {
		return name
	}
	if u == UnitUnknown {
		return "Unknown"
	}
	return fmt.Sprintf("Unit type 0x%02X", uint8(u))
}

// MarshalText renders the unit type by name
func (u UnitType) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// Known reports whether u names a documented unit type
func (u UnitType) Known() bool {
	_, ok := unitTypeNames[u]
	return ok
}

// IsSmartDevice reports whether the unit reports values instead of channels
func (u UnitType) IsSmartDevice() bool {
	return u == UnitSmartHopper || u == UnitSmartPayout
}

// Status is the first byte of every response
type Status uint8

// Response status codes
const (
	StatusOK                       Status = 0xF0
	StatusCommandNotKnown          Status = 0xF2
	StatusWrongNoParameters        Status = 0xF3
	StatusParameterOutOfRange      Status = 0xF4
	StatusCommandCannotBeProcessed Status = 0xF5
	StatusSoftwareError            Status = 0xF6
	StatusFail                     Status = 0xF8
	StatusKeyNotSet                Status = 0xFA
)

var statusNames = map[Status]struct{ name, description string }{
	StatusOK:                       {"OK", "Returned when a command from the host is understood and has been, or is in the process of, being executed."},
	StatusCommandNotKnown:          {"COMMAND_NOT_KNOWN", "Returned when a command from the host is not recognised."},
	StatusWrongNoParameters:        {"WRONG_NO_PARAMETERS", "A command was received by a peripheral, but an incorrect number of parameters were received."},
	StatusParameterOutOfRange:      {"PARAMETER_OUT_OF_RANGE", "One of the parameters sent with a command is out of range."},
	StatusCommandCannotBeProcessed: {"COMMAND_CANNOT_BE_PROCESSED", "A command sent could not be processed at that time."},
	StatusSoftwareError:            {"SOFTWARE_ERROR", "Reported for errors in the execution of software e.g. Divide by zero."},
	StatusFail:                     {"FAIL", "Command failure."},
	StatusKeyNotSet:                {"KEY_NOT_SET", "The slave is in encrypted communication mode but the encryption keys have not been negotiated."},
}

func (s Status) String() string {
	if st, ok := statusNames[s]; ok {
		return st.name
	}
	return "UNDEFINED"
}

// Description returns the documented meaning of the status
func (s Status) Description() string {
	return statusNames[s].description
}

// MarshalText renders the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RejectReason describes a LAST_REJECT_CODE value
type RejectReason struct {
	Name        string
	Description string
}

var rejectReasons = map[uint8]RejectReason{
	0x00: {"NOTE_ACCEPTED", "The banknote has been accepted. No reject has occured."},
	0x01: {"LENGTH_FAIL", "A validation fail: The banknote has been read but it's length registers over the max length parameter."},
	0x02: {"AVERAGE_FAIL", "Internal validation failure - banknote not recognised."},
	0x03: {"COASTLINE_FAIL", "Internal validation failure - banknote not recognised."},
	0x04: {"GRAPH_FAIL", "Internal validation failure - banknote not recognised."},
	0x05: {"BURIED_FAIL", "Internal validation failure - banknote not recognised."},
	0x06: {"CHANNEL_INHIBIT", "This banknote has been inhibited for acceptance in the dataset configuration."},
	0x07: {"SECOND_NOTE_DETECTED", "A second banknote was inserted into the validator while the first one was still being transported through the banknote path."},
	0x08: {"REJECT_BY_HOST", "The host system issues a Reject command when this banknote was held in escrow."},
	0x09: {"CROSS_CHANNEL_DETECTED", "This bank note was identified as exisiting in two or more seperate channel definitions in the dataset."},
	0x0A: {"REAR_SENSOR_ERROR", "An inconsistency in a position sensor detection was seen"},
	0x0B: {"NOTE_TOO_LONG", "The banknote failed dataset length checks."},
	0x0C: {"DISABLED_BY_HOST", "The bank note was validated on a channel that has been inhibited for acceptance by the host system."},
	0x0D: {"SLOW_MECH", "The internal mechanism was detected as moving too slowly for correct validation."},
	0x0E: {"STRIM_ATTEMPT", "The internal mechanism was detected as moving too slowly for correct validation."},
	0x0F: {"FRAUD_CHANNEL", "Obselete response."},
	0x10: {"NO_NOTES_DETECTED", "A banknote detection was initiated but no banknotes were seen at the validation section."},
	0x11: {"PEAK_DETECT_FAIL", "Internal validation fail. Banknote not recognised."},
	0x12: {"TWISTED_NOTE_REJECT", "Internal validation fail. Banknote not recognised."},
	0x13: {"ESCROW_TIME-OUT", "A banknote held in escrow was rejected due to the host not communicating within the timeout period."},
	0x14: {"BAR_CODE_SCAN_FAIL", "Internal validation fail. Banknote not recognised."},
	0x15: {"NO_CAM_ACTIVATE", "A banknote did not reach the internal note path for validation during transport."},
	0x16: {"SLOT_FAIL_1", "Internal validation fail. Banknote not recognised."},
	0x17: {"SLOT_FAIL_2", "Internal validation fail. Banknote not recognised."},
	0x18: {"LENS_OVERSAMPLE", "The banknote was transported faster than the system could sample the note."},
	0x19: {"WIDTH_DETECTION_FAIL", "The banknote failed a measurement test."},
	0x1A: {"SHORT_NOTE_DETECT", "The banknote measured length fell outside of the validation parameter for minimum length."},
	0x1B: {"PAYOUT_NOTE", "The reject code cammand was issued after a note was payed out using a note payout device."},
	0x1C: {"DOUBLE_NOTE_DETECTED", "Mote than one banknote was detected as overlayed during note entry."},
}

// LookupRejectReason returns the reason for a reject code
func LookupRejectReason(code uint8) (RejectReason, bool) {
	r, ok := rejectReasons[code]
	return r, ok
}

var securityLevels = map[uint8]string{
	0: "not_implemented",
	1: "low",
	2: "std",
	3: "high",
	4: "inhibited",
}

var barCodeHardware = map[uint8]string{0: "none", 1: "Top reader fitted", 2: "Bottom reader fitted", 3: "both fitted"}

var barCodeReaders = map[uint8]string{0: "none", 1: "top", 2: "bottom", 3: "both"}

var barCodeFormats = map[uint8]string{1: "Interleaved 2 of 5"}

var barCodeStatuses = map[uint8]string{0: "no_valid_data", 1: "ticket_in_escrow", 2: "ticket_stacked", 3: "ticket_rejected"}

var denominationRoutes = map[uint8]string{
	0: "Recycled and used for payouts",
	1: "Detected denomination is routed to system cashbox",
}

var payoutErrors = map[uint8]string{
	0x00: "Note not being correctly detected as it is routed",
	0x01: "Note jammed in transport",
}
