// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"fmt"
	"strings"
	"time"
)

// EventName identifies everything a Session pushes to its EventHandler
type EventName uint8

// Session lifecycle events
const (
	EventOpen EventName = iota
	EventClose
	EventError
	EventDebug

	// Poll events, reported by POLL and POLL_WITH_ACK
	EventSlaveReset
	EventReadNote
	EventCreditNote
	EventNoteRejecting
	EventNoteRejected
	EventNoteStacked
	EventSafeNoteJam
	EventUnsafeNoteJam
	EventDisabled
	EventStackerFull
	EventFraudAttempt
	EventBarCodeTicketValidated
	EventCashboxReplaced
	EventCashboxRemoved
	EventNoteClearedToCashbox
	EventNoteClearedFromFront
	EventNotePathOpen
	EventCoinCredit
	EventCashboxPaid
	EventIncompleteFloat
	EventIncompletePayout
	EventNoteStoredInPayout
	EventDispensing
	EventTimeOut
	EventFloated
	EventFloating
	EventHalted
	EventJammed
	EventDispensed
	EventBarCodeTicketAcknowledge
	EventDeviceFull
	EventNoteHeldInBezel
	EventNoteDispensedAtPowerUp
	EventNoteStacking
	EventNotePaidIntoStoreAtPowerUp
	EventNotePaidIntoStackerAtPowerUp
	EventNoteTransferedToStacker
	EventNoteFloatAttached
	EventNoteFloatRemoved
	EventPayoutOutOfService
	EventCoinMechReturnPressed
	EventCoinMechJammed
	EventEmptied
	EventEmptying
	EventCoinMechError
	EventInitialising
	EventChannelDisable
	EventSmartEmptied
	EventSmartEmptying
	EventErrorDuringPayout
	EventJamRecovery

	eventCount
)

var eventNames = [eventCount]string{
	EventOpen:                         "OPEN",
	EventClose:                        "CLOSE",
	EventError:                        "ERROR",
	EventDebug:                        "DEBUG",
	EventSlaveReset:                   "SLAVE_RESET",
	EventReadNote:                     "READ_NOTE",
	EventCreditNote:                   "CREDIT_NOTE",
	EventNoteRejecting:                "NOTE_REJECTING",
	EventNoteRejected:                 "NOTE_REJECTED",
	EventNoteStacked:                  "NOTE_STACKED",
	EventSafeNoteJam:                  "SAFE_NOTE_JAM",
	EventUnsafeNoteJam:                "UNSAFE_NOTE_JAM",
	EventDisabled:                     "DISABLED",
	EventStackerFull:                  "STACKER_FULL",
	EventFraudAttempt:                 "FRAUD_ATTEMPT",
	EventBarCodeTicketValidated:       "BAR_CODE_TICKET_VALIDATED",
	EventCashboxReplaced:              "CASHBOX_REPLACED",
	EventCashboxRemoved:               "CASHBOX_REMOVED",
	EventNoteClearedToCashbox:         "NOTE_CLEARED_TO_CASHBOX",
	EventNoteClearedFromFront:         "NOTE_CLEARED_FROM_FRONT",
	EventNotePathOpen:                 "NOTE_PATH_OPEN",
	EventCoinCredit:                   "COIN_CREDIT",
	EventCashboxPaid:                  "CASHBOX_PAID",
	EventIncompleteFloat:              "INCOMPLETE_FLOAT",
	EventIncompletePayout:             "INCOMPLETE_PAYOUT",
	EventNoteStoredInPayout:           "NOTE_STORED_IN_PAYOUT",
	EventDispensing:                   "DISPENSING",
	EventTimeOut:                      "TIME_OUT",
	EventFloated:                      "FLOATED",
	EventFloating:                     "FLOATING",
	EventHalted:                       "HALTED",
	EventJammed:                       "JAMMED",
	EventDispensed:                    "DISPENSED",
	EventBarCodeTicketAcknowledge:     "BAR_CODE_TICKET_ACKNOWLEDGE",
	EventDeviceFull:                   "DEVICE_FULL",
	EventNoteHeldInBezel:              "NOTE_HELD_IN_BEZEL",
	EventNoteDispensedAtPowerUp:       "NOTE_DISPENSED_AT_POWER-UP",
	EventNoteStacking:                 "NOTE_STACKING",
	EventNotePaidIntoStoreAtPowerUp:   "NOTE_PAID_INTO_STORE_AT_POWER-UP",
	EventNotePaidIntoStackerAtPowerUp: "NOTE_PAID_INTO_STACKER_AT_POWER-UP",
	EventNoteTransferedToStacker:      "NOTE_TRANSFERED_TO_STACKER",
	EventNoteFloatAttached:            "NOTE_FLOAT_ATTACHED",
	EventNoteFloatRemoved:             "NOTE_FLOAT_REMOVED",
	EventPayoutOutOfService:           "PAYOUT_OUT_OF_SERVICE",
	EventCoinMechReturnPressed:        "COIN_MECH_RETURN_PRESSED",
	EventCoinMechJammed:               "COIN_MECH_JAMMED",
	EventEmptied:                      "EMPTIED",
	EventEmptying:                     "EMPTYING",
	EventCoinMechError:                "COIN_MECH_ERROR",
	EventInitialising:                 "INITIALISING",
	EventChannelDisable:               "CHANNEL_DISABLE",
	EventSmartEmptied:                 "SMART_EMPTIED",
	EventSmartEmptying:                "SMART_EMPTYING",
	EventErrorDuringPayout:            "ERROR_DURING_PAYOUT",
	EventJamRecovery:                  "JAM_RECOVERY",
}

func (e EventName) String() string {
	if e < eventCount {
		return eventNames[e]
	}
	return fmt.Sprintf("EVENT(%d)", uint8(e))
}

// MarshalText renders the event by name
func (e EventName) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// IsPoll reports whether e is decoded from a poll response
func (e EventName) IsPoll() bool {
	return e > EventDebug && e < eventCount
}

// ParseEventName looks up an event by name, case-insensitively
func ParseEventName(s string) (EventName, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range eventNames {
		if name == upper {
			return EventName(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", s)
}

type pollEventSpec struct {
	name        EventName
	description string
}

var pollEvents = map[uint8]pollEventSpec{
	0xF1: {EventSlaveReset, "The device has undergone a power reset."},
	0xEF: {EventReadNote, "A note is in the process of being scanned by the device (byte value 0) or a valid note has been scanned and is in escrow (byte value gives the channel number)"},
	0xEE: {EventCreditNote, "A note has passed through the device, past the point of possible recovery and the host can safely issue its credit amount. The byte value is the channel number of the note to credit."},
	0xED: {EventNoteRejecting, "The note is in the process of being rejected from the validator"},
	0xEC: {EventNoteRejected, "The note has been rejected from the validator and is available for the user to retrieve."},
	0xEB: {EventNoteStacked, "The note has exited the device on the host side or has been placed within its note stacker."},
	0xEA: {EventSafeNoteJam, "The note is stuck in a position not retrievable from the front of the device (user side)"},
	0xE9: {EventUnsafeNoteJam, "The note is stuck in a position where the user could possibly remove it from the front of the device."},
	0xE8: {EventDisabled, "The device is not active and unavailable for normal validation functions."},
	0xE7: {EventStackerFull, "The banknote stacker unit attached to this device has been detected as at its full limit"},
	0xE6: {EventFraudAttempt, "The device has detected an attempt to tamper with the normal validation/stacking/payout process."},
	0xE5: {EventBarCodeTicketValidated, "A validated barcode ticket has been scanned and is available at the escrow point of the device."},
	0xE4: {EventCashboxReplaced, "A device with a detectable cashbox has detected that it has been replaced."},
	0xE3: {EventCashboxRemoved, "A device with a detectable cashbox has detected that it has been removed."},
	0xE2: {EventNoteClearedToCashbox, "At power up, a note was detected as being moved into the stacker unit or host exit of the device. The channel number of the note is given in the data byte if known."},
	0xE1: {EventNoteClearedFromFront, "At power-up, a note was detected as being rejected out of the front of the device. The channel value, if known is given in the data byte."},
	0xE0: {EventNotePathOpen, "The device has detected that its note transport path has been opened."},
	0xDF: {EventCoinCredit, "A coin has been detected as added to the system via the attached coin mechanism. The value of the coin detected is given in the event data."},
	0xDE: {EventCashboxPaid, "This is given at the end of a payout cycle. It shows the value of stored coins that were routed to the cashbox that were paid into the cashbox during the payout cycle."},
	0xDD: {EventIncompleteFloat, "The device has detected a discrepancy on power-up that the last float request was interrupted (possibly due to a power failure). The amounts of the value paid and requested are given in the event data."},
	0xDC: {EventIncompletePayout, "The device has detected a discrepancy on power-up that the last payout request was interrupted (possibly due to a power failure). The amounts of the value paid and requested are given in the event data."},
	0xDB: {EventNoteStoredInPayout, "The note has been passed into the note store of the payout unit."},
	0xDA: {EventDispensing, "The device is in the process of paying out a requested value. The value paid at the poll is given in the vent data."},
	0xD9: {EventTimeOut, "The device has been unable to complete a request. The value paid up until the time-out point is given in the event data."},
	0xD8: {EventFloated, "The device has completed its float command and the final value floated to the cashbox is given in the event data."},
	0xD7: {EventFloating, "The device is in the process of executing a float command and the value paid to the cashbox at the poll time is given in the event data."},
	0xD6: {EventHalted, "This event is given when the host has requested a halt to the device. The value paid at the point of halting is given in the event data."},
	0xD5: {EventJammed, "The device has detected that coins are jammed in its mechanism and cannot be removed other than by manual intervention. The value paid at the jam point is given in the event data."},
	0xD2: {EventDispensed, "The device has completed its pay-out request. The final value paid is given in the event data."},
	0xD1: {EventBarCodeTicketAcknowledge, "The bar code ticket has been passed to a safe point in the device stacker."},
	0xCF: {EventDeviceFull, "This event is reported when the Note Float has reached its limit of stored notes. This event will be reported until a note is paid out or stacked."},
	0xCE: {EventNoteHeldInBezel, "Reported when a dispensing note is held in the bezel of the payout device."},
	0xCD: {EventNoteDispensedAtPowerUp, "Reported when a note has been dispensed as part of the power-up procedure."},
	0xCC: {EventNoteStacking, "The note is being moved from the escrow position to the host exit section of the device."},
	0xCB: {EventNotePaidIntoStoreAtPowerUp, "Reported when a note has been detected as paid into the payout store as part of the power-up procedure."},
	0xCA: {EventNotePaidIntoStackerAtPowerUp, "Reported when a note has been detected as paid into the cashbox stacker as part of the power-up procedure."},
	0xC9: {EventNoteTransferedToStacker, "Reported when a note has been successfully moved from the payout store into the stacker cashbox."},
	0xC8: {EventNoteFloatAttached, "Reported when a note float unit has been detected as removed from its validator."},
	0xC7: {EventNoteFloatRemoved, "Reported when a note float unit has been detected as removed from its validator."},
	0xC6: {EventPayoutOutOfService, "This event is given if the payout goes out of service during operation. If this event is detected after a poll, the host can send the ENABLE PAYOUT DEVICE command to determine if the payout unit comes back into service."},
	0xC5: {EventCoinMechReturnPressed, "The attached coin mechanism has been detected as having is reject or return button pressed."},
	0xC4: {EventCoinMechJammed, "The attached coin mechanism has been detected as having a jam."},
	0xC3: {EventEmptied, "The device has completed its Empty process in response to an Empty command from the host."},
	0xC2: {EventEmptying, "The device is in the process of emptying its content to the system cashbox in response to an Empty command."},
	0xB7: {EventCoinMechError, "The attached coin mechanism has generated an error. Its code is given in the event data."},
	0xB6: {EventInitialising, "This event is given only when using the Poll with ACK command. It is given when the BNV is powered up and setting its sensors and mechanisms to be ready for Note acceptance. When the event response does not contain this event, the BNV is ready to be enabled and used."},
	0xB5: {EventChannelDisable, "The device has had all its note channels inhibited and has become disabled for note insertion."},
	0xB4: {EventSmartEmptied, "The device has completed its Smart Empty command. The total amount emptied is given in the event data."},
	0xB3: {EventSmartEmptying, "The device is in the process of carrying out its Smart Empty command from the host. The value emptied at the poll point is given in the event data."},
	0xB1: {EventErrorDuringPayout, "Returned if an error is detected whilst moving a note inside the SMART Payout unit. The cause of error (1 byte) indicates the source of the condition; 0x00 for note not being correctly detected as it is routed to cashbox or for payout, 0x01 if note is jammed in transport. In the case of the incorrect detection, the response to Cashbox Payout Operation Data request would report the note expected to be paid out."},
	0xB0: {EventJamRecovery, "The SMART Payout unit is in the process of recovering from a detected jam. This process will typically move five notes to the cash box; this is done to minimise the possibility the unit will go out of service"},
}

// PollEventCode returns the wire code of a poll event
func PollEventCode(e EventName) (uint8, bool) {
	for code, spec := range pollEvents {
		if spec.name == e {
			return code, true
		}
	}
	return 0, false
}

// CountryValue is a value in the smallest unit of a currency
type CountryValue struct {
	Value       uint32 `json:"value"`
	CountryCode string `json:"country_code"`
}

// IncompleteValue reports an interrupted payout or float
type IncompleteValue struct {
	Actual      uint32 `json:"actual"`
	Requested   uint32 `json:"requested"`
	CountryCode string `json:"country_code"`
}

// PollEvent is one event decoded from a poll response.
// Which data fields are set depends on the event and the protocol version.
type PollEvent struct {
	Code        uint8     `json:"code"`
	Name        EventName `json:"name"`
	Description string    `json:"description"`

	Channel    uint8             `json:"channel,omitempty"`
	Value      uint32            `json:"value,omitempty"`
	Values     []CountryValue    `json:"values,omitempty"`
	Actual     uint32            `json:"actual,omitempty"`
	Requested  uint32            `json:"requested,omitempty"`
	Incomplete []IncompleteValue `json:"incomplete,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Event is delivered to an EventHandler.
// Poll is set for poll events, Transaction for DEBUG and Err for ERROR.
type Event struct {
	Name        EventName
	Time        time.Time
	Poll        *PollEvent
	Transaction *Transaction
	Err         error
}

// EventHandler receives session events. HandleEvent is called synchronously
// from the goroutine that produced the event and must not block.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(Event)

// HandleEvent calls f(e)
func (f EventHandlerFunc) HandleEvent(e Event) {
	f(e)
}

// MultiHandler fans an event out to several handlers in order
type MultiHandler []EventHandler

// HandleEvent implements EventHandler
func (m MultiHandler) HandleEvent(e Event) {
	for _, h := range m {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}
