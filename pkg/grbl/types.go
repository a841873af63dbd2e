// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package grbl

// State is the machine state bitmask reported by the motion controller.
// Idle is the zero value; all other states are single bits so composite
// checks can use masking.
type State uint16

const (
	StateIdle       State = 0
	StateAlarm      State = 1 << 0
	StateCheckMode  State = 1 << 1
	StateHoming     State = 1 << 2
	StateCycle      State = 1 << 3
	StateHold       State = 1 << 4
	StateJog        State = 1 << 5
	StateSafetyDoor State = 1 << 6
	StateSleep      State = 1 << 7
	StateEStop      State = 1 << 8
	StateToolChange State = 1 << 9
)

// Is reports whether any of the bits in s are set in the state. StateIdle
// must be compared directly since it has no bits.
func (st State) Is(s State) bool {
	return st&s != 0
}

// AxesMask is a bitmask of axis indices, one bit per axis.
type AxesMask uint8

// Set sets the bit for the given axis.
func (m *AxesMask) Set(axis int) {
	*m |= 1 << uint(axis)
}

// Clear clears the bit for the given axis.
func (m *AxesMask) Clear(axis int) {
	*m &^= 1 << uint(axis)
}

// Has reports whether the bit for the given axis is set.
func (m AxesMask) Has(axis int) bool {
	return m&(1<<uint(axis)) != 0
}

// Empty reports whether no axis bit is set.
func (m AxesMask) Empty() bool {
	return m == 0
}

// Status is the outcome of a setting write, mirroring the controller's
// status code enumeration. Unhandled lets an outer dispatcher offer the
// setting to other subsystems.
type Status uint8

const (
	StatusOK Status = iota
	StatusInvalidStatement
	StatusUnhandled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidStatement:
		return "invalid statement"
	case StatusUnhandled:
		return "unhandled"
	}
	return "unknown"
}
