// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package encoder

import "github.com/Andromem/grblHAL/pkg/grbl"

// Mode enumerates what a rotary encoder is bound to. A Universal encoder is
// retargeted among the three override modes by click; the MPG modes drive
// manual axis motion.
type Mode uint8

const (
	ModeUniversal Mode = iota
	ModeFeedRate
	ModeRapidRate
	ModeSpindleRPM
	ModeMPG // one shared MPG encoder, click advances the bound axis
	ModeMPGX
	ModeMPGY
	ModeMPGZ
	ModeMPGA
	ModeMPGB
	ModeMPGC
	ModeSpindlePosition // reserved, upper bound for setting validation
)

// IsMPG reports whether the mode drives manual pulse generator motion.
func (m Mode) IsMPG() bool {
	return m >= ModeMPG && m <= ModeMPGC
}

func (m Mode) String() string {
	switch m {
	case ModeUniversal:
		return "universal"
	case ModeFeedRate:
		return "feed rate"
	case ModeRapidRate:
		return "rapid rate"
	case ModeSpindleRPM:
		return "spindle RPM"
	case ModeMPG:
		return "MPG"
	case ModeMPGX, ModeMPGY, ModeMPGZ, ModeMPGA, ModeMPGB, ModeMPGC:
		return "MPG " + grbl.AxisLetters[int(m-ModeMPGX)]
	}
	return "unknown"
}

// Events is the pending event bitset of an encoder, set by the pulse
// counting layer before Engine.Event is invoked.
type Events uint8

const (
	EventPositionChanged Events = 1 << 0
	EventClick           Events = 1 << 1
	EventDblClick        Events = 1 << 2
)

// mpgEvents is the pending event bitset of an MPG axis slot.
type mpgEvents uint8

const (
	mpgPositionChanged mpgEvents = 1 << 0
	mpgZero            mpgEvents = 1 << 1
	mpgLock            mpgEvents = 1 << 2
	mpgReset           mpgEvents = 1 << 3
	mpgScale           mpgEvents = 1 << 4
	mpgStop            mpgEvents = 1 << 5
)

// mpgFlags is the state flag bitset of an MPG axis slot.
type mpgFlags uint8

const (
	mpgMoving mpgFlags = 1 << 0
)

// AxisNone marks an encoder not bound to any axis.
const AxisNone = -1

// Encoder is the state of one physical rotary device. ID is assigned at
// init and never changes; Position and Velocity are updated by the pulse
// counting layer, Event carries its pending events into Engine.Event.
type Encoder struct {
	ID       int
	Mode     Mode
	Axis     int
	Position int32
	Velocity uint32
	Event    Events
	Settings *Settings
}

// Settings is the persisted configuration of one encoder.
type Settings struct {
	Mode           Mode   `cbor:"1,keyasint"`
	CPR            uint32 `cbor:"2,keyasint"` // counts per revolution
	CPD            uint32 `cbor:"3,keyasint"` // counts per detent
	DblClickWindow uint32 `cbor:"4,keyasint"` // milliseconds
}

// mpgAxis is one slot of the per-axis manual pulse generator arena.
type mpgAxis struct {
	position    int32   // last consumed normalized count
	pos         float64 // accumulated absolute target
	scaleFactor float64 // decade stepped, 1-100
	event       mpgEvents
	flags       mpgFlags
	nextEvent   uint32 // advisory pacing deadline, not enforced
	encoder     *Encoder
}
