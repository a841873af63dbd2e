// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

// Package grbl defines the shared vocabulary of the grblHAL real-time core:
// the single-byte real-time command alphabet, machine states, override
// levels, axis bitmasks and status codes.
//
// Real-time commands are consumed out-of-band from the buffered character
// stream and take effect immediately; every value below is a distinct
// immediate action.
package grbl

// Control characters
const (
	ASCIICancel byte = 0x18 // CAN, also doubles as the soft-reset command
	ASCIIEOL         = "\r\n"
)

// Real-time commands - base set
const (
	CmdReset        byte = 0x18
	CmdStatusReport byte = '?'
	CmdCycleStart   byte = '~'
	CmdFeedHold     byte = '!'
	CmdJogCancel    byte = 0x85
)

// Real-time commands - feed rate override 0x90-0x94
const (
	CmdOverrideFeedReset       byte = 0x90
	CmdOverrideFeedCoarsePlus  byte = 0x91
	CmdOverrideFeedCoarseMinus byte = 0x92
	CmdOverrideFeedFinePlus    byte = 0x93
	CmdOverrideFeedFineMinus   byte = 0x94
)

// Real-time commands - rapid rate override 0x95-0x97
const (
	CmdOverrideRapidReset  byte = 0x95
	CmdOverrideRapidMedium byte = 0x96
	CmdOverrideRapidLow    byte = 0x97
)

// Real-time commands - spindle override 0x99-0x9D
const (
	CmdOverrideSpindleReset       byte = 0x99
	CmdOverrideSpindleCoarsePlus  byte = 0x9A
	CmdOverrideSpindleCoarseMinus byte = 0x9B
	CmdOverrideSpindleFinePlus    byte = 0x9C
	CmdOverrideSpindleFineMinus   byte = 0x9D
)

// CmdToolAck acknowledges a tool change handshake. It is intercepted by the
// serial layer, never queued and never dispatched as a regular command.
const CmdToolAck byte = 0xA3

// Rapid rate override levels, percent of the programmed rapid rate.
const (
	DefaultRapidOverride uint8 = 100
	RapidOverrideMedium  uint8 = 50
	RapidOverrideLow     uint8 = 25
)

// Axis indices. NAxis bounds every per-axis array in the core.
const (
	AxisX = iota
	AxisY
	AxisZ
	NAxis
)

// AxisLetters maps axis index to the gcode word letter.
var AxisLetters = [...]string{"X", "Y", "Z", "A", "B", "C"}
