// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

// Package encoder implements the encoder-driven override and jog engine of
// the grblHAL core. Physical rotary encoder pulses arrive through
// Engine.Event, which runs at interrupt priority relative to the mainline
// dispatcher Engine.ExecuteRealtime. The two contexts hand events across
// through a guarded pending-axis bitmask; Event never blocks and never
// waits on mainline progress.
//
// Engine.Event must not run concurrently with itself; it preempts, and is
// never preempted by, ExecuteRealtime. All other cross-context state is
// exchanged under the pending guard.
package encoder

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Andromem/grblHAL/pkg/grbl"
)

// Hooks are the collaborator contracts consumed by the engine. Nil members
// disable the corresponding action.
type Hooks struct {
	// EnqueueRealtime submits one real-time command byte, fire-and-forget.
	EnqueueRealtime func(c byte)
	// EnqueueGcode submits a gcode line to the motion planner. False means
	// rejected; the engine does not retry.
	EnqueueGcode func(line string) bool
	// ResetCounter zeroes the hardware pulse counter of an encoder.
	ResetCounter func(id int)
	// RequestReport asks the status reporter to include the encoder
	// fragment in the next real-time report.
	RequestReport func()
	// MachinePosition returns the current machine position per axis.
	MachinePosition func() [grbl.NAxis]float64
	// WorkOffset returns the active coordinate system offset for an axis.
	WorkOffset func(axis int) float64
	// DistanceIncremental reports whether G91 distance mode is active.
	DistanceIncremental func() bool
	// RapidOverride returns the current rapid rate override percentage.
	RapidOverride func() uint8
	// StreamWrite emits a status message line to the output stream.
	StreamWrite func(s string)
}

// Config assembles an Engine. Settings must hold one record per encoder;
// the engine keeps referencing the slice so a settings store can persist it.
type Config struct {
	Settings []Settings
	Strategy Strategy
	Hooks    Hooks
}

// Engine owns the encoder and MPG axis arenas and dispatches their events.
type Engine struct {
	encoders []Encoder
	settings []Settings
	npos     []int32 // normalized count per encoder
	mpg      [grbl.NAxis]mpgAxis

	overrideEncoder *Encoder // nil when no universal encoder is configured
	modeChg         atomic.Bool

	// mu guards pending and the per-axis event bitsets, replacing the
	// original spin flag. Both contexts hold it for a handful of statements.
	mu      sync.Mutex
	pending grbl.AxesMask

	hooks    Hooks
	strategy motionFunc

	prevReport ReportFunc
}

// New creates an Engine and binds encoders per the supplied settings, the
// same way firmware init does: the first Universal encoder becomes the
// override selector, MPG encoders claim their axis slots, and every
// hardware counter is reset.
func New(cfg Config) *Engine {
	e := &Engine{
		encoders: make([]Encoder, len(cfg.Settings)),
		settings: cfg.Settings,
		npos:     make([]int32, len(cfg.Settings)),
		hooks:    cfg.Hooks,
	}

	for idx := range e.encoders {

		enc := &e.encoders[idx]
		enc.ID = idx
		enc.Axis = AxisNone
		enc.Mode = cfg.Settings[idx].Mode
		enc.Settings = &cfg.Settings[idx]

		switch enc.Settings.Mode {

		case ModeUniversal:
			enc.Mode = ModeFeedRate
			e.overrideEncoder = enc

		case ModeMPG:
			enc.Axis = grbl.AxisX
			for i := range e.mpg {
				e.mpg[i].encoder = enc
			}

		case ModeMPGX, ModeMPGY, ModeMPGZ, ModeMPGA, ModeMPGB, ModeMPGC:
			axis := int(enc.Settings.Mode - ModeMPGX)
			if axis < grbl.NAxis {
				enc.Axis = axis
				e.mpg[axis].encoder = enc
			}
		}

		if e.hooks.ResetCounter != nil {
			e.hooks.ResetCounter(idx)
		}
	}

	for i := range e.mpg {
		e.mpg[i].scaleFactor = 1.0
	}

	e.strategy = e.motionStrategy(cfg.Strategy)

	return e
}

// Encoder returns the encoder record with the given id.
func (e *Engine) Encoder(id int) *Encoder {
	return &e.encoders[id]
}

// NumEncoders returns the number of configured encoders.
func (e *Engine) NumEncoders() int {
	return len(e.encoders)
}

// ScaleFactor returns the current MPG distance scale factor for an axis.
func (e *Engine) ScaleFactor(axis int) float64 {
	return e.mpg[axis].scaleFactor
}

func (e *Engine) enqueueRealtime(c byte) {
	if e.hooks.EnqueueRealtime != nil {
		e.hooks.EnqueueRealtime(c)
	}
}

func (e *Engine) resetCounter(id int) {
	if e.hooks.ResetCounter != nil {
		e.hooks.ResetCounter(id)
	}
}

func (e *Engine) resetOverride(mode Mode) {
	switch mode {
	case ModeFeedRate:
		e.enqueueRealtime(grbl.CmdOverrideFeedReset)
	case ModeRapidRate:
		e.enqueueRealtime(grbl.CmdOverrideRapidReset)
	case ModeSpindleRPM:
		e.enqueueRealtime(grbl.CmdOverrideSpindleReset)
	}
}

// Event processes the pending events of one encoder at the given raw pulse
// count. It runs at interrupt priority: it only sets flags, steps override
// state and marks the pending-axis bitmask, and never blocks.
func (e *Engine) Event(enc *Encoder, position int32) {

	updatePosition := false

	if enc.Event&EventClick != 0 {

		if enc.Settings.Mode == ModeUniversal {

			e.modeChg.Store(true)
			if e.hooks.RequestReport != nil {
				e.hooks.RequestReport()
			}
			enc.Event &^= EventClick

			switch enc.Mode {
			case ModeFeedRate:
				enc.Mode = ModeRapidRate
			case ModeRapidRate:
				enc.Mode = ModeSpindleRPM
			default:
				enc.Mode = ModeFeedRate
			}

		} else if enc.Settings.Mode == ModeMPG {

			// Advance the axis cursor, wrapping, and restart tracking from
			// zero on the new axis.
			if enc.Axis++; enc.Axis == grbl.NAxis {
				enc.Axis = grbl.AxisX
			}
			enc.Position = 0
			e.npos[enc.ID] = 0
			e.mpg[enc.Axis].position = 0
			e.mpg[enc.Axis].event = 0
			enc.Event = 0
			e.resetCounter(enc.ID)
		}
	}

	if enc.Event&EventPositionChanged != 0 {

		// The settings layer accepts cpr 0; normalize it as 1.
		cpr := int32(enc.Settings.CPR)
		if cpr == 0 {
			cpr = 1
		}
		nCount := position * 100 / cpr

		enc.Event &^= EventPositionChanged

		if nCount != e.npos[enc.ID] || enc.Velocity == 0 {

			switch {

			case enc.Mode == ModeFeedRate:
				updatePosition = true
				e.stepOverride(enc, nCount, grbl.CmdOverrideFeedFinePlus, grbl.CmdOverrideFeedFineMinus)

			case enc.Mode == ModeSpindleRPM:
				updatePosition = true
				e.stepOverride(enc, nCount, grbl.CmdOverrideSpindleFinePlus, grbl.CmdOverrideSpindleFineMinus)

			case enc.Mode == ModeRapidRate:
				updatePosition = abs32(position-enc.Position) >= int32(enc.Settings.CPD)
				if updatePosition {
					e.stepRapidOverride(position < enc.Position)
				}

			case enc.Mode.IsMPG() && enc.Axis != AxisNone:
				updatePosition = true

				e.mu.Lock()
				if e.mpg[enc.Axis].encoder.Velocity == 0 {
					// Pulses with no machine motion signal a deliberate halt.
					e.mpg[enc.Axis].event |= mpgStop
				} else {
					e.mpg[enc.Axis].event |= mpgPositionChanged
				}
				e.pending.Set(enc.Axis)
				e.mu.Unlock()
			}
		}

		if updatePosition {
			enc.Position = position
			e.npos[enc.ID] = nCount
		}
	}

	if enc.Event != 0 {

		switch {

		case enc.Mode == ModeFeedRate || enc.Mode == ModeRapidRate || enc.Mode == ModeSpindleRPM:
			enc.Position = 0
			e.npos[enc.ID] = 0
			e.resetCounter(enc.ID)
			e.resetOverride(enc.Mode)

		case enc.Mode.IsMPG() && enc.Axis != AxisNone:
			e.mu.Lock()
			if enc.Event&EventClick != 0 {
				e.mpg[enc.Axis].event |= mpgScale
				e.pending.Set(enc.Axis)
			}
			if enc.Event&EventDblClick != 0 {
				e.mpg[enc.Axis].event |= mpgZero
				e.pending.Set(enc.Axis)
			}
			e.mu.Unlock()
		}
	}

	enc.Event = 0
}

// stepOverride emits one fine override command per unit step between the
// tracked normalized count and nCount. A jump of 3 counts emits 3 discrete
// commands, preserving the step granularity of the override state machine.
func (e *Engine) stepOverride(enc *Encoder, nCount int32, plus, minus byte) {
	for n := e.npos[enc.ID]; n < nCount; n++ {
		e.enqueueRealtime(plus)
	}
	for n := e.npos[enc.ID]; n > nCount; n-- {
		e.enqueueRealtime(minus)
	}
}

// stepRapidOverride advances the three-level rapid override ratchet one
// notch. Rotation direction selects the next level; the ratchet saturates
// at Default and Low, never wrapping.
func (e *Engine) stepRapidOverride(decrease bool) {
	if e.hooks.RapidOverride == nil {
		return
	}
	switch e.hooks.RapidOverride() {

	case grbl.DefaultRapidOverride:
		if decrease {
			e.enqueueRealtime(grbl.CmdOverrideRapidMedium)
		}

	case grbl.RapidOverrideMedium:
		if decrease {
			e.enqueueRealtime(grbl.CmdOverrideRapidLow)
		} else {
			e.enqueueRealtime(grbl.CmdOverrideRapidReset)
		}

	case grbl.RapidOverrideLow:
		if !decrease {
			e.enqueueRealtime(grbl.CmdOverrideRapidMedium)
		}
	}
}

// ExecuteRealtime is the mainline dispatcher, called once per scheduler
// tick. It emits pending mode-change messages and, when the machine is idle
// or jogging, turns flagged axis events into motion commands, batching all
// simultaneously changed axes into one strategy call.
func (e *Engine) ExecuteRealtime(state grbl.State) {

	if e.modeChg.Load() && e.overrideEncoder != nil {

		switch e.overrideEncoder.Mode {
		case ModeFeedRate:
			e.writeMessage("[MSG:Encoder mode feed rate]")
		case ModeRapidRate:
			e.writeMessage("[MSG:Encoder mode rapid rate]")
		case ModeSpindleRPM:
			e.writeMessage("[MSG:Encoder mode spindle RPM]")
		}

		e.modeChg.Store(false)
	}

	if e.pendingAxes().Empty() || !(state == grbl.StateIdle || state.Is(grbl.StateJog)) {
		return
	}

	var events [grbl.NAxis]mpgEvents

	e.mu.Lock()
	axes := e.pending
	e.pending = 0
	for idx := range e.mpg {
		events[idx] = e.mpg[idx].event
		e.mpg[idx].event = 0
	}
	e.mu.Unlock()

	moveAction := false

	for idx := 0; idx < grbl.NAxis; idx++ {

		if !axes.Has(idx) {
			continue
		}

		m := &e.mpg[idx]

		if events[idx]&mpgZero != 0 {
			if e.hooks.EnqueueGcode != nil && e.hooks.EnqueueGcode("G90G10L20P0"+grbl.AxisLetters[idx]+"0") {
				m.position = 0
				e.npos[m.encoder.ID] = 0
				m.encoder.Position = 0
				e.resetCounter(m.encoder.ID)
			}
		}

		if events[idx]&mpgScale != 0 {
			m.scaleFactor *= 10.0
			if m.scaleFactor > 100.0 {
				m.scaleFactor = 1.0
			}
		}

		if events[idx]&mpgStop != 0 {
			if m.flags&mpgMoving != 0 && state.Is(grbl.StateJog) {
				e.enqueueRealtime(grbl.CmdJogCancel)
			}
			m.flags &^= mpgMoving
			events[idx] &^= mpgPositionChanged
		}

		if events[idx]&mpgPositionChanged != 0 {

			if m.flags&mpgMoving == 0 && e.hooks.MachinePosition != nil {
				target := e.hooks.MachinePosition()
				m.pos = target[idx] - e.workOffset(idx)
			}

			moveAction = true
			m.flags |= mpgMoving
			m.nextEvent += 100
		}
	}

	if moveAction && !e.strategy(state, axes) {
		// The motion sink rejected the batch. The pending bits are not
		// restored and the consumed deltas are dropped; subsequent pulses
		// open a fresh delta rather than replaying a stale one into a full
		// planner queue.
	}
}

func (e *Engine) pendingAxes() grbl.AxesMask {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *Engine) workOffset(axis int) float64 {
	if e.hooks.WorkOffset == nil {
		return 0
	}
	return e.hooks.WorkOffset(axis)
}

func (e *Engine) writeMessage(msg string) {
	if e.hooks.StreamWrite != nil {
		e.hooks.StreamWrite(msg + grbl.ASCIIEOL)
	}
}

// ReportFlags is the tracking flag set handed to realtime reporters.
type ReportFlags struct {
	Encoder bool
}

// ReportFunc is a realtime report fragment writer.
type ReportFunc func(write func(s string), flags ReportFlags)

// ChainReport registers the previously installed reporter and returns the
// engine's own, which appends the encoder fragment before calling through.
func (e *Engine) ChainReport(prev ReportFunc) ReportFunc {
	e.prevReport = prev
	return e.RealtimeReport
}

// RealtimeReport appends the |Enc: fragment when an override encoder exists
// and the report requests it, then calls the chained reporter.
func (e *Engine) RealtimeReport(write func(s string), flags ReportFlags) {
	if e.overrideEncoder != nil && flags.Encoder {
		write("|Enc:")
		write(strconv.Itoa(int(e.overrideEncoder.Mode)))
	}

	if e.prevReport != nil {
		e.prevReport(write, flags)
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
