// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package encoder

import (
	"fmt"
	"strings"

	"github.com/Andromem/grblHAL/pkg/grbl"
)

// Strategy selects how accumulated MPG deltas become motion commands. The
// set is closed; the strategy is resolved once at engine construction.
type Strategy uint8

const (
	// StrategyRelativeJog emits $J= relative jog commands, cancellable via
	// the jog-cancel real-time command.
	StrategyRelativeJog Strategy = iota
	// StrategyAbsoluteMove emits G1 moves against an accumulated absolute
	// target.
	StrategyAbsoluteMove
)

type motionFunc func(state grbl.State, axes grbl.AxesMask) bool

func (e *Engine) motionStrategy(s Strategy) motionFunc {
	if s == StrategyAbsoluteMove {
		return e.moveAbsolute
	}
	return e.jogRelative
}

// axisDelta consumes the outstanding delta of one MPG axis: the scaled
// real-world offset since the strategy last ran. The axis cursor is
// advanced to the latest encoder position as part of consumption.
func (e *Engine) axisDelta(idx int) (float64, bool) {
	m := &e.mpg[idx]
	if m.encoder == nil {
		return 0, false
	}

	delta := m.position - e.npos[m.encoder.ID]
	if delta == 0 {
		return 0, false
	}
	m.position = e.npos[m.encoder.ID]

	return float64(delta) * m.scaleFactor / 100.0, true
}

// minVelocity folds one axis velocity into the running feed rate: the
// minimum non-zero velocity across contributing axes.
func minVelocity(current, v uint32) uint32 {
	if v == 0 {
		return current
	}
	if current == 0 || v < current {
		return v
	}
	return current
}

// moveAbsolute builds a single multi-axis G1 command from all flagged axes.
// Deltas accumulate into the absolute target unless the interpreter is in
// incremental distance mode. Nothing is emitted when no axis produced a
// delta or the computed velocity is zero.
func (e *Engine) moveAbsolute(state grbl.State, axes grbl.AxesMask) bool {

	var gcode strings.Builder
	var velocity uint32

	gcode.WriteString("G1")

	incremental := e.hooks.DistanceIncremental != nil && e.hooks.DistanceIncremental()

	for idx := 0; idx < grbl.NAxis; idx++ {

		if !axes.Has(idx) {
			continue
		}

		if posDelta, ok := e.axisDelta(idx); ok {
			m := &e.mpg[idx]
			velocity = minVelocity(velocity, m.encoder.Velocity)
			if incremental {
				fmt.Fprintf(&gcode, "%s%.3f", grbl.AxisLetters[idx], posDelta)
			} else {
				m.pos += posDelta
				fmt.Fprintf(&gcode, "%s%.3f", grbl.AxisLetters[idx], m.pos)
			}
		}
	}

	if gcode.Len() == 2 || velocity == 0 {
		return true
	}

	fmt.Fprintf(&gcode, "F%d", velocity)

	return e.hooks.EnqueueGcode != nil && e.hooks.EnqueueGcode(gcode.String())
}

// jogRelative builds a single multi-axis $J=G91 jog command from all
// flagged axes, with the same delta and velocity rules as moveAbsolute.
func (e *Engine) jogRelative(state grbl.State, axes grbl.AxesMask) bool {

	var gcode strings.Builder
	var velocity uint32

	gcode.WriteString("$J=G91")

	for idx := 0; idx < grbl.NAxis; idx++ {

		if !axes.Has(idx) {
			continue
		}

		if posDelta, ok := e.axisDelta(idx); ok {
			velocity = minVelocity(velocity, e.mpg[idx].encoder.Velocity)
			fmt.Fprintf(&gcode, "%s%.3f", grbl.AxisLetters[idx], posDelta)
		}
	}

	if gcode.Len() == 6 || velocity == 0 {
		return true
	}

	fmt.Fprintf(&gcode, "F%d", velocity)

	return e.hooks.EnqueueGcode != nil && e.hooks.EnqueueGcode(gcode.String())
}
