// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package encoder

import (
	"testing"

	"github.com/Andromem/grblHAL/pkg/grbl"
)

// TestBatchedJog_TwoAxesOneCommand is the end-to-end property: two axes
// flagged in the same tick while idle produce a single jog command carrying
// the minimum non-zero contributing velocity, and both axis cursors land on
// their latest encoder positions.
func TestBatchedJog_TwoAxesOneCommand(t *testing.T) {
	rig := newTestRig(t, mpgAxisSettings(), StrategyRelativeJog)
	x := rig.engine.Encoder(0)
	y := rig.engine.Encoder(1)

	pulse(rig.engine, x, 40, 500) // count 10
	pulse(rig.engine, y, 20, 300) // count 5

	rig.engine.ExecuteRealtime(grbl.StateIdle)

	if len(rig.gcode) != 1 {
		t.Fatalf("gcode = %q, expected exactly one batched command", rig.gcode)
	}
	if rig.gcode[0] != "$J=G91X-0.100Y-0.050F300" {
		t.Errorf("jog = %q, expected $J=G91X-0.100Y-0.050F300", rig.gcode[0])
	}

	if rig.engine.mpg[grbl.AxisX].position != 10 {
		t.Errorf("X cursor = %d, expected latest count 10", rig.engine.mpg[grbl.AxisX].position)
	}
	if rig.engine.mpg[grbl.AxisY].position != 5 {
		t.Errorf("Y cursor = %d, expected latest count 5", rig.engine.mpg[grbl.AxisY].position)
	}
}

func TestJog_ScaleFactorMultipliesDelta(t *testing.T) {
	rig := newTestRig(t, mpgAxisSettings(), StrategyRelativeJog)
	x := rig.engine.Encoder(0)

	// One scale click: 1x -> 10x.
	click(rig.engine, x)
	rig.engine.ExecuteRealtime(grbl.StateIdle)

	pulse(rig.engine, x, 40, 500)
	rig.engine.ExecuteRealtime(grbl.StateIdle)

	if len(rig.gcode) != 1 || rig.gcode[0] != "$J=G91X-1.000F500" {
		t.Errorf("gcode = %q, expected $J=G91X-1.000F500", rig.gcode)
	}
}

func TestJog_ZeroDeltaEmitsNothing(t *testing.T) {
	rig := newTestRig(t, mpgAxisSettings(), StrategyRelativeJog)

	// Force a position-changed event with no actual normalized delta.
	rig.engine.mu.Lock()
	rig.engine.mpg[grbl.AxisX].event |= mpgPositionChanged
	rig.engine.pending.Set(grbl.AxisX)
	rig.engine.mu.Unlock()

	rig.engine.ExecuteRealtime(grbl.StateIdle)

	if len(rig.gcode) != 0 {
		t.Errorf("gcode = %q, expected none for a zero delta", rig.gcode)
	}
}

func TestJog_RejectedBatchDropsDelta(t *testing.T) {
	rig := newTestRig(t, mpgAxisSettings(), StrategyRelativeJog)
	x := rig.engine.Encoder(0)
	rig.rejectG = true

	pulse(rig.engine, x, 40, 500)
	rig.engine.ExecuteRealtime(grbl.StateIdle)

	// Rejected: no pending bits survive and the cursor was consumed.
	if !rig.engine.pendingAxes().Empty() {
		t.Error("pending bits must not be restored after a rejected batch")
	}

	rig.rejectG = false
	rig.engine.ExecuteRealtime(grbl.StateIdle)
	if len(rig.gcode) != 0 {
		t.Errorf("gcode = %q, dropped delta must not replay", rig.gcode)
	}
}

// ============================================================
// Absolute move strategy
// ============================================================

func TestAbsoluteMove_AccumulatesTarget(t *testing.T) {
	rig := newTestRig(t, mpgAxisSettings(), StrategyAbsoluteMove)
	x := rig.engine.Encoder(0)
	rig.machine = [grbl.NAxis]float64{1.0, 2.0, 3.0}

	pulse(rig.engine, x, 40, 500) // delta -0.100 from origin 1.0
	rig.engine.ExecuteRealtime(grbl.StateIdle)

	if len(rig.gcode) != 1 || rig.gcode[0] != "G1X0.900F500" {
		t.Fatalf("gcode = %q, expected G1X0.900F500", rig.gcode)
	}

	// Second detent accumulates onto the absolute target.
	pulse(rig.engine, x, 80, 500)
	rig.engine.ExecuteRealtime(grbl.StateIdle)

	if len(rig.gcode) != 2 || rig.gcode[1] != "G1X0.800F500" {
		t.Errorf("gcode = %q, expected accumulated G1X0.800F500", rig.gcode)
	}
}

func TestAbsoluteMove_HonorsWorkOffset(t *testing.T) {
	rig := newTestRig(t, mpgAxisSettings(), StrategyAbsoluteMove)
	x := rig.engine.Encoder(0)
	rig.machine = [grbl.NAxis]float64{5.0, 0, 0}
	rig.offsets = [grbl.NAxis]float64{2.0, 0, 0}

	pulse(rig.engine, x, 40, 500)
	rig.engine.ExecuteRealtime(grbl.StateIdle)

	// Origin is mpos minus the active offset: 3.0, then -0.100.
	if len(rig.gcode) != 1 || rig.gcode[0] != "G1X2.900F500" {
		t.Errorf("gcode = %q, expected G1X2.900F500", rig.gcode)
	}
}

func TestAbsoluteMove_IncrementalDistanceMode(t *testing.T) {
	rig := newTestRig(t, mpgAxisSettings(), StrategyAbsoluteMove)
	x := rig.engine.Encoder(0)
	rig.g91 = true

	pulse(rig.engine, x, 40, 500)
	rig.engine.ExecuteRealtime(grbl.StateIdle)

	if len(rig.gcode) != 1 || rig.gcode[0] != "G1X-0.100F500" {
		t.Errorf("gcode = %q, expected incremental G1X-0.100F500", rig.gcode)
	}
}

func TestMinVelocity(t *testing.T) {
	tests := []struct {
		current  uint32
		v        uint32
		expected uint32
	}{
		{0, 0, 0},
		{0, 500, 500},
		{500, 300, 300},
		{300, 500, 300},
		{300, 0, 300}, // zero velocity never wins
	}

	for _, tt := range tests {
		if got := minVelocity(tt.current, tt.v); got != tt.expected {
			t.Errorf("minVelocity(%d, %d) = %d, expected %d", tt.current, tt.v, got, tt.expected)
		}
	}
}
