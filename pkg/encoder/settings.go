// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package encoder

import (
	"math"

	"github.com/Andromem/grblHAL/pkg/grbl"
)

// Encoder settings occupy a contiguous setting-id range partitioned by a
// fixed per-encoder stride. Encoder n owns ids
// [SettingsBase+n*SettingsIncrement, SettingsBase+(n+1)*SettingsIncrement).
const (
	SettingsBase      = 400
	SettingsIncrement = 10
	MaxEncoders       = 8
	SettingsMax       = SettingsBase + MaxEncoders*SettingsIncrement - 1
)

// Per-encoder setting offsets within the stride.
const (
	settingMode = iota
	settingCPR
	settingCPD
	settingDblClickWindow
)

// Default settings applied on restore.
const (
	DefaultCPR            = 400
	DefaultCPD            = 4
	DefaultDblClickWindow = 500 // ms
)

func isIntValue(v float64) bool {
	return !math.IsNaN(v) && v == math.Trunc(v)
}

// SettingSet stores one encoder setting addressed by id. Ids outside the
// encoder range are reported Unhandled so an outer dispatcher can offer
// them elsewhere; failed validation leaves the prior value in place.
func (e *Engine) SettingSet(id int, value float64) grbl.Status {

	status := grbl.StatusUnhandled

	if id < SettingsBase || id > SettingsMax {
		return status
	}

	base := id - SettingsBase
	settingIdx := base % SettingsIncrement
	encoderIdx := base / SettingsIncrement

	if encoderIdx < len(e.settings) {

		switch settingIdx {

		case settingMode:
			if isIntValue(value) && value >= float64(ModeUniversal) && value < float64(ModeSpindlePosition) {
				e.settings[encoderIdx].Mode = Mode(value)
				status = grbl.StatusOK
			} else {
				status = grbl.StatusInvalidStatement
			}

		case settingCPR:
			e.settings[encoderIdx].CPR = uint32(value)
			status = grbl.StatusOK

		case settingCPD:
			e.settings[encoderIdx].CPD = uint32(value)
			status = grbl.StatusOK

		case settingDblClickWindow:
			if isIntValue(value) && value >= 100.0 && value <= 900.0 {
				e.settings[encoderIdx].DblClickWindow = uint32(value)
				status = grbl.StatusOK
			} else {
				status = grbl.StatusInvalidStatement
			}
		}
	}

	return status
}

// SettingGet reads one encoder setting by id, reporting false for ids this
// subsystem does not own.
func (e *Engine) SettingGet(id int) (uint32, bool) {

	if id < SettingsBase || id > SettingsMax {
		return 0, false
	}

	base := id - SettingsBase
	settingIdx := base % SettingsIncrement
	encoderIdx := base / SettingsIncrement

	if encoderIdx >= len(e.settings) {
		return 0, false
	}

	switch settingIdx {
	case settingMode:
		return uint32(e.settings[encoderIdx].Mode), true
	case settingCPR:
		return e.settings[encoderIdx].CPR, true
	case settingCPD:
		return e.settings[encoderIdx].CPD, true
	case settingDblClickWindow:
		return e.settings[encoderIdx].DblClickWindow, true
	}

	return 0, false
}

// SettingsRestore writes factory defaults into every record of a settings
// slice: universal mode, cpr 400, cpd 4, 500 ms double-click window.
func SettingsRestore(settings []Settings) {
	for idx := range settings {
		settings[idx] = Settings{
			Mode:           ModeUniversal,
			CPR:            DefaultCPR,
			CPD:            DefaultCPD,
			DblClickWindow: DefaultDblClickWindow,
		}
	}
}
