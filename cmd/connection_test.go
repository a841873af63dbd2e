// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package cmd

import (
	"errors"
	"testing"
	"time"
)

func TestPauseAfterReadError(t *testing.T) {
	if pauseAfterReadError(ErrConnectionClosed) {
		t.Error("a closed connection must end the read loop")
	}

	start := time.Now()
	if !pauseAfterReadError(errors.New("input/output error")) {
		t.Error("a transient error must keep the read loop running")
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("a transient error must pause before the retry")
	}
}
