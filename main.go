// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem
//
// grblHAL host tooling - stream monitor and jog pendant for grblHAL
// motion controllers.

package main

import (
	"os"

	"github.com/Andromem/grblHAL/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
