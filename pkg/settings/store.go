// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

// Package settings is the persisted settings collaborator of the real-time
// core. It owns the per-encoder configuration records and snapshots them to
// a CBOR file; the engine reads the records at init and writes them only
// through its validated setting entry point.
package settings

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/Andromem/grblHAL/pkg/encoder"
)

// snapshot is the on-disk layout. Versioned so future fields can be added
// without invalidating stored files.
type snapshot struct {
	Version  uint8              `cbor:"1,keyasint"`
	Encoders []encoder.Settings `cbor:"2,keyasint"`
}

const snapshotVersion = 1

// Store holds the persisted encoder settings records. The records slice is
// shared with the engine; Save persists whatever the engine has written
// through its setting entry point.
type Store struct {
	path     string
	Encoders []encoder.Settings
}

// NewStore creates a store for n encoders backed by the given file path,
// populated with factory defaults.
func NewStore(path string, n int) *Store {
	s := &Store{
		path:     path,
		Encoders: make([]encoder.Settings, n),
	}
	encoder.SettingsRestore(s.Encoders)
	return s
}

// Load reads the snapshot file. A missing or unreadable file leaves the
// factory defaults in place and reports the error; records beyond the
// configured encoder count are dropped, missing ones keep defaults.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("settings: read %s: %w", s.path, err)
	}

	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		encoder.SettingsRestore(s.Encoders)
		return fmt.Errorf("settings: decode %s: %w", s.path, err)
	}

	if snap.Version != snapshotVersion {
		encoder.SettingsRestore(s.Encoders)
		return fmt.Errorf("settings: %s: unsupported snapshot version %d", s.path, snap.Version)
	}

	n := copy(s.Encoders, snap.Encoders)
	for idx := n; idx < len(s.Encoders); idx++ {
		s.Encoders[idx] = encoder.Settings{
			Mode:           encoder.ModeUniversal,
			CPR:            encoder.DefaultCPR,
			CPD:            encoder.DefaultCPD,
			DblClickWindow: encoder.DefaultDblClickWindow,
		}
	}

	return nil
}

// Save writes the snapshot file atomically via a temp file rename.
func (s *Store) Save() error {
	data, err := cbor.Marshal(snapshot{
		Version:  snapshotVersion,
		Encoders: s.Encoders,
	})
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("settings: rename %s: %w", tmp, err)
	}

	return nil
}

// RestoreDefaults resets every record to factory defaults.
func (s *Store) RestoreDefaults() {
	encoder.SettingsRestore(s.Encoders)
}
