// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package stream

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzSeed returns the seed from FUZZ_SEED env var, or derives one from
// the current time.
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func TestNewBuffer_RoundsToPowerOfTwo(t *testing.T) {
	tests := []struct {
		capacity int
		expected int
	}{
		{1, 2},
		{2, 2},
		{3, 4},
		{100, 128},
		{128, 128},
		{1000, 1024},
	}

	for _, tt := range tests {
		b := NewBuffer(tt.capacity)
		if b.Cap() != tt.expected {
			t.Errorf("NewBuffer(%d).Cap() = %d, expected %d", tt.capacity, b.Cap(), tt.expected)
		}
	}
}

func TestBuffer_EmptyAndFull(t *testing.T) {
	b := NewBuffer(8)

	if _, ok := b.Get(); ok {
		t.Error("Get on empty buffer should report empty")
	}
	if b.Len() != 0 {
		t.Errorf("empty buffer Len = %d", b.Len())
	}
	if b.Free() != 7 {
		t.Errorf("empty buffer Free = %d, expected capacity-1", b.Free())
	}

	for i := 0; i < 7; i++ {
		if !b.Put(byte(i)) {
			t.Fatalf("Put %d failed with %d slots used", i, i)
		}
	}

	if b.Put(0xFF) {
		t.Error("Put into full buffer should fail")
	}
	if b.Len() != 7 {
		t.Errorf("full buffer Len = %d, expected 7", b.Len())
	}
}

func TestBuffer_FIFOOrder(t *testing.T) {
	b := NewBuffer(16)

	data := []byte("G0X10Y20Z3\r\n")
	for _, c := range data {
		if !b.Put(c) {
			t.Fatalf("Put(0x%02X) failed", c)
		}
	}

	for i, want := range data {
		c, ok := b.Get()
		if !ok {
			t.Fatalf("Get %d reported empty", i)
		}
		if c != want {
			t.Errorf("byte %d: got 0x%02X, expected 0x%02X", i, c, want)
		}
	}

	if _, ok := b.Get(); ok {
		t.Error("buffer should be empty after draining")
	}
}

// TestBuffer_ModularCount verifies Len = (puts - gets) mod capacity across
// wrapping index positions.
func TestBuffer_ModularCount(t *testing.T) {
	b := NewBuffer(8)

	puts, gets := 0, 0
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < 10000; i++ {
		if rng.Intn(2) == 0 {
			if b.Put(byte(puts)) {
				puts++
			}
		} else {
			if c, ok := b.Get(); ok {
				if c != byte(gets) {
					t.Fatalf("op %d: got 0x%02X, expected 0x%02X", i, c, byte(gets))
				}
				gets++
			}
		}

		if b.Len() != puts-gets {
			t.Fatalf("op %d: Len = %d, expected %d", i, b.Len(), puts-gets)
		}
		if b.Free() != b.Cap()-1-(puts-gets) {
			t.Fatalf("op %d: Free = %d, expected %d", i, b.Free(), b.Cap()-1-(puts-gets))
		}
	}
}

func TestBuffer_Flush(t *testing.T) {
	b := NewBuffer(8)
	for i := 0; i < 5; i++ {
		b.Put(byte(i))
	}

	b.Flush()

	if b.Len() != 0 {
		t.Errorf("Len after Flush = %d", b.Len())
	}
	if !b.Put(0x42) {
		t.Error("Put after Flush failed")
	}
	if c, ok := b.Get(); !ok || c != 0x42 {
		t.Errorf("Get after Flush = 0x%02X, %v", c, ok)
	}
}

func TestBuffer_Peek(t *testing.T) {
	b := NewBuffer(8)

	if _, ok := b.Peek(); ok {
		t.Error("Peek on empty buffer should report empty")
	}

	b.Put('?')
	if c, ok := b.Peek(); !ok || c != '?' {
		t.Errorf("Peek = 0x%02X, %v", c, ok)
	}
	if b.Len() != 1 {
		t.Error("Peek should not consume")
	}
}
