// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Andromem/grblHAL/pkg/grbl"
)

var pendantCmd = &cobra.Command{
	Use:   "pendant",
	Short: "Interactive jog pendant TUI",
	Long: `Drive a grblHAL controller from the keyboard the way a hardware
pendant would.

Two virtual encoder wheels are simulated: a universal override wheel that
steps the feed, rapid or spindle override (click to cycle between them),
and an MPG wheel that jogs the machine one scaled detent per step (click
to select the next axis, double-click to zero the work offset of the
current axis).

Wheel settings (counts per revolution, counts per detent, double click
window) are read from and saved to the --settings snapshot file.

Keys:
  left/right   override wheel - / +
  c            override wheel click (cycle feed/rapid/spindle)
  up/down      MPG wheel + / -
  a            MPG click (next axis)
  z            MPG double click (zero current axis)
  space        MPG stop (cancel an active jog)
  tab          focus the MDI input, enter sends the line, esc leaves it
  q, ctrl+c    quit

Supports both serial and WebSocket connections.`,
	RunE: runPendant,
}

func init() {
	rootCmd.AddCommand(pendantCmd)
}

type pendantTickMsg time.Time

type pendantBatchMsg struct {
	lines []string
}

type pendantConnLostMsg struct{}

func runPendant(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	m, loadErr := initialPendantModel(conn, connInfo)

	p := tea.NewProgram(m, tea.WithAltScreen())

	go pendantReaderLoop(p, conn)

	if loadErr != nil {
		p.Send(pendantBatchMsg{lines: []string{fmt.Sprintf("settings: %v, using defaults", loadErr)}})
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	if err := m.core.store.Save(); err != nil {
		return fmt.Errorf("saving settings: %v", err)
	}
	return nil
}

// pendantReaderLoop reads the controller character stream, splits it into
// lines and hands them to the TUI in 50ms batches so a chatty controller
// cannot flood the event loop.
func pendantReaderLoop(p *tea.Program, conn Connection) {
	lineChan := make(chan string, 100)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		var line strings.Builder
		buf := make([]byte, 128)

		for {
			n, err := conn.Read(buf)
			if err != nil {
				if !pauseAfterReadError(err) {
					return
				}
				continue
			}

			for i := 0; i < n; i++ {
				c := buf[i]
				if c != '\n' && c != '\r' {
					line.WriteByte(c)
					continue
				}
				if line.Len() == 0 {
					continue
				}
				select {
				case lineChan <- line.String():
				default:
				}
				line.Reset()
			}
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			p.Send(pendantConnLostMsg{})
			return
		case <-ticker.C:
			var batch pendantBatchMsg
		drainLoop:
			for {
				select {
				case l := <-lineChan:
					batch.lines = append(batch.lines, l)
				default:
					break drainLoop
				}
			}
			if len(batch.lines) > 0 {
				p.Send(batch)
			}
		}
	}
}

// machineStatus is the last parsed controller status report.
type machineStatus struct {
	state     grbl.State
	stateName string
	mpos      [grbl.NAxis]float64
	wco       [grbl.NAxis]float64
	ov        [3]uint8 // feed, rapid, spindle percentages
	seen      bool
}

var stateNames = map[string]grbl.State{
	"Idle":  grbl.StateIdle,
	"Run":   grbl.StateCycle,
	"Jog":   grbl.StateJog,
	"Hold":  grbl.StateHold,
	"Alarm": grbl.StateAlarm,
	"Door":  grbl.StateSafetyDoor,
	"Check": grbl.StateCheckMode,
	"Home":  grbl.StateHoming,
	"Sleep": grbl.StateSleep,
	"Tool":  grbl.StateToolChange,
}

// parseStatusReport decodes a <...> real-time report line into st. Fields
// the controller omits (WCO and Ov are only sent periodically) keep their
// previous values.
func parseStatusReport(line string, st *machineStatus) bool {
	if !strings.HasPrefix(line, "<") || !strings.HasSuffix(line, ">") {
		return false
	}

	fields := strings.Split(line[1:len(line)-1], "|")
	if len(fields) == 0 {
		return false
	}

	// Sub-states report as Name:code
	name := fields[0]
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		name = name[:idx]
	}
	state, ok := stateNames[name]
	if !ok {
		return false
	}

	st.state = state
	st.stateName = fields[0]
	st.seen = true

	for _, f := range fields[1:] {
		idx := strings.IndexByte(f, ':')
		if idx < 0 {
			continue
		}
		key, val := f[:idx], f[idx+1:]

		switch key {
		case "MPos":
			parseAxisValues(val, &st.mpos)
		case "WCO":
			parseAxisValues(val, &st.wco)
		case "Ov":
			parts := strings.Split(val, ",")
			for i := 0; i < len(parts) && i < 3; i++ {
				if v, err := strconv.ParseUint(parts[i], 10, 8); err == nil {
					st.ov[i] = uint8(v)
				}
			}
		}
	}

	return true
}

func parseAxisValues(val string, out *[grbl.NAxis]float64) {
	parts := strings.Split(val, ",")
	for i := 0; i < len(parts) && i < grbl.NAxis; i++ {
		if v, err := strconv.ParseFloat(parts[i], 64); err == nil {
			out[i] = v
		}
	}
}
