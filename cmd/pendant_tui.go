// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Andromem/grblHAL/pkg/encoder"
	"github.com/Andromem/grblHAL/pkg/grbl"
	"github.com/Andromem/grblHAL/pkg/settings"
)

const (
	// Synthetic wheel velocity in counts per second. Any non-zero value
	// marks a pulse as live rotation; zero marks a deliberate stop.
	wheelVelocity = 500

	pendantTickInterval = 100 * time.Millisecond
	pollEveryNthTick    = 5

	maxPendantLogEntries = 100
)

// Focus states
const (
	focusWheels = iota
	focusMDIInput
)

// wheelState is the simulated pulse counter of one virtual encoder wheel.
type wheelState struct {
	raw int32
}

// pendantCore is the shared mutable state behind the TUI model. The model
// is copied by value on every update, so everything the engine hooks touch
// lives here behind a pointer. All access happens on the event loop
// goroutine; the reader feeds it through program messages only.
type pendantCore struct {
	conn   Connection
	store  *settings.Store
	engine *encoder.Engine

	wheels     []wheelState
	overrideID int
	mpgID      int

	status machineStatus
	log    []string
}

func (c *pendantCore) addLog(entry string) {
	c.log = append(c.log, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), entry))
	if len(c.log) > maxPendantLogEntries {
		c.log = c.log[len(c.log)-maxPendantLogEntries:]
	}
}

func (c *pendantCore) sendRealtime(cmd byte) {
	if _, err := c.conn.Write([]byte{cmd}); err != nil {
		c.addLog(fmt.Sprintf("write failed: %v", err))
		return
	}
	c.addLog("sent " + realtimeCmdName(cmd))
}

func (c *pendantCore) sendGcode(line string) bool {
	if _, err := c.conn.Write([]byte(line + grbl.ASCIIEOL)); err != nil {
		c.addLog(fmt.Sprintf("write failed: %v", err))
		return false
	}
	c.addLog("sent " + line)
	return true
}

// pulse rotates a virtual wheel by the given number of detents and runs the
// encoder event path, the way a pulse counting interrupt would.
func (c *pendantCore) pulse(id int, detents int32, velocity uint32) {
	enc := c.engine.Encoder(id)
	c.wheels[id].raw += detents * int32(enc.Settings.CPD)
	enc.Velocity = velocity
	enc.Event |= encoder.EventPositionChanged
	c.engine.Event(enc, c.wheels[id].raw)
}

func (c *pendantCore) click(id int) {
	enc := c.engine.Encoder(id)
	enc.Event |= encoder.EventClick
	c.engine.Event(enc, c.wheels[id].raw)
}

func (c *pendantCore) dblClick(id int) {
	enc := c.engine.Encoder(id)
	enc.Event |= encoder.EventDblClick
	c.engine.Event(enc, c.wheels[id].raw)
}

func realtimeCmdName(cmd byte) string {
	switch cmd {
	case grbl.CmdStatusReport:
		return "status poll"
	case grbl.CmdJogCancel:
		return "jog cancel"
	case grbl.CmdOverrideFeedReset:
		return "feed override reset"
	case grbl.CmdOverrideFeedFinePlus:
		return "feed override +1%"
	case grbl.CmdOverrideFeedFineMinus:
		return "feed override -1%"
	case grbl.CmdOverrideRapidReset:
		return "rapid override 100%"
	case grbl.CmdOverrideRapidMedium:
		return "rapid override 50%"
	case grbl.CmdOverrideRapidLow:
		return "rapid override 25%"
	case grbl.CmdOverrideSpindleReset:
		return "spindle override reset"
	case grbl.CmdOverrideSpindleFinePlus:
		return "spindle override +1%"
	case grbl.CmdOverrideSpindleFineMinus:
		return "spindle override -1%"
	}
	return fmt.Sprintf("0x%02X", cmd)
}

// bindableMPG reports whether a persisted mode can drive one of this
// machine's axes. The settings range admits MPG modes for axes beyond
// NAxis; those have nothing to bind to here and would leave the wheel
// without an axis.
func bindableMPG(m encoder.Mode) bool {
	return m == encoder.ModeMPG ||
		(m >= encoder.ModeMPGX && int(m-encoder.ModeMPGX) < grbl.NAxis)
}

// pendantModel is the Bubble Tea model for the pendant TUI.
type pendantModel struct {
	core     *pendantCore
	connInfo string

	mdiInput     textinput.Model
	focusedField int

	tickCount int
	width     int
	height    int
	connLost  bool
	quitting  bool
}

func initialPendantModel(conn Connection, connInfo string) (pendantModel, error) {
	store := settings.NewStore(settingsPath, 2)
	loadErr := store.Load()

	// The pendant needs one override wheel and one MPG wheel regardless of
	// what the snapshot holds.
	overrideID, mpgID := -1, -1
	for idx := range store.Encoders {
		switch {
		case store.Encoders[idx].Mode == encoder.ModeUniversal && overrideID < 0:
			overrideID = idx
		case bindableMPG(store.Encoders[idx].Mode) && mpgID < 0:
			mpgID = idx
		}
	}
	if overrideID < 0 {
		overrideID = 0
		store.Encoders[0].Mode = encoder.ModeUniversal
	}
	if mpgID < 0 {
		mpgID = 1
		store.Encoders[1].Mode = encoder.ModeMPG
	}

	core := &pendantCore{
		conn:       conn,
		store:      store,
		wheels:     make([]wheelState, len(store.Encoders)),
		overrideID: overrideID,
		mpgID:      mpgID,
	}
	core.status.ov = [3]uint8{100, 100, 100}

	core.engine = encoder.New(encoder.Config{
		Settings: store.Encoders,
		Strategy: encoder.StrategyRelativeJog,
		Hooks: encoder.Hooks{
			EnqueueRealtime: core.sendRealtime,
			EnqueueGcode:    core.sendGcode,
			ResetCounter: func(id int) {
				core.wheels[id].raw = 0
			},
			RequestReport: func() {
				core.conn.Write([]byte{grbl.CmdStatusReport})
			},
			MachinePosition: func() [grbl.NAxis]float64 {
				return core.status.mpos
			},
			WorkOffset: func(axis int) float64 {
				return core.status.wco[axis]
			},
			RapidOverride: func() uint8 {
				return core.status.ov[1]
			},
			StreamWrite: func(s string) {
				core.addLog(strings.TrimRight(s, "\r\n"))
			},
		},
	})

	ti := textinput.New()
	ti.Placeholder = "G0 X0 Y0"
	ti.CharLimit = 80
	ti.Width = 40

	return pendantModel{
		core:     core,
		connInfo: connInfo,
		mdiInput: ti,
		width:    80,
		height:   24,
	}, loadErr
}

func (m pendantModel) Init() tea.Cmd {
	return pendantTickCmd()
}

func pendantTickCmd() tea.Cmd {
	return tea.Tick(pendantTickInterval, func(t time.Time) tea.Msg {
		return pendantTickMsg(t)
	})
}

func (m pendantModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case pendantTickMsg:
		m.core.engine.ExecuteRealtime(m.core.status.state)
		m.tickCount++
		if !m.connLost && m.tickCount%pollEveryNthTick == 0 {
			m.core.conn.Write([]byte{grbl.CmdStatusReport})
		}
		return m, pendantTickCmd()

	case pendantBatchMsg:
		for _, line := range msg.lines {
			if parseStatusReport(line, &m.core.status) {
				continue
			}
			if line == "ok" {
				continue
			}
			m.core.addLog(line)
		}

	case pendantConnLostMsg:
		m.connLost = true
		m.core.addLog("connection lost")
	}

	return m, nil
}

func (m pendantModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The MDI input swallows everything except quit and unfocus
	if m.focusedField == focusMDIInput {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "esc":
			m.focusedField = focusWheels
			m.mdiInput.Blur()
			return m, nil

		case "enter":
			line := strings.TrimSpace(m.mdiInput.Value())
			if line != "" && !m.connLost {
				m.core.sendGcode(line)
			}
			m.mdiInput.SetValue("")
			return m, nil
		}

		var cmd tea.Cmd
		m.mdiInput, cmd = m.mdiInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.focusedField = focusMDIInput
		m.mdiInput.Focus()

	case "left":
		m.core.pulse(m.core.overrideID, -1, wheelVelocity)
	case "right":
		m.core.pulse(m.core.overrideID, 1, wheelVelocity)
	case "c":
		m.core.click(m.core.overrideID)

	case "up":
		m.core.pulse(m.core.mpgID, 1, wheelVelocity)
	case "down":
		m.core.pulse(m.core.mpgID, -1, wheelVelocity)
	case " ":
		m.core.pulse(m.core.mpgID, 0, 0)
	case "a":
		m.core.click(m.core.mpgID)
	case "z":
		m.core.dblClick(m.core.mpgID)
	}

	return m, nil
}

func (m pendantModel) View() string {
	if m.quitting {
		return "Saving settings...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	alertStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	panelStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("241")).
		Padding(0, 1)

	var s strings.Builder

	s.WriteString(titleStyle.Render("grblHAL Pendant"))
	s.WriteString("  ")
	if m.connLost {
		s.WriteString(alertStyle.Render("CONNECTION LOST"))
	} else {
		s.WriteString(headerStyle.Render(m.connInfo))
	}
	s.WriteString("\n\n")

	// Machine panel
	var machine strings.Builder
	if m.core.status.seen {
		machine.WriteString(labelStyle.Render("State: "))
		machine.WriteString(valueStyle.Render(m.core.status.stateName))
	} else {
		machine.WriteString(headerStyle.Render("Waiting for status report..."))
	}
	machine.WriteString("\n")
	for axis := 0; axis < grbl.NAxis; axis++ {
		machine.WriteString(labelStyle.Render(grbl.AxisLetters[axis] + ": "))
		machine.WriteString(valueStyle.Render(fmt.Sprintf("%9.3f", m.core.status.mpos[axis]-m.core.status.wco[axis])))
		machine.WriteString(headerStyle.Render(fmt.Sprintf("  (machine %9.3f)", m.core.status.mpos[axis])))
		machine.WriteString("\n")
	}
	machine.WriteString(labelStyle.Render("Ov: "))
	machine.WriteString(valueStyle.Render(fmt.Sprintf("feed %d%%  rapid %d%%  spindle %d%%",
		m.core.status.ov[0], m.core.status.ov[1], m.core.status.ov[2])))
	s.WriteString(panelStyle.Render(machine.String()))
	s.WriteString("\n\n")

	// Wheels panel
	overrideEnc := m.core.engine.Encoder(m.core.overrideID)
	mpgEnc := m.core.engine.Encoder(m.core.mpgID)

	var wheels strings.Builder
	wheels.WriteString(labelStyle.Render("Override wheel: "))
	wheels.WriteString(valueStyle.Render(overrideEnc.Mode.String()))
	wheels.WriteString(headerStyle.Render("  (left/right step, c cycles)"))
	wheels.WriteString("\n")
	wheels.WriteString(labelStyle.Render("MPG wheel:      "))
	wheels.WriteString(valueStyle.Render(fmt.Sprintf("axis %s  x%g",
		grbl.AxisLetters[mpgEnc.Axis], m.core.engine.ScaleFactor(mpgEnc.Axis))))
	wheels.WriteString(headerStyle.Render("  (up/down jog, a next axis, z zero, space stop)"))
	s.WriteString(panelStyle.Render(wheels.String()))
	s.WriteString("\n\n")

	// MDI input
	s.WriteString(labelStyle.Render("MDI: "))
	s.WriteString(m.mdiInput.View())
	if m.focusedField != focusMDIInput {
		s.WriteString(headerStyle.Render("  (tab to focus)"))
	}
	s.WriteString("\n\n")

	// Event log, most recent lines that fit
	logLines := 8
	if m.height > 28 {
		logLines = m.height - 20
	}
	start := len(m.core.log) - logLines
	if start < 0 {
		start = 0
	}
	var logPanel strings.Builder
	logPanel.WriteString(labelStyle.Render("Log"))
	logPanel.WriteString("\n")
	for _, entry := range m.core.log[start:] {
		logPanel.WriteString(headerStyle.Render(entry))
		logPanel.WriteString("\n")
	}
	s.WriteString(panelStyle.Render(strings.TrimRight(logPanel.String(), "\n")))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("q quits and saves wheel settings"))
	s.WriteString("\n")

	return s.String()
}
