// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package cmd

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Andromem/grblHAL/pkg/grbl"
)

var (
	monitorPollInterval int
	monitorShowAll      bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display the controller character stream in human-readable form",
	Long: `Continuously display lines arriving from the controller.

Status reports, push messages and command responses are tallied and shown
with timestamps. The controller is polled for status reports with the '?'
real-time command at the configured interval.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().IntVar(&monitorPollInterval, "interval", 1000, "Status poll interval in milliseconds (0 disables polling)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Show ok responses as well")
	rootCmd.AddCommand(monitorCmd)
}

// streamTally counts line classes seen on the stream.
type streamTally struct {
	reports   uint64
	messages  uint64
	responses uint64
	errors    uint64
	alarms    uint64
}

func classifyLine(line string) string {
	switch {
	case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
		return "report"
	case strings.HasPrefix(line, "[MSG:"):
		return "message"
	case strings.HasPrefix(line, "error:"):
		return "error"
	case strings.HasPrefix(line, "ALARM:"):
		return "alarm"
	case line == "ok":
		return "ok"
	}
	return "other"
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("grblHAL stream monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if monitorPollInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(monitorPollInterval) * time.Millisecond)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := conn.Write([]byte{grbl.CmdStatusReport}); err != nil {
					return
				}
			}
		}()
	}

	var tally streamTally
	var line strings.Builder
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !pauseAfterReadError(err) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
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

			text := line.String()
			line.Reset()

			show := true
			switch classifyLine(text) {
			case "report":
				tally.reports++
			case "message":
				tally.messages++
			case "error":
				tally.errors++
			case "alarm":
				tally.alarms++
			case "ok":
				tally.responses++
				show = monitorShowAll
			}

			if show {
				fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), text)
			}
			if tally.errors > 0 && tally.errors%10 == 0 {
				fmt.Printf("[%s] -- %d reports, %d messages, %d errors, %d alarms --\n",
					time.Now().Format("15:04:05.000"), tally.reports, tally.messages, tally.errors, tally.alarms)
			}
		}
	}
}
