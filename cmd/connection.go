// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package cmd

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is the raw character stream to a grblHAL controller, either a
// directly attached serial port or a websocket bridge.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed marks a connection that will never yield data again.
var ErrConnectionClosed = errors.New("connection closed")

// pauseAfterReadError decides what a read loop does with an error: stop on
// a closed connection, otherwise pause briefly so a wedged port cannot spin
// the loop hot. It reports whether reading should continue.
func pauseAfterReadError(err error) bool {
	if errors.Is(err, ErrConnectionClosed) {
		return false
	}
	time.Sleep(10 * time.Millisecond)
	return true
}

// serialLink is a directly attached controller.
type serialLink struct {
	port serial.Port
}

func (l *serialLink) Read(p []byte) (int, error)  { return l.port.Read(p) }
func (l *serialLink) Write(p []byte) (int, error) { return l.port.Write(p) }
func (l *serialLink) Close() error                { return l.port.Close() }

func openSerialLink(device string, baud int) (Connection, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	// Many controller boards hold the MCU in reset until DTR is asserted.
	// Adapters that cannot drive DTR report an error we don't care about.
	port.SetDTR(true)

	// Bounded reads keep the reader loops responsive to shutdown even when
	// the controller is silent. A timeout surfaces as a zero-byte read.
	port.SetReadTimeout(250 * time.Millisecond)

	return &serialLink{port: port}, nil
}

// wsLink adapts a websocket bridge to the byte stream. Bridges are not
// consistent about framing: Telnet-style daemons forward the stream as
// binary messages, ESP3D-style front ends use text. Reads accept both.
// Writes always use binary frames, since real-time override bytes
// (0x85, 0x90..0x9D) are not valid UTF-8.
type wsLink struct {
	conn    *websocket.Conn
	pending []byte
	closed  bool
}

func (l *wsLink) Read(p []byte) (int, error) {
	if l.closed {
		return 0, ErrConnectionClosed
	}

	for len(l.pending) == 0 {
		kind, data, err := l.conn.ReadMessage()
		if err != nil {
			l.closed = true
			return 0, ErrConnectionClosed
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			l.pending = data
		}
	}

	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *wsLink) Write(p []byte) (int, error) {
	if err := l.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *wsLink) Close() error { return l.conn.Close() }

func dialWebSocketLink(rawURL, user string) (Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported scheme %q, use ws:// or wss://", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" && wsNoSSLVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var header http.Header
	if user != "" {
		password, err := bridgePassword()
		if err != nil {
			return nil, err
		}
		header = http.Header{}
		header.Set("Authorization", "Basic "+
			base64.StdEncoding.EncodeToString([]byte(user+":"+password)))
	}

	conn, resp, err := dialer.Dial(rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connecting to %s (HTTP %d): %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connecting to %s: %w", u.Host, err)
	}

	return &wsLink{conn: conn}, nil
}

// bridgePassword reads the bridge password from GRBL_PASSWORD, falling back
// to a no-echo terminal prompt. There is deliberately no --password flag:
// it would leak the credential into shell history.
func bridgePassword() (string, error) {
	if pw, ok := os.LookupEnv("GRBL_PASSWORD"); ok {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	if b, err := term.ReadPassword(int(syscall.Stdin)); err == nil {
		return string(b), nil
	}

	// stdin is not a terminal, take a plain line instead.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// openConnection opens the controller link selected by the persistent flags
// and returns a short description of it.
func openConnection() (Connection, string, error) {
	switch {
	case portName != "" && wsURL != "":
		return nil, "", errors.New("--port and --url are mutually exclusive")

	case portName != "":
		conn, err := openSerialLink(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("%s @ %d baud", portName, baudRate), nil

	case wsURL != "":
		conn, err := dialWebSocketLink(wsURL, wsUsername)
		if err != nil {
			return nil, "", err
		}
		return conn, wsURL, nil
	}

	return nil, "", errors.New("no controller given, use --port or --url")
}
