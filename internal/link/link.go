// Package link dials the byte-stream transport the protocol rides on,
// either a direct serial cable or a network-bridged WebSocket.
package link

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/RZJZWD/MCU-boot/internal/frame"
)

// Connection is the byte-stream surface the transport layer consumes; it
// does not care whether bytes are crossing a serial cable or a WebSocket.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed is returned from Read once the underlying WebSocket
// connection has failed or been closed.
var ErrConnectionClosed = fmt.Errorf("link: connection closed")

// maxWireMessage is the largest byte run a single frame can ever occupy:
// 2 header bytes, 1 command byte, 2 length bytes, the largest addressable
// payload, and 1 checksum byte.
const maxWireMessage = 2 + 1 + 2 + frame.MaxPayloadSize + 1

// Options selects and configures exactly one dial mode.
type Options struct {
	// Serial dial parameters. Port non-empty selects serial mode.
	Port string
	Baud int

	// WebSocket dial parameters. URL non-empty selects WebSocket mode.
	URL         string
	Username    string
	NoSSLVerify bool
	PasswordEnv string // environment variable to read the password from
}

// dialer opens one Connection and describes it for logging. Serial and
// WebSocket dial modes each implement it, so Dial doesn't branch on the
// chosen mode beyond picking which dialer to build.
type dialer interface {
	dial() (Connection, string, error)
}

// Dial opens a Connection per opts, preferring WebSocket when URL is set.
// It returns a human-readable description of the opened connection for
// logging.
func Dial(opts Options) (Connection, string, error) {
	d, err := resolveDialer(opts)
	if err != nil {
		return nil, "", err
	}
	return d.dial()
}

func resolveDialer(opts Options) (dialer, error) {
	if opts.URL != "" {
		password := ""
		if opts.Username != "" {
			var err error
			password, err = resolvePassword(opts.PasswordEnv)
			if err != nil {
				return nil, err
			}
		}
		return &webSocketDialer{
			url:      opts.URL,
			username: opts.Username,
			password: password,
			skipTLS:  opts.NoSSLVerify,
		}, nil
	}
	if opts.Port != "" {
		return &serialDialer{port: opts.Port, baud: opts.Baud}, nil
	}
	return nil, fmt.Errorf("link: either Port or URL must be set")
}

// serialConnection wraps a go.bug.st/serial port as a Connection.
type serialConnection struct {
	port serial.Port
}

func (s *serialConnection) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialConnection) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialConnection) Close() error                { return s.port.Close() }

type serialDialer struct {
	port string
	baud int
}

// dial opens the serial port at 8N1 framing and the given baud rate, then
// discards whatever is already sitting in the port's input buffer. That
// backlog predates this session and cannot be decoded against a fresh
// Decoder: its first bytes are not necessarily a frame header, and without
// one the byte-at-a-time decoder has no resync point to wait for other than
// garbage eventually matching 0xAA 0x55 by chance.
func (d *serialDialer) dial() (Connection, string, error) {
	mode := &serial.Mode{
		BaudRate: d.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(d.port, mode)
	if err != nil {
		return nil, "", fmt.Errorf("link: open serial port %s: %w", d.port, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, "", fmt.Errorf("link: clear serial input buffer on %s: %w", d.port, err)
	}
	return &serialConnection{port: p}, fmt.Sprintf("Serial: %s @ %d baud", d.port, d.baud), nil
}

// webSocketConnection wraps a gorilla/websocket connection, presenting
// binary messages as a plain byte stream. Each Read drains one buffered
// message at a time so a frame never straddles a message boundary
// mid-decode.
type webSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *webSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) > maxWireMessage {
			w.closed = true
			w.conn.Close()
			return 0, &frame.MalformedFrame{Reason: fmt.Sprintf(
				"websocket message of %d bytes exceeds the largest possible frame (%d)", len(data), maxWireMessage)}
		}
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *webSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *webSocketConnection) Close() error { return w.conn.Close() }

type webSocketDialer struct {
	url      string
	username string
	password string
	skipTLS  bool
}

// dial opens a WebSocket bridge connection with optional HTTP Basic auth and
// TLS verification toggle for self-signed lab bridges.
func (d *webSocketDialer) dial() (Connection, string, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, "", fmt.Errorf("link: invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, "", fmt.Errorf("link: unsupported URL scheme %q (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: d.skipTLS}
	}

	headers := http.Header{}
	if d.username != "" && d.password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(d.username + ":" + d.password))
		headers.Set("Authorization", "Basic "+creds)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, d.url, headers)
	if err != nil {
		if resp != nil {
			return nil, "", fmt.Errorf("link: websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, "", fmt.Errorf("link: websocket dial failed: %w", err)
	}
	return &webSocketConnection{conn: conn}, fmt.Sprintf("WebSocket: %s", d.url), nil
}

// resolvePassword reads a password from envVar, or prompts for one on
// stderr with input echo disabled if envVar is unset.
func resolvePassword(envVar string) (string, error) {
	if envVar != "" {
		if pw := os.Getenv(envVar); pw != "" {
			return pw, nil
		}
	}

	fmt.Fprint(os.Stderr, "Password: ")
	fd := int(os.Stdin.Fd())
	passwordBytes, err := term.ReadPassword(fd)
	if err != nil {
		reader := bufio.NewReader(os.Stdin)
		password, readErr := reader.ReadString('\n')
		if readErr != nil {
			return "", fmt.Errorf("link: read password: %w", readErr)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}
	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
