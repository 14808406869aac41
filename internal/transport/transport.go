// Package transport owns the byte stream a Transport communicates over: a
// background reader that assembles frames, and a single-outstanding
// send-and-await primitive with transport-level retry.
package transport

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/RZJZWD/MCU-boot/internal/frame"
	"github.com/RZJZWD/MCU-boot/internal/link"
)

// Timeout is returned by SendAndAwait when every retry attempt elapsed
// without receiving the expected (or an error) reply.
type Timeout struct {
	Cmd frame.Kind
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("transport: timed out waiting for a reply to %s", e.Cmd)
}

// TransportClosed is returned when a send is attempted on a closed Transport.
type TransportClosed struct{}

func (e *TransportClosed) Error() string { return "transport: connection is closed" }

// Config governs one SendAndAwait call. Passed by value so scheduler retries
// and per-command overrides never mutate a shared instance.
type Config struct {
	Timeout    time.Duration
	RetryCount int
	LineEnding []byte
}

// DefaultConfig returns the baseline TransferConfig values.
func DefaultConfig() Config {
	return Config{
		Timeout:    3 * time.Second,
		RetryCount: 3,
	}
}

// DeviceErrorEvent carries the decoded payload of a received ErrorResponse
// frame, independent of whatever CommandKind the caller was waiting for.
type DeviceErrorEvent struct {
	Message string
}

// Transport serializes access to one Connection: one SendAndAwait call may
// be outstanding at a time, and a background reader task feeds it replies.
type Transport struct {
	conn   link.Connection
	logger Logger

	sendMu sync.Mutex // serializes SendAndAwait: at most one outstanding request

	mu       sync.Mutex
	mailbox  *frame.Frame
	closed   bool
	closeErr error

	onDeviceError func(DeviceErrorEvent)

	readerDone chan struct{}
}

// Logger is the pluggable logging surface transport code calls through.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// New wraps conn in a Transport and starts its background reader. logger
// may be nil, in which case logging is a no-op.
func New(conn link.Connection, logger Logger) *Transport {
	if logger == nil {
		logger = noopLogger{}
	}
	t := &Transport{
		conn:       conn,
		logger:     logger,
		readerDone: make(chan struct{}),
	}
	go t.readerLoop()
	return t
}

// OnDeviceError registers a callback invoked whenever the reader observes an
// ErrorResponse frame, regardless of which SendAndAwait call (if any) is
// outstanding at the time.
func (t *Transport) OnDeviceError(fn func(DeviceErrorEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDeviceError = fn
}

// Close closes the underlying connection and stops the reader.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

func (t *Transport) readerLoop() {
	defer close(t.readerDone)
	decoder := frame.NewDecoder()
	buf := make([]byte, 256)
	for {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}

		n, err := t.conn.Read(buf)
		if err != nil {
			t.mu.Lock()
			t.closed = true
			t.closeErr = err
			t.mu.Unlock()
			return
		}

		for i := 0; i < n; i++ {
			f, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				t.logger.Debug("frame decode error", "err", decodeErr)
				continue
			}
			if f == nil {
				continue
			}
			t.deliver(f)
		}
	}
}

func (t *Transport) deliver(f *frame.Frame) {
	t.mu.Lock()
	t.mailbox = f
	cb := t.onDeviceError
	t.mu.Unlock()

	if f.Cmd == frame.ErrorResponse && cb != nil {
		cb(DeviceErrorEvent{Message: decodeErrorPayload(f.Payload)})
	}
}

func decodeErrorPayload(payload []byte) string {
	if len(payload) == 0 {
		return "(no message)"
	}
	if !utf8.Valid(payload) {
		return "(invalid UTF-8 message)"
	}
	return string(payload)
}

func (t *Transport) takeMailbox() *frame.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.mailbox
	t.mailbox = nil
	return f
}

func (t *Transport) clearMailbox() {
	t.mu.Lock()
	t.mailbox = nil
	t.mu.Unlock()
}

// SendAndAwait sends f and waits for a reply of kind expected (or an
// ErrorResponse, which is returned to the caller rather than treated as a
// failure). It retries up to cfg.RetryCount total attempts on timeout, and
// returns a *Timeout error if every attempt is exhausted.
func (t *Transport) SendAndAwait(f frame.Frame, expected frame.Kind, cfg Config) (*frame.Frame, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, &TransportClosed{}
	}

	wire, err := frame.Encode(f)
	if err != nil {
		return nil, fmt.Errorf("transport: encode: %w", err)
	}
	if len(cfg.LineEnding) > 0 {
		wire = append(wire, cfg.LineEnding...)
	}

	retries := cfg.RetryCount
	if retries <= 0 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		t.clearMailbox()

		if _, err := t.conn.Write(wire); err != nil {
			t.logger.Error("write failed", "err", err, "attempt", attempt+1)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		deadline := time.Now().Add(cfg.Timeout)
		for time.Now().Before(deadline) {
			if got := t.takeMailbox(); got != nil {
				if got.Cmd == expected || got.Cmd == frame.ErrorResponse {
					return got, nil
				}
				t.logger.Debug("ignoring unexpected reply", "cmd", got.Cmd, "want", expected)
				continue
			}
			time.Sleep(10 * time.Millisecond)
		}

		t.logger.Debug("send-and-await timed out", "attempt", attempt+1, "of", retries)
		if attempt < retries-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}

	return nil, &Timeout{Cmd: f.Cmd}
}
