// Package scheduler sequences a FIFO queue of commands against a transport,
// applying a per-command response policy to decide whether to continue,
// retry, stop, or skip after each reply.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/RZJZWD/MCU-boot/internal/frame"
	"github.com/RZJZWD/MCU-boot/internal/transport"
)

// DefaultScheduleRetryBudget is used for a CommandItem that does not set one.
const DefaultScheduleRetryBudget = 3

// RetryCount returns a pointer to n, for populating CommandItem's
// RetryCountOverride field with an explicit value, including 0.
func RetryCount(n int) *int { return &n }

// QueueBusy is returned by Start when a run is already in progress.
type QueueBusy struct{}

func (e *QueueBusy) Error() string { return "scheduler: a run is already in progress" }

// Sender is the subset of *transport.Transport the scheduler depends on,
// narrowed so it can be faked in tests.
type Sender interface {
	SendAndAwait(f frame.Frame, expected frame.Kind, cfg transport.Config) (*frame.Frame, error)
}

// CommandItem is one scheduled send-and-wait step.
type CommandItem struct {
	Cmd      frame.Kind
	Payload  []byte
	Expected frame.Kind
	Label    string

	// TimeoutOverrideMS, when non-zero, replaces the scheduler's base
	// transport timeout for this item's SendAndAwait call.
	TimeoutOverrideMS int

	// RetryCountOverride, when non-nil, replaces the scheduler's base
	// transport retry count for this item's SendAndAwait call. A pointer
	// because 0 is itself a meaningful override (no transport-level
	// retries at all) and must be distinguishable from "unset".
	RetryCountOverride *int

	// ScheduleRetryBudget is how many times this item may be re-enqueued in
	// response to a Retry action. Zero means DefaultScheduleRetryBudget; a
	// negative value means no retries remain.
	ScheduleRetryBudget int

	// Policy decides the Action for a received reply. Nil means ContinueAlways.
	Policy ResponsePolicy
}

func (c CommandItem) effectiveBudget() int {
	if c.ScheduleRetryBudget == 0 {
		return DefaultScheduleRetryBudget
	}
	return c.ScheduleRetryBudget
}

func (c CommandItem) policy() ResponsePolicy {
	if c.Policy == nil {
		return ContinueAlways
	}
	return c.Policy
}

func (c CommandItem) retryCopy() CommandItem {
	cp := c
	cp.Label = c.Label + " (retry)"
	cp.ScheduleRetryBudget = c.effectiveBudget() - 1
	if cp.ScheduleRetryBudget == 0 {
		// A spent budget must not read back as "unset" (the default).
		cp.ScheduleRetryBudget = -1
	}
	return cp
}

// CommandResult is the outcome of one Start call.
type CommandResult struct {
	Success      bool
	ErrorMessage string
	Frames       []*frame.Frame
	Executed     int
	Total        int
}

// ProgressFunc is invoked before each item is dispatched.
type ProgressFunc func(current, total int, item CommandItem)

// Scheduler runs a FIFO command queue against a Sender.
type Scheduler struct {
	sender     Sender
	baseConfig transport.Config
	logger     transport.Logger

	mu            sync.Mutex
	queue         []CommandItem
	running       bool
	stopRequested bool

	onProgress      ProgressFunc
	lastDeviceError string
}

// New creates a Scheduler that dispatches through sender using baseConfig as
// the default per-call transport configuration.
func New(sender Sender, baseConfig transport.Config) *Scheduler {
	return &Scheduler{sender: sender, baseConfig: baseConfig, logger: noopLogger{}}
}

// SetLogger sets the logger the scheduler reports run-loop events through,
// such as a schedule-retry budget being exhausted. A nil logger is a no-op.
func (s *Scheduler) SetLogger(logger transport.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// OnProgress registers a callback invoked before each item is dispatched.
func (s *Scheduler) OnProgress(fn ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProgress = fn
}

// NoteDeviceError records the most recent device error message observed on
// the transport, so a Stop decision can surface it in the CommandResult.
func (s *Scheduler) NoteDeviceError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDeviceError = msg
}

// Stop requests termination of the current run. The queue is cleared
// immediately; the in-flight SendAndAwait (if any) is allowed to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
	s.queue = nil
}

func (s *Scheduler) effectiveConfig(item CommandItem) transport.Config {
	cfg := s.baseConfig
	if item.TimeoutOverrideMS > 0 {
		cfg.Timeout = msToDuration(item.TimeoutOverrideMS)
	}
	if item.RetryCountOverride != nil {
		cfg.RetryCount = *item.RetryCountOverride
	}
	return cfg
}

// Start runs items to completion (or until Stop is called, or a terminal
// policy decision). It fails immediately with *QueueBusy if a run is
// already in progress.
func (s *Scheduler) Start(items []CommandItem) (CommandResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return CommandResult{}, &QueueBusy{}
	}
	s.running = true
	s.stopRequested = false
	s.queue = append([]CommandItem(nil), items...)
	total := len(s.queue)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	result := CommandResult{Success: true, Total: total}

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			stopped := s.stopRequested
			s.mu.Unlock()
			if stopped {
				result.Success = false
				if result.ErrorMessage == "" {
					result.ErrorMessage = "run stopped by request"
				}
			}
			break
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		current := result.Executed + 1
		runningTotal := result.Total
		s.mu.Unlock()

		if s.onProgress != nil {
			s.onProgress(current, runningTotal, item)
		}

		cfg := s.effectiveConfig(item)
		f := frame.New(item.Cmd, item.Payload)
		reply, err := s.sender.SendAndAwait(f, item.Expected, cfg)
		if err != nil {
			result.Success = false
			result.ErrorMessage = fmt.Sprintf("communication lost on %q: %v", item.Label, err)
			s.mu.Lock()
			s.queue = nil
			s.mu.Unlock()
			return result, nil
		}

		action := item.policy()(reply)
		switch action {
		case Continue:
			result.Frames = append(result.Frames, reply)
			result.Executed++

		case Retry:
			budget := item.effectiveBudget()
			if budget > 0 {
				s.mu.Lock()
				s.queue = append(s.queue, item.retryCopy())
				result.Total++
				s.mu.Unlock()
			} else {
				s.logger.Info("schedule-retry budget exhausted, skipping", "label", item.Label)
			}
			result.Executed++

		case Stop:
			result.Frames = append(result.Frames, reply)
			result.Executed++
			result.Success = false
			s.mu.Lock()
			msg := s.lastDeviceError
			s.queue = nil
			s.mu.Unlock()
			if msg != "" {
				result.ErrorMessage = msg
			} else {
				result.ErrorMessage = fmt.Sprintf("policy stopped the run at %q (reply %s)", item.Label, reply.Cmd)
			}
			return result, nil

		case Skip:
			result.Executed++
		}

		s.mu.Lock()
		stopped := s.stopRequested
		s.mu.Unlock()
		if stopped {
			result.Success = false
			if result.ErrorMessage == "" {
				result.ErrorMessage = "run stopped by request"
			}
			return result, nil
		}
	}

	return result, nil
}
