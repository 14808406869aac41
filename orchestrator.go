// Package boothost drives a target's resident bootloader over a byte-stream
// link: entering boot mode, streaming a firmware image fragment by
// fragment, and commanding the target to run the new application.
package boothost

import (
	"fmt"
	"sync"

	"github.com/RZJZWD/MCU-boot/internal/firmware"
	"github.com/RZJZWD/MCU-boot/internal/frame"
	"github.com/RZJZWD/MCU-boot/internal/link"
	"github.com/RZJZWD/MCU-boot/internal/scheduler"
	"github.com/RZJZWD/MCU-boot/internal/transport"
)

// Orchestrator composes a firmware store, a transport, and a scheduler into
// the three canonical workflows: EnterBoot, UploadAll, RunApp.
type Orchestrator struct {
	cfg Config

	mu     sync.Mutex
	status BootStatus
	conn   link.Connection
	tr     *transport.Transport
	sched  *scheduler.Scheduler
	image  *firmware.Image

	events chan Event
}

// New creates an Orchestrator with the given options applied over the
// documented defaults. It has no connection or image until Connect and
// LoadImage are called.
func New(opts ...Option) *Orchestrator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{
		cfg:    cfg,
		status: Disconnected,
		events: make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the orchestrator's event channel. Callers should drain it
// continuously; a full buffer causes event emission to drop the oldest
// pending event, whatever its kind, rather than block the run.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

func (o *Orchestrator) emit(e Event) {
	select {
	case o.events <- e:
	default:
		select {
		case <-o.events:
		default:
		}
		select {
		case o.events <- e:
		default:
		}
	}
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.cfg.Logger.Info(msg)
	o.emit(Event{Kind: EventLog, Log: msg})
}

func (o *Orchestrator) setStatus(s BootStatus) {
	o.mu.Lock()
	changed := o.status != s
	o.status = s
	o.mu.Unlock()
	if changed {
		o.emit(Event{Kind: EventStatusChange, Status: s})
	}
}

// Status returns the current BootStatus.
func (o *Orchestrator) Status() BootStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Connect dials a byte-stream connection per opts and wires up the
// transport and scheduler. Any previous connection is closed first.
func (o *Orchestrator) Connect(opts link.Options) error {
	conn, desc, err := link.Dial(opts)
	if err != nil {
		o.setStatus(Error)
		return fmt.Errorf("boothost: connect: %w", err)
	}
	o.Attach(conn, desc)
	return nil
}

// Attach wires an already-open Connection into the orchestrator, bypassing
// link.Dial. This is the seam library callers (and tests) use to supply a
// connection obtained some other way. Any previous connection is closed
// first.
func (o *Orchestrator) Attach(conn link.Connection, desc string) {
	o.mu.Lock()
	if o.tr != nil {
		o.tr.Close()
	}
	o.mu.Unlock()

	tr := transport.New(conn, o.cfg.Logger)
	tr.OnDeviceError(func(e transport.DeviceErrorEvent) {
		o.mu.Lock()
		sched := o.sched
		o.mu.Unlock()
		if sched != nil {
			sched.NoteDeviceError(e.Message)
		}
		o.emit(Event{Kind: EventDeviceError, DeviceError: e.Message})
	})

	o.mu.Lock()
	o.conn = conn
	o.tr = tr
	o.sched = scheduler.New(tr, o.cfg.TransferConfig)
	o.sched.SetLogger(o.cfg.Logger)
	o.sched.OnProgress(func(current, total int, item scheduler.CommandItem) {
		pct := 0.0
		if total > 0 {
			pct = float64(current) / float64(total) * 100
		}
		o.emit(Event{Kind: EventProgress, Progress: Progress{
			Current: current, Total: total, Label: item.Label, Percentage: pct,
		}})
	})
	o.mu.Unlock()

	o.logf("connected: %s", desc)
	o.setStatus(Connected)
}

// Close closes the underlying connection.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	tr := o.tr
	o.mu.Unlock()
	if tr == nil {
		return nil
	}
	return tr.Close()
}

// LoadImage loads a firmware image from path, fragmenting it at
// fragmentSize bytes and tagging it with loadAddr.
func (o *Orchestrator) LoadImage(path string, fragmentSize int, loadAddr uint32) error {
	img, err := firmware.Load(path, fragmentSize, loadAddr)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.image = img
	o.mu.Unlock()
	o.logf("loaded firmware %s: %d bytes", path, len(img.Data))
	o.logf("firmware digest: %s", img.Digest)
	o.logf("firmware crc32: 0x%08X", img.CRC32)
	o.logf("firmware fragments: %d of %d bytes, each with its own crc32", img.FragmentCount(), img.FragmentSize)
	o.emit(Event{Kind: EventFirmwareLoaded, Image: img})
	return nil
}

func (o *Orchestrator) getSched() (*scheduler.Scheduler, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sched == nil {
		return nil, fmt.Errorf("boothost: not connected")
	}
	return o.sched, nil
}

// EnterBoot requests the target enter its bootloader.
func (o *Orchestrator) EnterBoot() (scheduler.CommandResult, error) {
	sched, err := o.getSched()
	if err != nil {
		return scheduler.CommandResult{}, err
	}

	o.setStatus(Transfer)
	items := []scheduler.CommandItem{
		{Cmd: frame.EnterBoot, Expected: frame.EnterBoot, Label: "enter boot", Policy: enterBootPolicyWithLog(o)},
	}
	result, err := sched.Start(items)
	o.finishRun(result, err)
	return result, err
}

func enterBootPolicyWithLog(o *Orchestrator) scheduler.ResponsePolicy {
	return func(f *frame.Frame) scheduler.Action {
		action := scheduler.EnterBootPolicy(f)
		if action == scheduler.Continue && f.Cmd == frame.EnterBoot && len(f.Payload) > 0 {
			if info, err := frame.DecodeDeviceInfo(f.Payload); err == nil {
				o.logf("device info: model=%s flash_size=%d app_addr=0x%08X fragment_size=%d bootloader=%s",
					info.Model, info.FlashSize, info.AppLoadAddr, info.FragmentSize, info.BootloaderVersion)
			} else {
				o.cfg.Logger.Debug("failed to decode device info", "err", err)
			}
		}
		return action
	}
}

// UploadAll uploads every fragment of the loaded image not already covered
// by a resumed checkpoint. It fails with *NoImageLoaded if no image has
// been loaded.
func (o *Orchestrator) UploadAll() (scheduler.CommandResult, error) {
	sched, err := o.getSched()
	if err != nil {
		return scheduler.CommandResult{}, err
	}

	o.mu.Lock()
	img := o.image
	o.mu.Unlock()
	if img == nil {
		return scheduler.CommandResult{}, &NoImageLoaded{}
	}

	startFrom := 0
	if o.cfg.CheckpointDir != "" {
		if cp, err := img.LoadCheckpoint(o.cfg.CheckpointDir); err == nil && cp != nil {
			startFrom = cp.LastAckedFragment + 1
			o.logf("resuming upload from fragment %d (checkpoint found)", startFrom)
		}
	}

	// The checkpoint only advances over a contiguous run of acknowledged
	// fragments, so it never moves past one still waiting for a retry.
	acked := make(map[int]bool)
	nextUnacked := startFrom
	onAck := func(index int) (lastContiguous int, advanced bool) {
		acked[index] = true
		for acked[nextUnacked] {
			nextUnacked++
			advanced = true
		}
		return nextUnacked - 1, advanced
	}

	total := img.FragmentCount()
	items := make([]scheduler.CommandItem, 0, total-startFrom)
	for i := startFrom; i < total; i++ {
		payload, err := img.BuildFragment(i)
		if err != nil {
			return scheduler.CommandResult{}, err
		}
		items = append(items, scheduler.CommandItem{
			Cmd:                 frame.Upload,
			Payload:             payload,
			Expected:            frame.Ack,
			Label:               fmt.Sprintf("upload %d/%d", i+1, total),
			RetryCountOverride:  scheduler.RetryCount(0),
			ScheduleRetryBudget: scheduler.DefaultScheduleRetryBudget,
			Policy:              uploadPolicyWithCheckpoint(o, img, i, onAck),
		})
	}

	o.setStatus(Transfer)
	result, err := sched.Start(items)
	o.finishRun(result, err)
	if result.Success && o.cfg.CheckpointDir != "" {
		img.ClearCheckpoint(o.cfg.CheckpointDir)
	}
	return result, err
}

func uploadPolicyWithCheckpoint(o *Orchestrator, img *firmware.Image, index int, onAck func(int) (int, bool)) scheduler.ResponsePolicy {
	return func(f *frame.Frame) scheduler.Action {
		action := scheduler.UploadPolicy(f)
		if action == scheduler.Continue && o.cfg.CheckpointDir != "" {
			if last, advanced := onAck(index); advanced {
				if err := img.SaveCheckpoint(o.cfg.CheckpointDir, last); err != nil {
					o.cfg.Logger.Error("failed to persist checkpoint", "err", err)
				}
			}
		}
		return action
	}
}

// RunApp requests the target jump to the newly uploaded application.
func (o *Orchestrator) RunApp() (scheduler.CommandResult, error) {
	sched, err := o.getSched()
	if err != nil {
		return scheduler.CommandResult{}, err
	}

	o.setStatus(Transfer)
	items := []scheduler.CommandItem{
		{Cmd: frame.RunApp, Expected: frame.Ack, Label: "run app", Policy: scheduler.RunAppPolicy},
	}
	result, err := sched.Start(items)
	o.finishRun(result, err)
	return result, err
}

func (o *Orchestrator) finishRun(result scheduler.CommandResult, err error) {
	if err != nil {
		o.setStatus(Error)
		o.emit(Event{Kind: EventErrorMsg, ErrorMessage: err.Error()})
		return
	}
	if !result.Success {
		o.setStatus(Error)
		o.emit(Event{Kind: EventErrorMsg, ErrorMessage: result.ErrorMessage})
		return
	}
	o.setStatus(Completed)
}
