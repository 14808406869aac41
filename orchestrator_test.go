package boothost

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RZJZWD/MCU-boot/internal/frame"
)

// loopbackDevice stands in for the target side of the link during tests:
// it decodes whatever the orchestrator sends and replies according to a
// caller-supplied handler.
type loopbackDevice struct {
	r, outR *io.PipeReader
	w, outW *io.PipeWriter
	closed  bool
	mu      sync.Mutex
}

func newLoopback() (*loopbackDevice, *loopbackDevice) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	a := &loopbackDevice{r: r1, w: w2, outR: r2, outW: w1}
	b := &loopbackDevice{r: r2, w: w1, outR: r1, outW: w2}
	return a, b
}

func (d *loopbackDevice) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *loopbackDevice) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d *loopbackDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.r.Close()
	d.w.Close()
	return nil
}

// serveOne reads a single frame and writes back the frame built by reply.
func serveOne(t *testing.T, dev *loopbackDevice, reply func(frame.Frame) frame.Frame) {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := dev.Read(buf)
	if err != nil {
		return
	}
	f, err := frame.Decode(buf[:n])
	if err != nil {
		t.Errorf("device-side decode failed: %v", err)
		return
	}
	out, err := frame.Encode(reply(f))
	if err != nil {
		t.Errorf("device-side encode failed: %v", err)
		return
	}
	dev.Write(out)
}

func TestOrchestratorEnterBootRoundTrip(t *testing.T) {
	client, device := newLoopback()
	defer client.Close()
	defer device.Close()

	orch := New(WithTimeout(2 * time.Second))
	orch.Attach(client, "test")
	defer orch.Close()

	info := frame.DeviceInfo{Model: "DEV-X", FlashSize: 0x00020000, AppLoadAddr: 0x08000000, FragmentSize: 1024, BootloaderVersion: "v1.2.3"}
	go serveOne(t, device, func(frame.Frame) frame.Frame {
		return frame.New(frame.EnterBoot, frame.EncodeDeviceInfo(info))
	})

	result, err := orch.EnterBoot()
	if err != nil {
		t.Fatalf("EnterBoot: %v", err)
	}
	if !result.Success {
		t.Fatalf("EnterBoot result = %+v", result)
	}
	if orch.Status() != Completed {
		t.Errorf("Status() = %v, want Completed", orch.Status())
	}
}

func TestOrchestratorUploadAllWithoutImage(t *testing.T) {
	client, device := newLoopback()
	defer client.Close()
	defer device.Close()

	orch := New()
	orch.Attach(client, "test")
	defer orch.Close()

	if _, err := orch.UploadAll(); err == nil {
		t.Fatal("UploadAll should fail without a loaded image")
	} else if _, ok := err.(*NoImageLoaded); !ok {
		t.Errorf("expected *NoImageLoaded, got %T", err)
	}
}

func TestOrchestratorUploadAllAllFragments(t *testing.T) {
	client, device := newLoopback()
	defer client.Close()
	defer device.Close()

	dir := t.TempDir()
	imgPath := filepath.Join(dir, "fw.bin")
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(imgPath, data, 0o644); err != nil {
		t.Fatalf("write firmware file: %v", err)
	}

	orch := New(WithTimeout(2 * time.Second), WithCheckpointDir(filepath.Join(dir, "checkpoints")))
	orch.Attach(client, "test")
	defer orch.Close()

	if err := orch.LoadImage(imgPath, 6, 0x08000000); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	var served int
	done := make(chan struct{})
	go func() {
		for {
			buf := make([]byte, 4096)
			n, err := device.Read(buf)
			if err != nil {
				close(done)
				return
			}
			f, err := frame.Decode(buf[:n])
			if err != nil {
				continue
			}
			served++
			out, _ := frame.Encode(frame.New(frame.Ack, nil))
			device.Write(out)
			if f.Cmd != frame.Upload {
				continue
			}
		}
	}()

	result, err := orch.UploadAll()
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if !result.Success {
		t.Fatalf("UploadAll result = %+v", result)
	}
	if result.Executed != 4 {
		t.Errorf("Executed = %d, want 4 fragments for a 20-byte image at 6 bytes/fragment", result.Executed)
	}
}

func TestOrchestratorEventsReceiveStatusChanges(t *testing.T) {
	client, device := newLoopback()
	defer client.Close()
	defer device.Close()

	orch := New(WithTimeout(time.Second))
	orch.Attach(client, "test")
	defer orch.Close()

	go func() {
		serveOne(t, device, func(frame.Frame) frame.Frame {
			return frame.New(frame.Nack, nil)
		})
		// Keep accepting the transport's resends without replying.
		io.Copy(io.Discard, device)
	}()

	_, _ = orch.EnterBoot()

	sawError := false
	for {
		select {
		case e := <-orch.Events():
			if e.Kind == EventStatusChange && e.Status == Error {
				sawError = true
			}
		default:
			goto checked
		}
	}
checked:
	if !sawError {
		t.Error("expected an Error status-change event after a Nack reply")
	}
}
