package cmd

import (
	"fmt"
	"os"

	boothost "github.com/RZJZWD/MCU-boot"
)

// renderEvents drains orch's event channel on a background goroutine until
// done is closed, printing each event as a line of text. This is the CLI's
// entire rendering logic: it holds no protocol state of its own.
func renderEvents(orch *boothost.Orchestrator, done <-chan struct{}) {
	go func() {
		for {
			select {
			case e := <-orch.Events():
				printEvent(e)
			case <-done:
				return
			}
		}
	}()
}

func printEvent(e boothost.Event) {
	switch e.Kind {
	case boothost.EventLog:
		fmt.Println(e.Log)
	case boothost.EventErrorMsg:
		fmt.Fprintf(os.Stderr, "error: %s\n", e.ErrorMessage)
	case boothost.EventStatusChange:
		fmt.Printf("status: %s\n", e.Status)
	case boothost.EventProgress:
		fmt.Printf("progress: %d/%d (%.1f%%) %s\n", e.Progress.Current, e.Progress.Total, e.Progress.Percentage, e.Progress.Label)
	case boothost.EventFirmwareLoaded:
		fmt.Printf("firmware loaded: %s (%d bytes, %d fragments, crc32=0x%08X)\n",
			e.Image.Path, len(e.Image.Data), e.Image.FragmentCount(), e.Image.CRC32)
	case boothost.EventDeviceError:
		fmt.Fprintf(os.Stderr, "device error: %s\n", e.DeviceError)
	}
}

func newOrchestrator(checkpointDir string) *boothost.Orchestrator {
	logger := boothost.NewStdLogger()
	logger.Debugging = debugLogging
	opts := []boothost.Option{
		boothost.WithLogger(logger),
		boothost.WithTimeout(timeout()),
		boothost.WithRetryCount(retryCount),
	}
	if checkpointDir != "" {
		opts = append(opts, boothost.WithCheckpointDir(checkpointDir))
	}
	return boothost.New(opts...)
}

func connectAndRender(orch *boothost.Orchestrator) (func(), error) {
	if err := validateConnectionFlags(); err != nil {
		return nil, err
	}
	if err := orch.Connect(connectOptions()); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	renderEvents(orch, done)
	return func() { close(done); orch.Close() }, nil
}
