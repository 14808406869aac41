package boothost

import "github.com/RZJZWD/MCU-boot/internal/firmware"

// BootStatus is the orchestrator's coarse-grained lifecycle variable.
type BootStatus int

const (
	Disconnected BootStatus = iota
	Connected
	InBootMode
	Transfer
	Verifying
	Completed
	Error
)

func (s BootStatus) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case InBootMode:
		return "InBootMode"
	case Transfer:
		return "Transfer"
	case Verifying:
		return "Verifying"
	case Completed:
		return "Completed"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// EventKind tags which field of an Event is populated.
type EventKind int

const (
	EventLog EventKind = iota
	EventErrorMsg
	EventStatusChange
	EventProgress
	EventFirmwareLoaded
	EventDeviceError
)

// Progress describes where a run currently stands.
type Progress struct {
	Current    int
	Total      int
	Label      string
	Percentage float64
}

// Event is the single tagged-variant type delivered on an orchestrator's
// event channel; only the field matching Kind is meaningful.
type Event struct {
	Kind         EventKind
	Log          string
	ErrorMessage string
	Status       BootStatus
	Progress     Progress
	Image        *firmware.Image
	DeviceError  string
}
