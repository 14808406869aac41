package frame

// Decoder assembles frames from a byte stream one byte at a time. It owns
// resynchronization on framing errors; callers hand it raw bytes as they
// arrive and get back a complete Frame whenever one finishes.
type Decoder struct {
	state    int
	cmd      byte
	lenLo    byte
	lenHi    byte
	declared int
	payload  []byte
}

// NewDecoder returns a Decoder positioned at the idle state, scanning for a
// header.
func NewDecoder() *Decoder {
	return &Decoder{state: stateIdle}
}

// Reset discards any partially assembled frame and returns to the idle state.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.cmd = 0
	d.lenLo = 0
	d.lenHi = 0
	d.declared = 0
	d.payload = nil
}

// DecodeByte feeds one byte into the state machine. It returns a non-nil
// Frame when that byte completes one, and a non-nil error when the byte
// violates framing (the decoder resets itself before returning the error).
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b == HeaderByte0 {
			d.state = stateHeader1
		}
		return nil, nil

	case stateHeader1:
		if b == HeaderByte1 {
			d.state = stateCmd
		} else if b != HeaderByte0 {
			d.state = stateIdle
		}
		return nil, nil

	case stateCmd:
		d.cmd = b
		d.state = stateLen1
		return nil, nil

	case stateLen1:
		d.lenLo = b
		d.state = stateLen2
		return nil, nil

	case stateLen2:
		d.lenHi = b
		d.declared = int(d.lenLo) | int(d.lenHi)<<8
		d.payload = make([]byte, 0, d.declared)
		if d.declared == 0 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.payload = append(d.payload, b)
		if len(d.payload) >= d.declared {
			d.state = stateChecksum
		}
		return nil, nil

	case stateChecksum:
		want := checksum(d.cmd, d.lenLo, d.lenHi, d.payload)
		payload := d.payload
		cmd := d.cmd
		d.Reset()
		if want != b {
			return nil, &MalformedFrame{Reason: "checksum mismatch"}
		}
		kind := Kind(cmd)
		if !kind.IsValid() {
			return nil, &MalformedFrame{Reason: "unrecognized command byte"}
		}
		f := New(kind, payload)
		return &f, nil

	default:
		d.Reset()
		return nil, &MalformedFrame{Reason: "invalid decoder state"}
	}
}
