package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const deviceInfoSize = 60

// DeviceInfo is the fixed-layout payload returned by an EnterBoot reply.
type DeviceInfo struct {
	Model            string
	FlashSize        uint32
	AppLoadAddr      uint32
	FragmentSize     uint32
	BootloaderVersion string
}

func padString(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

// EncodeDeviceInfo serializes d to its 60-byte wire representation.
func EncodeDeviceInfo(d DeviceInfo) []byte {
	buf := make([]byte, deviceInfoSize)
	copy(buf[0:32], padString(d.Model, 32))
	binary.LittleEndian.PutUint32(buf[32:36], d.FlashSize)
	binary.LittleEndian.PutUint32(buf[36:40], d.AppLoadAddr)
	binary.LittleEndian.PutUint32(buf[40:44], d.FragmentSize)
	copy(buf[44:60], padString(d.BootloaderVersion, 16))
	return buf
}

// DecodeDeviceInfo parses a 60-byte DeviceInfo payload.
func DecodeDeviceInfo(buf []byte) (DeviceInfo, error) {
	if len(buf) != deviceInfoSize {
		return DeviceInfo{}, fmt.Errorf("frame: device info must be %d bytes, got %d", deviceInfoSize, len(buf))
	}
	return DeviceInfo{
		Model:             string(bytes.TrimRight(buf[0:32], "\x00")),
		FlashSize:         binary.LittleEndian.Uint32(buf[32:36]),
		AppLoadAddr:       binary.LittleEndian.Uint32(buf[36:40]),
		FragmentSize:      binary.LittleEndian.Uint32(buf[40:44]),
		BootloaderVersion: string(bytes.TrimRight(buf[44:60], "\x00")),
	}, nil
}
