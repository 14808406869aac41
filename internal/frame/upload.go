package frame

import (
	"encoding/binary"
	"fmt"
)

// EncodeUploadPayload builds an Upload command payload: index, total count,
// data, and the data's CRC-32, all little-endian.
func EncodeUploadPayload(index, total uint32, data []byte, crc uint32) []byte {
	buf := make([]byte, 8+len(data)+4)
	binary.LittleEndian.PutUint32(buf[0:4], index)
	binary.LittleEndian.PutUint32(buf[4:8], total)
	copy(buf[8:8+len(data)], data)
	binary.LittleEndian.PutUint32(buf[8+len(data):], crc)
	return buf
}

// DecodeUploadPayload is the inverse of EncodeUploadPayload.
func DecodeUploadPayload(buf []byte) (index, total uint32, data []byte, crc uint32, err error) {
	if len(buf) < 12 {
		return 0, 0, nil, 0, fmt.Errorf("frame: upload payload too short: %d bytes", len(buf))
	}
	index = binary.LittleEndian.Uint32(buf[0:4])
	total = binary.LittleEndian.Uint32(buf[4:8])
	data = buf[8 : len(buf)-4]
	crc = binary.LittleEndian.Uint32(buf[len(buf)-4:])
	return index, total, data, crc, nil
}
