package firmware

import (
	"fmt"

	"github.com/RZJZWD/MCU-boot/internal/frame"
)

// BuildFragment returns the Upload payload for fragment i: index, total
// count, the fragment's data, and its CRC-32.
func (img *Image) BuildFragment(i int) ([]byte, error) {
	data, err := img.FragmentData(i)
	if err != nil {
		return nil, err
	}
	crc, ok := img.FragmentCRC(i)
	if !ok {
		return nil, fmt.Errorf("firmware: no crc computed for fragment %d", i)
	}
	return frame.EncodeUploadPayload(uint32(i), uint32(img.FragmentCount()), data, crc), nil
}
