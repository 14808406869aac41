// Package firmware loads a firmware image from disk, computes its integrity
// digests, and carves it into the fixed-layout fragments the Upload command
// expects on the wire.
package firmware

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/RZJZWD/MCU-boot/internal/crc32eng"
)

// maxImageSize bounds how large a firmware file this store will load. It is
// a host-side policy, not a wire limit.
const maxImageSize = 10 * 1024 * 1024

// FileError reports a problem loading a firmware file.
type FileError struct {
	Path   string
	Reason string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("firmware: %s: %s", e.Path, e.Reason)
}

// Image is an immutable, loaded firmware image ready to be fragmented and
// uploaded.
type Image struct {
	Path         string
	Data         []byte
	ModTime      time.Time
	Digest       string
	CRC32        uint32
	FragmentSize int
	LoadAddr     uint32
	fragmentCRCs map[int]uint32
}

// Load reads path into memory and computes its digests. fragmentSize and
// path must be positive/non-empty; the file must exist, be non-empty, and
// not exceed the store's size policy.
func Load(path string, fragmentSize int, loadAddr uint32) (*Image, error) {
	if path == "" {
		return nil, &FileError{Path: path, Reason: "path is empty"}
	}
	if fragmentSize <= 0 {
		return nil, &FileError{Path: path, Reason: "fragment size must be positive"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &FileError{Path: path, Reason: err.Error()}
	}
	if info.Size() == 0 {
		return nil, &FileError{Path: path, Reason: "file is empty"}
	}
	if info.Size() > maxImageSize {
		return nil, &FileError{Path: path, Reason: fmt.Sprintf("file exceeds %d byte limit", maxImageSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Path: path, Reason: err.Error()}
	}

	sum := md5.Sum(data)
	img := &Image{
		Path:         path,
		Data:         data,
		ModTime:      info.ModTime(),
		Digest:       hex.EncodeToString(sum[:]),
		CRC32:        crc32eng.ComputeAll(data),
		FragmentSize: fragmentSize,
		LoadAddr:     loadAddr,
		fragmentCRCs: crc32eng.FragmentMap(data, fragmentSize),
	}
	return img, nil
}

// FragmentCount returns the number of fragments the image was carved into.
func (img *Image) FragmentCount() int {
	return len(img.fragmentCRCs)
}

// FragmentCRC returns the stored CRC-32 for fragment i, or false if i is
// out of range.
func (img *Image) FragmentCRC(i int) (uint32, bool) {
	crc, ok := img.fragmentCRCs[i]
	return crc, ok
}

// Validate recomputes the digest, whole-image CRC, and every fragment CRC
// from the in-memory buffer and compares against the values captured at
// Load time. It never mutates img.
func (img *Image) Validate() error {
	sum := md5.Sum(img.Data)
	digest := hex.EncodeToString(sum[:])
	if digest != img.Digest {
		return fmt.Errorf("firmware: digest mismatch: stored %s, recomputed %s", img.Digest, digest)
	}
	crc := crc32eng.ComputeAll(img.Data)
	if crc != img.CRC32 {
		return fmt.Errorf("firmware: whole-image CRC mismatch: stored 0x%08X, recomputed 0x%08X", img.CRC32, crc)
	}
	recomputed := crc32eng.FragmentMap(img.Data, img.FragmentSize)
	for i, want := range img.fragmentCRCs {
		got, ok := recomputed[i]
		if !ok || got != want {
			return fmt.Errorf("firmware: fragment %d CRC mismatch: stored 0x%08X, recomputed 0x%08X", i, want, got)
		}
	}
	return nil
}

// FragmentData returns the raw data portion of fragment i (not the
// on-wire-encoded Upload payload; see BuildFragment for that).
func (img *Image) FragmentData(i int) ([]byte, error) {
	if i < 0 || i >= img.FragmentCount() {
		return nil, fmt.Errorf("firmware: fragment %d out of range (0..%d)", i, img.FragmentCount()-1)
	}
	start := i * img.FragmentSize
	end := start + img.FragmentSize
	if end > len(img.Data) {
		end = len(img.Data)
	}
	return img.Data[start:end], nil
}
