package firmware

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Checkpoint records how far an UploadAll run got, so an interrupted
// transfer can resume instead of restarting from fragment 0.
type Checkpoint struct {
	Digest           string `cbor:"digest"`
	FragmentSize     int    `cbor:"fragment_size"`
	LoadAddr         uint32 `cbor:"load_addr"`
	LastAckedFragment int   `cbor:"last_acked_fragment"`
}

func checkpointPath(dir, digest string) string {
	return filepath.Join(dir, digest+".ckpt")
}

// SaveCheckpoint CBOR-encodes and writes a checkpoint for img to dir, one
// file per image digest.
func (img *Image) SaveCheckpoint(dir string, lastAcked int) error {
	cp := Checkpoint{
		Digest:            img.Digest,
		FragmentSize:      img.FragmentSize,
		LoadAddr:          img.LoadAddr,
		LastAckedFragment: lastAcked,
	}
	data, err := cbor.Marshal(cp)
	if err != nil {
		return fmt.Errorf("firmware: encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("firmware: create checkpoint dir: %w", err)
	}
	if err := os.WriteFile(checkpointPath(dir, img.Digest), data, 0o644); err != nil {
		return fmt.Errorf("firmware: write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads back a previously saved checkpoint for img, if one
// exists. A missing checkpoint is reported as (nil, nil), not an error.
func (img *Image) LoadCheckpoint(dir string) (*Checkpoint, error) {
	data, err := os.ReadFile(checkpointPath(dir, img.Digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("firmware: read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := cbor.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("firmware: decode checkpoint: %w", err)
	}
	if cp.Digest != img.Digest || cp.FragmentSize != img.FragmentSize {
		// Stale checkpoint from a different image/fragment layout; ignore it.
		return nil, nil
	}
	return &cp, nil
}

// ClearCheckpoint removes any saved checkpoint for img. A missing file is
// not an error.
func (img *Image) ClearCheckpoint(dir string) error {
	err := os.Remove(checkpointPath(dir, img.Digest))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("firmware: clear checkpoint: %w", err)
	}
	return nil
}
