package firmware

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/RZJZWD/MCU-boot/internal/crc32eng"
	"github.com/RZJZWD/MCU-boot/internal/frame"
)

func writeTempImage(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp image: %v", err)
	}
	return path
}

func TestLoadComputesDigestsAndFragments(t *testing.T) {
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempImage(t, data)

	img, err := Load(path, 4, 0x08000000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.FragmentCount() != 3 {
		t.Errorf("FragmentCount() = %d, want 3", img.FragmentCount())
	}
	if img.CRC32 != crc32eng.ComputeAll(data) {
		t.Errorf("whole-image CRC mismatch")
	}

	var rebuilt []byte
	for i := 0; i < img.FragmentCount(); i++ {
		d, err := img.FragmentData(i)
		if err != nil {
			t.Fatalf("FragmentData(%d): %v", i, err)
		}
		rebuilt = append(rebuilt, d...)
	}
	if !bytes.Equal(rebuilt, data) {
		t.Errorf("concatenated fragments = % X, want % X", rebuilt, data)
	}
}

func TestLoadRejectsMissingOrEmptyFile(t *testing.T) {
	if _, err := Load("", 4, 0); err == nil {
		t.Error("Load should reject an empty path")
	}
	if _, err := Load("/nonexistent/path/image.bin", 4, 0); err == nil {
		t.Error("Load should reject a missing file")
	}
	emptyPath := writeTempImage(t, nil)
	if _, err := Load(emptyPath, 4, 0); err == nil {
		t.Error("Load should reject an empty file")
	}
}

func TestLoadRejectsNonPositiveFragmentSize(t *testing.T) {
	path := writeTempImage(t, []byte{1, 2, 3})
	if _, err := Load(path, 0, 0); err == nil {
		t.Error("Load should reject a zero fragment size")
	}
}

func TestValidateDetectsTamperedBuffer(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	path := writeTempImage(t, data)
	img, err := Load(path, 2, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := img.Validate(); err != nil {
		t.Fatalf("Validate on pristine image: %v", err)
	}
	img.Data[0] ^= 0xFF
	if err := img.Validate(); err == nil {
		t.Error("Validate should detect a tampered buffer")
	}
}

func TestBuildFragmentMatchesWireLayout(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	path := writeTempImage(t, data)
	img, err := Load(path, 3, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	payload, err := img.BuildFragment(0)
	if err != nil {
		t.Fatalf("BuildFragment(0): %v", err)
	}
	index, total, gotData, crc, err := frame.DecodeUploadPayload(payload)
	if err != nil {
		t.Fatalf("DecodeUploadPayload: %v", err)
	}
	if index != 0 || total != 2 || !bytes.Equal(gotData, data[0:3]) {
		t.Errorf("fragment 0 = index=%d total=%d data=% X", index, total, gotData)
	}
	wantCRC, _ := img.FragmentCRC(0)
	if crc != wantCRC {
		t.Errorf("fragment CRC = 0x%08X, want 0x%08X", crc, wantCRC)
	}
}

func TestBuildFragmentOutOfRange(t *testing.T) {
	path := writeTempImage(t, []byte{1, 2, 3})
	img, err := Load(path, 3, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := img.BuildFragment(5); err == nil {
		t.Error("BuildFragment should reject an out-of-range index")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeTempImage(t, []byte{1, 2, 3, 4, 5, 6})
	img, err := Load(path, 2, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cp, err := img.LoadCheckpoint(dir); err != nil || cp != nil {
		t.Fatalf("LoadCheckpoint before save = (%v, %v), want (nil, nil)", cp, err)
	}

	if err := img.SaveCheckpoint(dir, 1); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	cp, err := img.LoadCheckpoint(dir)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp == nil || cp.LastAckedFragment != 1 || cp.Digest != img.Digest {
		t.Errorf("LoadCheckpoint = %+v", cp)
	}

	if err := img.ClearCheckpoint(dir); err != nil {
		t.Fatalf("ClearCheckpoint: %v", err)
	}
	cp, err = img.LoadCheckpoint(dir)
	if err != nil || cp != nil {
		t.Errorf("LoadCheckpoint after clear = (%v, %v), want (nil, nil)", cp, err)
	}
}
