package calibration

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")

	want := State{
		KickCentroidMax:  1234.5,
		KickZCRMax:       0.12,
		SnareCentroidMax: 4321.0,
		HiHatZCRMin:      0.42,
		Calibrated:       true,
	}
	if err := SaveStateFile(path, want); err != nil {
		t.Fatalf("SaveStateFile: %v", err)
	}

	got, err := LoadStateFile(path)
	if err != nil {
		t.Fatalf("LoadStateFile: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadStateFileMissingReturnsDefaults(t *testing.T) {
	got, err := LoadStateFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadStateFile: %v", err)
	}
	if got != DefaultState() {
		t.Errorf("missing file should yield defaults, got %+v", got)
	}
}

func TestLoadStateFileCorruptErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	if err := os.WriteFile(path, []byte("kick_centroid_max: [not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStateFile(path); err == nil {
		t.Error("corrupt state file must fail to load")
	}
}

func TestLoadStateFilePartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	if err := os.WriteFile(path, []byte("snare_centroid_max: 5000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadStateFile(path)
	if err != nil {
		t.Fatalf("LoadStateFile: %v", err)
	}
	if got.SnareCentroidMax != 5000 {
		t.Errorf("snare centroid = %v, want 5000", got.SnareCentroidMax)
	}
	if got.KickCentroidMax != DefaultState().KickCentroidMax {
		t.Errorf("unset field lost its default: %+v", got)
	}
}
