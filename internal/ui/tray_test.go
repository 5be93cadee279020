package ui

import (
	"bytes"
	"image/png"
	"testing"
)

func TestIconIsPNG(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(iconBytes))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 22 || b.Dy() != 22 {
		t.Errorf("icon bounds = %v, want 22x22", b)
	}
	_, _, _, a := img.At(11, 11).RGBA()
	if a == 0 {
		t.Error("icon center is transparent")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		name   string
		snap   Snapshot
		paused bool
		want   string
	}{
		{"idle", Snapshot{}, false, "Idle"},
		{"analyzing", Snapshot{Analyzing: true}, false, "Analyzing"},
		{"paused wins over analyzing", Snapshot{Analyzing: true}, true, "Paused"},
		{"one export", Snapshot{ActiveExports: 1}, true, "Exporting"},
		{"many exports", Snapshot{ActiveExports: 3}, false, "Exporting (3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusLabel(tt.snap, tt.paused); got != tt.want {
				t.Errorf("statusLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}
