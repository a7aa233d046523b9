package domain

import (
	"testing"
	"time"
)

func TestBandFor(t *testing.T) {
	tests := []struct {
		avg  float64
		want ActivityBand
	}{
		{12, BandVeryActive},
		{10, BandActive},
		{8.5, BandActive},
		{7, BandModeratelyActive},
		{5, BandSomewhatActive},
		{3, BandLowActive},
		{2, BandRare},
		{0, BandRare},
	}
	for _, tt := range tests {
		if got := BandFor(tt.avg); got != tt.want {
			t.Errorf("BandFor(%v) = %v, want %v", tt.avg, got, tt.want)
		}
	}
}

func TestRetentionWindow(t *testing.T) {
	// A listing updated 40 minutes ago on a very active item is past its
	// window; the same listing on a rare item is well within its window.
	age := 40 * time.Minute

	if w := RetentionWindow(BandFor(12)); age <= w {
		t.Errorf("very active window %v should be shorter than %v", w, age)
	}
	if w := RetentionWindow(BandFor(1)); age >= w {
		t.Errorf("rare window %v should be longer than %v", w, age)
	}

	if RetentionWindow(BandRare) != RetentionFailsafe {
		t.Errorf("rare band must match the failsafe ceiling")
	}
}
