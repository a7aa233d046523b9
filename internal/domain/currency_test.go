package domain

import (
	"math"
	"testing"
)

func TestCurrencyToMetal(t *testing.T) {
	tests := []struct {
		name  string
		c     Currency
		pivot float64
		want  float64
	}{
		{"metal only", Currency{Metal: 9.33}, 68.11, 9.33},
		{"keys only", Currency{Keys: 2}, 68.11, 136.22},
		{"mixed", Currency{Keys: 1, Metal: 5.55}, 60, 65.55},
		{"zero", Currency{}, 68.11, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.ToMetal(tt.pivot); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ToMetal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoundMetal(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{9.33, 9.33},
		{9.3, 9.33},      // nearest ninth
		{9.25, 9.22},     // 83.25/9 rounds down
		{0.06, 0.11},     // snaps up to one scrap
		{0.05, 0.00},     // snaps down
		{10.999, 11.00},
	}
	for _, tt := range tests {
		if got := RoundMetal(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RoundMetal(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMetalToCurrency(t *testing.T) {
	c := MetalToCurrency(136.22, 68.11)
	if c.Keys != 2 || c.Metal != 0 {
		t.Errorf("MetalToCurrency(136.22, 68.11) = %+v, want 2 keys 0 metal", c)
	}

	c = MetalToCurrency(70, 68.11)
	if c.Keys != 1 {
		t.Errorf("keys = %v, want 1", c.Keys)
	}
	if c.Metal <= 0 || c.Metal >= 68.11 {
		t.Errorf("metal remainder %v out of range", c.Metal)
	}

	// No pivot leaves everything in metal.
	c = MetalToCurrency(12.5, 0)
	if c.Keys != 0 {
		t.Errorf("keys = %v, want 0 without pivot", c.Keys)
	}
}

func TestPivotRate(t *testing.T) {
	p := NewPivotRate(68.11)
	p.Set(0) // ignored
	if got := p.Metal(); got != 68.11 {
		t.Errorf("Metal() = %v after Set(0), want 68.11", got)
	}
	p.Set(70.22)
	if got := p.Metal(); got != 70.22 {
		t.Errorf("Metal() = %v, want 70.22", got)
	}
}
