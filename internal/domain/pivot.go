package domain

import "sync"

// PivotRate is the process-wide metal value of one key. It is written once at
// start-up and again whenever the key item itself is repriced; every
// cross-denomination conversion reads it through this handle. Readers must
// tolerate the value changing mid-pass, so it is never snapshotted silently.
type PivotRate struct {
	mu    sync.RWMutex
	metal float64
}

// NewPivotRate creates a pivot handle with an initial metal value.
func NewPivotRate(metal float64) *PivotRate {
	return &PivotRate{metal: metal}
}

// Metal returns the current metal value of one key.
func (p *PivotRate) Metal() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metal
}

// Set updates the pivot. Zero and negative values are ignored so a bad key
// reprice can never wipe out cross-denomination math.
func (p *PivotRate) Set(metal float64) {
	if metal <= 0 {
		return
	}
	p.mu.Lock()
	p.metal = metal
	p.mu.Unlock()
}
