package pricing

import (
	"fmt"

	"github.com/calebwaine/autopricer/internal/domain"
)

// Stage names the pipeline step an item reached. A failed item carries the
// stage it died in so a pass can be diagnosed without replaying it.
type Stage string

const (
	StageFetchListings    Stage = "fetch_listings"
	StageCheckBaseline    Stage = "check_baseline"
	StageTier             Stage = "tier"
	StageExternalFallback Stage = "external_fallback"
	StageBound            Stage = "bound"
	StageSwingCheck       Stage = "swing_check"
	StageEmit             Stage = "emit"
)

// FailReason is a stage-tagged pipeline failure.
type FailReason struct {
	Stage Stage
	Err   error
}

func (f *FailReason) Error() string {
	return fmt.Sprintf("pricing: %s: %v", f.Stage, f.Err)
}

func (f *FailReason) Unwrap() error { return f.Err }

func fail(stage Stage, err error) *FailReason {
	return &FailReason{Stage: stage, Err: err}
}

// Outcome is the per-item result of one pricing pass. Exactly one of Priced
// and Fail is set.
type Outcome struct {
	ItemID   string
	ItemName string
	Source   string
	Priced   *domain.PricedItem
	Fail     *FailReason
}

// Emitted reports whether the item produced a new price this pass.
func (o Outcome) Emitted() bool { return o.Priced != nil }

// Price sources reported on emitted items and broadcast events.
const (
	SourceTier1    = "tier1"
	SourceTier2    = "tier2"
	SourceTier3    = "tier3"
	SourceTier4    = "tier4"
	SourceExternal = "external_market"
	SourceBaseline = "baseline"
)
