package domain

// EstimationMethod names the statistic that produced a robust estimate.
type EstimationMethod string

const (
	MethodIdentity          EstimationMethod = "identity"
	MethodMedian            EstimationMethod = "median"
	MethodInterquartileMean EstimationMethod = "interquartile_mean"
	MethodTrimmedMean15     EstimationMethod = "trimmed_mean_15"
	MethodTrimmedMean5      EstimationMethod = "trimmed_mean_5"
	MethodMean              EstimationMethod = "mean"
)

// RobustEstimate is the result of an adaptive robust mean over one side's
// price samples.
type RobustEstimate struct {
	Value        float64
	Method       EstimationMethod
	Confidence   float64
	SampleSize   int
	OutlierCount int
}

// DiscoveryResult is the weighted consensus of the discovery engine's
// independent estimation methods. Buy and Sell are scalar metal prices.
type DiscoveryResult struct {
	Buy         float64
	Sell        float64
	Confidence  float64
	MethodsUsed []string
	Agreement   float64
}
