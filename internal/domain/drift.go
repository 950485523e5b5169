package domain

import "time"

// Verdict is the aggregate outcome of a drift monitoring run.
type Verdict string

const (
	VerdictStable   Verdict = "STABLE"
	VerdictCritical Verdict = "CRITICAL"
)

// DefaultMonitoredFeatures are the features with the most model importance.
var DefaultMonitoredFeatures = []string{"amount_log", "is_night", "v14", "v17", "v12", "v4", "v11"}

// FeatureDrift is the two-sample test outcome for a single feature.
type FeatureDrift struct {
	Feature         string  `json:"feature"`
	Statistic       float64 `json:"statistic"`
	PValue          float64 `json:"pValue"`
	IsDrifting      bool    `json:"isDrifting"`
	ReferenceSize   int     `json:"referenceSize"`
	CurrentSize     int     `json:"currentSize"`
	ReferenceMean   float64 `json:"referenceMean"`
	CurrentMean     float64 `json:"currentMean"`
	ReferenceMedian float64 `json:"referenceMedian"`
	CurrentMedian   float64 `json:"currentMedian"`
}

// DriftReport is the immutable result of one monitoring run.
type DriftReport struct {
	ID                string         `json:"id"`
	Features          []FeatureDrift `json:"features"`
	AlertCount        int            `json:"alertCount"`
	AlertRatio        float64        `json:"alertRatio"`
	Verdict           Verdict        `json:"verdict"`
	SignificanceLevel float64        `json:"significanceLevel"`
	CriticalRatio     float64        `json:"criticalRatio"`
	Seed              int64          `json:"seed"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Drifting returns the names of the features flagged as drifting.
func (r *DriftReport) Drifting() []string {
	var names []string
	for _, f := range r.Features {
		if f.IsDrifting {
			names = append(names, f.Feature)
		}
	}
	return names
}
