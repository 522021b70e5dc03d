package reconcile

import (
	"context"
	"math"
	"sort"

	"github.com/jvbeek/pricewatch/internal/catalog"
	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// historyWindow is how many trailing points feed the expected range.
const historyWindow = 50

// Verdict is the outcome of validating one observation against history.
type Verdict struct {
	Outlier    bool
	Confidence float64 // in [0,1], 0 when not flagged
	Deviation  float64 // absolute distance from the median
	Expected   float64 // trailing median
	Severity   domain.Severity
}

// Validator flags observations that fall outside the expected range
// derived from trailing history. Outliers are committed anyway; the
// verdict only drives alerting.
type Validator struct {
	observations catalog.ObservationRepository
	minPoints    int
	spread       float64 // k in median ± k·MAD
}

// NewValidator creates a history-based validator.
func NewValidator(observations catalog.ObservationRepository, minPoints int, spread float64) *Validator {
	return &Validator{observations: observations, minPoints: minPoints, spread: spread}
}

// Check validates one value against the entity/provider history. With
// fewer than minPoints prior points every value passes.
func (v *Validator) Check(ctx context.Context, entityID int64, provider string, value float64) (Verdict, error) {
	points, err := v.observations.TrailingHistory(ctx, entityID, provider, historyWindow)
	if err != nil {
		return Verdict{}, err
	}
	if len(points) < v.minPoints {
		return Verdict{}, nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	med := median(values)
	spread := v.spread * mad(values, med)
	if spread == 0 {
		// Flat history: any movement beyond rounding is anomalous.
		spread = math.Max(med*0.01, 0.01)
	}

	dev := math.Abs(value - med)
	if dev <= spread {
		return Verdict{Expected: med, Deviation: dev}, nil
	}

	return Verdict{
		Outlier:    true,
		Confidence: 1 - spread/dev,
		Deviation:  dev,
		Expected:   med,
		Severity:   outlierSeverity(dev / spread),
	}, nil
}

// outlierSeverity scales alert severity with the magnitude of deviation
// relative to the allowed spread.
func outlierSeverity(ratio float64) domain.Severity {
	switch {
	case ratio >= 5:
		return domain.SeverityCritical
	case ratio >= 2:
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mad is the median absolute deviation around med.
func mad(values []float64, med float64) float64 {
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - med)
	}
	return median(devs)
}
