package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// fakeHistory serves a fixed trailing history for one entity/provider.
type fakeHistory struct {
	points []domain.HistoryPoint
}

func (f *fakeHistory) Latest(ctx context.Context, entityID int64, provider string) (*domain.HistoryPoint, error) {
	if len(f.points) == 0 {
		return nil, nil
	}
	p := f.points[0]
	return &p, nil
}

func (f *fakeHistory) TrailingHistory(ctx context.Context, entityID int64, provider string, limit int) ([]domain.HistoryPoint, error) {
	if limit > 0 && len(f.points) > limit {
		return f.points[:limit], nil
	}
	return f.points, nil
}

func historyOf(values ...float64) *fakeHistory {
	now := time.Now()
	points := make([]domain.HistoryPoint, len(values))
	for i, v := range values {
		points[i] = domain.HistoryPoint{Value: v, CapturedAt: now.Add(-time.Duration(i) * time.Hour)}
	}
	return &fakeHistory{points: points}
}

// Twelve points with median 16.75 and MAD 0.875; with k=3 the allowed
// spread is about 2.6 around the median.
func stableHistory() *fakeHistory {
	return historyOf(14.75, 15.25, 15.75, 16.0, 16.25, 16.5, 17.0, 17.25, 17.5, 18.0, 18.25, 18.75)
}

func TestValidatorCheck_WithinRange(t *testing.T) {
	v := NewValidator(stableHistory(), 10, 3.0)

	verdict, err := v.Check(context.Background(), 1, domain.ProviderAlbertHeijn, 15.99)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Outlier {
		t.Errorf("15.99 flagged as outlier, expected %v ± spread", verdict.Expected)
	}
}

func TestValidatorCheck_Outlier(t *testing.T) {
	v := NewValidator(stableHistory(), 10, 3.0)

	verdict, err := v.Check(context.Background(), 1, domain.ProviderAlbertHeijn, 40.0)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !verdict.Outlier {
		t.Fatal("40.00 not flagged against history around 16.75")
	}
	if verdict.Confidence < 0.8 || verdict.Confidence > 1.0 {
		t.Errorf("Confidence = %v, want high", verdict.Confidence)
	}
	if verdict.Severity != domain.SeverityCritical {
		t.Errorf("Severity = %s, want critical", verdict.Severity)
	}
}

func TestValidatorCheck_InsufficientHistory(t *testing.T) {
	v := NewValidator(historyOf(1.0, 100.0, 1.0), 10, 3.0)

	verdict, err := v.Check(context.Background(), 1, domain.ProviderAlbertHeijn, 500.0)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Outlier {
		t.Error("flagged with fewer than 10 history points")
	}
}

func TestValidatorCheck_FlatHistory(t *testing.T) {
	v := NewValidator(historyOf(2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2), 10, 3.0)

	verdict, err := v.Check(context.Background(), 1, domain.ProviderAlbertHeijn, 3.0)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !verdict.Outlier {
		t.Error("movement against a flat history not flagged")
	}

	verdict, err = v.Check(context.Background(), 1, domain.ProviderAlbertHeijn, 2.0)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Outlier {
		t.Error("unchanged value flagged against a flat history")
	}
}

func TestOutlierSeverity(t *testing.T) {
	cases := []struct {
		ratio float64
		want  domain.Severity
	}{
		{1.2, domain.SeverityInfo},
		{2.5, domain.SeverityWarning},
		{8.0, domain.SeverityCritical},
	}
	for _, tc := range cases {
		if got := outlierSeverity(tc.ratio); got != tc.want {
			t.Errorf("outlierSeverity(%v) = %s, want %s", tc.ratio, got, tc.want)
		}
	}
}

func TestMedianAndMAD(t *testing.T) {
	values := []float64{5, 1, 3, 2, 4}
	if got := median(values); got != 3 {
		t.Errorf("median = %v, want 3", got)
	}
	if got := mad(values, 3); got != 1 {
		t.Errorf("mad = %v, want 1", got)
	}

	even := []float64{1, 2, 3, 4}
	if got := median(even); got != 2.5 {
		t.Errorf("median = %v, want 2.5", got)
	}
}
