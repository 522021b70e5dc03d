package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/config"
)

type fakeStore struct {
	cutoffs []time.Time
	rows    int64
}

func (f *fakeStore) PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.rows, nil
}

func (f *fakeStore) PruneAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.rows, nil
}

func TestPrune_HonorsPerTableRetention(t *testing.T) {
	history := &fakeStore{rows: 3}
	alerts := &fakeStore{}
	p := NewPruner(config.RetentionConfig{
		History: config.Duration(30 * 24 * time.Hour),
	}, history, alerts, slog.New(slog.DiscardHandler))

	p.prune(context.Background())

	if len(history.cutoffs) != 1 {
		t.Fatalf("history prunes = %d, want 1", len(history.cutoffs))
	}
	want := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if diff := history.cutoffs[0].Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", history.cutoffs[0], want)
	}
	if len(alerts.cutoffs) != 0 {
		t.Errorf("alerts pruned despite zero retention")
	}
}

func TestStart_DisabledWithoutRetention(t *testing.T) {
	history := &fakeStore{}
	alerts := &fakeStore{}
	p := NewPruner(config.RetentionConfig{}, history, alerts, slog.New(slog.DiscardHandler))

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return with retention disabled")
	}
	if len(history.cutoffs) != 0 || len(alerts.cutoffs) != 0 {
		t.Errorf("prune ran despite disabled retention")
	}
}
