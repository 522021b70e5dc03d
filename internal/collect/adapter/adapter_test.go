package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

func TestFeedAdapter_FetchBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cursor"); got != "page-2" {
			t.Errorf("cursor = %q, want page-2", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"records": [
				{"local_id": "ah-1", "name": "Nutrilon Baby Formula 800g", "brand": "Nutrilon",
				 "price": 16.75, "currency": "EUR", "available": true,
				 "captured_at": "2025-03-10T23:00:00Z"}
			],
			"next_cursor": "page-3",
			"done": false
		}`))
	}))
	defer srv.Close()

	a := NewFeedAdapter("albert_heijn", srv.URL, 100, 5*time.Second)
	batch, err := a.FetchBatch(context.Background(), "page-2")
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}

	if len(batch.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(batch.Records))
	}
	rec := batch.Records[0]
	if rec.Provider != "albert_heijn" || rec.Price != 16.75 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if batch.NextCursor != "page-3" || batch.Done {
		t.Errorf("unexpected paging: cursor=%q done=%v", batch.NextCursor, batch.Done)
	}
}

func TestFeedAdapter_StatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		retryAfter string
		wantKind   domain.FailureKind
	}{
		{"rate limited", http.StatusTooManyRequests, "42", domain.FailureRateLimited},
		{"server error", http.StatusBadGateway, "", domain.FailureTransientNetwork},
		{"auth failure", http.StatusUnauthorized, "", domain.FailureUnknown},
		{"forbidden", http.StatusForbidden, "", domain.FailureUnknown},
		{"teapot", http.StatusTeapot, "", domain.FailureUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			a := NewFeedAdapter("jumbo", srv.URL, 50, 5*time.Second)
			_, err := a.FetchBatch(context.Background(), "")
			f, ok := domain.AsFailure(err)
			if !ok {
				t.Fatalf("expected *domain.Failure, got %v", err)
			}
			if f.Kind != tc.wantKind {
				t.Errorf("kind = %s, want %s", f.Kind, tc.wantKind)
			}
			if f.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", f.StatusCode, tc.status)
			}
			if tc.retryAfter != "" && f.RetryAfter != 42*time.Second {
				t.Errorf("retry after = %v, want 42s", f.RetryAfter)
			}
		})
	}
}

func TestThrottled_MinInterval(t *testing.T) {
	calls := make([]time.Time, 0, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, time.Now())
		w.Write([]byte(`{"records": [], "done": true}`))
	}))
	defer srv.Close()

	inner := NewFeedAdapter("dirk", srv.URL, 10, 5*time.Second)
	a := NewThrottled(inner, 50*time.Millisecond, time.Second)

	for i := 0; i < 3; i++ {
		if _, err := a.FetchBatch(context.Background(), ""); err != nil {
			t.Fatalf("FetchBatch %d failed: %v", i, err)
		}
	}

	if len(calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap < 40*time.Millisecond {
			t.Errorf("gap %d = %v, want >= ~50ms", i, gap)
		}
	}
}

func TestThrottled_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"records": [], "done": true}`))
	}))
	defer srv.Close()

	inner := NewFeedAdapter("etos", srv.URL, 10, time.Minute)
	a := NewThrottled(inner, 0, 20*time.Millisecond)

	_, err := a.FetchBatch(context.Background(), "")
	f, ok := domain.AsFailure(err)
	if !ok {
		t.Fatalf("expected *domain.Failure, got %v", err)
	}
	if f.Kind != domain.FailureTransientNetwork {
		t.Errorf("timeout classified as %s, want %s", f.Kind, domain.FailureTransientNetwork)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Add(NewFeedAdapter("jumbo", "http://localhost/feed", 10, time.Second))

	if _, err := reg.Get("jumbo"); err != nil {
		t.Errorf("Get(jumbo) failed: %v", err)
	}

	_, err := reg.Get("nope")
	f, ok := domain.AsFailure(err)
	if !ok || f.Kind != domain.FailureProviderUnknown {
		t.Errorf("expected provider_unknown failure, got %v", err)
	}
}
