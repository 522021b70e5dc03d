package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// FeedAdapter fetches record batches from a provider's JSON feed endpoint.
// The extraction service in front of each retail site exposes this uniform
// shape; anything site-specific lives behind that endpoint.
type FeedAdapter struct {
	provider   string
	endpoint   string
	batchSize  int
	httpClient *http.Client
}

// NewFeedAdapter creates an adapter for one provider feed.
func NewFeedAdapter(provider, endpoint string, batchSize int, timeout time.Duration) *FeedAdapter {
	return &FeedAdapter{
		provider:  provider,
		endpoint:  endpoint,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (a *FeedAdapter) Provider() string { return a.provider }

type feedRecord struct {
	LocalID       string  `json:"local_id"`
	Name          string  `json:"name"`
	Brand         string  `json:"brand"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	Currency      string  `json:"currency"`
	Available     bool    `json:"available"`
	Barcode       string  `json:"barcode"`
	CapturedAt    string  `json:"captured_at"`
}

type feedResponse struct {
	Records    []feedRecord `json:"records"`
	NextCursor string       `json:"next_cursor"`
	Done       bool         `json:"done"`
}

// FetchBatch requests one page of records starting at cursor.
func (a *FeedAdapter) FetchBatch(ctx context.Context, cursor string) (Batch, error) {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return Batch{}, domain.NewFailure(domain.FailureUnknown, "invalid feed endpoint", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(a.batchSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Batch{}, domain.NewFailure(domain.FailureUnknown, "create request", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return Batch{}, domain.NewFailure(domain.FailureTransientNetwork, "feed request timed out", err)
		}
		return Batch{}, domain.NewFailure(domain.FailureTransientNetwork, "feed request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		f := domain.NewFailure(domain.FailureRateLimited, "provider rate limit hit", nil)
		f.StatusCode = resp.StatusCode
		f.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return Batch{}, f

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Authentication-level failure: no data can be produced, the run
		// must fail outright rather than retry blindly.
		f := domain.NewFailure(domain.FailureUnknown,
			fmt.Sprintf("feed rejected request with status %d", resp.StatusCode), nil)
		f.StatusCode = resp.StatusCode
		return Batch{}, f

	case resp.StatusCode >= 500:
		f := domain.NewFailure(domain.FailureTransientNetwork,
			fmt.Sprintf("feed returned status %d", resp.StatusCode), nil)
		f.StatusCode = resp.StatusCode
		return Batch{}, f

	case resp.StatusCode != http.StatusOK:
		f := domain.NewFailure(domain.FailureUnknown,
			fmt.Sprintf("unexpected feed status %d", resp.StatusCode), nil)
		f.StatusCode = resp.StatusCode
		return Batch{}, f
	}

	var payload feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Batch{}, domain.NewFailure(domain.FailureUnknown, "undecodable feed payload", err)
	}

	batch := Batch{
		NextCursor: payload.NextCursor,
		Done:       payload.Done,
		Records:    make([]domain.RawRecord, 0, len(payload.Records)),
	}
	for _, rec := range payload.Records {
		capturedAt, err := time.Parse(time.RFC3339, rec.CapturedAt)
		if err != nil {
			capturedAt = time.Now().UTC()
		}
		batch.Records = append(batch.Records, domain.RawRecord{
			Provider:      a.provider,
			LocalID:       rec.LocalID,
			Name:          rec.Name,
			Brand:         rec.Brand,
			Price:         rec.Price,
			OriginalPrice: rec.OriginalPrice,
			Currency:      rec.Currency,
			Available:     rec.Available,
			Barcode:       rec.Barcode,
			CapturedAt:    capturedAt,
		})
	}
	return batch, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
