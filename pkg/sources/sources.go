// Package sources reads pool liquidity from external market data APIs.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"liquidityreward/internal/models"
	"liquidityreward/pkg/metrics"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single source fetch.
const DefaultTimeout = 30 * time.Second

// Source yields the current liquidity readings of the pools it tracks.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.PoolReading, error)
}

// Collect fetches all sources in parallel and returns their readings in
// source order. A source that fails or exceeds timeout is dropped with a warning.
func Collect(ctx context.Context, timeout time.Duration, sources ...Source) []models.PoolReading {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make([][]models.PoolReading, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			readings, err := src.Fetch(fctx)
			if err != nil {
				log.WithField("source", src.Name()).Warnf("source fetch failed, skipping: %v", err)
				metrics.SourceFetchTotal.WithLabelValues(src.Name(), "error").Inc()
				return nil
			}
			metrics.SourceFetchTotal.WithLabelValues(src.Name(), "success").Inc()
			results[i] = readings
			return nil
		})
	}
	_ = g.Wait()

	var out []models.PoolReading
	for _, r := range results {
		out = append(out, r...)
	}
	return MergeReadings(out)
}

// MergeReadings folds readings that share a pool key into one, summing TVL and
// both split fields. The first reading's position and chain are kept.
func MergeReadings(readings []models.PoolReading) []models.PoolReading {
	index := make(map[string]int, len(readings))
	out := make([]models.PoolReading, 0, len(readings))
	for _, r := range readings {
		i, ok := index[r.PoolKey()]
		if !ok {
			index[r.PoolKey()] = len(out)
			out = append(out, r)
			continue
		}
		log.WithField("pool", r.PoolKey()).Info("merging readings of the same pool key")
		merged := &out[i]
		merged.TVL = merged.TVL.Add(r.TVL)
		merged.IncentiveTokenTVL = addOptional(merged.IncentiveTokenTVL, r.IncentiveTokenTVL)
		merged.ParticipatingTokenTVL = addOptional(merged.ParticipatingTokenTVL, r.ParticipatingTokenTVL)
	}
	return out
}

func addOptional(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil && b == nil {
		return nil
	}
	sum := decimal.Zero
	if a != nil {
		sum = sum.Add(*a)
	}
	if b != nil {
		sum = sum.Add(*b)
	}
	return &sum
}

// Static serves fixed readings, for manually tracked pools.
type Static struct {
	Label    string
	Readings []models.PoolReading
}

func (s Static) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s Static) Fetch(context.Context) ([]models.PoolReading, error) {
	out := make([]models.PoolReading, len(s.Readings))
	copy(out, s.Readings)
	return out, nil
}

// httpClient is a JSON GET client with a request rate limit shared by its callers.
type httpClient struct {
	http    *http.Client
	limiter *rate.Limiter
	agent   string
}

func newHTTPClient(rps float64) *httpClient {
	return &httpClient{
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		agent:   "liquidity-reward-collector/1.0",
	}
}

func (c *httpClient) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
