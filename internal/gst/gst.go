// Package gst resolves the GST percentage that applies to a job type.
package gst

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// DefaultPercent is used for markup-only recalculation after a failed fetch.
const DefaultPercent = 18.0

// ErrNoRate means no rate is configured for the job type.
var ErrNoRate = errors.New("no gst rate configured")

// RateError wraps a failed rate fetch.
type RateError struct {
	JobType string
	Err     error
}

func (e *RateError) Error() string {
	return fmt.Sprintf("gst rate for %q: %v", e.JobType, e.Err)
}

func (e *RateError) Unwrap() error { return e.Err }

// Provider fetches the GST percentage for a job type. Failures are *RateError.
type Provider interface {
	FetchRate(ctx context.Context, jobType string) (float64, error)
}

// SQLProvider reads rates from the gst_rates table.
type SQLProvider struct {
	DB *sql.DB
}

func (p SQLProvider) FetchRate(ctx context.Context, jobType string) (float64, error) {
	var pct float64
	err := p.DB.QueryRowContext(ctx, `SELECT percent FROM gst_rates WHERE job_type = ?`, jobType).Scan(&pct)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &RateError{JobType: jobType, Err: ErrNoRate}
	}
	if err != nil {
		return 0, &RateError{JobType: jobType, Err: err}
	}
	return pct, nil
}

// Cache memoizes rates per job type for one session. Invalidate drops every
// entry; a fetch that started before the invalidation does not repopulate it.
type Cache struct {
	provider Provider

	mu    sync.Mutex
	rates map[string]float64
	gen   uint64
}

func NewCache(p Provider) *Cache {
	return &Cache{provider: p, rates: make(map[string]float64)}
}

// Rate returns the cached rate for jobType, fetching it once on a miss.
func (c *Cache) Rate(ctx context.Context, jobType string) (float64, error) {
	c.mu.Lock()
	if pct, ok := c.rates[jobType]; ok {
		c.mu.Unlock()
		return pct, nil
	}
	gen := c.gen
	c.mu.Unlock()

	pct, err := c.provider.FetchRate(ctx, jobType)
	if err != nil {
		var re *RateError
		if !errors.As(err, &re) {
			err = &RateError{JobType: jobType, Err: err}
		}
		return 0, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.rates[jobType] = pct
	}
	c.mu.Unlock()
	return pct, nil
}

// Cached returns the rate for jobType without fetching.
func (c *Cache) Cached(jobType string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pct, ok := c.rates[jobType]
	return pct, ok
}

// Invalidate clears the whole cache.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = make(map[string]float64)
	c.gen++
}
