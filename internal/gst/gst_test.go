package gst

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	mu     sync.Mutex
	calls  map[string]int
	rates  map[string]float64
	err    error
	before func()
}

func (p *countingProvider) FetchRate(_ context.Context, jobType string) (float64, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[jobType]++
	p.mu.Unlock()
	if p.before != nil {
		p.before()
	}
	if p.err != nil {
		return 0, p.err
	}
	return p.rates[jobType], nil
}

func TestCache_FetchesOncePerJobType(t *testing.T) {
	p := &countingProvider{rates: map[string]float64{"Card": 12, "Notebook": 5}}
	c := NewCache(p)

	for i := 0; i < 3; i++ {
		pct, err := c.Rate(context.Background(), "Card")
		require.NoError(t, err)
		require.Equal(t, 12.0, pct)
	}
	pct, err := c.Rate(context.Background(), "Notebook")
	require.NoError(t, err)
	require.Equal(t, 5.0, pct)

	require.Equal(t, 1, p.calls["Card"])
	require.Equal(t, 1, p.calls["Notebook"])
}

func TestCache_InvalidateClearsEveryJobType(t *testing.T) {
	p := &countingProvider{rates: map[string]float64{"Card": 12}}
	c := NewCache(p)

	_, err := c.Rate(context.Background(), "Card")
	require.NoError(t, err)
	c.Invalidate()

	_, ok := c.Cached("Card")
	require.False(t, ok)

	_, err = c.Rate(context.Background(), "Card")
	require.NoError(t, err)
	require.Equal(t, 2, p.calls["Card"])
}

func TestCache_StaleFetchDoesNotRepopulate(t *testing.T) {
	p := &countingProvider{rates: map[string]float64{"Card": 12}}
	c := NewCache(p)
	p.before = func() { c.Invalidate() }

	pct, err := c.Rate(context.Background(), "Card")
	require.NoError(t, err)
	require.Equal(t, 12.0, pct)

	_, ok := c.Cached("Card")
	require.False(t, ok, "fetch that raced an invalidation must not be cached")
}

func TestCache_FailureIsRateError(t *testing.T) {
	c := NewCache(&countingProvider{err: errors.New("timeout")})

	_, err := c.Rate(context.Background(), "Card")
	var re *RateError
	require.ErrorAs(t, err, &re)
	require.Equal(t, "Card", re.JobType)

	_, ok := c.Cached("Card")
	require.False(t, ok)
}
