// Package store persists submitted estimates and in-progress drafts.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/pricing"
)

// ErrNotFound is returned when an estimate id does not exist.
var ErrNotFound = errors.New("estimate not found")

// Estimate is a submitted bill: the configuration tree plus its price.
type Estimate struct {
	ID         string          `json:"id"`
	Tree       estimate.Tree   `json:"tree"`
	Result     *pricing.Result `json:"result,omitempty"`
	MarkupType string          `json:"markupType"`
	CreatedBy  string          `json:"createdBy"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Summary is one row of an estimate listing.
type Summary struct {
	ID          string    `json:"id"`
	JobType     string    `json:"jobType"`
	ClientName  string    `json:"clientName"`
	ProjectName string    `json:"projectName"`
	Total       float64   `json:"total"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Query filters List. Search matches client or project name; ClientID,
// when set, restricts the result to one client's estimates.
type Query struct {
	Search   string
	ClientID string
	Limit    int
}

const defaultListLimit = 50

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 500 {
		return defaultListLimit
	}
	return q.Limit
}

// Store persists estimates. Saves keep the flattened projection of the tree;
// Load returns the full, normalized tree.
type Store interface {
	Save(ctx context.Context, e Estimate) (string, error)
	Load(ctx context.Context, id string) (Estimate, error)
	List(ctx context.Context, q Query) ([]Summary, error)
	Delete(ctx context.Context, id string) error
}

func encodeTree(t estimate.Tree) (string, error) {
	b, err := json.Marshal(estimate.Flatten(t))
	if err != nil {
		return "", fmt.Errorf("encode tree: %w", err)
	}
	return string(b), nil
}

func decodeTree(s string) (estimate.Tree, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return estimate.Tree{}, fmt.Errorf("decode tree: %w", err)
	}
	return estimate.Unflatten(doc)
}

func encodeResult(r *pricing.Result) (string, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

func decodeResult(s string) (*pricing.Result, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		return nil, nil
	}
	var r pricing.Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// extractTotal reads totals.total from a stored result document.
func extractTotal(resultJSON string) float64 {
	var values struct {
		Totals map[string]float64 `json:"totals"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &values); err != nil {
		return 0
	}
	for _, key := range []string{"total", "grandTotal"} {
		if total, ok := values.Totals[key]; ok {
			return total
		}
	}
	return 0
}

func matches(search string, fields ...string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
