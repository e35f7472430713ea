// Package catalog holds the reference lists that back enum-like estimate fields
// (MR types, materials, DST materials, papers, overhead rates) and the
// process-wide cache that loads them asynchronously.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind names a family of catalogs.
type Kind string

const (
	KindMRTypes   Kind = "mrTypes"
	KindMaterials Kind = "materials"
	KindDST       Kind = "dstMaterials"
	KindPapers    Kind = "papers"
	KindOverheads Kind = "overheads"
)

// ErrUnknownKey is returned for keys whose kind is not one of the known kinds.
var ErrUnknownKey = errors.New("unknown catalog key")

// Key identifies one catalog: a kind plus the service group or material type
// it is scoped to. DST materials, papers and overheads are unscoped.
type Key struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name,omitempty" yaml:"name"`
}

func MRTypes(group string) Key      { return Key{Kind: KindMRTypes, Name: group} }
func Materials(matType string) Key { return Key{Kind: KindMaterials, Name: matType} }
func DSTMaterials() Key             { return Key{Kind: KindDST} }
func Papers() Key                   { return Key{Kind: KindPapers} }
func Overheads() Key                { return Key{Kind: KindOverheads} }

func (k Key) String() string {
	if k.Name == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + "/" + k.Name
}

// Validate reports whether the key has a known kind and, for scoped kinds, a name.
func (k Key) Validate() error {
	switch k.Kind {
	case KindMRTypes, KindMaterials:
		if strings.TrimSpace(k.Name) == "" {
			return fmt.Errorf("%w: %s requires a name", ErrUnknownKey, k.Kind)
		}
	case KindDST, KindPapers, KindOverheads:
	default:
		return fmt.Errorf("%w: kind %q", ErrUnknownKey, k.Kind)
	}
	return nil
}

// ParseKey builds a key from its kind and name parts, e.g. ("mrTypes", "LP").
func ParseKey(kind, name string) (Key, error) {
	k := Key{Kind: Kind(strings.TrimSpace(kind)), Name: strings.TrimSpace(name)}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Entry is one selectable catalog value. Concatenated is the derived form the
// pricing engine consumes (e.g. "LP MR SIMPLE").
type Entry struct {
	ID           string `json:"id" yaml:"id"`
	Value        string `json:"value" yaml:"value"`
	Concatenated string `json:"concatenated,omitempty" yaml:"concatenated,omitempty"`
}

// Find returns the entry whose display value matches value.
func Find(entries []Entry, value string) (Entry, bool) {
	for _, e := range entries {
		if e.Value == value {
			return e, true
		}
	}
	return Entry{}, false
}

// Provider fetches a catalog from its backing source. Implementations must be
// safe for concurrent use and idempotent per key.
type Provider interface {
	Fetch(ctx context.Context, key Key) ([]Entry, error)
}
