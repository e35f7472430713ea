package estimate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Simplici0/printbill/internal/catalog"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownAction  = errors.New("unknown action")
	ErrInvalidPatch   = errors.New("invalid patch")
)

// Reducer applies actions to a tree. Lookup, when set, resolves the catalog
// entry for a freshly chosen value so its concatenated form can be carried
// over; without it the "<GROUP> <VALUE>" template is used.
type Reducer struct {
	Lookup func(key catalog.Key, value string) (catalog.Entry, bool)
}

// Reduce is Apply without the error: a rejected action returns t unchanged.
func (r Reducer) Reduce(t Tree, a Action) Tree {
	out, err := r.Apply(t, a)
	if err != nil {
		return t
	}
	return out
}

// Apply returns the tree that results from a. The input is never modified.
func (r Reducer) Apply(t Tree, a Action) (Tree, error) {
	switch a := a.(type) {
	case Reset:
		return Empty(), nil
	case PartialReset:
		out := Empty()
		out.Client = t.Client
		out.VersionID = t.VersionID
		out.JobType = t.JobType
		out.OrderAndPaper = t.OrderAndPaper
		return Normalize(out), nil
	case InitializeForm:
		return Normalize(a.Tree.Clone()), nil
	case SetClient:
		out := t.Clone()
		out.Client = a.Client
		return Normalize(out), nil
	case SetVersion:
		out := t.Clone()
		out.VersionID = strings.TrimSpace(a.VersionID)
		return Normalize(out), nil
	case SetJobType:
		out := t.Clone()
		out.JobType = strings.TrimSpace(a.JobType)
		return Normalize(out), nil
	case UpdateOrderAndPaper:
		out := t.Clone()
		op := &out.OrderAndPaper
		if err := merge(op, func() { *op = OrderAndPaper{} }, a.Patch); err != nil {
			return t, fmt.Errorf("update orderAndPaper: %w", err)
		}
		return Normalize(out), nil
	case UpdateSection:
		return r.updateSection(t, a)
	case Settle:
		svc, ok := Lookup(a.Service)
		if !ok {
			return t, fmt.Errorf("%w: %q", ErrUnknownService, a.Service)
		}
		out := t.Clone()
		svc.section(&out).bookkeeping().Settling = false
		return out, nil
	}
	return t, fmt.Errorf("%w: %T", ErrUnknownAction, a)
}

func (r Reducer) updateSection(t Tree, a UpdateSection) (Tree, error) {
	svc, ok := Lookup(a.Service)
	if !ok {
		return t, fmt.Errorf("%w: %q", ErrUnknownService, a.Service)
	}
	prev := svc.section(&t)
	wasActive := prev.InUse()
	oldChoices := make(map[string]Choice)
	for _, ref := range prev.choices() {
		oldChoices[ref.path] = *ref.choice
	}
	oldModes := make(map[string]string)
	for _, sz := range prev.sizes() {
		oldModes[sz.path] = *sz.mode
	}

	out := t.Clone()
	sec := svc.section(&out)
	if err := merge(sec, sec.clear, a.Patch); err != nil {
		return t, fmt.Errorf("update %s: %w", a.Service, err)
	}
	if !sec.InUse() {
		sec.clear()
		return Normalize(out), nil
	}
	if fs, ok := sec.(*FSDetails); ok && fs.FSType != "" {
		if _, ok := FoilCount(fs.FSType); !ok {
			return t, fmt.Errorf("update %s: %w: fsType %q", a.Service, ErrInvalidPatch, fs.FSType)
		}
	}

	bk := sec.bookkeeping()
	if !wasActive {
		bk.Settling = true
		bk.TouchedFields = nil
	}

	// Choices are inspected before resizing so padded records are not
	// mistaken for user selections.
	// A user patch never supplies the price code itself: it is rebuilt from
	// the catalog even when the value is unchanged.
	for _, ref := range sec.choices() {
		old, existed := oldChoices[ref.path]
		unchanged := existed && old.Value == ref.choice.Value
		switch {
		case a.Source == SourceUser:
			ref.choice.Concatenated = r.concatenated(ref)
		case unchanged:
			continue
		case ref.choice.Concatenated == "" || (existed && ref.choice.Concatenated == old.Concatenated):
			ref.choice.Concatenated = r.concatenated(ref)
		}
		if a.Source == SourceUser && wasActive && !unchanged {
			bk.touch(ref.path)
		}
	}

	sec.resize(out.OrderAndPaper.DieSize)

	if wasActive {
		for _, sz := range sec.sizes() {
			prevMode, existed := oldModes[sz.path]
			if existed && prevMode != SizeManual && *sz.mode == SizeManual {
				*sz.dims = DimensionPair{}
			}
		}
	}
	return Normalize(out), nil
}

func (r Reducer) concatenated(ref choiceRef) string {
	v := ref.choice.Value
	if v == "" {
		return ""
	}
	if r.Lookup != nil {
		if e, ok := r.Lookup(ref.catalog, v); ok && e.Concatenated != "" {
			return e.Concatenated
		}
	}
	return template(ref.group, v)
}

// merge shallow-merges patch into dst. Bookkeeping keys in the patch are
// ignored; unknown keys are an error.
func merge(dst any, reset func(), patch map[string]any) error {
	fields, err := sectionFields(dst)
	if err != nil {
		return err
	}
	for k, v := range patch {
		if k == "touchedFields" || k == "settling" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidPatch, k, err)
		}
		fields[k] = raw
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	reset()
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return nil
}
