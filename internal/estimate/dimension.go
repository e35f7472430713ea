package estimate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// InchesToCm converts an inch string to centimetres rounded to two decimals.
// Empty or non-numeric input yields an empty string.
func InchesToCm(in string) string {
	s := strings.TrimSpace(in)
	if s == "" {
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(math.Round(f*2.54*100)/100, 'f', 2, 64)
}

// DeriveAuto mirrors the die size into a dimension pair.
func DeriveAuto(d DieSize) DimensionPair {
	return DimensionPair{
		LengthInInches:  d.Length,
		BreadthInInches: d.Breadth,
		Length:          InchesToCm(d.Length),
		Breadth:         InchesToCm(d.Breadth),
	}
}

// Manual recomputes the centimetre fields from the entered inches.
func (p DimensionPair) Manual() DimensionPair {
	p.Length = InchesToCm(p.LengthInInches)
	p.Breadth = InchesToCm(p.BreadthInInches)
	return p
}

// fieldPatch extracts the named top-level fields of sec as a merge payload.
func fieldPatch(sec Section, fields []string) map[string]any {
	all, err := sectionFields(sec)
	if err != nil {
		return nil
	}
	patch := make(map[string]any, len(fields))
	for _, f := range fields {
		if raw, ok := all[f]; ok {
			patch[f] = raw
		}
	}
	return patch
}

func sectionFields(v any) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
