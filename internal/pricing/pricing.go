package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/estimate"
)

// Markup types.
const (
	MarkupStandard = "STANDARD"
	MarkupB2B      = "B2B"
	MarkupTimeless = "TIMELESS"
)

var (
	ErrNoQuantity    = errors.New("quantity must be greater than zero")
	ErrNoServices    = errors.New("no active services")
	ErrMarkupType    = errors.New("unknown markup type")
	ErrNegativeInput = errors.New("negative pricing input")
)

// ValidMarkupType reports whether t is one of the known markup types.
func ValidMarkupType(t string) bool {
	switch t {
	case MarkupStandard, MarkupB2B, MarkupTimeless:
		return true
	}
	return false
}

// ServiceRate prices one service: a fixed setup amount plus a per-unit
// amount multiplied by quantity and the service's unit count.
type ServiceRate struct {
	Base    float64 `json:"base"`
	PerUnit float64 `json:"perUnit"`
}

// RateCard holds the rates the engine prices against. MR amounts are keyed by
// the concatenated MR value, e.g. "LP MR SIMPLE".
type RateCard struct {
	Services map[estimate.ServiceCode]ServiceRate `json:"services"`
	MR       map[string]float64                   `json:"mr"`
}

// Line is the priced contribution of one active service.
type Line struct {
	Service estimate.ServiceCode `json:"service"`
	Units   float64              `json:"units"`
	Setup   float64              `json:"setup"`
	MR      float64              `json:"mr"`
	Run     float64              `json:"run"`
	Amount  float64              `json:"amount"`
}

// Breakdown contains all intermediate and line-item values of the pricing calculation.
type Breakdown struct {
	Lines      []Line  `json:"lines"`
	Subtotal   float64 `json:"subtotal"`
	Misc       float64 `json:"misc"`
	Markup     float64 `json:"markup"`
	MarkupType string  `json:"markupType"`
	Taxable    float64 `json:"taxable"`
	GSTPercent float64 `json:"gstPercent"`
	GST        float64 `json:"gst"`
}

// Totals contains roll-up values from the pricing calculation.
type Totals struct {
	Total   float64 `json:"total"`
	PerUnit float64 `json:"perUnit"`
}

// Result groups the full pricing output, including detailed breakdown and totals.
type Result struct {
	Breakdown Breakdown `json:"breakdown"`
	Totals    Totals    `json:"totals"`
}

// Engine prices a settled estimate tree against a rate card.
type Engine struct {
	Rates RateCard
}

// Compute prices the active services of t. miscCharge may be nil. gstRate
// and markupPercentage are percentages.
func (e Engine) Compute(t estimate.Tree, miscCharge *float64, markupPercentage float64, markupType string, gstRate float64) (Result, error) {
	qty := float64(t.OrderAndPaper.Quantity)
	if qty <= 0 {
		return Result{}, ErrNoQuantity
	}
	if !ValidMarkupType(markupType) {
		return Result{}, fmt.Errorf("%w: %q", ErrMarkupType, markupType)
	}
	misc := 0.0
	if miscCharge != nil {
		misc = *miscCharge
	}
	if misc < 0 || markupPercentage < 0 || gstRate < 0 {
		return Result{}, ErrNegativeInput
	}

	active := t.Active()
	if len(active) == 0 {
		return Result{}, ErrNoServices
	}

	lines := make([]Line, 0, len(active))
	subtotal := 0.0
	for _, code := range active {
		sec := t.Section(code)
		rate := e.Rates.Services[code]
		units := Units(sec)

		mrAmount := 0.0
		for _, fc := range estimate.Choices(sec) {
			if fc.Catalog.Kind == catalog.KindMRTypes {
				mrAmount += e.Rates.MR[fc.Choice.Concatenated]
			}
		}

		run := rate.PerUnit * units * qty
		amount := rate.Base + mrAmount + run
		lines = append(lines, Line{
			Service: code,
			Units:   units,
			Setup:   rate.Base,
			MR:      mrAmount,
			Run:     run,
			Amount:  round2(amount),
		})
		subtotal += amount
	}

	markup := (markupPercentage / 100.0) * (subtotal + misc)
	taxable := subtotal + misc + markup
	gst := (gstRate / 100.0) * taxable
	total := taxable + gst

	return Result{
		Breakdown: Breakdown{
			Lines:      lines,
			Subtotal:   round2(subtotal),
			Misc:       round2(misc),
			Markup:     round2(markup),
			MarkupType: markupType,
			Taxable:    round2(taxable),
			GSTPercent: gstRate,
			GST:        round2(gst),
		},
		Totals: Totals{
			Total:   round2(total),
			PerUnit: round2(total / qty),
		},
	}, nil
}

// Units is the per-piece multiplier of a section: colors, foils, magnets,
// sheets and so on. Sections without a count price as one unit.
func Units(sec estimate.Section) float64 {
	n := 1
	switch s := sec.(type) {
	case *estimate.LPDetails:
		n = len(s.ColorDetails)
	case *estimate.FSDetails:
		n = len(s.FoilDetails)
	case *estimate.ScreenPrintDetails:
		n = s.NoOfColors
	case *estimate.MagnetDetails:
		n = s.NoOfMagnets
	case *estimate.DuplexDetails:
		n = s.NoOfSheets
	case *estimate.EdgePaintingDetails:
		n = s.NoOfSides
	case *estimate.FoldingDetails:
		n = s.NoOfFolds
	case *estimate.EMBDetails:
		n = 2
	}
	if n < 1 {
		n = 1
	}
	return float64(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
