package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/Simplici0/printbill/internal/estimate"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func testRates() RateCard {
	return RateCard{
		Services: map[estimate.ServiceCode]ServiceRate{
			estimate.LP: {Base: 100, PerUnit: 1},
			estimate.QC: {PerUnit: 0.5},
		},
		MR: map[string]float64{"LP MR SIMPLE": 50},
	}
}

func lpTree(quantity, colors int) estimate.Tree {
	r := estimate.Reducer{}
	t := r.Reduce(estimate.Empty(), estimate.UpdateOrderAndPaper{Patch: map[string]any{"quantity": quantity}})
	t = r.Reduce(t, estimate.Toggle(estimate.LP, true, estimate.Seeder{}.Payload(estimate.LP, estimate.DieSize{})))
	t = r.Reduce(t, estimate.UpdateSection{Service: estimate.LP, Patch: map[string]any{"noOfColors": colors}, Source: estimate.SourceUser})
	return r.Reduce(t, estimate.Toggle(estimate.QC, true, nil))
}

func TestCompute_LinesAndTotals(t *testing.T) {
	result, err := Engine{Rates: testRates()}.Compute(lpTree(100, 2), nil, 0, MarkupStandard, 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(result.Breakdown.Lines) != 2 {
		t.Fatalf("lines=%d, want 2", len(result.Breakdown.Lines))
	}
	lp := result.Breakdown.Lines[0]
	nearlyEqual(t, "lp units", lp.Units, 2)
	nearlyEqual(t, "lp mr", lp.MR, 100)
	nearlyEqual(t, "lp run", lp.Run, 200)
	nearlyEqual(t, "lp amount", lp.Amount, 400)
	nearlyEqual(t, "qc amount", result.Breakdown.Lines[1].Amount, 50)
	nearlyEqual(t, "subtotal", result.Breakdown.Subtotal, 450)
	nearlyEqual(t, "total", result.Totals.Total, 450)
	nearlyEqual(t, "perUnit", result.Totals.PerUnit, 4.5)
}

func TestCompute_MiscMarkupAndGST(t *testing.T) {
	misc := 50.0
	result, err := Engine{Rates: testRates()}.Compute(lpTree(100, 2), &misc, 20, MarkupB2B, 18)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	nearlyEqual(t, "markup", result.Breakdown.Markup, 100)
	nearlyEqual(t, "taxable", result.Breakdown.Taxable, 600)
	nearlyEqual(t, "gst", result.Breakdown.GST, 108)
	nearlyEqual(t, "total", result.Totals.Total, 708)
	if result.Breakdown.MarkupType != MarkupB2B {
		t.Fatalf("markupType=%q", result.Breakdown.MarkupType)
	}
}

func TestCompute_RejectsIncompleteInput(t *testing.T) {
	e := Engine{Rates: testRates()}
	if _, err := e.Compute(lpTree(0, 1), nil, 0, MarkupStandard, 18); !errors.Is(err, ErrNoQuantity) {
		t.Fatalf("err=%v, want ErrNoQuantity", err)
	}
	if _, err := e.Compute(lpTree(10, 1), nil, 0, "RETAIL", 18); !errors.Is(err, ErrMarkupType) {
		t.Fatalf("err=%v, want ErrMarkupType", err)
	}
	empty := estimate.Reducer{}.Reduce(estimate.Empty(), estimate.UpdateOrderAndPaper{Patch: map[string]any{"quantity": 5}})
	if _, err := e.Compute(empty, nil, 0, MarkupStandard, 18); !errors.Is(err, ErrNoServices) {
		t.Fatalf("err=%v, want ErrNoServices", err)
	}
}

func TestDefaultRateCardCoversEveryService(t *testing.T) {
	card := DefaultRateCard()
	for _, svc := range estimate.Services() {
		if _, ok := card.Services[svc.Code]; !ok {
			t.Fatalf("no default rate for %s", svc.Code)
		}
	}
}
