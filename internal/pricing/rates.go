package pricing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/printbill/internal/estimate"
)

// DefaultRateCard is the rate card seeded into a fresh database.
func DefaultRateCard() RateCard {
	return RateCard{
		Services: map[estimate.ServiceCode]ServiceRate{
			estimate.LP:           {Base: 500, PerUnit: 2},
			estimate.FS:           {Base: 600, PerUnit: 2.5},
			estimate.EMB:          {Base: 450, PerUnit: 1.5},
			estimate.DIGI:         {Base: 150, PerUnit: 4},
			estimate.ScreenPrint:  {Base: 400, PerUnit: 1.5},
			estimate.Notebook:     {Base: 300, PerUnit: 0.4},
			estimate.Lamination:   {Base: 200, PerUnit: 1},
			estimate.DC:           {Base: 350, PerUnit: 0.75},
			estimate.PostDC:       {Base: 250, PerUnit: 0.5},
			estimate.FoldAndPaste: {Base: 300, PerUnit: 1.2},
			estimate.DSTPaste:     {Base: 150, PerUnit: 0.6},
			estimate.Magnet:       {Base: 0, PerUnit: 3},
			estimate.EdgePainting: {Base: 200, PerUnit: 1},
			estimate.Folding:      {Base: 100, PerUnit: 0.3},
			estimate.Duplex:       {Base: 250, PerUnit: 1.5},
			estimate.QC:           {Base: 0, PerUnit: 0.25},
			estimate.Packing:      {Base: 100, PerUnit: 0.5},
			estimate.Misc:         {},
		},
		MR: map[string]float64{
			"LP MR SIMPLE":           300,
			"LP MR MEDIUM":           450,
			"LP MR COMPLEX":          650,
			"FS MR SIMPLE":           350,
			"FS MR COMPLEX":          700,
			"EMB MR SIMPLE":          300,
			"DIGI MR SIMPLE":         50,
			"SCREEN PRINT MR SIMPLE": 250,
			"LAMINATION MR SIMPLE":   100,
			"DC MR SIMPLE":           200,
			"DC MR COMPLEX":          400,
			"POST DC MR SIMPLE":      150,
			"FOLD & PASTE MR SIMPLE": 200,
		},
	}
}

// LoadRateCard reads the rate card from the service_rates and mr_rates tables.
func LoadRateCard(ctx context.Context, db *sql.DB) (RateCard, error) {
	card := RateCard{
		Services: make(map[estimate.ServiceCode]ServiceRate),
		MR:       make(map[string]float64),
	}

	rows, err := db.QueryContext(ctx, `SELECT service, base, per_unit FROM service_rates`)
	if err != nil {
		return RateCard{}, fmt.Errorf("query service rates: %w", err)
	}
	for rows.Next() {
		var code string
		var r ServiceRate
		if err := rows.Scan(&code, &r.Base, &r.PerUnit); err != nil {
			rows.Close()
			return RateCard{}, fmt.Errorf("scan service rate: %w", err)
		}
		card.Services[estimate.ServiceCode(code)] = r
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return RateCard{}, fmt.Errorf("iterate service rates: %w", err)
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `SELECT concatenated, amount FROM mr_rates`)
	if err != nil {
		return RateCard{}, fmt.Errorf("query mr rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var amount float64
		if err := rows.Scan(&key, &amount); err != nil {
			return RateCard{}, fmt.Errorf("scan mr rate: %w", err)
		}
		card.MR[key] = amount
	}
	if err := rows.Err(); err != nil {
		return RateCard{}, fmt.Errorf("iterate mr rates: %w", err)
	}
	return card, nil
}
