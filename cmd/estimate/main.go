// Command estimate configures and prices a single print job in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/observability"
	"github.com/Simplici0/printbill/internal/pricing"
	"github.com/Simplici0/printbill/internal/seed"
	"github.com/Simplici0/printbill/internal/session"
)

func main() {
	var (
		catalogDir = flag.String("catalogs", "", "directory of YAML catalog files (default: built-in catalogs)")
		gstPercent = flag.Float64("gst", gst.DefaultPercent, "GST percentage applied to the quote")
		logLevel   = flag.String("log-level", "warn", "log level: debug|info|warn|error")
	)
	flag.Parse()

	logger := observability.NewLogger(*logLevel, true)
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), *catalogDir, *gstPercent, logger, os.Stdout); err != nil {
		logger.Fatalw("estimate failed", "error", err)
	}
}

func run(ctx context.Context, catalogDir string, gstPercent float64, logger *zap.SugaredLogger, out io.Writer) error {
	provider, err := catalogProvider(catalogDir)
	if err != nil {
		return err
	}
	catalogs := catalog.NewCache(provider, logger)
	defer catalogs.Wait()

	mgr := session.NewManager(session.Deps{
		Catalogs:   catalogs,
		GST:        fixedRate(gstPercent),
		Pricing:    pricing.Engine{Rates: pricing.DefaultRateCard()},
		Debounce:   50 * time.Millisecond,
		DefaultGST: gstPercent,
		Log:        logger,
	}, nil, nil)
	defer mgr.Shutdown()

	s, err := mgr.Create(ctx, session.User{Email: "terminal"}, "")
	if err != nil {
		return err
	}

	order, err := askOrder()
	if err != nil {
		return err
	}
	if err := applyOrder(ctx, s, order); err != nil {
		return err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	selected, err := askServices(snap.Rules, snap.Tree.Active())
	if err != nil {
		return err
	}
	if err := applyServices(ctx, s, snap.Tree.Active(), selected); err != nil {
		return err
	}

	markup, err := askMarkup()
	if err != nil {
		return err
	}
	if err := s.SetMarkup(ctx, markup.Type, markup.Percent, nil); err != nil {
		return err
	}

	snap, err = settle(ctx, s, 5*time.Second)
	if err != nil {
		return err
	}
	return render(out, snap)
}

// catalogProvider reads catalogs from dir, or from the built-in set.
func catalogProvider(dir string) (catalog.Provider, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("catalog dir: %w", err)
		}
		return catalog.FileProvider{Dir: dir}, nil
	}
	doc, err := seed.DefaultCatalogs()
	if err != nil {
		return nil, err
	}
	return documentProvider(doc), nil
}

type documentProvider catalog.Document

func (d documentProvider) Fetch(ctx context.Context, key catalog.Key) ([]catalog.Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	for _, s := range d.Catalogs {
		if s.Key == key {
			return s.Entries, nil
		}
	}
	return []catalog.Entry{}, nil
}

type fixedRate float64

func (r fixedRate) FetchRate(context.Context, string) (float64, error) { return float64(r), nil }

func applyOrder(ctx context.Context, s *session.Session, o orderInput) error {
	if err := s.SetJobType(ctx, o.JobType); err != nil {
		return err
	}
	if err := s.SetClient(ctx, estimate.Client{ID: o.ClientName, Name: o.ClientName}); err != nil {
		return err
	}
	return s.UpdateOrder(ctx, map[string]any{
		"projectName": o.ProjectName,
		"quantity":    o.Quantity,
		"dieSize":     map[string]any{"length": o.Length, "breadth": o.Breadth},
	})
}

// applyServices toggles the session's services until exactly selected are active.
func applyServices(ctx context.Context, s *session.Session, active, selected []estimate.ServiceCode) error {
	want := make(map[estimate.ServiceCode]bool, len(selected))
	for _, code := range selected {
		want[code] = true
	}
	for _, code := range active {
		if !want[code] {
			if err := s.Toggle(ctx, code, false); err != nil {
				return err
			}
		}
	}
	for _, code := range selected {
		if err := s.Toggle(ctx, code, true); err != nil {
			return err
		}
	}
	return nil
}

var errNotSettled = errors.New("estimate did not settle")

// settle forces a recalculation and waits for a price or a pricing error.
func settle(ctx context.Context, s *session.Session, timeout time.Duration) (session.Snapshot, error) {
	if err := s.Recalculate(ctx); err != nil {
		return session.Snapshot{}, err
	}
	deadline := time.Now().Add(timeout)
	for {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return session.Snapshot{}, err
		}
		if !snap.Calculating && (snap.Result != nil || snap.PricingError != "" || snap.GSTError != "") {
			return snap, nil
		}
		if time.Now().After(deadline) {
			return snap, errNotSettled
		}
		time.Sleep(20 * time.Millisecond)
	}
}

type report struct {
	JobType   string          `yaml:"jobType"`
	Active    []string        `yaml:"services"`
	Hidden    []string        `yaml:"hiddenServices,omitempty"`
	Invalid   []string        `yaml:"validation,omitempty"`
	Error     string          `yaml:"error,omitempty"`
	Lines     []reportLine    `yaml:"lines,omitempty"`
	Totals    *pricing.Totals `yaml:"totals,omitempty"`
	GST       float64         `yaml:"gstPercent,omitempty"`
	Breakdown map[string]any  `yaml:"tree"`
}

type reportLine struct {
	Service string  `yaml:"service"`
	Units   float64 `yaml:"units"`
	Amount  float64 `yaml:"amount"`
}

func render(w io.Writer, snap session.Snapshot) error {
	r := report{
		JobType:   snap.Tree.JobType,
		Breakdown: estimate.Flatten(snap.Tree),
		Error:     snap.PricingError,
	}
	for _, code := range snap.Tree.Active() {
		r.Active = append(r.Active, string(code))
	}
	for _, code := range snap.HiddenActive {
		r.Hidden = append(r.Hidden, string(code))
	}
	for _, fe := range estimate.Validate(snap.Tree) {
		r.Invalid = append(r.Invalid, fe.Error())
	}
	if snap.GSTError != "" {
		r.Error = snap.GSTError
	}
	if res := snap.Result; res != nil {
		for _, l := range res.Breakdown.Lines {
			r.Lines = append(r.Lines, reportLine{Service: string(l.Service), Units: l.Units, Amount: l.Amount})
		}
		r.Totals = &res.Totals
		r.GST = res.Breakdown.GSTPercent
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
