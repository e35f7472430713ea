// Package session runs billing sessions: one goroutine per session owns the
// estimate tree and applies every change through the reducer.
package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/pricing"
	"github.com/Simplici0/printbill/internal/recalc"
)

var (
	ErrClosed         = errors.New("session closed")
	ErrNotVisible     = errors.New("service not available for job type")
	ErrUnknownJobType = errors.New("unknown job type")
	ErrForbidden      = errors.New("not allowed for this user")
)

// ValidationError blocks a submit.
type ValidationError struct {
	Errors []estimate.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("estimate is incomplete: %d field error(s)", len(e.Errors))
}

// Logger is the subset of *zap.SugaredLogger sessions use.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// PricingEngine prices a settled tree.
type PricingEngine interface {
	Compute(t estimate.Tree, miscCharge *float64, markupPercentage float64, markupType string, gstRate float64) (pricing.Result, error)
}

// CatalogSource is what a session needs from the process-wide catalog cache.
type CatalogSource interface {
	estimate.Catalogs
	Lookup(key catalog.Key, value string) (catalog.Entry, bool)
	Subscribe(fn func(catalog.Key)) func()
	Prefetch(keys ...catalog.Key)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Catalogs   CatalogSource
	GST        gst.Provider
	Pricing    PricingEngine
	Debounce   time.Duration
	DefaultGST float64
	Log        Logger
}

// Mode distinguishes new estimates from edits of persisted ones.
type Mode string

const (
	ModeNew  Mode = "new"
	ModeEdit Mode = "edit"
)

const RoleB2B = "b2b"

// User is the identity a session acts for.
type User struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	ClientID   string `json:"clientId,omitempty"`
	ClientName string `json:"clientName,omitempty"`
}

func (u User) IsB2B() bool { return u.Role == RoleB2B }

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID            string                 `json:"id"`
	Mode          Mode                   `json:"mode"`
	EditID        string                 `json:"editId,omitempty"`
	Tree          estimate.Tree          `json:"tree"`
	Rules         estimate.JobTypeConfig `json:"rules"`
	Expanded      estimate.ServiceCode   `json:"expanded"`
	HiddenActive  []estimate.ServiceCode `json:"hiddenActive,omitempty"`
	Loading       []string               `json:"loading,omitempty"`
	MarkupType    string                 `json:"markupType"`
	MarkupPercent float64                `json:"markupPercent"`
	MiscCharge    *float64               `json:"miscCharge,omitempty"`
	Result        *pricing.Result        `json:"result,omitempty"`
	PricingError  string                 `json:"pricingError,omitempty"`
	GSTError      string                 `json:"gstError,omitempty"`
	Calculating   bool                   `json:"calculating"`
	Initialized   bool                   `json:"initialized"`
}

// Session owns one estimate tree. Exported methods are safe for concurrent
// use; they run on the session goroutine.
type Session struct {
	id     string
	user   User
	mode   Mode
	editID string
	deps   Deps

	events chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	gst         *gst.Cache
	sched       *recalc.Scheduler
	unsubscribe func()
	onChange    func(*Session)

	// Owned by the session goroutine.
	tree          estimate.Tree
	reducer       estimate.Reducer
	seeder        estimate.Seeder
	expanded      estimate.ServiceCode
	initialized   bool
	pinned        map[estimate.ServiceCode]bool
	markupType    string
	markupPercent float64
	misc          *float64
	result        *pricing.Result
	pricingErr    error
	gstErr        error
	fetching      string
}

func newSession(id string, user User, mode Mode, deps Deps) *Session {
	s := &Session{
		id:         id,
		user:       user,
		mode:       mode,
		deps:       deps,
		events:     make(chan func(), 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		gst:        gst.NewCache(deps.GST),
		tree:       estimate.Empty(),
		pinned:     make(map[estimate.ServiceCode]bool),
		markupType: defaultMarkup(user),
	}
	if deps.DefaultGST <= 0 {
		s.deps.DefaultGST = gst.DefaultPercent
	}
	if deps.Catalogs != nil {
		s.reducer.Lookup = deps.Catalogs.Lookup
		s.seeder.Catalogs = deps.Catalogs
		s.unsubscribe = deps.Catalogs.Subscribe(func(k catalog.Key) {
			s.post(func() { s.onCatalog(k) })
		})
	}
	s.sched = recalc.New(deps.Debounce, func() { s.post(s.calculate) })
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) User() User { return s.user }

func (s *Session) Mode() Mode { return s.mode }

func (s *Session) EditID() string { return s.editID }

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post queues fn without blocking the caller.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.quit:
	default:
		go func() {
			select {
			case s.events <- fn:
			case <-s.quit:
			}
		}()
	}
}

// do runs fn on the session goroutine and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.events <- func() { errc <- fn() }:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mutate runs fn and autosaves when it succeeds.
func (s *Session) mutate(ctx context.Context, fn func() error) error {
	return s.do(ctx, func() error {
		if err := fn(); err != nil {
			return err
		}
		if s.onChange != nil {
			s.onChange(s)
		}
		return nil
	})
}

// Close stops the session goroutine and its timers.
func (s *Session) Close() {
	s.once.Do(func() {
		s.sched.Stop()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.quit)
		<-s.done
	})
}

func (s *Session) dispatch(a estimate.Action) error {
	before := s.tree
	next, err := s.reducer.Apply(s.tree, a)
	if err != nil {
		return err
	}
	s.tree = next
	s.afterChange(before)
	return nil
}

// apply runs an internal follow-up action without further follow-ups.
func (s *Session) apply(a estimate.Action) {
	next, err := s.reducer.Apply(s.tree, a)
	if err != nil {
		s.log().Errorw("follow-up action rejected", "session", s.id, "action", fmt.Sprintf("%T", a), "error", err)
		return
	}
	s.tree = next
}

func (s *Session) afterChange(before estimate.Tree) {
	for _, svc := range estimate.Services() {
		prev := before.Section(svc.Code)
		cur := s.tree.Section(svc.Code)
		switch {
		case !cur.InUse():
			delete(s.pinned, svc.Code)
		case !prev.InUse():
			if s.deps.Catalogs != nil {
				s.deps.Catalogs.Prefetch(estimate.ServiceCatalogs(svc.Code)...)
			}
			s.reconcile(svc.Code)
		default:
			prevLen, curLen := estimate.RecordCount(prev), estimate.RecordCount(cur)
			if curLen > prevLen {
				if a, ok := s.seeder.Padding(s.tree, svc.Code, prevLen); ok {
					s.apply(a)
				}
			}
			if curLen != prevLen {
				s.reconcile(svc.Code)
			}
		}
	}
	if !reflect.DeepEqual(before, s.tree) {
		s.sched.Touch()
	}
}

func (s *Session) reconcile(code estimate.ServiceCode) bool {
	if s.pinned[code] {
		return false
	}
	var cats estimate.Catalogs
	if s.deps.Catalogs != nil {
		cats = s.deps.Catalogs
	}
	a, ok := estimate.Reconcile(s.tree, code, cats)
	if !ok {
		return false
	}
	s.apply(a)
	return true
}

func (s *Session) onCatalog(key catalog.Key) {
	changed := false
	for _, code := range s.tree.Active() {
		if estimate.Uses(s.tree.Section(code), key) && s.reconcile(code) {
			changed = true
		}
	}
	if changed {
		s.log().Debugw("catalog reconciled", "session", s.id, "key", key.String())
		s.sched.Touch()
		if s.onChange != nil {
			s.onChange(s)
		}
	}
}

func (s *Session) runCascade(jobType string) error {
	plan := estimate.PlanCascade(s.tree, jobType, s.seeder)
	for _, a := range plan.Actions {
		if err := s.dispatch(a); err != nil {
			return err
		}
	}
	s.expanded = plan.Expanded
	s.initialized = true
	return nil
}

// calculate runs on the session goroutine when the quiet period ends.
func (s *Session) calculate() {
	jobType := s.tree.JobType
	if rate, ok := s.gst.Cached(jobType); ok {
		s.price(rate)
		return
	}
	if s.deps.GST == nil {
		s.price(s.deps.DefaultGST)
		return
	}
	// The pending fetch prices whatever the tree is when it lands.
	if s.fetching == jobType {
		return
	}
	s.fetching = jobType
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rate, err := s.gst.Rate(ctx, jobType)
		s.post(func() {
			if s.fetching == jobType {
				s.fetching = ""
			}
			if s.tree.JobType != jobType {
				return
			}
			if err != nil {
				s.gstErr = err
				s.result = nil
				s.log().Warnw("gst rate unavailable", "session", s.id, "jobType", jobType, "error", err)
				return
			}
			s.gstErr = nil
			s.price(rate)
		})
	}()
}

func (s *Session) price(rate float64) {
	if s.deps.Pricing == nil {
		return
	}
	res, err := s.deps.Pricing.Compute(s.tree, s.misc, s.markupPercent, s.markupType, rate)
	if err != nil {
		s.result, s.pricingErr = nil, err
		s.log().Debugw("pricing skipped", "session", s.id, "error", err)
		return
	}
	s.result, s.pricingErr = &res, nil
}

func (s *Session) log() Logger { return s.deps.logger() }

type nopLogger struct{}

func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}

// Update merges a user patch into a service section. A patch that switches
// an inactive service on is layered over its seed payload.
func (s *Session) Update(ctx context.Context, code estimate.ServiceCode, patch map[string]any) error {
	return s.mutate(ctx, func() error {
		svc, ok := estimate.Lookup(code)
		if !ok {
			return fmt.Errorf("%w: %q", estimate.ErrUnknownService, code)
		}
		if on, _ := patch[svc.InUseField].(bool); on && !s.tree.Section(code).InUse() {
			if err := s.checkVisible(code); err != nil {
				return err
			}
			merged := s.seeder.Payload(code, s.tree.OrderAndPaper.DieSize)
			for k, v := range patch {
				merged[k] = v
			}
			patch = merged
		}
		return s.dispatch(estimate.UpdateSection{Service: code, Patch: patch, Source: estimate.SourceUser})
	})
}

// Toggle switches a service on with its seed payload, or off.
func (s *Session) Toggle(ctx context.Context, code estimate.ServiceCode, on bool) error {
	return s.mutate(ctx, func() error {
		if _, ok := estimate.Lookup(code); !ok {
			return fmt.Errorf("%w: %q", estimate.ErrUnknownService, code)
		}
		var payload map[string]any
		if on {
			if s.tree.Section(code).InUse() {
				return nil
			}
			if err := s.checkVisible(code); err != nil {
				return err
			}
			payload = s.seeder.Payload(code, s.tree.OrderAndPaper.DieSize)
		}
		if err := s.dispatch(estimate.Toggle(code, on, payload)); err != nil {
			return err
		}
		if on {
			s.expanded = code
		}
		return nil
	})
}

// New sessions only offer the job type's services. Edit sessions may enable
// any registered service; those outside the list are reported as hidden.
func (s *Session) checkVisible(code estimate.ServiceCode) error {
	if s.mode == ModeEdit || estimate.JobTypeRules(s.tree.JobType).Visible(code) {
		return nil
	}
	return fmt.Errorf("%w: %s for %s", ErrNotVisible, code, s.tree.JobType)
}

// UpdateOrder merges a patch into orderAndPaper.
func (s *Session) UpdateOrder(ctx context.Context, patch map[string]any) error {
	return s.mutate(ctx, func() error {
		return s.dispatch(estimate.UpdateOrderAndPaper{Patch: patch})
	})
}

func (s *Session) SetClient(ctx context.Context, c estimate.Client) error {
	return s.mutate(ctx, func() error {
		if s.user.IsB2B() && c.ID != s.user.ClientID {
			return ErrForbidden
		}
		return s.dispatch(estimate.SetClient{Client: c})
	})
}

func (s *Session) SetVersion(ctx context.Context, versionID string) error {
	return s.mutate(ctx, func() error {
		return s.dispatch(estimate.SetVersion{VersionID: versionID})
	})
}

// SetJobType changes the job type. The GST cache is cleared and, for new
// estimates, the activation cascade rewrites the active services.
func (s *Session) SetJobType(ctx context.Context, jobType string) error {
	return s.mutate(ctx, func() error {
		if !estimate.KnownJobType(jobType) {
			return fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
		}
		prev := s.tree.JobType
		if err := s.dispatch(estimate.SetJobType{JobType: jobType}); err != nil {
			return err
		}
		if prev != jobType {
			s.gst.Invalidate()
			s.gstErr = nil
		}
		if s.mode == ModeEdit {
			return nil
		}
		return s.runCascade(jobType)
	})
}

// SetMarkup changes the markup. B2B users are locked to the B2B markup
// type. When the GST rate is known, or known to be unavailable, the price is
// recomputed at once.
func (s *Session) SetMarkup(ctx context.Context, markupType string, percent float64, misc *float64) error {
	return s.mutate(ctx, func() error {
		if s.user.IsB2B() {
			markupType = pricing.MarkupB2B
		}
		if !pricing.ValidMarkupType(markupType) {
			return fmt.Errorf("%w: %q", pricing.ErrMarkupType, markupType)
		}
		if percent < 0 || (misc != nil && *misc < 0) {
			return pricing.ErrNegativeInput
		}
		s.markupType, s.markupPercent, s.misc = markupType, percent, misc

		switch rate, ok := s.gst.Cached(s.tree.JobType); {
		case ok:
			s.price(rate)
		case s.gstErr != nil:
			s.price(s.deps.DefaultGST)
		default:
			s.sched.Touch()
		}
		return nil
	})
}

// Reset clears the tree (partial keeps client and order metadata) and runs
// the activation cascade for the current job type.
func (s *Session) Reset(ctx context.Context, partial bool) error {
	return s.mutate(ctx, func() error {
		jobType := s.tree.JobType
		var a estimate.Action = estimate.Reset{}
		if partial {
			a = estimate.PartialReset{}
		}
		if err := s.dispatch(a); err != nil {
			return err
		}
		if !partial && s.user.IsB2B() {
			if err := s.dispatch(estimate.SetClient{Client: estimate.Client{ID: s.user.ClientID, Name: s.user.ClientName, ClientType: "B2B"}}); err != nil {
				return err
			}
		}
		s.pinned = make(map[estimate.ServiceCode]bool)
		s.result = nil
		if !partial {
			jobType = s.tree.JobType
		}
		return s.runCascade(jobType)
	})
}

// Expand records which section the user has open.
func (s *Session) Expand(ctx context.Context, code estimate.ServiceCode) error {
	return s.do(ctx, func() error {
		if code != "" {
			if _, ok := estimate.Lookup(code); !ok {
				return fmt.Errorf("%w: %q", estimate.ErrUnknownService, code)
			}
		}
		s.expanded = code
		return nil
	})
}

// Recalculate prices the current tree without waiting for the quiet period.
func (s *Session) Recalculate(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.calculate()
		return nil
	})
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) snapshot() Snapshot {
	rules := estimate.JobTypeRules(s.tree.JobType)
	snap := Snapshot{
		ID:            s.id,
		Mode:          s.mode,
		EditID:        s.editID,
		Tree:          s.tree.Clone(),
		Rules:         rules,
		Expanded:      s.expanded,
		MarkupType:    s.markupType,
		MarkupPercent: s.markupPercent,
		MiscCharge:    s.misc,
		Result:        s.result,
		Calculating:   s.sched.Pending(),
		Initialized:   s.initialized,
	}
	for _, code := range s.tree.Active() {
		if !rules.Visible(code) {
			snap.HiddenActive = append(snap.HiddenActive, code)
		}
		if s.deps.Catalogs == nil {
			continue
		}
		for _, key := range estimate.CatalogKeys(s.tree.Section(code)) {
			if _, loading := s.deps.Catalogs.Entries(key); loading {
				snap.Loading = append(snap.Loading, key.String())
			}
		}
	}
	if s.gstErr != nil {
		snap.GSTError = s.gstErr.Error()
	}
	if s.pricingErr != nil {
		snap.PricingError = s.pricingErr.Error()
	}
	return snap
}

// submission is what Submit needs from the session goroutine.
type submission struct {
	tree          estimate.Tree
	markupType    string
	markupPercent float64
	misc          *float64
}

func (s *Session) prepareSubmit(ctx context.Context) (submission, error) {
	var sub submission
	err := s.do(ctx, func() error {
		if errs := estimate.Validate(s.tree); len(errs) > 0 {
			return &ValidationError{Errors: errs}
		}
		sub = submission{tree: s.tree.Clone(), markupType: s.markupType, markupPercent: s.markupPercent, misc: s.misc}
		return nil
	})
	return sub, err
}
