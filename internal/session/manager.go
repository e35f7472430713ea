package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/pricing"
	"github.com/Simplici0/printbill/internal/store"
)

var ErrNoSession = errors.New("session not found")

// Drafts persists open sessions between requests and restarts.
type Drafts interface {
	Put(d store.Draft) error
	Get(sessionID string) (store.Draft, bool, error)
	Delete(sessionID string) error
}

// Manager owns the open sessions of the process.
type Manager struct {
	deps   Deps
	store  store.Store
	drafts Drafts

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a manager. drafts may be nil, which disables autosave.
func NewManager(deps Deps, st store.Store, drafts Drafts) *Manager {
	return &Manager{deps: deps, store: st, drafts: drafts, sessions: make(map[string]*Session)}
}

// Create opens a session. With an empty editID the session starts a new
// estimate and runs the activation cascade for the default job type; else
// the persisted estimate is loaded without touching its services.
func (m *Manager) Create(ctx context.Context, user User, editID string) (*Session, error) {
	if editID == "" {
		s := m.open(uuid.NewString(), user, ModeNew)
		err := s.mutate(ctx, func() error {
			if user.IsB2B() {
				if err := s.dispatch(estimate.SetClient{Client: estimate.Client{ID: user.ClientID, Name: user.ClientName, ClientType: "B2B"}}); err != nil {
					return err
				}
			}
			s.prefetch(s.tree.JobType)
			return s.runCascade(s.tree.JobType)
		})
		if err != nil {
			m.Close(s.ID())
			return nil, err
		}
		return s, nil
	}

	est, err := m.store.Load(ctx, editID)
	if err != nil {
		return nil, err
	}
	if user.IsB2B() && est.Tree.Client.ID != user.ClientID {
		return nil, ErrForbidden
	}
	s := m.open(uuid.NewString(), user, ModeEdit)
	s.editID = editID
	err = s.mutate(ctx, func() error {
		if est.MarkupType != "" && !user.IsB2B() {
			s.markupType = est.MarkupType
		}
		return s.hydrate(est.Tree, true)
	})
	if err != nil {
		m.Close(s.ID())
		return nil, err
	}
	return s, nil
}

// Get returns an open session, resuming it from its draft when the process
// no longer holds it.
func (m *Manager) Get(ctx context.Context, id string, user User) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		if s.user.Email != user.Email {
			return nil, ErrForbidden
		}
		return s, nil
	}
	if m.drafts == nil {
		return nil, ErrNoSession
	}

	d, ok, err := m.drafts.Get(id)
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", id, err)
	}
	if !ok {
		return nil, ErrNoSession
	}
	if d.UserEmail != user.Email {
		return nil, ErrForbidden
	}
	mode := ModeNew
	if d.EditID != "" {
		mode = ModeEdit
	}
	s = m.open(id, user, mode)
	s.editID = d.EditID
	err = s.do(ctx, func() error {
		s.markupType, s.markupPercent, s.misc = d.MarkupType, d.MarkupPercent, d.MiscCharge
		if s.markupType == "" {
			s.markupType = defaultMarkup(user)
		}
		return s.hydrate(d.Tree, mode == ModeEdit)
	})
	if err != nil {
		m.Close(id)
		return nil, err
	}
	m.deps.logger().Infow("session resumed from draft", "session", id, "user", user.Email)
	return s, nil
}

// Submit validates, prices and persists the estimate of a session, then
// closes it. On failure the session stays open and unchanged.
func (m *Manager) Submit(ctx context.Context, id string, user User) (store.Estimate, error) {
	s, err := m.Get(ctx, id, user)
	if err != nil {
		return store.Estimate{}, err
	}
	sub, err := s.prepareSubmit(ctx)
	if err != nil {
		return store.Estimate{}, err
	}

	rate := m.deps.DefaultGST
	if rate <= 0 {
		rate = gst.DefaultPercent
	}
	if m.deps.GST != nil {
		if rate, err = s.gst.Rate(ctx, sub.tree.JobType); err != nil {
			return store.Estimate{}, err
		}
	}
	res, err := m.deps.Pricing.Compute(sub.tree, sub.misc, sub.markupPercent, sub.markupType, rate)
	if err != nil {
		return store.Estimate{}, fmt.Errorf("price estimate: %w", err)
	}

	est := store.Estimate{
		ID:         s.editID,
		Tree:       sub.tree,
		Result:     &res,
		MarkupType: sub.markupType,
		CreatedBy:  user.Email,
	}
	if s.mode == ModeEdit {
		prev, err := m.store.Load(ctx, s.editID)
		if err != nil {
			return store.Estimate{}, err
		}
		est.CreatedBy, est.CreatedAt = prev.CreatedBy, prev.CreatedAt
	}
	if est.ID, err = m.store.Save(ctx, est); err != nil {
		return store.Estimate{}, err
	}
	m.deps.logger().Infow("estimate submitted", "session", id, "estimate", est.ID, "total", res.Totals.Total)
	m.Close(id)
	return est, nil
}

// Close stops a session and drops its draft.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	if m.drafts != nil {
		if err := m.drafts.Delete(id); err != nil {
			m.deps.logger().Warnw("delete draft", "session", id, "error", err)
		}
	}
}

// Shutdown stops every session. Drafts are kept so sessions can resume.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range open {
		s.Close()
	}
}

func (m *Manager) open(id string, user User, mode Mode) *Session {
	s := newSession(id, user, mode, m.deps)
	if m.drafts != nil {
		s.onChange = m.autosave
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// autosave runs on the session goroutine.
func (m *Manager) autosave(s *Session) {
	err := m.drafts.Put(store.Draft{
		SessionID:     s.id,
		EditID:        s.editID,
		UserEmail:     s.user.Email,
		Tree:          s.tree,
		MarkupType:    s.markupType,
		MarkupPercent: s.markupPercent,
		MiscCharge:    s.misc,
	})
	if err != nil {
		m.deps.logger().Warnw("autosave draft", "session", s.id, "error", err)
	}
}

// hydrate loads a stored tree. Loaded sections keep their values until the
// user changes them, so catalog reconciliation skips them when pin is set.
func (s *Session) hydrate(t estimate.Tree, pin bool) error {
	s.pinned = make(map[estimate.ServiceCode]bool)
	if pin {
		for _, code := range t.Active() {
			s.pinned[code] = true
		}
	}
	if err := s.dispatch(estimate.InitializeForm{Tree: t}); err != nil {
		return err
	}
	active := s.tree.Active()
	if len(active) > 0 {
		s.expanded = active[0]
	}
	s.prefetch(s.tree.JobType)
	s.initialized = true
	return nil
}

func (s *Session) prefetch(jobType string) {
	if s.deps.Catalogs == nil {
		return
	}
	rules := estimate.JobTypeRules(jobType)
	for _, svc := range estimate.Services() {
		if rules.Visible(svc.Code) {
			s.deps.Catalogs.Prefetch(estimate.ServiceCatalogs(svc.Code)...)
		}
	}
}

func defaultMarkup(u User) string {
	if u.IsB2B() {
		return pricing.MarkupB2B
	}
	return pricing.MarkupStandard
}

func (d Deps) logger() Logger {
	if d.Log == nil {
		return nopLogger{}
	}
	return d.Log
}
