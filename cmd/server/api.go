package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/pricing"
	"github.com/Simplici0/printbill/internal/seed"
	"github.com/Simplici0/printbill/internal/session"
	"github.com/Simplici0/printbill/internal/store"
)

const maxBodyBytes = 1 << 20

// Logger is the subset of *zap.SugaredLogger the handlers use.
type Logger interface {
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type draftLister interface {
	List(userEmail string) ([]store.Draft, error)
}

type server struct {
	auth     *authService
	sessions *session.Manager
	store    store.Store
	drafts   draftLister
	catalogs *catalog.Cache
	log      Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/job-types", s.handleJobTypes)
		r.Get("/catalogs/{kind}", s.handleCatalog)
		r.Get("/catalogs/{kind}/{key}", s.handleCatalog)
		r.Get("/estimates", s.handleEstimates)
		r.Delete("/estimates/{id}", s.handleDeleteEstimate)

		r.Get("/bills", s.handleListBills)
		r.Post("/bills", s.handleCreateBill)
		r.Route("/bills/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetBill)
			r.Delete("/", s.handleDeleteBill)
			r.Patch("/services/{code}", s.handleUpdateService)
			r.Patch("/order", s.handleUpdateOrder)
			r.Put("/client", s.handleSetClient)
			r.Put("/job-type", s.handleSetJobType)
			r.Put("/markup", s.handleSetMarkup)
			r.Post("/reset", s.handleReset)
			r.Post("/submit", s.handleSubmit)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// fail maps domain errors to HTTP statuses.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *session.ValidationError
	var rerr *gst.RateError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": verr.Error(), "fields": verr.Errors})
	case errors.As(err, &rerr):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, session.ErrNoSession), errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrNotVisible),
		errors.Is(err, session.ErrUnknownJobType),
		errors.Is(err, estimate.ErrUnknownService),
		errors.Is(err, estimate.ErrInvalidPatch),
		errors.Is(err, catalog.ErrUnknownKey),
		errors.Is(err, pricing.ErrMarkupType),
		errors.Is(err, pricing.ErrNegativeInput),
		errors.Is(err, pricing.ErrNoQuantity),
		errors.Is(err, pricing.ErrNoServices):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorw("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	u, valid, err := s.auth.validateCredentials(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !valid {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.auth.setSessionCookie(w, u.Email)
	writeJSON(w, http.StatusOK, u)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type jobTypeView struct {
	Name  string                 `json:"name"`
	Rules estimate.JobTypeConfig `json:"rules"`
}

func (s *server) handleJobTypes(w http.ResponseWriter, r *http.Request) {
	names := estimate.JobTypes()
	out := make([]jobTypeView, 0, len(names))
	for _, name := range names {
		out = append(out, jobTypeView{Name: name, Rules: estimate.JobTypeRules(name)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid catalog key")
		return
	}
	key, err := catalog.ParseKey(chi.URLParam(r, "kind"), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, loading := s.catalogs.Entries(key)
	resp := map[string]any{"key": key, "entries": entries, "loading": loading}
	if err := s.catalogs.Err(key); err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleEstimates(w http.ResponseWriter, r *http.Request) {
	q := store.Query{Search: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}
	if u := userFrom(r.Context()); u.IsB2B() {
		if u.ClientID == "" {
			writeJSON(w, http.StatusOK, []store.Summary{})
			return
		}
		q.ClientID = u.ClientID
	}
	list, err := s.store.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) handleDeleteEstimate(w http.ResponseWriter, r *http.Request) {
	if userFrom(r.Context()).Role != seed.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type draftView struct {
	ID          string    `json:"id"`
	EditID      string    `json:"editId,omitempty"`
	JobType     string    `json:"jobType"`
	ClientName  string    `json:"clientName"`
	ProjectName string    `json:"projectName"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// handleListBills lists the caller's unsubmitted bills, newest first.
func (s *server) handleListBills(w http.ResponseWriter, r *http.Request) {
	out := []draftView{}
	if s.drafts != nil {
		drafts, err := s.drafts.List(userFrom(r.Context()).Email)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		for _, d := range drafts {
			out = append(out, draftView{
				ID:          d.SessionID,
				EditID:      d.EditID,
				JobType:     d.Tree.JobType,
				ClientName:  d.Tree.Client.Name,
				ProjectName: d.Tree.OrderAndPaper.ProjectName,
				UpdatedAt:   d.UpdatedAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EditID string `json:"editId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	sess, err := s.sessions.Create(r.Context(), userFrom(r.Context()), body.EditID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Infow("billing session opened", "session", sess.ID(), "mode", sess.Mode(), "user", sess.User().Email)
	s.respondSnapshot(w, r, sess, http.StatusCreated)
}

// bill resolves the session named in the URL for the current user.
func (s *server) bill(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *server) respondSnapshot(w http.ResponseWriter, r *http.Request, sess *session.Session, status int) {
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, snap)
}

// mutateBill runs fn against the session and responds with its snapshot.
func (s *server) mutateBill(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	sess, ok := s.bill(w, r)
	if !ok {
		return
	}
	if err := fn(sess); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSnapshot(w, r, sess, http.StatusOK)
}

func (s *server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	s.mutateBill(w, r, func(*session.Session) error { return nil })
}

func (s *server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.bill(w, r)
	if !ok {
		return
	}
	s.sessions.Close(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func serviceParam(r *http.Request) (estimate.ServiceCode, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "code"))
	if err != nil {
		return "", false
	}
	if code, ok := estimate.ParseServiceCode(raw); ok {
		return code, true
	}
	if svc, ok := estimate.LookupSection(raw); ok {
		return svc.Code, true
	}
	return "", false
}

func (s *server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	code, ok := serviceParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}
	var patch map[string]any
	if !decodeJSON(w, r, &patch) {
		return
	}
	if len(patch) == 0 {
		writeError(w, http.StatusBadRequest, "empty patch")
		return
	}
	svc, _ := estimate.Lookup(code)
	if on, ok := patch[svc.InUseField].(bool); ok && !on {
		s.mutateBill(w, r, func(sess *session.Session) error {
			return sess.Toggle(r.Context(), code, false)
		})
		return
	}
	s.mutateBill(w, r, func(sess *session.Session) error {
		if err := sess.Update(r.Context(), code, patch); err != nil {
			return err
		}
		return sess.Expand(r.Context(), code)
	})
}

func (s *server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !decodeJSON(w, r, &patch) {
		return
	}
	s.mutateBill(w, r, func(sess *session.Session) error {
		return sess.UpdateOrder(r.Context(), patch)
	})
}

func (s *server) handleSetClient(w http.ResponseWriter, r *http.Request) {
	var c estimate.Client
	if !decodeJSON(w, r, &c) {
		return
	}
	s.mutateBill(w, r, func(sess *session.Session) error {
		return sess.SetClient(r.Context(), c)
	})
}

func (s *server) handleSetJobType(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobType string `json:"jobType"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s.mutateBill(w, r, func(sess *session.Session) error {
		return sess.SetJobType(r.Context(), body.JobType)
	})
}

func (s *server) handleSetMarkup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MarkupType    string   `json:"markupType"`
		MarkupPercent float64  `json:"markupPercent"`
		MiscCharge    *float64 `json:"miscCharge"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s.mutateBill(w, r, func(sess *session.Session) error {
		return sess.SetMarkup(r.Context(), body.MarkupType, body.MarkupPercent, body.MiscCharge)
	})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Partial bool `json:"partial"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s.mutateBill(w, r, func(sess *session.Session) error {
		return sess.Reset(r.Context(), body.Partial)
	})
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	est, err := s.sessions.Submit(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": est.ID, "result": est.Result})
}
