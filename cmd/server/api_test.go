package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/db"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/migrations"
	"github.com/Simplici0/printbill/internal/pricing"
	"github.com/Simplici0/printbill/internal/seed"
	"github.com/Simplici0/printbill/internal/session"
	"github.com/Simplici0/printbill/internal/store"
)

const (
	adminEmail    = "admin@printbill.test"
	adminPassword = "secret"
	partnerEmail  = "partner@acme.test"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	if _, err := seed.Run(database, seed.Config{AdminEmail: adminEmail, AdminPassword: adminPassword}); err != nil {
		t.Fatalf("run seed: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash partner password: %v", err)
	}
	if _, err := database.Exec(`
		INSERT INTO users (email, password_hash, role, client_id, client_name)
		VALUES (?, ?, ?, ?, ?)
	`, partnerEmail, string(hash), session.RoleB2B, "acme", "Acme Corp"); err != nil {
		t.Fatalf("insert partner user: %v", err)
	}

	drafts, err := store.OpenDrafts(filepath.Join(dir, "drafts.db"))
	if err != nil {
		t.Fatalf("open drafts: %v", err)
	}
	t.Cleanup(func() { _ = drafts.Close() })

	log := zap.NewNop().Sugar()
	catalogs := catalog.NewCache(catalog.SQLProvider{DB: database}, log)
	estimates := store.NewSQLite(database)
	sessions := session.NewManager(session.Deps{
		Catalogs:   catalogs,
		GST:        gst.SQLProvider{DB: database},
		Pricing:    pricing.Engine{Rates: pricing.DefaultRateCard()},
		Debounce:   10 * time.Millisecond,
		DefaultGST: gst.DefaultPercent,
		Log:        log,
	}, estimates, drafts)
	t.Cleanup(sessions.Shutdown)
	t.Cleanup(catalogs.Wait)

	srv := &server{
		auth:     newAuthService(database, "test-secret"),
		sessions: sessions,
		store:    estimates,
		drafts:   drafts,
		catalogs: catalogs,
		log:      log,
	}
	return srv.routes()
}

func call(t *testing.T, h http.Handler, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, email string) *http.Cookie {
	t.Helper()

	rec := call(t, h, http.MethodPost, "/login", map[string]string{"email": email, "password": adminPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("login %s: no session cookie", email)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createBill(t *testing.T, h http.Handler, cookie *http.Cookie) session.Snapshot {
	t.Helper()

	rec := call(t, h, http.MethodPost, "/bills", nil, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bill: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[session.Snapshot](t, rec)
}

func TestRequestsWithoutSessionAreRejected(t *testing.T) {
	h := newTestServer(t)

	if rec := call(t, h, http.MethodGet, "/job-types", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}

	forged := &http.Cookie{Name: sessionCookieName, Value: "YWRtaW4.deadbeef"}
	if rec := call(t, h, http.MethodPost, "/bills", nil, forged); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with forged cookie, got %d", rec.Code)
	}

	rec := call(t, h, http.MethodPost, "/login", map[string]string{"email": adminEmail, "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	h := newTestServer(t)
	cookie := login(t, h, "  ADMIN@PrintBill.test ")

	if rec := call(t, h, http.MethodGet, "/job-types", nil, cookie); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after login, got %d", rec.Code)
	}

	rec := call(t, h, http.MethodPost, "/logout", nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", rec.Code)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected logout to expire the cookie, got %+v", cleared)
	}
}

func TestJobTypesListsRules(t *testing.T) {
	h := newTestServer(t)
	cookie := login(t, h, adminEmail)

	rec := call(t, h, http.MethodGet, "/job-types", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	types := decode[[]jobTypeView](t, rec)
	var card *jobTypeView
	for i := range types {
		if types[i].Name == "Card" {
			card = &types[i]
		}
	}
	if card == nil {
		t.Fatalf("Card missing from %+v", types)
	}
	if len(card.Rules.DefaultActiveServices.Production) == 0 || len(card.Rules.ProductionServices) == 0 {
		t.Fatalf("expected Card rules, got %+v", card.Rules)
	}
}

func TestCatalogEndpointServesSeededEntries(t *testing.T) {
	h := newTestServer(t)
	cookie := login(t, h, adminEmail)

	type catalogResponse struct {
		Entries []catalog.Entry `json:"entries"`
		Loading bool            `json:"loading"`
	}

	var got catalogResponse
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := call(t, h, http.MethodGet, "/catalogs/mrTypes/LP", nil, cookie)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
		}
		got = decode[catalogResponse](t, rec)
		if !got.Loading || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got.Loading || len(got.Entries) == 0 || got.Entries[0].Value != "SIMPLE" {
		t.Fatalf("expected loaded LP MR catalog, got %+v", got)
	}

	if rec := call(t, h, http.MethodGet, "/catalogs/papers", nil, cookie); rec.Code != http.StatusOK {
		t.Fatalf("papers: status %d", rec.Code)
	}
	if rec := call(t, h, http.MethodGet, "/catalogs/stickers/LP", nil, cookie); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind: expected 400, got %d", rec.Code)
	}
	if rec := call(t, h, http.MethodGet, "/catalogs/mrTypes", nil, cookie); rec.Code != http.StatusBadRequest {
		t.Fatalf("unscoped mrTypes: expected 400, got %d", rec.Code)
	}
}

func TestBillLifecycle(t *testing.T) {
	h := newTestServer(t)
	cookie := login(t, h, adminEmail)

	snap := createBill(t, h, cookie)
	if snap.Tree.JobType != "Card" || snap.Expanded != "LP" || !snap.Initialized {
		t.Fatalf("expected initialized Card bill expanded on LP, got job=%q expanded=%q", snap.Tree.JobType, snap.Expanded)
	}
	base := "/bills/" + snap.ID

	rec := call(t, h, http.MethodPost, base+"/submit", nil, cookie)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for incomplete bill, got %d body %s", rec.Code, rec.Body.String())
	}
	invalid := decode[struct {
		Fields []map[string]string `json:"fields"`
	}](t, rec)
	if len(invalid.Fields) == 0 {
		t.Fatalf("expected field errors, got %s", rec.Body.String())
	}

	rec = call(t, h, http.MethodPut, base+"/client", map[string]string{"id": "c1", "name": "Acme"}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("set client: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = call(t, h, http.MethodPatch, base+"/order", map[string]any{
		"projectName": "Invite",
		"quantity":    500,
		"dieSize":     map[string]any{"length": "3.5", "breadth": "2"},
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("update order: status %d body %s", rec.Code, rec.Body.String())
	}
	snap = decode[session.Snapshot](t, rec)
	if snap.Tree.OrderAndPaper.Quantity != 500 {
		t.Fatalf("expected quantity 500, got %d", snap.Tree.OrderAndPaper.Quantity)
	}

	rec = call(t, h, http.MethodPatch, base+"/services/LP", map[string]any{"isLPUsed": false}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle LP off: status %d body %s", rec.Code, rec.Body.String())
	}
	if decode[session.Snapshot](t, rec).Tree.LPDetails.IsLPUsed {
		t.Fatal("expected LP to be inactive")
	}

	rec = call(t, h, http.MethodPut, base+"/markup", map[string]any{"markupType": pricing.MarkupTimeless, "markupPercent": 10}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("set markup: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = call(t, h, http.MethodPost, base+"/submit", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", rec.Code, rec.Body.String())
	}
	submitted := decode[struct {
		ID     string          `json:"id"`
		Result *pricing.Result `json:"result"`
	}](t, rec)
	if submitted.ID == "" || submitted.Result == nil || submitted.Result.Totals.Total <= 0 {
		t.Fatalf("expected priced estimate, got %s", rec.Body.String())
	}
	if submitted.Result.Breakdown.GSTPercent != 18 || submitted.Result.Breakdown.MarkupType != pricing.MarkupTimeless {
		t.Fatalf("unexpected breakdown %+v", submitted.Result.Breakdown)
	}

	if rec := call(t, h, http.MethodGet, base, nil, cookie); rec.Code != http.StatusNotFound {
		t.Fatalf("expected submitted bill to be closed, got %d", rec.Code)
	}

	rec = call(t, h, http.MethodGet, "/estimates?q=acme", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list estimates: status %d", rec.Code)
	}
	list := decode[[]store.Summary](t, rec)
	if len(list) != 1 || list[0].ID != submitted.ID || list[0].ProjectName != "Invite" {
		t.Fatalf("unexpected listing %+v", list)
	}
	if rec := call(t, h, http.MethodGet, "/estimates?limit=-1", nil, cookie); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	partner := login(t, h, partnerEmail)
	rec = call(t, h, http.MethodGet, "/estimates?q=acme", nil, partner)
	if rec.Code != http.StatusOK {
		t.Fatalf("partner list estimates: status %d", rec.Code)
	}
	if got := decode[[]store.Summary](t, rec); len(got) != 0 {
		t.Fatalf("partner should only see its own client's estimates, got %+v", got)
	}
	if rec := call(t, h, http.MethodPost, "/bills", map[string]string{"editId": submitted.ID}, partner); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when partner edits another client's estimate, got %d", rec.Code)
	}

	rec = call(t, h, http.MethodPost, "/bills", map[string]string{"editId": submitted.ID}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open edit: status %d body %s", rec.Code, rec.Body.String())
	}
	edit := decode[session.Snapshot](t, rec)
	if edit.Mode != session.ModeEdit || edit.EditID != submitted.ID || edit.Tree.OrderAndPaper.ProjectName != "Invite" {
		t.Fatalf("unexpected edit session %+v", edit)
	}
	if edit.MarkupType != pricing.MarkupTimeless {
		t.Fatalf("expected stored markup type, got %q", edit.MarkupType)
	}
}

func TestServicePatchErrors(t *testing.T) {
	h := newTestServer(t)
	cookie := login(t, h, adminEmail)
	base := "/bills/" + createBill(t, h, cookie).ID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown service", http.MethodPatch, base + "/services/NOPE", map[string]any{"x": 1}, http.StatusNotFound},
		{"empty patch", http.MethodPatch, base + "/services/FS", map[string]any{}, http.StatusBadRequest},
		{"hidden service", http.MethodPatch, base + "/services/NOTEBOOK", map[string]any{"isNotebookUsed": true}, http.StatusBadRequest},
		{"unknown foil stamping type", http.MethodPatch, base + "/services/FS", map[string]any{"isFSUsed": true, "fsType": "FS9"}, http.StatusBadRequest},
		{"bad patch type", http.MethodPatch, base + "/services/LP", map[string]any{"noOfColors": "many"}, http.StatusBadRequest},
		{"unknown job type", http.MethodPut, base + "/job-type", map[string]string{"jobType": "Poster"}, http.StatusBadRequest},
		{"unknown markup", http.MethodPut, base + "/markup", map[string]any{"markupType": "FREE"}, http.StatusBadRequest},
		{"negative markup", http.MethodPut, base + "/markup", map[string]any{"markupType": pricing.MarkupStandard, "markupPercent": -5}, http.StatusBadRequest},
		{"unknown bill", http.MethodGet, "/bills/missing", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, h, tc.method, tc.path, tc.body, cookie)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d body %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServicePatchBySectionKey(t *testing.T) {
	h := newTestServer(t)
	cookie := login(t, h, adminEmail)
	base := "/bills/" + createBill(t, h, cookie).ID

	rec := call(t, h, http.MethodPatch, base+"/services/fsDetails", map[string]any{"isFSUsed": true}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	snap := decode[session.Snapshot](t, rec)
	if !snap.Tree.FSDetails.IsFSUsed || snap.Expanded != "FS" {
		t.Fatalf("expected FS active and expanded, got used=%v expanded=%q", snap.Tree.FSDetails.IsFSUsed, snap.Expanded)
	}

	rec = call(t, h, http.MethodPut, base+"/job-type", map[string]string{"jobType": "Notebook"}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("set job type: status %d", rec.Code)
	}
	snap = decode[session.Snapshot](t, rec)
	if snap.Tree.FSDetails.IsFSUsed || !snap.Tree.NotebookDetails.IsNotebookUsed {
		t.Fatal("expected Notebook cascade to replace the active services")
	}

	rec = call(t, h, http.MethodPost, base+"/reset", map[string]bool{"partial": false}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status %d", rec.Code)
	}
	if got := decode[session.Snapshot](t, rec).Tree.JobType; got != "Card" {
		t.Fatalf("expected full reset to return to Card, got %q", got)
	}
}

func TestBillsAreScopedToTheirOwner(t *testing.T) {
	h := newTestServer(t)
	admin := login(t, h, adminEmail)
	partner := login(t, h, partnerEmail)

	adminBill := createBill(t, h, admin)
	if rec := call(t, h, http.MethodGet, "/bills/"+adminBill.ID, nil, partner); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's bill, got %d", rec.Code)
	}

	own := createBill(t, h, partner)
	if own.Tree.Client.ID != "acme" || own.MarkupType != pricing.MarkupB2B {
		t.Fatalf("expected partner bill locked to its client and B2B markup, got client=%q markup=%q", own.Tree.Client.ID, own.MarkupType)
	}
	rec := call(t, h, http.MethodPut, "/bills/"+own.ID+"/client", map[string]string{"id": "other"}, partner)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when switching client, got %d", rec.Code)
	}

	if rec := call(t, h, http.MethodDelete, "/bills/"+own.ID, nil, partner); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from delete, got %d", rec.Code)
	}
	if rec := call(t, h, http.MethodGet, "/bills/"+own.ID, nil, partner); rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted bill to be gone, got %d", rec.Code)
	}
}

func TestOpenBillsAndEstimateDeletion(t *testing.T) {
	h := newTestServer(t)
	admin := login(t, h, adminEmail)
	partner := login(t, h, partnerEmail)

	bill := createBill(t, h, admin)
	rec := call(t, h, http.MethodPatch, "/bills/"+bill.ID+"/order", map[string]any{"projectName": "Menu"}, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("update order: status %d", rec.Code)
	}

	rec = call(t, h, http.MethodGet, "/bills", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("list bills: status %d", rec.Code)
	}
	open := decode[[]draftView](t, rec)
	if len(open) != 1 || open[0].ID != bill.ID || open[0].ProjectName != "Menu" {
		t.Fatalf("unexpected open bills %+v", open)
	}
	if got := decode[[]draftView](t, call(t, h, http.MethodGet, "/bills", nil, partner)); len(got) != 0 {
		t.Fatalf("partner should not see admin drafts, got %+v", got)
	}

	if rec := call(t, h, http.MethodDelete, "/estimates/whatever", nil, partner); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin delete, got %d", rec.Code)
	}
	if rec := call(t, h, http.MethodDelete, "/estimates/missing", nil, admin); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing estimate, got %d", rec.Code)
	}
}
