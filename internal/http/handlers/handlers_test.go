package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"careercatalyst/internal/adapter/repo"
	"careercatalyst/internal/coach"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/middleware"
	"careercatalyst/internal/providers/llm"
	"careercatalyst/internal/workflow"
)

const testUser = "user-1"

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	fit   string
	err   error
	calls int
}

func (f *fakeLLM) Complete(context.Context, llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

func (f *fakeLLM) CompleteStructured(_ context.Context, _ llm.Request, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.fit), out)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordedEvents) Publish(_ context.Context, evt domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordedEvents) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakePayments struct {
	sessions map[string]*ledger.PaymentSession
}

func (f *fakePayments) RetrieveSession(_ context.Context, id string) (*ledger.PaymentSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("no such session")
	}
	return s, nil
}

type fakeBilling struct {
	webhook  *ledger.PaymentSession
	checkout []domain.Package
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, pkg domain.Package, _, _ string) (string, error) {
	f.checkout = append(f.checkout, pkg)
	return "https://checkout.example/" + string(pkg), nil
}

func (f *fakeBilling) ParseWebhook(_ []byte, signature string) (*ledger.PaymentSession, error) {
	if signature != "valid" {
		return nil, errors.New("bad signature")
	}
	return f.webhook, nil
}

type memoryObjects struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryObjects) Write(_ context.Context, key string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return key, nil
}

func (m *memoryObjects) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

type testEnv struct {
	app      *App
	store    *repo.MemoryLedgerRepository
	llm      *fakeLLM
	events   *recordedEvents
	payments *fakePayments
	billing  *fakeBilling
	objects  *memoryObjects
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repo.NewMemoryLedgerRepository()
	payments := &fakePayments{sessions: map[string]*ledger.PaymentSession{}}
	l, err := ledger.New(ledger.Options{Store: store, Payments: payments})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if _, err := l.Open(context.Background(), testUser, "ada@example.com"); err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	model := &fakeLLM{reply: "- strong Go background", fit: `{"score":72,"explanation":"good match","strengths":["Go"],"gaps":["Kubernetes"]}`}
	c, err := coach.New(coach.Options{LLM: model})
	if err != nil {
		t.Fatalf("coach: %v", err)
	}
	sessions, err := workflow.NewStore(16)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	env := &testEnv{
		store:    store,
		llm:      model,
		events:   &recordedEvents{},
		payments: payments,
		billing:  &fakeBilling{},
		objects:  &memoryObjects{},
	}
	env.app = &App{
		Logger:    zerolog.Nop(),
		Ledger:    l,
		Sessions:  sessions,
		Coach:     c,
		Storage:   env.objects,
		Billing:   env.billing,
		Analytics: repo.NewMemoryAnalyticsRepository(func() int { return 1 }, nil),
		Events:    env.events,
	}
	return env
}

func authed(req *http.Request) *http.Request {
	ctx := middleware.ContextWithUserID(req.Context(), testUser)
	return req.WithContext(ctx)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return authed(req)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return env.Error
}

func (e *testEnv) usage(t *testing.T, m domain.Module) int {
	t.Helper()
	rec, err := e.store.Get(context.Background(), testUser)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return rec.Usage[m]
}

// withArtefacts stores a session that has finished every stage before
// practice.
func (e *testEnv) withArtefacts() {
	sess := workflow.NewSession(testUser, "en").
		WithCV("cv.txt", "Go developer", "CV summary").
		WithJob("", "Backend role", "Job summary").
		WithFit(domain.FitScore{Score: 80, Explanation: "fits"}).
		WithSuggestions("Add metrics").
		WithQuestions("1. Why Go?")
	e.app.Sessions.Put(sess)
}

func TestModuleJobRecordsRunAndPublishes(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.app.ModuleJob(rr, jsonRequest(http.MethodPost, "/v1/modules/job", `{"text":"Senior Go engineer wanted"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Remaining int              `json:"remaining"`
		Session   workflow.Session `json:"session"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Remaining != ledger.FreeRunLimit-1 {
		t.Fatalf("remaining: got %d", resp.Remaining)
	}
	if resp.Session.Artefacts.JobSummary == "" {
		t.Fatalf("expected job summary on session")
	}
	if got := env.usage(t, domain.ModuleJobAnalysis); got != 1 {
		t.Fatalf("usage: got %d, want 1", got)
	}
	if types := env.events.types(); len(types) != 1 || types[0] != domain.EventModuleCompleted {
		t.Fatalf("events: %v", types)
	}
}

func TestModuleQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < ledger.FreeRunLimit; i++ {
		if err := env.app.Ledger.RecordRun(context.Background(), testUser, domain.ModuleJobAnalysis); err != nil {
			t.Fatalf("record run: %v", err)
		}
	}

	rr := httptest.NewRecorder()
	env.app.ModuleJob(rr, jsonRequest(http.MethodPost, "/v1/modules/job", `{"text":"anything"}`))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Code != "quota_exceeded" {
		t.Fatalf("code: got %q", body.Code)
	}
	if rem := body.Remaining[domain.ModuleJobAnalysis]; rem.Runs != 0 || rem.Unlimited {
		t.Fatalf("remaining for job analysis: %+v", rem)
	}
	if env.llm.calls != 0 {
		t.Fatalf("llm called %d times after denial", env.llm.calls)
	}
}

func TestModuleFailuresChargeNothing(t *testing.T) {
	cases := []struct {
		name   string
		reply  string
		err    error
		status int
		code   string
	}{
		{name: "provider failure", err: fmt.Errorf("timeout: %w", domain.ErrProviderFailure), status: http.StatusBadGateway, code: "provider_failure"},
		{name: "empty reply", reply: "   ", status: http.StatusBadGateway, code: "empty_result"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.llm.reply, env.llm.err = tc.reply, tc.err

			rr := httptest.NewRecorder()
			env.app.ModuleJob(rr, jsonRequest(http.MethodPost, "/v1/modules/job", `{"text":"Go role"}`))

			if rr.Code != tc.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.status)
			}
			if code := decodeError(t, rr).Code; code != tc.code {
				t.Fatalf("code: got %q, want %q", code, tc.code)
			}
			if got := env.usage(t, domain.ModuleJobAnalysis); got != 0 {
				t.Fatalf("usage: got %d, want 0", got)
			}
			if len(env.events.types()) != 0 {
				t.Fatalf("unexpected events: %v", env.events.types())
			}
		})
	}
}

func TestModuleFitRequiresEarlierStages(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.app.ModuleFit(rr, jsonRequest(http.MethodPost, "/v1/modules/fit", ""))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d", rr.Code)
	}
	if code := decodeError(t, rr).Code; code != "stage_locked" {
		t.Fatalf("code: got %q", code)
	}
}

func TestModuleFitStoresScore(t *testing.T) {
	env := newTestEnv(t)
	env.app.Sessions.Put(workflow.NewSession(testUser, "en").
		WithCV("cv.txt", "text", "CV summary").
		WithJob("", "job", "Job summary"))

	rr := httptest.NewRecorder()
	env.app.ModuleFit(rr, jsonRequest(http.MethodPost, "/v1/modules/fit", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rr.Code, rr.Body.String())
	}
	sess := env.app.Sessions.Get(testUser, "en")
	if sess.Artefacts.Fit == nil || sess.Artefacts.Fit.Score != 72 {
		t.Fatalf("fit not stored: %+v", sess.Artefacts.Fit)
	}
}

func TestModuleCVUpload(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("cv", "resume.txt")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("Ada Lovelace\nAnalytical engines, 10 years"))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/modules/cv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	env.app.ModuleCV(rr, authed(req))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rr.Code, rr.Body.String())
	}
	sess := env.app.Sessions.Get(testUser, "en")
	if sess.Artefacts.CVFileName != "resume.txt" || sess.Artefacts.CVSummary == "" {
		t.Fatalf("cv not stored on session: %+v", sess.Artefacts)
	}
	if len(env.objects.keys) != 1 || !strings.HasPrefix(env.objects.keys[0], "cvs/"+testUser+"/") {
		t.Fatalf("upload not archived: %v", env.objects.keys)
	}
}

func TestModuleCVRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("cv", "photo.png")
	_, _ = part.Write([]byte{0x89, 'P', 'N', 'G'})
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/modules/cv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	env.app.ModuleCV(rr, authed(req))

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status: got %d", rr.Code)
	}
	if got := env.usage(t, domain.ModuleCVAnalysis); got != 0 {
		t.Fatalf("usage: got %d", got)
	}
}

func TestPracticeOpeningIsFreeAnswerIsCharged(t *testing.T) {
	env := newTestEnv(t)
	env.withArtefacts()

	rr := httptest.NewRecorder()
	env.app.ModulePractice(rr, jsonRequest(http.MethodPost, "/v1/modules/practice", `{}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("open: got %d body %s", rr.Code, rr.Body.String())
	}
	if got := env.usage(t, domain.ModulePracticeInterview); got != 0 {
		t.Fatalf("opening charged: usage %d", got)
	}

	rr = httptest.NewRecorder()
	env.app.ModulePractice(rr, jsonRequest(http.MethodPost, "/v1/modules/practice", `{"answer":"I like Go"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("answer: got %d body %s", rr.Code, rr.Body.String())
	}
	if got := env.usage(t, domain.ModulePracticeInterview); got != 1 {
		t.Fatalf("usage: got %d, want 1", got)
	}
	sess := env.app.Sessions.Get(testUser, "en")
	if len(sess.Artefacts.Practice) != 2 || sess.Artefacts.Practice[1].Feedback == "" {
		t.Fatalf("practice transcript: %+v", sess.Artefacts.Practice)
	}
}

func TestQuestionsReport(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.app.QuestionsReport(rr, authed(httptest.NewRequest(http.MethodGet, "/v1/modules/questions/report", nil)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("without questions: got %d", rr.Code)
	}

	env.withArtefacts()
	rr = httptest.NewRecorder()
	env.app.QuestionsReport(rr, authed(httptest.NewRequest(http.MethodGet, "/v1/modules/questions/report", nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type: %q", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("body is not a pdf")
	}
	key := rr.Header().Get("X-Report-Key")
	if !strings.HasPrefix(key, "reports/"+testUser+"/") {
		t.Fatalf("report key: %q", key)
	}
}

func TestSessionTransitions(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.app.SessionNext(rr, jsonRequest(http.MethodPost, "/v1/session/next", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("next from landing: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.app.SessionNext(rr, jsonRequest(http.MethodPost, "/v1/session/next", ""))
	if rr.Code != http.StatusConflict {
		t.Fatalf("next without cv: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.app.SessionGoto(rr, jsonRequest(http.MethodPost, "/v1/session/goto", `{"stage":"nowhere"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("goto unknown: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.app.SessionLanguage(rr, jsonRequest(http.MethodPut, "/v1/session/language", `{"language":"de-AT"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("language: got %d", rr.Code)
	}
	if lang := env.app.Sessions.Get(testUser, "en").Language; lang != "de" {
		t.Fatalf("language: got %q", lang)
	}
}

func TestBillingCheckoutDowngradeNeedsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.app.Ledger.ApplyUpgrade(ctx, testUser, domain.PackageUltimate, ledger.SubscriptionPeriod); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	rr := httptest.NewRecorder()
	env.app.BillingCheckout(rr, jsonRequest(http.MethodPost, "/v1/billing/checkout", `{"package":"pro"}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d", rr.Code)
	}
	if code := decodeError(t, rr).Code; code != "downgrade_requires_confirmation" {
		t.Fatalf("code: %q", code)
	}

	rr = httptest.NewRecorder()
	env.app.BillingCheckout(rr, jsonRequest(http.MethodPost, "/v1/billing/checkout", `{"package":"pro","confirm_downgrade":true}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("confirmed: got %d body %s", rr.Code, rr.Body.String())
	}
	if len(env.billing.checkout) != 1 || env.billing.checkout[0] != domain.PackagePro {
		t.Fatalf("checkout calls: %v", env.billing.checkout)
	}
}

func TestBillingSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.payments.sessions["cs_paid"] = &ledger.PaymentSession{ID: "cs_paid", Paid: true, Package: domain.PackagePro, Email: "ADA@example.com"}
	env.payments.sessions["cs_open"] = &ledger.PaymentSession{ID: "cs_open", Paid: false, Package: domain.PackagePro, Email: "ada@example.com"}
	env.payments.sessions["cs_stranger"] = &ledger.PaymentSession{ID: "cs_stranger", Paid: true, Package: domain.PackagePro, Email: "bob@example.com"}

	get := func(id string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		env.app.BillingSuccess(rr, httptest.NewRequest(http.MethodGet, "/v1/billing/success?session_id="+id, nil))
		return rr
	}

	if rr := get("cs_open"); rr.Code != http.StatusPaymentRequired {
		t.Fatalf("unpaid: got %d", rr.Code)
	}

	rr := get("cs_stranger")
	if rr.Code != http.StatusConflict {
		t.Fatalf("unmatched: got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != "user_not_matched" || body.Email != "bob@example.com" {
		t.Fatalf("unmatched body: %+v", body)
	}

	rr = get("cs_paid")
	if rr.Code != http.StatusOK {
		t.Fatalf("paid: got %d body %s", rr.Code, rr.Body.String())
	}
	rec, _ := env.store.Get(context.Background(), testUser)
	if rec.Subscription.Package != domain.PackagePro {
		t.Fatalf("package: %q", rec.Subscription.Package)
	}

	rr = get("cs_paid")
	var res ledger.Reconciliation
	_ = json.NewDecoder(rr.Body).Decode(&res)
	if rr.Code != http.StatusOK || !res.Replayed {
		t.Fatalf("replay: got %d %+v", rr.Code, res)
	}
	if types := env.events.types(); len(types) != 1 || types[0] != domain.EventSubscriptionChanged {
		t.Fatalf("events: %v", types)
	}
}

func TestBillingWebhook(t *testing.T) {
	env := newTestEnv(t)

	post := func(sig string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader(`{}`))
		req.Header.Set("Stripe-Signature", sig)
		env.app.BillingWebhook(rr, req)
		return rr
	}

	if rr := post("forged"); rr.Code != http.StatusBadRequest {
		t.Fatalf("forged: got %d", rr.Code)
	}
	if rr := post("valid"); rr.Code != http.StatusOK {
		t.Fatalf("ignored event: got %d", rr.Code)
	}

	env.billing.webhook = &ledger.PaymentSession{ID: "cs_hook"}
	env.payments.sessions["cs_hook"] = &ledger.PaymentSession{ID: "cs_hook", Paid: true, Package: domain.PackageUltimate, Email: "ada@example.com"}
	if rr := post("valid"); rr.Code != http.StatusOK {
		t.Fatalf("completed: got %d body %s", rr.Code, rr.Body.String())
	}
	rem, _ := env.app.Ledger.RemainingRuns(context.Background(), testUser, domain.ModuleFitAnalysis)
	if !rem.Unlimited {
		t.Fatalf("expected unlimited runs after ultimate purchase")
	}
}

func TestMeReportsRemainingRuns(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.app.Me(rr, authed(httptest.NewRequest(http.MethodGet, "/v1/me", nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var profile struct {
		Email        string         `json:"email"`
		Subscription map[string]any `json:"subscription"`
		Remaining    map[string]int `json:"remaining"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.Subscription["package"] != "free" {
		t.Fatalf("package: %v", profile.Subscription["package"])
	}
	if len(profile.Remaining) != len(domain.Modules) || profile.Remaining[string(domain.ModuleCVAnalysis)] != ledger.FreeRunLimit {
		t.Fatalf("remaining: %v", profile.Remaining)
	}
}

func TestMeUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "ghost"))
	rr := httptest.NewRecorder()
	env.app.Me(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rr.Code)
	}
}

func TestStatsSummary(t *testing.T) {
	env := newTestEnv(t)
	if err := env.app.Analytics.Apply(context.Background(), domain.AnalyticsDaily{Signups: 2}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rr := httptest.NewRecorder()
	env.app.StatsSummary(rr, httptest.NewRequest(http.MethodGet, "/v1/stats/summary", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var summary domain.StatsSummary
	if err := json.NewDecoder(rr.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Signups != 2 || summary.TotalUsers != 1 {
		t.Fatalf("summary: %+v", summary)
	}
}
