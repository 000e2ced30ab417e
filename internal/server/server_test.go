package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/metrics"
	"github.com/spigell/mutual-match/internal/payment"
	"github.com/spigell/mutual-match/internal/referral"
	"github.com/spigell/mutual-match/internal/results"
	"github.com/spigell/mutual-match/internal/session"
	"github.com/spigell/mutual-match/internal/storage/sqlite"
)

const (
	testSecret   = "whsec_test"
	testPassword = "letmein"
)

type stubCheckout struct {
	orders []payment.Order
}

func (c *stubCheckout) Create(_ context.Context, o payment.Order) (string, error) {
	c.orders = append(c.orders, o)
	return "https://pay.example/" + o.QuizID, nil
}

type fixture struct {
	server   *Server
	handler  http.Handler
	checkout *stubCheckout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c, err := catalog.New([]catalog.Category{
		{ID: "basics", Emoji: "💕", Questions: []catalog.Question{{ID: "b1"}, {ID: "b2"}, {ID: "b3"}}},
		{ID: "toys", Emoji: "🎮", Questions: []catalog.Question{{ID: "t1"}, {ID: "t2"}}},
	})
	require.NoError(t, err)

	store, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(registry)

	sessions := session.NewService(store, c, m, nil)
	referrals := referral.NewService(store, sessions, nil)
	checkout := &stubCheckout{}
	payments := payment.NewService(payment.Config{PriceCents: 999, Currency: "usd", BaseURL: "https://quiz.example"},
		sessions, referrals, checkout, m, nil)

	srv, err := New(DefaultConfig(), Deps{
		Sessions:      sessions,
		Results:       results.NewService(sessions, c, results.Config{Quota: 1, PerfectLimit: 1}, m, nil),
		Payments:      payments,
		Referrals:     referrals,
		Catalog:       c,
		Quick:         c.Subset([]string{"b1", "t1"}),
		Recorder:      m,
		Gatherer:      registry,
		Health:        store.Ping,
		WebhookSecret: testSecret,
		AdminPassword: testPassword,
	}, nil)
	require.NoError(t, err)

	return &fixture{server: srv, handler: srv.Handler(), checkout: checkout}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) createQuiz(t *testing.T) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/quiz", `{"partnerAName":"Alex","partnerBName":"Sam"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode[map[string]string](t, rec)["id"]
	require.NotEmpty(t, id)
	return id
}

func (f *fixture) submit(t *testing.T, id, partner, answers string) *httptest.ResponseRecorder {
	t.Helper()

	return f.do(t, http.MethodPost, "/api/quiz/"+id+"/submit", `{"partner":"`+partner+`","answers":`+answers+`}`, nil)
}

func signedWebhook(payload string) map[string]string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return map[string]string{signatureHeader: signed.Header}
}

func TestQuizFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.createQuiz(t)

	rec := f.submit(t, id, "B", `{"b1":5}`)
	require.Equal(t, http.StatusConflict, rec.Code, "partner B must wait for A")

	require.Equal(t, http.StatusOK, f.submit(t, id, "A", `{"b1":5,"b2":4,"t1":5,"t2":1}`).Code)
	require.Equal(t, http.StatusConflict, f.submit(t, id, "a", `{"b1":5}`).Code)

	rec = f.do(t, http.MethodGet, "/api/results/"+id, "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/quiz/"+id+"/submit",
		`{"partner":"B","partnerBName":" Samantha ","answers":{"b1":5,"b2":5,"t1":5,"t2":5,"zz":5}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/quiz/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	require.Equal(t, true, status["partnerADone"])
	require.Equal(t, true, status["partnerBDone"])
	require.Equal(t, "Samantha", status["partnerBName"])
	require.Equal(t, "Alex", status["partnerAName"])
	require.NotContains(t, rec.Body.String(), "answers")

	rec = f.do(t, http.MethodGet, "/api/results/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[results.Result](t, rec)
	require.Equal(t, 3, res.TotalMatches)
	require.Equal(t, 4, res.AnsweredBoth)
	require.Equal(t, 75, res.CompatibilityScore)
	require.Len(t, res.Matches, 1)
	require.Equal(t, 2, res.Locked)
	require.False(t, res.Paid)

	exposed := f.metrics(t)
	require.Contains(t, exposed, `mutual_match_submissions_total{partner="A"} 1`)
	require.Contains(t, exposed, `mutual_match_submissions_total{partner="B"} 1`)
}

func TestInvalidSubmissions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.createQuiz(t)

	tests := map[string]struct {
		path   string
		body   string
		status int
	}{
		"out of range":    {path: "/api/quiz/" + id + "/submit", body: `{"partner":"A","answers":{"b1":6}}`, status: http.StatusBadRequest},
		"missing answers": {path: "/api/quiz/" + id + "/submit", body: `{"partner":"A"}`, status: http.StatusBadRequest},
		"bad partner":     {path: "/api/quiz/" + id + "/submit", body: `{"partner":"C","answers":{}}`, status: http.StatusBadRequest},
		"malformed":       {path: "/api/quiz/" + id + "/submit", body: `{`, status: http.StatusBadRequest},
		"unknown quiz":    {path: "/api/quiz/nope/submit", body: `{"partner":"A","answers":{}}`, status: http.StatusNotFound},
		"no names":        {path: "/api/quiz", body: `{"partnerAName":" "}`, status: http.StatusBadRequest},
	}

	for name, tt := range tests {
		rec := f.do(t, http.MethodPost, tt.path, tt.body, nil)
		require.Equal(t, tt.status, rec.Code, "%s: %s", name, rec.Body.String())
		require.NotEmpty(t, decode[errorResponse](t, rec).Error, name)
	}
}

func TestCheckoutAndWebhook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.createQuiz(t)
	require.Equal(t, http.StatusOK, f.submit(t, id, "A", `{"b1":5,"b2":5}`).Code)
	require.Equal(t, http.StatusOK, f.submit(t, id, "B", `{"b1":5,"b2":4}`).Code)

	rec := f.do(t, http.MethodPost, "/api/admin/referrals", `{"code":"love20","influencer_name":"Kim","discount_percent":20}`,
		map[string]string{"Authorization": "Bearer " + testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/checkout", `{"quizId":"`+id+`","referralCode":"Love20"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[payment.Quote](t, rec)
	require.Equal(t, int64(799), quote.AmountCents)
	require.Equal(t, "https://pay.example/"+id, quote.URL)
	require.Len(t, f.checkout.orders, 1)
	require.Equal(t, "LOVE20", f.checkout.orders[0].ReferralCode)

	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{` +
		`"id":"cs_1","object":"checkout.session","amount_total":799,"metadata":{"quizId":"` + id + `","referralCode":"LOVE20"}}}}`

	rec = f.do(t, http.MethodPost, "/api/webhook", payload, map[string]string{signatureHeader: "t=1,v1=bad"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	for i := 0; i < 2; i++ {
		rec = f.do(t, http.MethodPost, "/api/webhook", payload, signedWebhook(payload))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	exposed := f.metrics(t)
	for _, outcome := range []string{"applied", "duplicate", "invalid"} {
		require.Contains(t, exposed, `mutual_match_webhook_events_total{outcome="`+outcome+`"} 1`)
	}

	rec = f.do(t, http.MethodGet, "/api/results/"+id, "", nil)
	res := decode[results.Result](t, rec)
	require.True(t, res.Paid)
	require.Zero(t, res.Locked)
	require.Len(t, res.Matches, 2)

	rec = f.do(t, http.MethodPost, "/api/checkout", `{"quizId":"`+id+`"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/referrals", "", map[string]string{"Authorization": "Bearer " + testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[map[string][]referral.Stats](t, rec)["referrals"]
	require.Len(t, listed, 1)
	require.Equal(t, 1, listed[0].TotalUses)
	require.Equal(t, 1, listed[0].TotalPaid)
	require.Equal(t, int64(799), listed[0].TotalRevenue)
}

func TestAdminReferrals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	auth := map[string]string{"Authorization": "Bearer " + testPassword}

	for _, headers := range []map[string]string{nil, {"Authorization": "Bearer wrong"}, {"Authorization": testPassword}} {
		rec := f.do(t, http.MethodGet, "/api/admin/referrals", "", headers)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/admin/referrals", `{"code":"summer","influencer_name":"Kim","discount_percent":10}`, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[map[string]referral.Code](t, rec)["referral"]
	require.Equal(t, "SUMMER", created.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/referrals", `{"code":"Summer","influencer_name":"Lee"}`, auth)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/referral/validate", `{"code":"summer"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode[map[string]any](t, rec)["valid"])

	rec = f.do(t, http.MethodPut, "/api/admin/referrals", `{"id":"`+created.ID+`","is_active":false}`, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/referral/validate", `{"code":"summer"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decode[map[string]any](t, rec)["valid"])

	rec = f.do(t, http.MethodDelete, "/api/admin/referrals?id="+created.ID, "", auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/admin/referrals?id="+created.ID, "", auth)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalogHealthAndMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/catalog?mode=quick", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quick := decode[catalogResponse](t, rec)
	require.Equal(t, 2, quick.Total)
	require.Len(t, quick.Categories, 2)

	rec = f.do(t, http.MethodGet, "/api/catalog", "", nil)
	require.Equal(t, 5, decode[catalogResponse](t, rec).Total)

	rec = f.do(t, http.MethodGet, "/api/catalog?mode=long", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Contains(t, f.metrics(t), `mutual_match_http_requests_total{method="GET",route="/api/catalog",status="200"}`)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{err: session.ErrNotFound, want: http.StatusNotFound},
		{err: referral.ErrNotFound, want: http.StatusNotFound},
		{err: session.ErrAlreadySubmitted, want: http.StatusConflict},
		{err: session.ErrAlreadyPaid, want: http.StatusConflict},
		{err: results.ErrIncomplete, want: http.StatusBadRequest},
		{err: payment.ErrSignature, want: http.StatusBadRequest},
		{err: errUnauthorized, want: http.StatusUnauthorized},
		{err: context.DeadlineExceeded, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestHTTPServerTimeouts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := f.server.httpServer()

	want := DefaultConfig().ReadTimeout
	require.NotZero(t, want)
	require.Equal(t, want, srv.ReadTimeout)
	require.Equal(t, want, srv.ReadHeaderTimeout)
	require.Equal(t, DefaultAddress, srv.Addr)
}

func (f *fixture) metrics(t *testing.T) string {
	t.Helper()

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
