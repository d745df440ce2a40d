package server_test

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-payx-gateway/challenge"
	"github.com/jrsteele09/go-payx-gateway/internal/config"
	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/metrics"
	"github.com/jrsteele09/go-payx-gateway/internal/transport"
	"github.com/jrsteele09/go-payx-gateway/payerauth/payerauthfakes"
	ps "github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/jrsteele09/go-payx-gateway/secondscreen"
	"github.com/jrsteele09/go-payx-gateway/server"
	"github.com/jrsteele09/go-payx-gateway/sessionstore/storefakes"
	"github.com/jrsteele09/go-payx-gateway/signature"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testFixture holds all test dependencies
type testFixture struct {
	store     *storefakes.FakeSessionStore
	payerAuth *payerauthfakes.FakeAccessor
	server    *server.Server
}

func setupTestFixture(t *testing.T, options ...server.Option) *testFixture {
	t.Helper()

	kr, err := signature.NewKeyring(map[string]string{"k1": "server-secret"}, "k1")
	require.NoError(t, err)
	guard, err := signature.NewGuard(kr)
	require.NoError(t, err)

	registry, rec := metrics.NewRegistry()
	store := storefakes.NewFakeSessionStore()
	pa := payerauthfakes.NewFakeAccessor()

	payments, err := challenge.NewPaymentSessionsHandler(store, pa, guard,
		challenge.WithLogger(zerolog.Nop()),
		challenge.WithMetrics(rec),
		challenge.WithPifdBaseURL("https://pifd.example.com/v7"),
	)
	require.NoError(t, err)
	qr, err := secondscreen.NewSecondScreenSessionHandler(store, guard,
		secondscreen.WithLogger(zerolog.Nop()),
		secondscreen.WithMetrics(rec),
	)
	require.NoError(t, err)

	opts := append([]server.Option{server.WithLogger(zerolog.Nop()), server.WithGatherer(registry)}, options...)
	srv, err := server.New(config.New(), payments, qr, opts...)
	require.NoError(t, err)

	return &testFixture{
		store:     store,
		payerAuth: pa,
		server:    srv,
	}
}

func (f *testFixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	ErrorCode       string            `json:"errorCode"`
	Message         string            `json:"message"`
	DeclinedSession *ps.QRCodeSession `json:"declinedSession"`
}

func createBody() map[string]any {
	return map[string]any{
		"paymentSessionData": map[string]any{
			"paymentInstrumentId": "pi-1",
			"partner":             "webblends",
			"amount":              "49.99",
			"currency":            "USD",
			"country":             "US",
			"language":            "en-US",
			"challengeScenario":   "AddCard",
			"challengeWindowSize": "Three",
			"successUrl":          "https://merchant.example.com/ok",
			"failureUrl":          "https://merchant.example.com/fail",
		},
		"deviceChannel": "Browser",
	}
}

func TestPaymentSessionFlow(t *testing.T) {
	f := setupTestFixture(t)
	f.payerAuth.ScriptChallenge("https://acs.example.com/challenge")

	rec := f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody(),
		transport.HeaderCorrelationID, "tid-http",
		transport.HeaderTestContext, "px-psd2-challenge",
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "tid-http", rec.Header().Get(transport.HeaderCorrelationID))
	created := decodeBody[challenge.CreateResult](t, rec)
	require.True(t, created.Method.Skip)
	session := created.Session
	require.Equal(t, "acc-1", session.AccountID)

	rec = f.do(t, http.MethodPost, "/v7/paymentSessions/"+session.ID+"/authenticate", map[string]any{
		"paymentSession": session,
		"browserInfo":    map[string]any{"userAgent": "test-agent"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	authed := decodeBody[ps.PaymentSession](t, rec)
	require.True(t, authed.ChallengeRequired())
	require.NotEmpty(t, authed.SessionToken)
	require.Equal(t, "test-agent", f.payerAuth.LastAuthentication().BrowserInfo.UserAgent)
	require.Equal(t, "px-psd2-challenge", f.payerAuth.LastAuthentication().TestContext)

	rec = f.do(t, http.MethodGet, "/v7/paymentSessions/"+session.ID+"/challengeRedirect", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "no redirect before the challenge ends")

	rec = f.do(t, http.MethodPost, "/v7/paymentSessions/"+session.ID+"/completeChallenge", map[string]any{
		"paymentSession":        authed,
		"authenticationContext": map[string]any{"sessionToken": authed.SessionToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	completed := decodeBody[ps.PaymentSession](t, rec)
	require.Equal(t, ps.ChallengeStatusSucceeded, completed.ChallengeStatus)

	rec = f.do(t, http.MethodGet, "/v7/paymentSessions/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, completed.Signature, decodeBody[ps.PaymentSession](t, rec).Signature)

	rec = f.do(t, http.MethodGet, "/v7/paymentSessions/"+session.ID+"/challengeRedirect", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://merchant.example.com/ok?"))
}

func TestAbandonChallengeRoute(t *testing.T) {
	f := setupTestFixture(t)
	f.payerAuth.ScriptChallenge("https://acs.example.com/challenge")

	session := decodeBody[challenge.CreateResult](t, f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody())).Session
	authed := decodeBody[ps.PaymentSession](t, f.do(t, http.MethodPost, "/v7/paymentSessions/"+session.ID+"/authenticateThreeDSOne", map[string]any{
		"paymentSession": session,
	}))
	require.True(t, authed.ChallengeRequired())

	rec := f.do(t, http.MethodPost, "/v7/paymentSessions/"+session.ID+"/abandonChallenge", map[string]any{
		"paymentSession": authed,
		"status":         "Cancelled",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, ps.ChallengeStatusCancelled, decodeBody[ps.PaymentSession](t, rec).ChallengeStatus)
}

func TestCorrelationIDGenerated(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodGet, "/v7/paymentSessions/missing", nil)
	require.NotEmpty(t, rec.Header().Get(transport.HeaderCorrelationID))
}

func TestErrorMapping(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/v7/acc-1/paymentSessions", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "InvalidRequestData", decodeBody[errorBody](t, rec).ErrorCode)
	})

	t.Run("unknown enum", func(t *testing.T) {
		f := setupTestFixture(t)
		body := createBody()
		body["deviceChannel"] = "Kiosk"
		rec := f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		f := setupTestFixture(t)
		body := createBody()
		body["paymentSessionData"].(map[string]any)["amount"] = "0"
		rec := f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, decodeBody[errorBody](t, rec).Message, "amount")
	})

	t.Run("dependency unavailable", func(t *testing.T) {
		f := setupTestFixture(t)
		f.payerAuth.CreateErr = apperrors.ErrExternalServiceUnavailable
		rec := f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody())
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("tampered session is not found", func(t *testing.T) {
		f := setupTestFixture(t)
		session := decodeBody[challenge.CreateResult](t, f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody())).Session
		session.ChallengeStatus = ps.ChallengeStatusSucceeded

		rec := f.do(t, http.MethodPost, "/v7/paymentSessions/"+session.ID+"/authenticate", map[string]any{"paymentSession": session})
		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody[errorBody](t, rec)
		require.Equal(t, "session unavailable", body.Message)
	})

	t.Run("body and path disagree", func(t *testing.T) {
		f := setupTestFixture(t)
		session := decodeBody[challenge.CreateResult](t, f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody())).Session
		rec := f.do(t, http.MethodPost, "/v7/paymentSessions/other/authenticate", map[string]any{"paymentSession": session})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, 0, f.payerAuth.Calls("Authenticate"))
	})
}

func TestSecondScreenRoutes(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, "/v7/secondScreenSessions", map[string]any{"accountId": "acc-1", "country": "us"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	qr := decodeBody[ps.QRCodeSession](t, rec)

	// The poll only moves the use count; status and instrument id in the body are ignored.
	rec = f.do(t, http.MethodPut, "/v7/secondScreenSessions/"+qr.ID, map[string]any{
		"qrCodeSession":       qr,
		"useCount":            1,
		"status":              "Active",
		"paymentInstrumentId": "pi-forged",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	polled := decodeBody[ps.QRCodeSession](t, rec)
	require.Equal(t, 1, polled.UseCount)
	require.Equal(t, ps.PaymentInstrumentStatusPending, polled.Status)
	require.Nil(t, polled.PaymentInstrumentID)

	rec = f.do(t, http.MethodPut, "/v7/secondScreenSessions/"+qr.ID+"/paymentInstrument", map[string]any{
		"qrCodeSession":       polled,
		"status":              "Active",
		"paymentInstrumentId": "pi-9",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[ps.QRCodeSession](t, rec)
	require.Equal(t, ps.PaymentInstrumentStatusActive, updated.Status)
	require.Equal(t, 1, updated.UseCount)

	// Later polls keep the attached instrument.
	rec = f.do(t, http.MethodPut, "/v7/secondScreenSessions/"+qr.ID, map[string]any{
		"qrCodeSession": updated,
		"useCount":      2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated = decodeBody[ps.QRCodeSession](t, rec)

	rec = f.do(t, http.MethodGet, "/v7/secondScreenSessions/"+qr.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[ps.QRCodeSession](t, rec)
	require.Equal(t, ps.PaymentInstrumentStatusActive, got.Status)
	require.Equal(t, "pi-9", *got.PaymentInstrumentID)
	require.Equal(t, 2, got.UseCount)

	f.store.FailUpdateWith(apperrors.ErrExternalServiceUnavailable)
	rec = f.do(t, http.MethodPut, "/v7/secondScreenSessions/"+qr.ID, map[string]any{
		"qrCodeSession": updated,
		"useCount":      3,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[errorBody](t, rec)
	require.Equal(t, "InvalidPaymentInstrumentDetails", body.ErrorCode)
	require.NotNil(t, body.DeclinedSession)
	require.Equal(t, ps.PaymentInstrumentStatusDeclined, body.DeclinedSession.Status)
	require.NotEqual(t, qr.ID, body.DeclinedSession.ID)
}

func TestAttachPaymentInstrument_Validation(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodPost, "/v7/secondScreenSessions", map[string]any{"accountId": "acc-1"})
	qr := decodeBody[ps.QRCodeSession](t, rec)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing instrument", map[string]any{"qrCodeSession": qr, "status": "Active"}},
		{"pending status", map[string]any{"qrCodeSession": qr, "status": "Pending", "paymentInstrumentId": "pi-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPut, "/v7/secondScreenSessions/"+qr.ID+"/paymentInstrument", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	_, updates, _ := f.store.Calls()
	require.Equal(t, 0, updates)
}

func TestCorsPreflight(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com")
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodOptions, "/v7/acc-1/paymentSessions", nil, "Origin", "https://shop.example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), transport.HeaderCorrelationID)

	rec = f.do(t, http.MethodOptions, "/v7/acc-1/paymentSessions", nil, "Origin", "https://evil.example.com")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOperationalRoutes(t *testing.T) {
	f := setupTestFixture(t)
	f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody())

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `payx_payment_sessions_total{operation="create",outcome="ok"} 1`)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequireAuth(t *testing.T) {
	verifier := oidc.NewVerifier("https://issuer.example.com", &oidc.StaticKeySet{}, &oidc.Config{SkipClientIDCheck: true})
	f := setupTestFixture(t, server.WithTokenVerifier(verifier))

	rec := f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody())
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v7/acc-1/paymentSessions", createBody(), "Authorization", "Bearer not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 0, f.payerAuth.Calls("CreatePaymentSessionID"))

	rec = f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code, "operational routes stay open")
}

func TestAttachPaymentInstrument_RequiresScope(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	const issuer = "https://issuer.example.com"
	verifier := oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{SkipClientIDCheck: true})
	f := setupTestFixture(t, server.WithTokenVerifier(verifier))

	bearer := func(scope string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":   issuer,
			"sub":   "add-card-service",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"scope": scope,
		})
		signed, err := token.SignedString(key)
		require.NoError(t, err)
		return "Bearer " + signed
	}

	rec := f.do(t, http.MethodPost, "/v7/secondScreenSessions", map[string]any{"accountId": "acc-1"}, "Authorization", bearer(""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	qr := decodeBody[ps.QRCodeSession](t, rec)
	attach := map[string]any{"qrCodeSession": qr, "status": "Active", "paymentInstrumentId": "pi-1"}
	path := "/v7/secondScreenSessions/" + qr.ID + "/paymentInstrument"

	rec = f.do(t, http.MethodPut, path, attach, "Authorization", bearer("payx.sessions"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	_, updates, _ := f.store.Calls()
	require.Equal(t, 0, updates)

	rec = f.do(t, http.MethodPut, path, attach, "Authorization", bearer("payx.sessions "+server.ScopeSecondScreenInstrument))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, ps.PaymentInstrumentStatusActive, decodeBody[ps.QRCodeSession](t, rec).Status)
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	h := server.ChainMiddleware(func(http.ResponseWriter, *http.Request) { panic("boom") }, f.server.RecoverMiddleware)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "InternalError", decodeBody[errorBody](t, rec).ErrorCode)
}
