package payerauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/transport"
	"github.com/jrsteele09/go-payx-gateway/payerauth"
	"github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	responses map[string]string
	requests  map[string]*http.Request
	client    *payerauth.Client
	lock      sync.Mutex
}

func (f *testFixture) respond(action, body string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.responses[action] = body
}

func (f *testFixture) request(action string) *http.Request {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.requests[action]
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		responses: map[string]string{},
		requests:  map[string]*http.Request{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lock.Lock()
		defer f.lock.Unlock()
		action := r.URL.Path[1:]
		f.requests[action] = r
		body, ok := f.responses[action]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := payerauth.NewClient(srv.URL, "v3")
	require.NoError(t, err)
	f.client = client
	return f
}

func TestClient_CreatePaymentSessionID(t *testing.T) {
	f := setupTestFixture(t)
	f.respond("CreatePaymentSessionId", `{"paymentSessionId":"ps-1","enrollmentStatus":"Bypassed"}`)

	res, err := f.client.CreatePaymentSessionID(context.Background(), payerauth.PaymentSessionRequest{
		PaymentSessionID: "ps-1",
		TestContext:      "px-psd2-bypass",
	}, "tid-1")
	require.NoError(t, err)
	require.Equal(t, payerauth.EnrollmentStatusBypassed, res.EnrollmentStatus)

	req := f.request("CreatePaymentSessionId")
	require.Equal(t, "px-psd2-bypass", req.Header.Get(transport.HeaderTestContext))
	require.Equal(t, "tid-1", req.Header.Get(transport.HeaderCorrelationID))
	require.Equal(t, "v3", req.Header.Get(transport.HeaderAPIVersion))
}

func TestClient_Get3DSMethodURL(t *testing.T) {
	f := setupTestFixture(t)
	f.respond("GetThreeDSMethodURL", `{"threeDSMethodURL":"https://acs/method"}`)
	_, err := f.client.Get3DSMethodURL(context.Background(), payerauth.ThreeDSMethodRequest{}, "tid")
	require.ErrorIs(t, err, apperrors.ErrIntegrationFailure)

	f.respond("GetThreeDSMethodURL", `{"threeDSServerTransID":"t-1","threeDSMethodURL":"https://acs/method"}`)
	res, err := f.client.Get3DSMethodURL(context.Background(), payerauth.ThreeDSMethodRequest{}, "tid")
	require.NoError(t, err)
	require.Equal(t, "https://acs/method", res.ThreeDSMethodURL)
}

func TestClient_AuthenticateValidatesShape(t *testing.T) {
	tests := []struct {
		name    string
		channel paymentsession.DeviceChannel
		body    string
		wantErr bool
	}{
		{"frictionless", paymentsession.DeviceChannelBrowser, `{"enrollmentStatus":"Enrolled","transStatus":"Y","acsTransID":"a"}`, false},
		{"missing acs trans id", paymentsession.DeviceChannelBrowser, `{"enrollmentStatus":"Enrolled","transStatus":"Y"}`, true},
		{"bypassed without acs", paymentsession.DeviceChannelBrowser, `{"enrollmentStatus":"Bypassed","transStatus":"Y"}`, false},
		{"browser challenge without url", paymentsession.DeviceChannelBrowser, `{"enrollmentStatus":"Enrolled","transStatus":"C","acsTransID":"a"}`, true},
		{"browser challenge", paymentsession.DeviceChannelBrowser, `{"enrollmentStatus":"Enrolled","transStatus":"C","acsTransID":"a","acsURL":"https://acs"}`, false},
		{"app challenge without content", paymentsession.DeviceChannelAppBased, `{"enrollmentStatus":"Enrolled","transStatus":"C","acsTransID":"a","threeDSServerTransID":"t"}`, true},
		{"app challenge", paymentsession.DeviceChannelAppBased, `{"enrollmentStatus":"Enrolled","transStatus":"C","acsTransID":"a","threeDSServerTransID":"t","acsSignedContent":"jws"}`, false},
		{"unknown trans status", paymentsession.DeviceChannelBrowser, `{"enrollmentStatus":"Enrolled","transStatus":"Q","acsTransID":"a"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.respond("Authenticate", tt.body)
			_, err := f.client.Authenticate(context.Background(), payerauth.AuthenticationRequest{DeviceChannel: tt.channel}, "tid")
			if tt.wantErr {
				require.ErrorIs(t, err, apperrors.ErrIntegrationFailure)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestClient_AuthenticateRequiresTransStatus(t *testing.T) {
	for _, action := range []string{"Authenticate", "AuthenticateThreeDSOne"} {
		t.Run(action, func(t *testing.T) {
			f := setupTestFixture(t)
			authenticate := f.client.Authenticate
			if action == "AuthenticateThreeDSOne" {
				authenticate = f.client.AuthenticateThreeDSOne
			}
			req := payerauth.AuthenticationRequest{DeviceChannel: paymentsession.DeviceChannelBrowser}

			f.respond(action, `{"enrollmentStatus":"Enrolled","acsTransID":"acs-1"}`)
			res, err := authenticate(context.Background(), req, "tid")
			require.ErrorIs(t, err, apperrors.ErrIntegrationFailure)
			require.Nil(t, res)

			f.respond(action, `{"enrollmentStatus":"Enrolled","transStatus":"","acsTransID":"acs-1"}`)
			_, err = authenticate(context.Background(), req, "tid")
			require.ErrorIs(t, err, apperrors.ErrIntegrationFailure)

			f.respond(action, `{"enrollmentStatus":"Bypassed"}`)
			res, err = authenticate(context.Background(), req, "tid")
			require.NoError(t, err)
			require.Equal(t, payerauth.EnrollmentStatusBypassed, res.EnrollmentStatus)
		})
	}
}

func TestClient_CompleteChallenge(t *testing.T) {
	f := setupTestFixture(t)
	f.respond("CompleteChallenge", `{"transStatus":"N","challengeCancel":"04"}`)

	res, err := f.client.CompleteChallenge(context.Background(), payerauth.CompletionRequest{
		PaymentSessionID:        "ps-1",
		AuthorizationParameters: map[string]string{"cres": "abc"},
	}, "tid")
	require.NoError(t, err)
	require.Equal(t, paymentsession.TransactionStatusN, res.TransactionStatus)
	require.Equal(t, paymentsession.TransactionTimedOut, res.ChallengeCancel)

	f.respond("CompleteChallenge", `{}`)
	_, err = f.client.CompleteChallenge(context.Background(), payerauth.CompletionRequest{}, "tid")
	require.ErrorIs(t, err, apperrors.ErrIntegrationFailure)
}

func TestClient_UnavailableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "upstream"})
	}))
	defer srv.Close()

	client, err := payerauth.NewClient(srv.URL, "v3")
	require.NoError(t, err)
	_, err = client.Authenticate(context.Background(), payerauth.AuthenticationRequest{}, "tid")
	require.ErrorIs(t, err, apperrors.ErrExternalServiceUnavailable)
}
