package signature_test

import (
	"strings"
	"testing"

	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/jrsteele09/go-payx-gateway/signature"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T, secrets map[string]string, active string, opts ...signature.KeyringOption) *signature.Guard {
	t.Helper()
	kr, err := signature.NewKeyring(secrets, active, opts...)
	require.NoError(t, err)
	g, err := signature.NewGuard(kr)
	require.NoError(t, err)
	return g
}

func testSession() *paymentsession.PaymentSession {
	return &paymentsession.PaymentSession{
		ID:                  "2f0f7e7c-1111-4c1e-9a55-7d6b1f0e0001",
		PaymentInstrumentID: "pi-1",
		Amount:              decimal.RequireFromString("49.99"),
		Currency:            "USD",
		Country:             "US",
		ChallengeScenario:   paymentsession.ChallengeScenarioAddCard,
		ChallengeWindowSize: paymentsession.ChallengeWindowSizeThree,
		ChallengeStatus:     paymentsession.ChallengeStatusUnknown,
	}
}

func TestGuard_GenerateAndVerify(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		t.Run(alg, func(t *testing.T) {
			g := newGuard(t, map[string]string{"k1": "secret-one"}, "k1", signature.WithDefaultAlgorithm(alg))
			s := testSession()

			sig, err := g.Generate(s)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(sig, "v1.k1."))
			s.Signature = sig

			require.True(t, g.Verify(s, s.Signature))
		})
	}
}

func TestGuard_DetectsTampering(t *testing.T) {
	g := newGuard(t, map[string]string{"k1": "secret-one"}, "k1")
	s := testSession()
	sig, err := g.Generate(s)
	require.NoError(t, err)

	tamper := []struct {
		name   string
		mutate func(s *paymentsession.PaymentSession)
	}{
		{"status", func(s *paymentsession.PaymentSession) { s.ChallengeStatus = paymentsession.ChallengeStatusSucceeded }},
		{"amount", func(s *paymentsession.PaymentSession) { s.Amount = decimal.RequireFromString("0.01") }},
		{"token", func(s *paymentsession.PaymentSession) { s.SessionToken = "forged" }},
		{"challenge required", func(s *paymentsession.PaymentSession) {
			notRequired := false
			s.IsChallengeRequired = &notRequired
		}},
		{"id", func(s *paymentsession.PaymentSession) { s.ID = "other" }},
	}
	for _, tt := range tamper {
		t.Run(tt.name, func(t *testing.T) {
			c := s.Clone()
			tt.mutate(c)
			require.False(t, g.Verify(c, sig))
		})
	}
}

func TestGuard_MalformedSignatures(t *testing.T) {
	g := newGuard(t, map[string]string{"k1": "secret-one"}, "k1")
	s := testSession()
	sig, err := g.Generate(s)
	require.NoError(t, err)
	mac := strings.SplitN(sig, ".", 3)[2]

	for _, bad := range []string{
		"",
		"garbage",
		"v2.k1." + mac,
		"v1.k9." + mac,
		"v1.k1.!!notbase64!!",
		"v1.k1." + mac + ".extra",
	} {
		require.False(t, g.Verify(s, bad), bad)
	}
}

func TestGuard_KeyRotation(t *testing.T) {
	old := newGuard(t, map[string]string{"k1": "secret-one"}, "k1")
	s := testSession()
	oldSig, err := old.Generate(s)
	require.NoError(t, err)

	rotated := newGuard(t, map[string]string{"k1": "secret-one", "k2": "secret-two"}, "k2")
	require.True(t, rotated.Verify(s, oldSig), "signatures from a retired key still verify")

	newSig, err := rotated.Generate(s)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(newSig, "v1.k2."))
	require.False(t, old.Verify(s, newSig), "unknown key id is rejected")
}

func TestGuard_SessionKindsDoNotCollide(t *testing.T) {
	g := newGuard(t, map[string]string{"k1": "secret-one"}, "k1")
	qr := &paymentsession.QRCodeSession{ID: "q-1", Status: paymentsession.PaymentInstrumentStatusPending}
	sig, err := g.Generate(qr)
	require.NoError(t, err)
	require.True(t, g.Verify(qr, sig))

	ps := &paymentsession.PaymentSession{ID: "q-1"}
	require.False(t, g.Verify(ps, sig))
}

func TestNewKeyring_Validation(t *testing.T) {
	_, err := signature.NewKeyring(nil, "k1")
	require.Error(t, err)

	_, err = signature.NewKeyring(map[string]string{"k1": "s"}, "k2")
	require.ErrorIs(t, err, apperrors.ErrUnknownSigningKey)

	_, err = signature.NewKeyring(map[string]string{"k.1": "s"}, "k.1")
	require.Error(t, err)

	_, err = signature.NewKeyring(map[string]string{"k1": ""}, "k1")
	require.Error(t, err)

	_, err = signature.NewKeyring(map[string]string{"k1": "s"}, "k1", signature.WithDefaultAlgorithm("RS256"))
	require.Error(t, err)

	_, err = signature.NewKeyring(map[string]string{"k1": "s"}, "k1", signature.WithKeyAlgorithms(map[string]string{"k1": "none"}))
	require.Error(t, err)

	_, err = signature.NewKeyring(map[string]string{"k1": "s"}, "k1", signature.WithKeyAlgorithms(map[string]string{"k9": "HS512"}))
	require.ErrorIs(t, err, apperrors.ErrUnknownSigningKey)

	_, err = signature.NewGuard(nil)
	require.Error(t, err)
}

func TestKeyring_AlgorithmPerKey(t *testing.T) {
	kr, err := signature.NewKeyring(map[string]string{"k1": "s1", "k2": "s2"}, "k2",
		signature.WithDefaultAlgorithm("HS512"),
		signature.WithKeyAlgorithms(map[string]string{"k1": "HS256"}),
	)
	require.NoError(t, err)

	kid, active := kr.Active()
	require.Equal(t, "k2", kid)
	require.Equal(t, "HS512", active.Algorithm())

	old, ok := kr.Key("k1")
	require.True(t, ok)
	require.Equal(t, "HS256", old.Algorithm())
}

func TestGuard_AlgorithmRotation(t *testing.T) {
	before := newGuard(t, map[string]string{"k1": "secret-one"}, "k1")
	s := testSession()
	oldSig, err := before.Generate(s)
	require.NoError(t, err)

	// Moving to HS512 under a new key id keeps k1 on HS256.
	after := newGuard(t, map[string]string{"k1": "secret-one", "k2": "secret-two"}, "k2",
		signature.WithDefaultAlgorithm("HS512"),
		signature.WithKeyAlgorithms(map[string]string{"k1": "HS256"}),
	)
	require.True(t, after.Verify(s, oldSig), "sessions signed before the algorithm change still verify")

	newSig, err := after.Generate(s)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(newSig, "v1.k2."))
	require.True(t, after.Verify(s, newSig))

	// The same secret under a different algorithm is a different key.
	repinned := newGuard(t, map[string]string{"k1": "secret-one"}, "k1", signature.WithDefaultAlgorithm("HS384"))
	require.False(t, repinned.Verify(s, oldSig))
}
