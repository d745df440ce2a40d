// Package challenge drives the 3DS payment-challenge handshake for a payment session:
// method invocation, authentication, the optional ACS challenge and its completion.
package challenge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/metrics"
	"github.com/jrsteele09/go-payx-gateway/payerauth"
	ps "github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/jrsteele09/go-payx-gateway/sessionstore"
	"github.com/jrsteele09/go-payx-gateway/signature"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const sessionTokenLength = 32

var tracer = otel.Tracer("payx/challenge")

// CreateResult is a new session plus how to run the 3DS Method step.
type CreateResult struct {
	Session *ps.PaymentSession   `json:"paymentSession"`
	Method  *ps.MethodInvocation `json:"methodInvocation"`
}

// AuthenticateOptions carries the channel-specific device data for an authentication.
type AuthenticateOptions struct {
	BrowserInfo               *payerauth.BrowserInfo `json:"browserInfo,omitempty"`
	SDKInfo                   *payerauth.SDKInfo     `json:"sdkInfo,omitempty"`
	MethodCompletionIndicator string                 `json:"threeDSCompInd,omitempty"`
}

// AuthenticationContext is the evidence the client presents when the challenge finishes.
type AuthenticationContext struct {
	SessionToken      string `json:"sessionToken"`
	ChallengeResponse string `json:"cres,omitempty"`
}

// PaymentSessionsHandler runs the payment-session protocol against PayerAuth and persists every
// step, signed, in the session store.
type PaymentSessionsHandler struct {
	store       sessionstore.Store
	payerAuth   payerauth.Accessor
	guard       *signature.Guard
	logger      zerolog.Logger
	metrics     *metrics.Recorder
	pifdBaseURL string
	newID       func() string
}

// HandlerOption configures a PaymentSessionsHandler.
type HandlerOption func(*PaymentSessionsHandler)

func WithLogger(logger zerolog.Logger) HandlerOption {
	return func(h *PaymentSessionsHandler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Recorder) HandlerOption {
	return func(h *PaymentSessionsHandler) {
		h.metrics = m
	}
}

// WithPifdBaseURL sets the front-end base URL used to build ACS notification URLs.
func WithPifdBaseURL(baseURL string) HandlerOption {
	return func(h *PaymentSessionsHandler) {
		h.pifdBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithIDGenerator replaces uuid session ids (primarily for testing).
func WithIDGenerator(newID func() string) HandlerOption {
	return func(h *PaymentSessionsHandler) {
		h.newID = newID
	}
}

func NewPaymentSessionsHandler(store sessionstore.Store, payerAuth payerauth.Accessor, guard *signature.Guard, options ...HandlerOption) (*PaymentSessionsHandler, error) {
	if store == nil {
		return nil, errors.New("[NewPaymentSessionsHandler] session store is required")
	}
	if payerAuth == nil {
		return nil, errors.New("[NewPaymentSessionsHandler] payer auth accessor is required")
	}
	if guard == nil {
		return nil, errors.New("[NewPaymentSessionsHandler] signature guard is required")
	}

	h := &PaymentSessionsHandler{
		store:     store,
		payerAuth: payerAuth,
		guard:     guard,
		logger:    log.Logger,
		newID:     uuid.NewString,
	}
	for _, opt := range options {
		opt(h)
	}
	return h, nil
}

// CreatePaymentSession validates the purchase context, registers the session with PayerAuth and
// persists it, signed, in the Unknown status. Card ranges that are bypassed or not enrolled are
// finished immediately as ByPassed or NotApplicable.
func (h *PaymentSessionsHandler) CreatePaymentSession(
	ctx context.Context,
	accountID string,
	data ps.PaymentSessionData,
	deviceChannel ps.DeviceChannel,
	emailAddress string,
	testContext string,
	isMotoAuthorized string,
	traceActivityID string,
) (res *CreateResult, err error) {
	ctx, span := h.startSpan(ctx, "CreatePaymentSession", "", traceActivityID)
	defer func() { h.finish(span, "create", err) }()

	if strings.TrimSpace(accountID) == "" {
		return nil, ps.NewInvalidRequestData("accountId is required")
	}
	if !deviceChannel.Valid() {
		return nil, ps.NewInvalidRequestData("deviceChannel %q is not supported", deviceChannel)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	session := ps.NewPaymentSession(h.newID(), accountID, data, deviceChannel)
	session.EmailAddress = emailAddress
	session.TestHeader = testContext
	session.IsMOTO = strings.EqualFold(strings.TrimSpace(isMotoAuthorized), "true")
	span.SetAttributes(attribute.String("payx.session_id", session.ID))

	enrollment, err := h.payerAuth.CreatePaymentSessionID(ctx, payerauth.PaymentSessionRequest{
		PaymentSessionID:    session.ID,
		AccountID:           accountID,
		PaymentInstrumentID: session.PaymentInstrumentID,
		Amount:              session.Amount.String(),
		Currency:            session.Currency,
		Country:             session.Country,
		Partner:             session.Partner,
		ChallengeScenario:   session.ChallengeScenario,
		ChallengeWindowSize: session.ChallengeWindowSize,
		DeviceChannel:       session.DeviceChannel,
		IsMOTO:              session.IsMOTO,
		TestContext:         testContext,
	}, traceActivityID)
	if err != nil {
		return nil, errors.Wrap(err, "[PaymentSessionsHandler.CreatePaymentSession] register session")
	}

	method := &ps.MethodInvocation{Skip: true}
	switch enrollment.EnrollmentStatus {
	case payerauth.EnrollmentStatusBypassed:
		err = h.finishWithoutChallenge(session, ps.ChallengeStatusByPassed)
	case payerauth.EnrollmentStatusNotEnrolled:
		err = h.finishWithoutChallenge(session, ps.ChallengeStatusNotApplicable)
	default:
		if deviceChannel == ps.DeviceChannelBrowser {
			method, err = h.methodInvocation(ctx, session, testContext, traceActivityID)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := h.persist(ctx, session, true, traceActivityID); err != nil {
		return nil, errors.Wrap(err, "[PaymentSessionsHandler.CreatePaymentSession] persist")
	}

	h.logger.Info().
		Str("session_id", session.ID).
		Str("trace_activity_id", traceActivityID).
		Str("enrollment", string(enrollment.EnrollmentStatus)).
		Bool("method_skipped", method.Skip).
		Msg("payment session created")

	return &CreateResult{Session: session, Method: method}, nil
}

func (h *PaymentSessionsHandler) finishWithoutChallenge(session *ps.PaymentSession, status ps.ChallengeStatus) error {
	if err := session.SetChallengeRequired(false); err != nil {
		return err
	}
	if err := session.SetChallengeStatus(status); err != nil {
		return err
	}
	h.metrics.ChallengeStatus(string(status))
	return nil
}

func (h *PaymentSessionsHandler) methodInvocation(ctx context.Context, session *ps.PaymentSession, testContext, traceActivityID string) (*ps.MethodInvocation, error) {
	md, err := h.payerAuth.Get3DSMethodURL(ctx, payerauth.ThreeDSMethodRequest{
		PaymentSessionID:    session.ID,
		PaymentInstrumentID: session.PaymentInstrumentID,
		TestContext:         testContext,
	}, traceActivityID)
	if err != nil {
		return nil, errors.Wrap(err, "[PaymentSessionsHandler.CreatePaymentSession] method url")
	}
	session.ThreeDSServerTransID = md.ThreeDSServerTransID
	return methodInvocation(h.pifdBaseURL, session.ID, md)
}

// Authenticate sends the 3DS2 authentication request. A C result makes the challenge required,
// issues a session token and sizes the ACS rendering; R and FR fail the session. Sessions that are
// already past authentication are returned as stored.
func (h *PaymentSessionsHandler) Authenticate(ctx context.Context, session *ps.PaymentSession, opts AuthenticateOptions, traceActivityID string) (*ps.PaymentSession, error) {
	return h.authenticate(ctx, "Authenticate", session, opts, traceActivityID, h.payerAuth.Authenticate,
		func(ts ps.TransactionStatus, s *ps.PaymentSession) (ps.ChallengeStatus, error) {
			return authenticationStatus(ts, s.IsMOTO)
		})
}

// AuthenticateThreeDSOne is Authenticate for card ranges still on 3DS1, where N and U fail.
func (h *PaymentSessionsHandler) AuthenticateThreeDSOne(ctx context.Context, session *ps.PaymentSession, opts AuthenticateOptions, traceActivityID string) (*ps.PaymentSession, error) {
	return h.authenticate(ctx, "AuthenticateThreeDSOne", session, opts, traceActivityID, h.payerAuth.AuthenticateThreeDSOne,
		func(ts ps.TransactionStatus, _ *ps.PaymentSession) (ps.ChallengeStatus, error) {
			return threeDSOneAuthenticationStatus(ts)
		})
}

type authenticateFunc func(context.Context, payerauth.AuthenticationRequest, string) (*payerauth.AuthenticationResponse, error)

func (h *PaymentSessionsHandler) authenticate(
	ctx context.Context,
	operation string,
	session *ps.PaymentSession,
	opts AuthenticateOptions,
	traceActivityID string,
	call authenticateFunc,
	mapStatus func(ps.TransactionStatus, *ps.PaymentSession) (ps.ChallengeStatus, error),
) (out *ps.PaymentSession, err error) {
	ctx, span := h.startSpan(ctx, operation, sessionIDOf(session), traceActivityID)
	defer func() { h.finish(span, "authenticate", err) }()

	stored, err := h.loadVerified(ctx, session, traceActivityID)
	if err != nil {
		return nil, err
	}
	if stored.State() != ps.StateMethodInvoked {
		return stored, nil
	}

	res, err := call(ctx, payerauth.AuthenticationRequest{
		PaymentSessionID:          stored.ID,
		ThreeDSServerTransID:      stored.ThreeDSServerTransID,
		DeviceChannel:             stored.DeviceChannel,
		ChallengeWindowSize:       stored.ChallengeWindowSize,
		ChallengeScenario:         stored.ChallengeScenario,
		MethodCompletionIndicator: opts.MethodCompletionIndicator,
		NotificationURL:           notificationURL(h.pifdBaseURL, stored.ID, "challengeCompleted"),
		EmailAddress:              stored.EmailAddress,
		IsMOTO:                    stored.IsMOTO,
		BrowserInfo:               opts.BrowserInfo,
		SDKInfo:                   opts.SDKInfo,
		TestContext:               stored.TestHeader,
	}, traceActivityID)
	if err != nil {
		return nil, errors.Wrapf(err, "[PaymentSessionsHandler.%s] payer auth", operation)
	}

	if err := h.applyAuthentication(stored, res, mapStatus); err != nil {
		return nil, err
	}
	if err := h.persist(ctx, stored, false, traceActivityID); err != nil {
		return nil, errors.Wrapf(err, "[PaymentSessionsHandler.%s] persist", operation)
	}

	h.logger.Info().
		Str("session_id", stored.ID).
		Str("trace_activity_id", traceActivityID).
		Str("trans_status", string(stored.TransactionStatus)).
		Str("challenge_status", string(stored.ChallengeStatus)).
		Bool("challenge_required", stored.ChallengeRequired()).
		Msg("payment session authenticated")

	return stored, nil
}

func (h *PaymentSessionsHandler) applyAuthentication(
	s *ps.PaymentSession,
	res *payerauth.AuthenticationResponse,
	mapStatus func(ps.TransactionStatus, *ps.PaymentSession) (ps.ChallengeStatus, error),
) error {
	if res.ThreeDSServerTransactionID != "" {
		s.ThreeDSServerTransID = res.ThreeDSServerTransactionID
	}
	s.AcsTransID = res.AcsTransactionID
	s.MessageVersion = res.MessageVersion
	s.TransactionStatusReason = res.TransactionStatusReason

	if res.EnrollmentStatus == payerauth.EnrollmentStatusBypassed {
		return h.finishWithoutChallenge(s, ps.ChallengeStatusByPassed)
	}

	status, err := mapStatus(res.TransactionStatus, s)
	if err != nil {
		return err
	}
	s.TransactionStatus = res.TransactionStatus
	required := res.TransactionStatus == ps.TransactionStatusC
	if err := s.SetChallengeRequired(required); err != nil {
		return err
	}

	if !required {
		if err := s.SetChallengeStatus(status); err != nil {
			return err
		}
		h.metrics.ChallengeStatus(string(status))
		return nil
	}

	rendering, err := challengeRendering(s, res)
	if err != nil {
		return err
	}
	token, err := newSessionToken()
	if err != nil {
		return err
	}
	s.AcsRendering = rendering
	s.SessionToken = token
	return nil
}

// CompleteChallenge reports the challenge evidence to PayerAuth and records the terminal status.
// A session that is already terminal is returned as stored without calling PayerAuth again.
func (h *PaymentSessionsHandler) CompleteChallenge(
	ctx context.Context,
	session *ps.PaymentSession,
	authCtx AuthenticationContext,
	authorizationParameters map[string]string,
	traceActivityID string,
) (out *ps.PaymentSession, err error) {
	ctx, span := h.startSpan(ctx, "CompleteChallenge", sessionIDOf(session), traceActivityID)
	defer func() { h.finish(span, "complete", err) }()

	stored, err := h.loadVerified(ctx, session, traceActivityID)
	if err != nil {
		return nil, err
	}
	if stored.ChallengeStatus.IsTerminal() {
		return stored, nil
	}
	if stored.State() != ps.StateChallengeRequired {
		return nil, ps.NewInvalidRequestData("session %s has no pending challenge", stored.ID)
	}
	if !tokensMatch(stored.SessionToken, authCtx.SessionToken) {
		h.metrics.SignatureFailure("SessionToken")
		h.logger.Warn().
			Str("session_id", stored.ID).
			Str("trace_activity_id", traceActivityID).
			Msg("session token mismatch")
		return nil, apperrors.ErrSessionNotFound
	}

	res, err := h.payerAuth.CompleteChallenge(ctx, payerauth.CompletionRequest{
		PaymentSessionID:        stored.ID,
		ThreeDSServerTransID:    stored.ThreeDSServerTransID,
		AcsTransID:              stored.AcsTransID,
		ChallengeResponse:       authCtx.ChallengeResponse,
		AuthorizationParameters: authorizationParameters,
		TestContext:             stored.TestHeader,
	}, traceActivityID)
	if err != nil {
		return nil, errors.Wrap(err, "[PaymentSessionsHandler.CompleteChallenge] payer auth")
	}

	status := completionStatus(res)
	stored.ChallengeResult = res.TransactionStatus
	stored.ChallengeCancel = res.ChallengeCancel
	if res.TransactionStatusReason != "" {
		stored.TransactionStatusReason = res.TransactionStatusReason
	}
	if err := stored.SetChallengeStatus(status); err != nil {
		return nil, err
	}
	if err := h.persist(ctx, stored, false, traceActivityID); err != nil {
		return nil, errors.Wrap(err, "[PaymentSessionsHandler.CompleteChallenge] persist")
	}
	h.metrics.ChallengeStatus(string(status))

	h.logger.Info().
		Str("session_id", stored.ID).
		Str("trace_activity_id", traceActivityID).
		Str("challenge_status", string(status)).
		Msg("challenge completed")

	return stored, nil
}

// AbandonChallenge ends a pending challenge as TimedOut or Cancelled without a PayerAuth result,
// e.g. when the client gives up waiting for the ACS. Terminal sessions are returned as stored.
func (h *PaymentSessionsHandler) AbandonChallenge(ctx context.Context, session *ps.PaymentSession, status ps.ChallengeStatus, traceActivityID string) (out *ps.PaymentSession, err error) {
	ctx, span := h.startSpan(ctx, "AbandonChallenge", sessionIDOf(session), traceActivityID)
	defer func() { h.finish(span, "abandon", err) }()

	if status != ps.ChallengeStatusTimedOut && status != ps.ChallengeStatusCancelled {
		return nil, ps.NewInvalidRequestData("a challenge can only be abandoned as TimedOut or Cancelled")
	}
	stored, err := h.loadVerified(ctx, session, traceActivityID)
	if err != nil {
		return nil, err
	}
	if stored.ChallengeStatus.IsTerminal() {
		return stored, nil
	}
	if stored.State() != ps.StateChallengeRequired {
		return nil, ps.NewInvalidRequestData("session %s has no pending challenge", stored.ID)
	}
	if err := stored.SetChallengeStatus(status); err != nil {
		return nil, err
	}
	if err := h.persist(ctx, stored, false, traceActivityID); err != nil {
		return nil, errors.Wrap(err, "[PaymentSessionsHandler.AbandonChallenge] persist")
	}
	h.metrics.ChallengeStatus(string(status))
	return stored, nil
}

// GetPaymentSession reads a stored session. A session whose signature does not verify is
// reported as not found.
func (h *PaymentSessionsHandler) GetPaymentSession(ctx context.Context, sessionID, traceActivityID string) (*ps.PaymentSession, error) {
	stored, err := sessionstore.GetSessionResourceData[ps.PaymentSession](ctx, h.store, sessionID, traceActivityID)
	if err != nil {
		return nil, errors.Wrap(err, "[PaymentSessionsHandler.GetPaymentSession]")
	}
	if stored.ID != sessionID || !h.guard.Verify(stored, stored.Signature) {
		h.signatureFailure(sessionID, traceActivityID, "stored")
		return nil, apperrors.ErrSessionNotFound
	}
	return &stored, nil
}

// loadVerified checks the caller's copy and returns the authoritative stored copy.
func (h *PaymentSessionsHandler) loadVerified(ctx context.Context, session *ps.PaymentSession, traceActivityID string) (*ps.PaymentSession, error) {
	if session == nil || session.ID == "" {
		return nil, ps.NewInvalidRequestData("paymentSession is required")
	}
	if !h.guard.Verify(session, session.Signature) {
		h.signatureFailure(session.ID, traceActivityID, "caller")
		return nil, apperrors.ErrSessionNotFound
	}
	return h.GetPaymentSession(ctx, session.ID, traceActivityID)
}

func (h *PaymentSessionsHandler) signatureFailure(sessionID, traceActivityID, copyKind string) {
	h.metrics.SignatureFailure("PaymentSession")
	h.logger.Warn().
		Str("session_id", sessionID).
		Str("trace_activity_id", traceActivityID).
		Str("copy", copyKind).
		Msg("payment session signature did not verify")
}

// persist re-signs the session and writes it.
func (h *PaymentSessionsHandler) persist(ctx context.Context, s *ps.PaymentSession, create bool, traceActivityID string) error {
	sig, err := h.guard.Generate(s)
	if err != nil {
		return err
	}
	s.Signature = sig
	if create {
		return sessionstore.CreateSessionFromData(ctx, h.store, s.ID, s, traceActivityID)
	}
	return sessionstore.UpdateSessionResourceData(ctx, h.store, s.ID, s, traceActivityID)
}

func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "newSessionToken rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func tokensMatch(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

func sessionIDOf(s *ps.PaymentSession) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func (h *PaymentSessionsHandler) startSpan(ctx context.Context, name, sessionID, traceActivityID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "PaymentSessionsHandler."+name,
		trace.WithAttributes(
			attribute.String("payx.session_id", sessionID),
			attribute.String("payx.trace_activity_id", traceActivityID),
		),
	)
}

func (h *PaymentSessionsHandler) finish(span trace.Span, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	h.metrics.SessionOperation(operation, outcome)
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidRequestData):
		return "invalid_request"
	case apperrors.Is(err, apperrors.ErrSessionNotFound):
		return "not_found"
	case apperrors.Is(err, apperrors.ErrExternalServiceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
