// Package secondscreen runs the cross-device add-card flow: a QR code session created on one
// device and polled from another. Store mutations run inside the safety net so that a failing
// store produces a signed Declined session instead of an opaque error.
package secondscreen

import (
	"context"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/metrics"
	"github.com/jrsteele09/go-payx-gateway/internal/safetynet"
	ps "github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/jrsteele09/go-payx-gateway/sessionstore"
	"github.com/jrsteele09/go-payx-gateway/signature"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	opCreate = "CreateAddCCQRCodePaymentSession"
	opUpdate = "UpdateQrCodeSessionResourceData"

	declineMessage = "The payment instrument could not be added. Please try again."
)

// QRCodeContext is the purchase context a QR session is created for.
type QRCodeContext struct {
	AccountID string `json:"accountId"`
	Partner   string `json:"partner"`
	Country   string `json:"country"`
	Language  string `json:"language"`
}

// SecondScreenSessionHandler creates, updates and reads QR code sessions.
type SecondScreenSessionHandler struct {
	store   sessionstore.Store
	guard   *signature.Guard
	logger  zerolog.Logger
	metrics *metrics.Recorder
	newID   func() string
	net     *safetynet.Net
}

type HandlerOption func(*SecondScreenSessionHandler)

func WithLogger(logger zerolog.Logger) HandlerOption {
	return func(h *SecondScreenSessionHandler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Recorder) HandlerOption {
	return func(h *SecondScreenSessionHandler) {
		h.metrics = m
	}
}

// WithIDGenerator replaces uuid session ids (primarily for testing).
func WithIDGenerator(newID func() string) HandlerOption {
	return func(h *SecondScreenSessionHandler) {
		h.newID = newID
	}
}

func NewSecondScreenSessionHandler(store sessionstore.Store, guard *signature.Guard, options ...HandlerOption) (*SecondScreenSessionHandler, error) {
	if store == nil {
		return nil, errors.New("[NewSecondScreenSessionHandler] session store is required")
	}
	if guard == nil {
		return nil, errors.New("[NewSecondScreenSessionHandler] signature guard is required")
	}

	h := &SecondScreenSessionHandler{
		store:  store,
		guard:  guard,
		logger: log.Logger,
		newID:  uuid.NewString,
	}
	for _, opt := range options {
		opt(h)
	}
	h.net = safetynet.New(h.logger, h.metrics)
	return h, nil
}

// UpdateOption overrides a default of UpdateQrCodeSessionResourceData.
type UpdateOption func(*updateParams)

type updateParams struct {
	status              ps.PaymentInstrumentStatus
	paymentInstrumentID *string
}

// WithStatus sets the payment-instrument status written by the update. The default is Pending.
func WithStatus(status ps.PaymentInstrumentStatus) UpdateOption {
	return func(p *updateParams) {
		p.status = status
	}
}

// WithPaymentInstrumentID records the instrument created on the second device.
func WithPaymentInstrumentID(id string) UpdateOption {
	return func(p *updateParams) {
		p.paymentInstrumentID = &id
	}
}

// TryCreateAddCCQRCodePaymentSession signs and stores a new Pending QR session and reports
// the outcome without converting a store failure.
func (h *SecondScreenSessionHandler) TryCreateAddCCQRCodePaymentSession(ctx context.Context, qctx QRCodeContext, traceActivityID string) (safetynet.Result[*ps.QRCodeSession], error) {
	if strings.TrimSpace(qctx.AccountID) == "" {
		return safetynet.Result[*ps.QRCodeSession]{}, ps.NewInvalidRequestData("accountId is required")
	}

	session := &ps.QRCodeSession{
		ID:        h.newID(),
		AccountID: qctx.AccountID,
		Partner:   qctx.Partner,
		Country:   strings.ToUpper(qctx.Country),
		Language:  qctx.Language,
		Status:    ps.PaymentInstrumentStatusPending,
	}
	if err := h.sign(session); err != nil {
		return safetynet.Result[*ps.QRCodeSession]{}, err
	}

	return safetynet.Run(ctx, h.net, opCreate, session.ID, traceActivityID, func(ctx context.Context) (*ps.QRCodeSession, error) {
		if err := sessionstore.CreateSessionFromData(ctx, h.store, session.ID, session, traceActivityID); err != nil {
			return nil, err
		}
		return session, nil
	}), nil
}

// CreateAddCCQRCodePaymentSession creates a QR session. When the store fails the caller gets
// InvalidPaymentInstrumentDetails carrying a signed Declined session under a new id.
func (h *SecondScreenSessionHandler) CreateAddCCQRCodePaymentSession(ctx context.Context, qctx QRCodeContext, traceActivityID string) (*ps.QRCodeSession, error) {
	res, err := h.TryCreateAddCCQRCodePaymentSession(ctx, qctx, traceActivityID)
	if err != nil {
		return nil, err
	}
	if res.Caught {
		return nil, h.decline(&ps.QRCodeSession{
			AccountID: qctx.AccountID,
			Partner:   qctx.Partner,
			Country:   strings.ToUpper(qctx.Country),
			Language:  qctx.Language,
		}, opCreate, traceActivityID)
	}

	h.logger.Info().
		Str("session_id", res.Value.ID).
		Str("trace_activity_id", traceActivityID).
		Msg("qr code session created")
	return res.Value, nil
}

// UpdateQrCodeSessionResourceData records a poll from the second device. qr is updated in place
// and re-signed. If the store write fails qr is forced to Declined and the returned error carries
// a signed Declined copy under a new id. Concurrent polls are last-write-wins.
func (h *SecondScreenSessionHandler) UpdateQrCodeSessionResourceData(
	ctx context.Context,
	useCount int,
	qr *ps.QRCodeSession,
	traceActivityID string,
	options ...UpdateOption,
) (*ps.QRCodeSession, error) {
	if qr == nil || qr.ID == "" {
		return nil, ps.NewInvalidRequestData("qrCodeSession is required")
	}
	if !h.guard.Verify(qr, qr.Signature) {
		h.signatureFailure(qr.ID, traceActivityID)
		return nil, apperrors.ErrSessionNotFound
	}

	params := updateParams{status: ps.PaymentInstrumentStatusPending}
	for _, opt := range options {
		opt(&params)
	}
	if !params.status.Valid() {
		return nil, ps.NewInvalidRequestData("status %q is not supported", params.status)
	}
	if useCount < 0 {
		return nil, ps.NewInvalidRequestData("useCount must not be negative")
	}

	qr.UseCount = useCount
	qr.Status = params.status
	qr.PaymentInstrumentID = params.paymentInstrumentID
	if err := h.sign(qr); err != nil {
		return nil, err
	}

	caught, _ := h.net.Call(ctx, opUpdate, qr.ID, traceActivityID, func(ctx context.Context) error {
		return sessionstore.UpdateSessionResourceData(ctx, h.store, qr.ID, qr, traceActivityID)
	})
	if caught {
		qr.Status = ps.PaymentInstrumentStatusDeclined
		if err := h.sign(qr); err != nil {
			return nil, err
		}
		return nil, h.decline(qr, opUpdate, traceActivityID)
	}

	h.logger.Debug().
		Str("session_id", qr.ID).
		Str("trace_activity_id", traceActivityID).
		Int("use_count", useCount).
		Str("status", string(qr.Status)).
		Msg("qr code session updated")
	return qr, nil
}

// GetQrCodeSessionData reads a QR session. A session whose signature does not verify is reported
// as not found.
func (h *SecondScreenSessionHandler) GetQrCodeSessionData(ctx context.Context, sessionID, traceActivityID string) (*ps.QRCodeSession, error) {
	stored, err := sessionstore.GetSessionResourceData[ps.QRCodeSession](ctx, h.store, sessionID, traceActivityID)
	if err != nil {
		return nil, errors.Wrap(err, "[SecondScreenSessionHandler.GetQrCodeSessionData]")
	}
	if stored.ID != sessionID || !h.guard.Verify(stored, stored.Signature) {
		h.signatureFailure(sessionID, traceActivityID)
		return nil, apperrors.ErrSessionNotFound
	}
	return &stored, nil
}

// decline builds the synthetic Declined session handed back after a caught store failure.
// It is never persisted: the store just failed.
func (h *SecondScreenSessionHandler) decline(src *ps.QRCodeSession, operation, traceActivityID string) error {
	declined := src.Clone()
	declined.ID = h.newID()
	declined.Status = ps.PaymentInstrumentStatusDeclined
	declined.Signature = ""
	if err := h.sign(declined); err != nil {
		return err
	}

	h.logger.Warn().
		Str("operation", operation).
		Str("session_id", src.ID).
		Str("declined_session_id", declined.ID).
		Str("trace_activity_id", traceActivityID).
		Msg("qr code session declined")
	return ps.NewInvalidPaymentInstrumentDetails(declineMessage, declined)
}

func (h *SecondScreenSessionHandler) sign(qr *ps.QRCodeSession) error {
	sig, err := h.guard.Generate(qr)
	if err != nil {
		return errors.Wrap(err, "[SecondScreenSessionHandler.sign]")
	}
	qr.Signature = sig
	return nil
}

func (h *SecondScreenSessionHandler) signatureFailure(sessionID, traceActivityID string) {
	h.metrics.SignatureFailure("QRCodeSession")
	h.logger.Warn().
		Str("session_id", sessionID).
		Str("trace_activity_id", traceActivityID).
		Msg("qr code session signature did not verify")
}
