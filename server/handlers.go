package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-payx-gateway/challenge"
	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/transport"
	ps "github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/jrsteele09/go-payx-gateway/secondscreen"
)

const (
	headerIsMotoAuthorized = "Is-Moto-Authorized"
	maxRequestBodyBytes    = 1 << 20
)

type createPaymentSessionRequest struct {
	PaymentSessionData ps.PaymentSessionData `json:"paymentSessionData"`
	DeviceChannel      ps.DeviceChannel      `json:"deviceChannel"`
	EmailAddress       string                `json:"emailAddress,omitempty"`
}

type authenticateRequest struct {
	PaymentSession *ps.PaymentSession `json:"paymentSession"`
	challenge.AuthenticateOptions
}

type completeChallengeRequest struct {
	PaymentSession          *ps.PaymentSession              `json:"paymentSession"`
	AuthenticationContext   challenge.AuthenticationContext `json:"authenticationContext"`
	AuthorizationParameters map[string]string               `json:"authorizationParameters,omitempty"`
}

type abandonChallengeRequest struct {
	PaymentSession *ps.PaymentSession `json:"paymentSession"`
	Status         ps.ChallengeStatus `json:"status"`
}

// pollQrCodeSessionRequest is all the polling device may send. Status and instrument id stay as
// signed in the session.
type pollQrCodeSessionRequest struct {
	QrCodeSession *ps.QRCodeSession `json:"qrCodeSession"`
	UseCount      int               `json:"useCount"`
}

type attachPaymentInstrumentRequest struct {
	QrCodeSession       *ps.QRCodeSession          `json:"qrCodeSession"`
	Status              ps.PaymentInstrumentStatus `json:"status"`
	PaymentInstrumentID string                     `json:"paymentInstrumentId"`
}

type errorResponse struct {
	ErrorCode       string            `json:"errorCode"`
	Message         string            `json:"message"`
	DeclinedSession *ps.QRCodeSession `json:"declinedSession,omitempty"`
}

// CreatePaymentSessionHandler handles POST /v7/{accountId}/paymentSessions
func (s *Server) CreatePaymentSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPaymentSessionRequest
		if !s.decode(w, r, &req) {
			return
		}

		res, err := s.payments.CreatePaymentSession(
			r.Context(),
			r.PathValue("accountId"),
			req.PaymentSessionData,
			req.DeviceChannel,
			req.EmailAddress,
			r.Header.Get(transport.HeaderTestContext),
			r.Header.Get(headerIsMotoAuthorized),
			traceActivityID(r),
		)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// AuthenticateHandler handles POST /v7/paymentSessions/{sessionId}/authenticate and, with
// threeDSOne set, the 3DS1 variant.
func (s *Server) AuthenticateHandler(threeDSOne bool) http.HandlerFunc {
	authenticate := s.payments.Authenticate
	if threeDSOne {
		authenticate = s.payments.AuthenticateThreeDSOne
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req authenticateRequest
		if !s.decode(w, r, &req) || !s.matchesPath(w, r, paymentSessionID(req.PaymentSession)) {
			return
		}

		session, err := authenticate(r.Context(), req.PaymentSession, req.AuthenticateOptions, traceActivityID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// CompleteChallengeHandler handles POST /v7/paymentSessions/{sessionId}/completeChallenge
func (s *Server) CompleteChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req completeChallengeRequest
		if !s.decode(w, r, &req) || !s.matchesPath(w, r, paymentSessionID(req.PaymentSession)) {
			return
		}

		session, err := s.payments.CompleteChallenge(r.Context(), req.PaymentSession, req.AuthenticationContext, req.AuthorizationParameters, traceActivityID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// AbandonChallengeHandler handles POST /v7/paymentSessions/{sessionId}/abandonChallenge
func (s *Server) AbandonChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req abandonChallengeRequest
		if !s.decode(w, r, &req) || !s.matchesPath(w, r, paymentSessionID(req.PaymentSession)) {
			return
		}

		session, err := s.payments.AbandonChallenge(r.Context(), req.PaymentSession, req.Status, traceActivityID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// GetPaymentSessionHandler handles GET /v7/paymentSessions/{sessionId}
func (s *Server) GetPaymentSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.payments.GetPaymentSession(r.Context(), r.PathValue("sessionId"), traceActivityID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// ChallengeRedirectHandler handles GET /v7/paymentSessions/{sessionId}/challengeRedirect by
// sending the browser to the merchant's success or failure URL.
func (s *Server) ChallengeRedirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.payments.GetPaymentSession(r.Context(), r.PathValue("sessionId"), traceActivityID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		target, err := challenge.ChallengeRedirectURL(session)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// CreateQrCodeSessionHandler handles POST /v7/secondScreenSessions
func (s *Server) CreateQrCodeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req secondscreen.QRCodeContext
		if !s.decode(w, r, &req) {
			return
		}

		session, err := s.secondScreen.CreateAddCCQRCodePaymentSession(r.Context(), req, traceActivityID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

// UpdateQrCodeSessionHandler handles PUT /v7/secondScreenSessions/{sessionId}, the poll from the
// second device. Only the use count comes from the request.
func (s *Server) UpdateQrCodeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pollQrCodeSessionRequest
		if !s.decode(w, r, &req) || !s.matchesPath(w, r, qrCodeSessionID(req.QrCodeSession)) {
			return
		}

		qr := req.QrCodeSession
		opts := []secondscreen.UpdateOption{secondscreen.WithStatus(qr.Status)}
		if qr.PaymentInstrumentID != nil {
			opts = append(opts, secondscreen.WithPaymentInstrumentID(*qr.PaymentInstrumentID))
		}

		session, err := s.secondScreen.UpdateQrCodeSessionResourceData(r.Context(), req.UseCount, qr, traceActivityID(r), opts...)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// AttachPaymentInstrumentHandler handles PUT /v7/secondScreenSessions/{sessionId}/paymentInstrument,
// called by the add-card flow once the instrument exists.
func (s *Server) AttachPaymentInstrumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req attachPaymentInstrumentRequest
		if !s.decode(w, r, &req) || !s.matchesPath(w, r, qrCodeSessionID(req.QrCodeSession)) {
			return
		}
		if strings.TrimSpace(req.PaymentInstrumentID) == "" {
			s.writeError(w, r, ps.NewInvalidRequestData("paymentInstrumentId is required"))
			return
		}
		if req.Status != ps.PaymentInstrumentStatusActive && req.Status != ps.PaymentInstrumentStatusDeclined {
			s.writeError(w, r, ps.NewInvalidRequestData("status must be Active or Declined"))
			return
		}

		qr := req.QrCodeSession
		session, err := s.secondScreen.UpdateQrCodeSessionResourceData(r.Context(), qr.UseCount, qr, traceActivityID(r),
			secondscreen.WithStatus(req.Status),
			secondscreen.WithPaymentInstrumentID(req.PaymentInstrumentID),
		)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// GetQrCodeSessionHandler handles GET /v7/secondScreenSessions/{sessionId}
func (s *Server) GetQrCodeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.secondScreen.GetQrCodeSessionData(r.Context(), r.PathValue("sessionId"), traceActivityID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// PreflightHandler answers CORS preflight requests; CorsMiddleware writes the headers.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, ps.NewInvalidRequestData("malformed request body: %v", err))
		return false
	}
	return true
}

// matchesPath rejects bodies whose session id differs from the {sessionId} in the URL.
func (s *Server) matchesPath(w http.ResponseWriter, r *http.Request, bodyID string) bool {
	if bodyID == "" || bodyID != r.PathValue("sessionId") {
		s.writeError(w, r, ps.NewInvalidRequestData("session id in body does not match the url"))
		return false
	}
	return true
}

func paymentSessionID(session *ps.PaymentSession) string {
	if session == nil {
		return ""
	}
	return session.ID
}

func qrCodeSessionID(session *ps.QRCodeSession) string {
	if session == nil {
		return ""
	}
	return session.ID
}

// writeError maps domain errors to HTTP statuses. Integrity failures surface as a plain 404.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ps.ValidationError
	switch {
	case apperrors.As(err, &ve):
		writeErrorResponse(w, http.StatusBadRequest, errorResponse{
			ErrorCode:       errorCode(ve.Code),
			Message:         ve.Message,
			DeclinedSession: ve.DeclinedSession,
		})
		return
	case apperrors.Is(err, apperrors.ErrInvalidRequestData):
		writeErrorResponse(w, http.StatusBadRequest, errorResponse{ErrorCode: "InvalidRequestData", Message: err.Error()})
		return
	case apperrors.Is(err, apperrors.ErrSessionNotFound):
		writeErrorResponse(w, http.StatusNotFound, errorResponse{ErrorCode: "SessionNotFound", Message: "session unavailable"})
		return
	case apperrors.Is(err, apperrors.ErrExternalServiceUnavailable):
		writeErrorResponse(w, http.StatusServiceUnavailable, errorResponse{ErrorCode: "ExternalServiceUnavailable", Message: "a dependency is unavailable, retry later"})
	default:
		writeErrorResponse(w, http.StatusInternalServerError, errorResponse{ErrorCode: "InternalError", Message: "internal error"})
	}

	s.logger.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("trace_activity_id", traceActivityID(r)).
		Msg("request failed")
}

func errorCode(code error) string {
	switch code {
	case apperrors.ErrInvalidPaymentInstrumentDetails:
		return "InvalidPaymentInstrumentDetails"
	default:
		return "InvalidRequestData"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, status int, body errorResponse) {
	writeJSON(w, status, body)
}
