package paymentsession

import (
	"encoding/json"
	"strings"

	"github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/shopspring/decimal"
)

// PaymentSessionData is the purchase context a caller supplies when a session is created.
type PaymentSessionData struct {
	PaymentInstrumentID string              `json:"paymentInstrumentId"`
	Partner             string              `json:"partner"`
	Amount              decimal.Decimal     `json:"amount"`
	Currency            string              `json:"currency"`
	Country             string              `json:"country"`
	Language            string              `json:"language"`
	ChallengeScenario   ChallengeScenario   `json:"challengeScenario"`
	ChallengeWindowSize ChallengeWindowSize `json:"challengeWindowSize"`
	PurchaseOrderID     string              `json:"purchaseOrderId,omitempty"`
	SuccessURL          string              `json:"successUrl,omitempty"`
	FailureURL          string              `json:"failureUrl,omitempty"`
}

// Validate checks the purchase context. Every failure is an InvalidRequestData ValidationError.
func (d PaymentSessionData) Validate() error {
	switch {
	case strings.TrimSpace(d.PaymentInstrumentID) == "":
		return NewInvalidRequestData("paymentInstrumentId is required")
	case !d.Amount.IsPositive():
		return NewInvalidRequestData("amount must be greater than zero")
	case !isAlpha(d.Currency, 3):
		return NewInvalidRequestData("currency %q is not an ISO 4217 code", d.Currency)
	case !isAlpha(d.Country, 2):
		return NewInvalidRequestData("country %q is not an ISO 3166 alpha-2 code", d.Country)
	case !d.ChallengeScenario.Valid():
		return NewInvalidRequestData("challengeScenario %q is not supported", d.ChallengeScenario)
	case !d.ChallengeWindowSize.Valid():
		return NewInvalidRequestData("challengeWindowSize %q is not supported", d.ChallengeWindowSize)
	}
	return nil
}

func isAlpha(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// MethodInvocation tells the caller how to run the 3DS Method step, or that it can be skipped.
type MethodInvocation struct {
	Skip                 bool   `json:"skip"`
	ThreeDSServerTransID string `json:"threeDSServerTransId,omitempty"`
	ThreeDSMethodURL     string `json:"threeDSMethodUrl,omitempty"`
	ThreeDSMethodData    string `json:"threeDSMethodData,omitempty"`
}

// AcsRendering carries what the client needs to present the ACS challenge.
type AcsRendering struct {
	AcsURL             string `json:"acsUrl,omitempty"`
	CReq               string `json:"creq,omitempty"`
	ThreeDSSessionData string `json:"threeDSSessionData,omitempty"`
	Width              string `json:"width,omitempty"`
	Height             string `json:"height,omitempty"`
	AcsSignedContent   string `json:"acsSignedContent,omitempty"`
	AcsReferenceNumber string `json:"acsReferenceNumber,omitempty"`
	AcsTransID         string `json:"acsTransId,omitempty"`
}

// PaymentSession is the signed record of one 3DS authentication attempt.
//
// TransactionStatus holds the status returned at authentication so that
// TransactionStatus == C exactly when IsChallengeRequired is true. The
// status returned once the challenge completes is kept in ChallengeResult.
type PaymentSession struct {
	ID                      string                   `json:"id"`
	AccountID               string                   `json:"accountId"`
	PaymentInstrumentID     string                   `json:"paymentInstrumentId"`
	Partner                 string                   `json:"partner"`
	Amount                  decimal.Decimal          `json:"amount"`
	Currency                string                   `json:"currency"`
	Country                 string                   `json:"country"`
	Language                string                   `json:"language"`
	ChallengeScenario       ChallengeScenario        `json:"challengeScenario"`
	ChallengeWindowSize     ChallengeWindowSize      `json:"challengeWindowSize"`
	DeviceChannel           DeviceChannel            `json:"deviceChannel"`
	IsMOTO                  bool                     `json:"isMoto"`
	EmailAddress            string                   `json:"emailAddress,omitempty"`
	PurchaseOrderID         string                   `json:"purchaseOrderId,omitempty"`
	SuccessURL              string                   `json:"successUrl,omitempty"`
	FailureURL              string                   `json:"failureUrl,omitempty"`
	IsChallengeRequired     *bool                    `json:"isChallengeRequired,omitempty"`
	ChallengeStatus         ChallengeStatus          `json:"challengeStatus"`
	TransactionStatus       TransactionStatus        `json:"transactionStatus,omitempty"`
	TransactionStatusReason string                   `json:"transactionStatusReason,omitempty"`
	ChallengeResult         TransactionStatus        `json:"challengeResult,omitempty"`
	ChallengeCancel         ChallengeCancelIndicator `json:"challengeCancel,omitempty"`
	SessionToken            string                   `json:"sessionToken,omitempty"`
	ThreeDSServerTransID    string                   `json:"threeDSServerTransId,omitempty"`
	AcsTransID              string                   `json:"acsTransId,omitempty"`
	MessageVersion          string                   `json:"messageVersion,omitempty"`
	AcsRendering            *AcsRendering            `json:"acsRendering,omitempty"`
	TestHeader              string                   `json:"testHeader,omitempty"`
	Signature               string                   `json:"signature"`
}

// NewPaymentSession builds an unsigned session in the Unknown status from validated purchase data.
func NewPaymentSession(id, accountID string, data PaymentSessionData, channel DeviceChannel) *PaymentSession {
	return &PaymentSession{
		ID:                  id,
		AccountID:           accountID,
		PaymentInstrumentID: data.PaymentInstrumentID,
		Partner:             data.Partner,
		Amount:              data.Amount,
		Currency:            strings.ToUpper(data.Currency),
		Country:             strings.ToUpper(data.Country),
		Language:            data.Language,
		ChallengeScenario:   data.ChallengeScenario,
		ChallengeWindowSize: data.ChallengeWindowSize,
		DeviceChannel:       channel,
		PurchaseOrderID:     data.PurchaseOrderID,
		SuccessURL:          data.SuccessURL,
		FailureURL:          data.FailureURL,
		ChallengeStatus:     ChallengeStatusUnknown,
	}
}

// State derives the handshake stage from the session fields.
func (s *PaymentSession) State() SessionState {
	switch {
	case s.ChallengeStatus.IsTerminal():
		return StateCompleted
	case s.ChallengeRequired():
		return StateChallengeRequired
	default:
		return StateMethodInvoked
	}
}

// ChallengeRequired reports whether authentication decided a challenge is needed.
func (s *PaymentSession) ChallengeRequired() bool {
	return s.IsChallengeRequired != nil && *s.IsChallengeRequired
}

// SetChallengeRequired records the authentication decision. It may be set once.
func (s *PaymentSession) SetChallengeRequired(required bool) error {
	if s.IsChallengeRequired != nil && *s.IsChallengeRequired != required {
		return errors.Wrapf(errors.ErrInvalidTransition, "session %s: isChallengeRequired already decided", s.ID)
	}
	s.IsChallengeRequired = &required
	return nil
}

// SetChallengeStatus moves the challenge status forward. Terminal statuses are never revised.
func (s *PaymentSession) SetChallengeStatus(status ChallengeStatus) error {
	if !status.Valid() {
		return errors.Wrapf(errors.ErrInvalidTransition, "session %s: unknown status %q", s.ID, status)
	}
	if s.ChallengeStatus == status {
		return nil
	}
	if s.ChallengeStatus.IsTerminal() || status == ChallengeStatusUnknown {
		return errors.Wrapf(errors.ErrInvalidTransition, "session %s: %s -> %s", s.ID, s.ChallengeStatus, status)
	}
	s.ChallengeStatus = status
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (s *PaymentSession) Clone() *PaymentSession {
	c := *s
	if s.IsChallengeRequired != nil {
		v := *s.IsChallengeRequired
		c.IsChallengeRequired = &v
	}
	if s.AcsRendering != nil {
		r := *s.AcsRendering
		c.AcsRendering = &r
	}
	return &c
}

// SignaturePayload is the canonical byte form covered by the session signature.
func (s PaymentSession) SignaturePayload() ([]byte, error) {
	s.Signature = ""
	return canonicalPayload("PaymentSession", s)
}

// QRCodeSession is the second-screen session a phone polls while a card is added on another device.
type QRCodeSession struct {
	ID                  string                  `json:"id"`
	AccountID           string                  `json:"accountId"`
	Partner             string                  `json:"partner"`
	Country             string                  `json:"country"`
	Language            string                  `json:"language"`
	UseCount            int                     `json:"useCount"`
	Status              PaymentInstrumentStatus `json:"status"`
	PaymentInstrumentID *string                 `json:"paymentInstrumentId,omitempty"`
	Signature           string                  `json:"signature"`
}

// Clone returns a deep copy of the QR session.
func (q *QRCodeSession) Clone() *QRCodeSession {
	c := *q
	if q.PaymentInstrumentID != nil {
		v := *q.PaymentInstrumentID
		c.PaymentInstrumentID = &v
	}
	return &c
}

// SignaturePayload is the canonical byte form covered by the QR session signature.
func (q QRCodeSession) SignaturePayload() ([]byte, error) {
	q.Signature = ""
	return canonicalPayload("QRCodeSession", q)
}

// canonicalPayload prefixes the type name so payloads of different session kinds never collide.
func canonicalPayload(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "%s signature payload", kind)
	}
	out := make([]byte, 0, len(kind)+1+len(body))
	out = append(out, kind...)
	out = append(out, ':')
	return append(out, body...), nil
}
