package paymentsession

import (
	"fmt"
	"strings"
)

// ChallengeScenario fixes which downstream authentication policy applies.
type ChallengeScenario string

const (
	ChallengeScenarioPaymentTransaction   ChallengeScenario = "PaymentTransaction"
	ChallengeScenarioRecurringTransaction ChallengeScenario = "RecurringTransaction"
	ChallengeScenarioAddCard              ChallengeScenario = "AddCard"
)

func (c ChallengeScenario) Valid() bool {
	switch c {
	case ChallengeScenarioPaymentTransaction, ChallengeScenarioRecurringTransaction, ChallengeScenarioAddCard:
		return true
	}
	return false
}

func (c *ChallengeScenario) UnmarshalText(text []byte) error {
	v := ChallengeScenario(text)
	if !v.Valid() {
		return fmt.Errorf("unknown challenge scenario %q", string(text))
	}
	*c = v
	return nil
}

// DeviceChannel is the channel the cardholder is authenticating from.
type DeviceChannel string

const (
	DeviceChannelAppBased             DeviceChannel = "AppBased"
	DeviceChannelBrowser              DeviceChannel = "Browser"
	DeviceChannelThreeDSRequestorInit DeviceChannel = "ThreeDSRequestorInit"
)

func (d DeviceChannel) Valid() bool {
	switch d {
	case DeviceChannelAppBased, DeviceChannelBrowser, DeviceChannelThreeDSRequestorInit:
		return true
	}
	return false
}

func (d *DeviceChannel) UnmarshalText(text []byte) error {
	v := DeviceChannel(text)
	if !v.Valid() {
		return fmt.Errorf("unknown device channel %q", string(text))
	}
	*d = v
	return nil
}

// ChallengeWindowSize is one of the five fixed ACS challenge iframe sizes.
type ChallengeWindowSize string

const (
	ChallengeWindowSizeOne   ChallengeWindowSize = "One"
	ChallengeWindowSizeTwo   ChallengeWindowSize = "Two"
	ChallengeWindowSizeThree ChallengeWindowSize = "Three"
	ChallengeWindowSizeFour  ChallengeWindowSize = "Four"
	ChallengeWindowSizeFive  ChallengeWindowSize = "Five"
)

// WindowSize holds the rendered dimensions of a challenge window.
type WindowSize struct {
	Width  string `json:"width"`
	Height string `json:"height"`
}

var challengeWindowSizes = map[ChallengeWindowSize]WindowSize{
	ChallengeWindowSizeOne:   {Width: "250px", Height: "400px"},
	ChallengeWindowSizeTwo:   {Width: "390px", Height: "400px"},
	ChallengeWindowSizeThree: {Width: "500px", Height: "600px"},
	ChallengeWindowSizeFour:  {Width: "600px", Height: "400px"},
	ChallengeWindowSizeFive:  {Width: "100%", Height: "100%"},
}

// Dimensions returns the width and height for the window size.
func (c ChallengeWindowSize) Dimensions() (WindowSize, bool) {
	ws, ok := challengeWindowSizes[c]
	return ws, ok
}

func (c ChallengeWindowSize) Valid() bool {
	_, ok := challengeWindowSizes[c]
	return ok
}

func (c *ChallengeWindowSize) UnmarshalText(text []byte) error {
	v := ChallengeWindowSize(text)
	if !v.Valid() {
		return fmt.Errorf("unknown challenge window size %q", string(text))
	}
	*c = v
	return nil
}

// ChallengeStatus is the outcome category surfaced to the caller.
type ChallengeStatus string

const (
	ChallengeStatusUnknown       ChallengeStatus = "Unknown"
	ChallengeStatusSucceeded     ChallengeStatus = "Succeeded"
	ChallengeStatusByPassed      ChallengeStatus = "ByPassed"
	ChallengeStatusFailed        ChallengeStatus = "Failed"
	ChallengeStatusCancelled     ChallengeStatus = "Cancelled"
	ChallengeStatusTimedOut      ChallengeStatus = "TimedOut"
	ChallengeStatusNotApplicable ChallengeStatus = "NotApplicable"
)

// IsTerminal reports whether no further transition may leave the status.
func (c ChallengeStatus) IsTerminal() bool {
	return c != ChallengeStatusUnknown && c != ""
}

// IsAuthenticationVerified reports whether the outcome lets the payment proceed.
func (c ChallengeStatus) IsAuthenticationVerified() bool {
	switch c {
	case ChallengeStatusSucceeded, ChallengeStatusByPassed, ChallengeStatusNotApplicable:
		return true
	}
	return false
}

func (c ChallengeStatus) Valid() bool {
	switch c {
	case ChallengeStatusUnknown, ChallengeStatusSucceeded, ChallengeStatusByPassed, ChallengeStatusFailed,
		ChallengeStatusCancelled, ChallengeStatusTimedOut, ChallengeStatusNotApplicable:
		return true
	}
	return false
}

func (c *ChallengeStatus) UnmarshalText(text []byte) error {
	v := ChallengeStatus(text)
	if !v.Valid() {
		return fmt.Errorf("unknown challenge status %q", string(text))
	}
	*c = v
	return nil
}

// TransactionStatus is the 3DS protocol transStatus returned by the ACS.
type TransactionStatus string

const (
	TransactionStatusY  TransactionStatus = "Y"  // authenticated
	TransactionStatusN  TransactionStatus = "N"  // not authenticated
	TransactionStatusU  TransactionStatus = "U"  // could not be performed
	TransactionStatusA  TransactionStatus = "A"  // attempted
	TransactionStatusC  TransactionStatus = "C"  // challenge required
	TransactionStatusR  TransactionStatus = "R"  // rejected by issuer
	TransactionStatusFR TransactionStatus = "FR" // rejected for fraud
)

// ParseTransactionStatus decodes a wire transStatus value.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	v := TransactionStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case TransactionStatusY, TransactionStatusN, TransactionStatusU, TransactionStatusA,
		TransactionStatusC, TransactionStatusR, TransactionStatusFR:
		return v, nil
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

// IsRejected reports whether the issuer or fraud screening hard-rejected the transaction.
func (t TransactionStatus) IsRejected() bool {
	return t == TransactionStatusR || t == TransactionStatusFR
}

func (t *TransactionStatus) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = ""
		return nil
	}
	v, err := ParseTransactionStatus(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ChallengeCancelIndicator explains why a challenge ended without a result (3DS transChallengeCancel).
type ChallengeCancelIndicator string

const (
	CancelledByCardHolder   ChallengeCancelIndicator = "01"
	CancelledByRequestor    ChallengeCancelIndicator = "02"
	TransactionAbandoned    ChallengeCancelIndicator = "03"
	TransactionTimedOut     ChallengeCancelIndicator = "04"
	TransactionCReqTimedOut ChallengeCancelIndicator = "05"
	TransactionError        ChallengeCancelIndicator = "06"
	CancelReasonUnknown     ChallengeCancelIndicator = "07"
)

// TSR14 is the transStatusReason meaning "transaction timed out at the ACS".
const TSR14 = "14"

// PaymentInstrumentStatus is the payment-instrument lifecycle status reused by the QR flow.
type PaymentInstrumentStatus string

const (
	PaymentInstrumentStatusPending  PaymentInstrumentStatus = "Pending"
	PaymentInstrumentStatusActive   PaymentInstrumentStatus = "Active"
	PaymentInstrumentStatusDeclined PaymentInstrumentStatus = "Declined"
	PaymentInstrumentStatusRemoved  PaymentInstrumentStatus = "Removed"
)

func (p PaymentInstrumentStatus) Valid() bool {
	switch p {
	case PaymentInstrumentStatusPending, PaymentInstrumentStatusActive, PaymentInstrumentStatusDeclined, PaymentInstrumentStatusRemoved:
		return true
	}
	return false
}

func (p *PaymentInstrumentStatus) UnmarshalText(text []byte) error {
	v := PaymentInstrumentStatus(text)
	if !v.Valid() {
		return fmt.Errorf("unknown payment instrument status %q", string(text))
	}
	*p = v
	return nil
}

// SessionState is the handshake stage derived from a session's fields.
type SessionState string

const (
	StateMethodInvoked     SessionState = "MethodInvoked"
	StateChallengeRequired SessionState = "ChallengeRequired"
	StateCompleted         SessionState = "Completed"
)
