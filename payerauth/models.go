package payerauth

import (
	"fmt"

	"github.com/jrsteele09/go-payx-gateway/paymentsession"
)

// EnrollmentStatus is the card range's 3DS enrollment as reported by PayerAuth.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled    EnrollmentStatus = "Enrolled"
	EnrollmentStatusNotEnrolled EnrollmentStatus = "NotEnrolled"
	EnrollmentStatusBypassed    EnrollmentStatus = "Bypassed"
	EnrollmentStatusUnknown     EnrollmentStatus = "Unknown"
)

func (e *EnrollmentStatus) UnmarshalText(text []byte) error {
	v := EnrollmentStatus(text)
	switch v {
	case EnrollmentStatusEnrolled, EnrollmentStatusNotEnrolled, EnrollmentStatusBypassed, EnrollmentStatusUnknown:
		*e = v
		return nil
	case "":
		*e = EnrollmentStatusUnknown
		return nil
	}
	return fmt.Errorf("unknown enrollment status %q", string(text))
}

// PaymentSessionRequest registers a new payment session with PayerAuth.
type PaymentSessionRequest struct {
	PaymentSessionID    string                             `json:"paymentSessionId"`
	AccountID           string                             `json:"accountId"`
	PaymentInstrumentID string                             `json:"paymentInstrumentId"`
	Amount              string                             `json:"amount"`
	Currency            string                             `json:"currency"`
	Country             string                             `json:"country"`
	Partner             string                             `json:"partner"`
	ChallengeScenario   paymentsession.ChallengeScenario   `json:"challengeScenario"`
	ChallengeWindowSize paymentsession.ChallengeWindowSize `json:"challengeWindowSize"`
	DeviceChannel       paymentsession.DeviceChannel       `json:"deviceChannel"`
	IsMOTO              bool                               `json:"isMoto"`
	TestContext         string                             `json:"-"`
}

// PaymentSessionResponse reports the enrollment of the card range.
type PaymentSessionResponse struct {
	PaymentSessionID string           `json:"paymentSessionId"`
	EnrollmentStatus EnrollmentStatus `json:"enrollmentStatus"`
}

// ThreeDSMethodRequest asks for the issuer's 3DS Method URL.
type ThreeDSMethodRequest struct {
	PaymentSessionID    string `json:"paymentSessionId"`
	PaymentInstrumentID string `json:"paymentInstrumentId"`
	TestContext         string `json:"-"`
}

// ThreeDSMethodData is PayerAuth's answer to ThreeDSMethodRequest. ThreeDSMethodURL is empty
// when the card range has no method step.
type ThreeDSMethodData struct {
	ThreeDSServerTransID string `json:"threeDSServerTransID"`
	ThreeDSMethodURL     string `json:"threeDSMethodURL,omitempty"`
}

// BrowserInfo is the browser fingerprint forwarded with a Browser channel authentication.
type BrowserInfo struct {
	AcceptHeader      string `json:"acceptHeader,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
	JavaEnabled       bool   `json:"javaEnabled"`
	JavascriptEnabled bool   `json:"javascriptEnabled"`
	Language          string `json:"language,omitempty"`
	ColorDepth        int    `json:"colorDepth,omitempty"`
	ScreenHeight      int    `json:"screenHeight,omitempty"`
	ScreenWidth       int    `json:"screenWidth,omitempty"`
	TimeZoneOffset    int    `json:"timeZoneOffset"`
	UserAgent         string `json:"userAgent,omitempty"`
}

// SDKInfo carries the 3DS SDK parameters of an app-based authentication.
type SDKInfo struct {
	SDKAppID              string `json:"sdkAppID,omitempty"`
	SDKEncryptedData      string `json:"sdkEncData,omitempty"`
	SDKEphemeralPublicKey string `json:"sdkEphemPubKey,omitempty"`
	SDKMaxTimeout         string `json:"sdkMaxTimeout,omitempty"`
	SDKReferenceNumber    string `json:"sdkReferenceNumber,omitempty"`
	SDKTransID            string `json:"sdkTransID,omitempty"`
}

// AuthenticationRequest is the AReq sent on behalf of a session.
type AuthenticationRequest struct {
	PaymentSessionID          string                             `json:"paymentSessionId"`
	ThreeDSServerTransID      string                             `json:"threeDSServerTransID,omitempty"`
	DeviceChannel             paymentsession.DeviceChannel       `json:"deviceChannel"`
	ChallengeWindowSize       paymentsession.ChallengeWindowSize `json:"challengeWindowSize"`
	ChallengeScenario         paymentsession.ChallengeScenario   `json:"challengeScenario"`
	MethodCompletionIndicator string                             `json:"threeDSCompInd,omitempty"`
	NotificationURL           string                             `json:"notificationUrl,omitempty"`
	EmailAddress              string                             `json:"emailAddress,omitempty"`
	IsMOTO                    bool                               `json:"isMoto"`
	BrowserInfo               *BrowserInfo                       `json:"browserInfo,omitempty"`
	SDKInfo                   *SDKInfo                           `json:"sdkInfo,omitempty"`
	TestContext               string                             `json:"-"`
}

// AuthenticationResponse is the decoded ARes.
type AuthenticationResponse struct {
	EnrollmentStatus           EnrollmentStatus                 `json:"enrollmentStatus"`
	TransactionStatus          paymentsession.TransactionStatus `json:"transStatus"`
	TransactionStatusReason    string                           `json:"transStatusReason,omitempty"`
	ThreeDSServerTransactionID string                           `json:"threeDSServerTransID,omitempty"`
	AcsTransactionID           string                           `json:"acsTransID,omitempty"`
	AcsURL                     string                           `json:"acsURL,omitempty"`
	AcsSignedContent           string                           `json:"acsSignedContent,omitempty"`
	AcsReferenceNumber         string                           `json:"acsReferenceNumber,omitempty"`
	MessageVersion             string                           `json:"messageVersion,omitempty"`
}

// CompletionRequest carries the challenge evidence back to PayerAuth.
type CompletionRequest struct {
	PaymentSessionID        string            `json:"paymentSessionId"`
	ThreeDSServerTransID    string            `json:"threeDSServerTransID,omitempty"`
	AcsTransID              string            `json:"acsTransID,omitempty"`
	ChallengeResponse       string            `json:"cres,omitempty"`
	AuthorizationParameters map[string]string `json:"authorizationParameters,omitempty"`
	TestContext             string            `json:"-"`
}

// CompletionResponse is the final challenge result (the RReq outcome).
type CompletionResponse struct {
	TransactionStatus       paymentsession.TransactionStatus        `json:"transStatus"`
	TransactionStatusReason string                                  `json:"transStatusReason,omitempty"`
	ChallengeCancel         paymentsession.ChallengeCancelIndicator `json:"challengeCancel,omitempty"`
}
