package payerauthfakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-payx-gateway/payerauth"
	"github.com/jrsteele09/go-payx-gateway/paymentsession"
)

var _ payerauth.Accessor = (*FakeAccessor)(nil)

// FakeAccessor returns scripted PayerAuth responses and counts calls.
// The zero script is an enrolled card range with no method URL and a frictionless Y.
type FakeAccessor struct {
	Enrollment     payerauth.EnrollmentStatus
	MethodURL      string
	AuthResponse   payerauth.AuthenticationResponse
	ThreeDSOneAuth payerauth.AuthenticationResponse
	Completion     payerauth.CompletionResponse

	CreateErr     error
	MethodErr     error
	AuthErr       error
	CompletionErr error

	calls        map[string]int
	lastAuth     *payerauth.AuthenticationRequest
	lastComplete *payerauth.CompletionRequest
	lock         sync.Mutex
}

func NewFakeAccessor() *FakeAccessor {
	return &FakeAccessor{
		Enrollment: payerauth.EnrollmentStatusEnrolled,
		AuthResponse: payerauth.AuthenticationResponse{
			EnrollmentStatus:           payerauth.EnrollmentStatusEnrolled,
			TransactionStatus:          paymentsession.TransactionStatusY,
			ThreeDSServerTransactionID: "3ds-server-trans-1",
			AcsTransactionID:           "acs-trans-1",
			MessageVersion:             "2.2.0",
		},
		ThreeDSOneAuth: payerauth.AuthenticationResponse{
			EnrollmentStatus:  payerauth.EnrollmentStatusEnrolled,
			TransactionStatus: paymentsession.TransactionStatusY,
		},
		Completion: payerauth.CompletionResponse{
			TransactionStatus: paymentsession.TransactionStatusY,
		},
		calls: make(map[string]int),
	}
}

// ScriptChallenge makes the next authentications return C with a browser ACS URL and app content.
func (f *FakeAccessor) ScriptChallenge(acsURL string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.AuthResponse.TransactionStatus = paymentsession.TransactionStatusC
	f.AuthResponse.AcsURL = acsURL
	f.AuthResponse.AcsSignedContent = "signed-content"
	f.AuthResponse.AcsReferenceNumber = "acs-ref-1"
	f.ThreeDSOneAuth.TransactionStatus = paymentsession.TransactionStatusC
	f.ThreeDSOneAuth.AcsURL = acsURL
}

// Calls returns how often the named accessor method ran.
func (f *FakeAccessor) Calls(method string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[method]
}

// LastAuthentication returns the most recent authentication request.
func (f *FakeAccessor) LastAuthentication() *payerauth.AuthenticationRequest {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.lastAuth
}

// LastCompletion returns the most recent completion request.
func (f *FakeAccessor) LastCompletion() *payerauth.CompletionRequest {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.lastComplete
}

func (f *FakeAccessor) CreatePaymentSessionID(_ context.Context, req payerauth.PaymentSessionRequest, _ string) (*payerauth.PaymentSessionResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["CreatePaymentSessionID"]++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return &payerauth.PaymentSessionResponse{
		PaymentSessionID: req.PaymentSessionID,
		EnrollmentStatus: f.Enrollment,
	}, nil
}

func (f *FakeAccessor) Get3DSMethodURL(_ context.Context, _ payerauth.ThreeDSMethodRequest, _ string) (*payerauth.ThreeDSMethodData, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["Get3DSMethodURL"]++
	if f.MethodErr != nil {
		return nil, f.MethodErr
	}
	return &payerauth.ThreeDSMethodData{
		ThreeDSServerTransID: "3ds-server-trans-1",
		ThreeDSMethodURL:     f.MethodURL,
	}, nil
}

func (f *FakeAccessor) Authenticate(_ context.Context, req payerauth.AuthenticationRequest, _ string) (*payerauth.AuthenticationResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["Authenticate"]++
	f.lastAuth = &req
	if f.AuthErr != nil {
		return nil, f.AuthErr
	}
	res := f.AuthResponse
	return &res, nil
}

func (f *FakeAccessor) AuthenticateThreeDSOne(_ context.Context, req payerauth.AuthenticationRequest, _ string) (*payerauth.AuthenticationResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["AuthenticateThreeDSOne"]++
	f.lastAuth = &req
	if f.AuthErr != nil {
		return nil, f.AuthErr
	}
	res := f.ThreeDSOneAuth
	return &res, nil
}

func (f *FakeAccessor) CompleteChallenge(_ context.Context, req payerauth.CompletionRequest, _ string) (*payerauth.CompletionResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["CompleteChallenge"]++
	f.lastComplete = &req
	if f.CompletionErr != nil {
		return nil, f.CompletionErr
	}
	res := f.Completion
	return &res, nil
}
