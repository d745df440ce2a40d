// Package payerauth is the accessor for the 3DS authentication service (directory server and ACS
// routing). Responses are validated here so the challenge handlers only see well-formed data.
package payerauth

import (
	"context"
	"net/http"

	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/transport"
	"github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/pkg/errors"
)

const serviceName = "payerAuthService"

// Accessor is the PayerAuth contract used by the challenge handlers.
type Accessor interface {
	CreatePaymentSessionID(ctx context.Context, req PaymentSessionRequest, traceActivityID string) (*PaymentSessionResponse, error)
	Get3DSMethodURL(ctx context.Context, req ThreeDSMethodRequest, traceActivityID string) (*ThreeDSMethodData, error)
	Authenticate(ctx context.Context, req AuthenticationRequest, traceActivityID string) (*AuthenticationResponse, error)
	AuthenticateThreeDSOne(ctx context.Context, req AuthenticationRequest, traceActivityID string) (*AuthenticationResponse, error)
	CompleteChallenge(ctx context.Context, req CompletionRequest, traceActivityID string) (*CompletionResponse, error)
}

var _ Accessor = (*Client)(nil)

// Client calls PayerAuth over HTTP.
type Client struct {
	http *transport.Client
}

func NewClient(baseURL, apiVersion string, options ...transport.ClientOption) (*Client, error) {
	tc, err := transport.NewClient(serviceName, baseURL, apiVersion, options...)
	if err != nil {
		return nil, errors.Wrap(err, "[payerauth.NewClient]")
	}
	return &Client{http: tc}, nil
}

func (c *Client) CreatePaymentSessionID(ctx context.Context, req PaymentSessionRequest, traceActivityID string) (*PaymentSessionResponse, error) {
	var res PaymentSessionResponse
	if err := c.post(ctx, "CreatePaymentSessionId", req, req.TestContext, traceActivityID, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Get3DSMethodURL(ctx context.Context, req ThreeDSMethodRequest, traceActivityID string) (*ThreeDSMethodData, error) {
	var res ThreeDSMethodData
	if err := c.post(ctx, "GetThreeDSMethodURL", req, req.TestContext, traceActivityID, &res); err != nil {
		return nil, err
	}
	if res.ThreeDSServerTransID == "" {
		return nil, missing("GetThreeDSMethodURL", "threeDSServerTransID")
	}
	return &res, nil
}

func (c *Client) Authenticate(ctx context.Context, req AuthenticationRequest, traceActivityID string) (*AuthenticationResponse, error) {
	var res AuthenticationResponse
	if err := c.post(ctx, "Authenticate", req, req.TestContext, traceActivityID, &res); err != nil {
		return nil, err
	}
	if err := validateTransStatus("Authenticate", &res); err != nil {
		return nil, err
	}
	if res.EnrollmentStatus != EnrollmentStatusBypassed && res.AcsTransactionID == "" {
		return nil, missing("Authenticate", "acsTransID")
	}
	if err := validateChallengeShape("Authenticate", req.DeviceChannel, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) AuthenticateThreeDSOne(ctx context.Context, req AuthenticationRequest, traceActivityID string) (*AuthenticationResponse, error) {
	var res AuthenticationResponse
	if err := c.post(ctx, "AuthenticateThreeDSOne", req, req.TestContext, traceActivityID, &res); err != nil {
		return nil, err
	}
	if err := validateTransStatus("AuthenticateThreeDSOne", &res); err != nil {
		return nil, err
	}
	if err := validateChallengeShape("AuthenticateThreeDSOne", req.DeviceChannel, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CompleteChallenge(ctx context.Context, req CompletionRequest, traceActivityID string) (*CompletionResponse, error) {
	var res CompletionResponse
	if err := c.post(ctx, "CompleteChallenge", req, req.TestContext, traceActivityID, &res); err != nil {
		return nil, err
	}
	if res.TransactionStatus == "" {
		return nil, missing("CompleteChallenge", "transStatus")
	}
	return &res, nil
}

func (c *Client) post(ctx context.Context, action string, body any, testContext, traceActivityID string, out any) error {
	return c.http.Send(ctx, transport.Request{
		Action:          action,
		Method:          http.MethodPost,
		Path:            action,
		Body:            body,
		TraceActivityID: traceActivityID,
		TestContext:     testContext,
	}, out)
}

// validateTransStatus requires a transStatus unless the card range bypassed 3DS.
func validateTransStatus(action string, res *AuthenticationResponse) error {
	if res.EnrollmentStatus != EnrollmentStatusBypassed && res.TransactionStatus == "" {
		return missing(action, "transStatus")
	}
	return nil
}

// validateChallengeShape checks that a challenge response carries what the client needs to
// render it: an ACS URL for browsers, signed content for apps.
func validateChallengeShape(action string, channel paymentsession.DeviceChannel, res *AuthenticationResponse) error {
	if res.EnrollmentStatus == EnrollmentStatusBypassed || res.TransactionStatus != paymentsession.TransactionStatusC {
		return nil
	}
	switch channel {
	case paymentsession.DeviceChannelBrowser:
		if res.AcsURL == "" {
			return missing(action, "acsURL")
		}
	case paymentsession.DeviceChannelAppBased:
		if res.AcsSignedContent == "" || res.ThreeDSServerTransactionID == "" {
			return missing(action, "acsSignedContent")
		}
	}
	return nil
}

func missing(action, field string) error {
	return errors.Wrapf(apperrors.ErrIntegrationFailure, "[payerauth.%s] response is missing %s", action, field)
}
