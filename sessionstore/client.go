package sessionstore

import (
	"context"
	"net/http"
	"net/url"

	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/transport"
	"github.com/pkg/errors"
)

const serviceName = "sessionService"

var _ Store = (*Client)(nil)

// Client talks to the session service over HTTP.
type Client struct {
	http *transport.Client
}

// NewClient builds a session-service client. A 404 from the service maps to ErrSessionNotFound.
func NewClient(baseURL, apiVersion string, options ...transport.ClientOption) (*Client, error) {
	options = append(options, transport.WithNotFound(apperrors.ErrSessionNotFound))
	tc, err := transport.NewClient(serviceName, baseURL, apiVersion, options...)
	if err != nil {
		return nil, errors.Wrap(err, "[sessionstore.NewClient]")
	}
	return &Client{http: tc}, nil
}

func sessionPath(sessionID string) string {
	return "sessions/" + url.PathEscape(sessionID)
}

func (c *Client) CreateSession(ctx context.Context, sessionID string, resource Resource, traceActivityID string) error {
	return c.http.Send(ctx, transport.Request{
		Action:          "CreateSession",
		Method:          http.MethodPost,
		Path:            sessionPath(sessionID),
		Body:            resource,
		TraceActivityID: traceActivityID,
	}, nil)
}

func (c *Client) UpdateSession(ctx context.Context, sessionID string, resource Resource, traceActivityID string) error {
	return c.http.Send(ctx, transport.Request{
		Action:          "UpdateSession",
		Method:          http.MethodPut,
		Path:            sessionPath(sessionID),
		Body:            resource,
		TraceActivityID: traceActivityID,
	}, nil)
}

func (c *Client) GetSession(ctx context.Context, sessionID string, traceActivityID string) (Resource, error) {
	var resource Resource
	err := c.http.Send(ctx, transport.Request{
		Action:          "GetSessionResourceData",
		Method:          http.MethodGet,
		Path:            sessionPath(sessionID) + "?sessionType=" + SessionTypeAny,
		TraceActivityID: traceActivityID,
	}, &resource)
	return resource, err
}
