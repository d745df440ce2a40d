// Package transport is the JSON-over-HTTP plumbing shared by the downstream service accessors.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/internal/metrics"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outbound headers.
const (
	HeaderCorrelationID = "Correlation-Id"
	HeaderTrackingID    = "Tracking-Id"
	HeaderAPIVersion    = "Api-Version"
	HeaderTestContext   = "Test-Context"
)

const maxErrorBody = 4 << 10

var tracer = otel.Tracer("payx/transport")

// Request describes one call to a downstream service.
type Request struct {
	Action          string
	Method          string
	Path            string
	Body            any
	TraceActivityID string
	TestContext     string
}

// Client sends JSON requests to one downstream service.
type Client struct {
	service    string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	metrics    *metrics.Recorder
	notFound   error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client, e.g. with an OAuth2 client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics records request latency on the recorder.
func WithMetrics(m *metrics.Recorder) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithNotFound sets the sentinel a 404 response maps to. The default is ErrIntegrationFailure.
func WithNotFound(err error) ClientOption {
	return func(c *Client) {
		c.notFound = err
	}
}

func NewClient(service, baseURL, apiVersion string, options ...ClientOption) (*Client, error) {
	if service == "" {
		return nil, errors.New("[NewClient] service name is required")
	}
	if baseURL == "" {
		return nil, errors.Errorf("[NewClient] base url is required for %s", service)
	}
	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		notFound:   apperrors.ErrIntegrationFailure,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Send performs the request and decodes a 2xx JSON body into out (which may be nil).
// Failures are returned as *ServiceError.
func (c *Client) Send(ctx context.Context, req Request, out any) (err error) {
	ctx, span := tracer.Start(ctx, c.service+"."+req.Action,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("payx.service", c.service),
			attribute.String("payx.action", req.Action),
			attribute.String("payx.trace_activity_id", req.TraceActivityID),
		),
	)
	start := time.Now()
	code := "error"
	defer func() {
		c.metrics.AccessorRequest(c.service, req.Action, code, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return c.fail(req, 0, "", errors.Wrap(err, "build request"))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.fail(req, 0, "", err)
	}
	defer resp.Body.Close()

	code = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.fail(req, resp.StatusCode, string(body), nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{
			Service:    c.service,
			Action:     req.Action,
			StatusCode: resp.StatusCode,
			Err:        errors.Wrap(err, "decode response"),
			kind:       apperrors.ErrIntegrationFailure,
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+"/"+strings.TrimLeft(req.Path, "/"), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(HeaderCorrelationID, req.TraceActivityID)
	httpReq.Header.Set(HeaderTrackingID, uuid.NewString())
	if c.apiVersion != "" {
		httpReq.Header.Set(HeaderAPIVersion, c.apiVersion)
	}
	if req.TestContext != "" {
		httpReq.Header.Set(HeaderTestContext, req.TestContext)
	}
	return httpReq, nil
}

func (c *Client) fail(req Request, status int, body string, cause error) *ServiceError {
	se := &ServiceError{
		Service:    c.service,
		Action:     req.Action,
		StatusCode: status,
		Body:       body,
		Err:        cause,
	}
	switch {
	case status == 0 || status >= 500:
		se.kind = apperrors.ErrExternalServiceUnavailable
	case status == http.StatusNotFound:
		se.kind = c.notFound
	default:
		se.kind = apperrors.ErrIntegrationFailure
	}
	return se
}
