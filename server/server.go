package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-payx-gateway/challenge"
	"github.com/jrsteele09/go-payx-gateway/internal/config"
	"github.com/jrsteele09/go-payx-gateway/secondscreen"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	logger       zerolog.Logger
	gatherer     prometheus.Gatherer
	verifier     *oidc.IDTokenVerifier
	payments     *challenge.PaymentSessionsHandler
	secondScreen *secondscreen.SecondScreenSessionHandler
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes the given registry on /metrics instead of the default one.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithTokenVerifier requires a verified bearer token on the API routes.
func WithTokenVerifier(v *oidc.IDTokenVerifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

func New(config config.Config, payments *challenge.PaymentSessionsHandler, secondScreen *secondscreen.SecondScreenSessionHandler, options ...Option) (*Server, error) {
	if payments == nil || secondScreen == nil {
		return nil, errors.New("[Server New] payment session handlers are required")
	}

	s := &Server{
		mux:          http.NewServeMux(),
		config:       config,
		logger:       log.Logger,
		gatherer:     prometheus.DefaultGatherer,
		payments:     payments,
		secondScreen: secondScreen,
	}
	s.env = config.GetEnv()
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	s.logger.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
