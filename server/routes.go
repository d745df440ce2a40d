package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Payment sessions
	s.RegisterRouteHandler("POST "+RoutePaymentSessions, ChainMiddleware(s.CreatePaymentSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RoutePaymentSession, ChainMiddleware(s.GetPaymentSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentSessionAuthenticate, ChainMiddleware(s.AuthenticateHandler(false), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentSessionAuthenticate3DS1, ChainMiddleware(s.AuthenticateHandler(true), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentSessionCompleteChallenge, ChainMiddleware(s.CompleteChallengeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentSessionAbandonChallenge, ChainMiddleware(s.AbandonChallengeHandler(), s.APIMiddleware()...))
	// Browser redirect target, so no bearer token
	s.RegisterRouteHandler("GET "+RoutePaymentSessionRedirect, ChainMiddleware(s.ChallengeRedirectHandler(), s.RecoverMiddleware, s.CorrelationMiddleware, s.LoggingMiddleware))

	// Second screen
	s.RegisterRouteHandler("POST "+RouteSecondScreenSessions, ChainMiddleware(s.CreateQrCodeSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteSecondScreenSession, ChainMiddleware(s.UpdateQrCodeSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSecondScreenSession, ChainMiddleware(s.GetQrCodeSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteSecondScreenInstrument, ChainMiddleware(s.AttachPaymentInstrumentHandler(), s.APIMiddleware(s.RequireScope(ScopeSecondScreenInstrument))...))

	// CORS preflight for every API route
	s.RegisterRouteHandler("OPTIONS /v7/", ChainMiddleware(s.PreflightHandler(), s.RecoverMiddleware, s.CorrelationMiddleware, s.CorsMiddleware))

	// Operational
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}
