package server

// Route path constants
const (
	// Payment sessions
	RoutePaymentSessions                 = "/v7/{accountId}/paymentSessions"
	RoutePaymentSession                  = "/v7/paymentSessions/{sessionId}"
	RoutePaymentSessionAuthenticate      = "/v7/paymentSessions/{sessionId}/authenticate"
	RoutePaymentSessionAuthenticate3DS1  = "/v7/paymentSessions/{sessionId}/authenticateThreeDSOne"
	RoutePaymentSessionCompleteChallenge = "/v7/paymentSessions/{sessionId}/completeChallenge"
	RoutePaymentSessionAbandonChallenge  = "/v7/paymentSessions/{sessionId}/abandonChallenge"
	RoutePaymentSessionRedirect          = "/v7/paymentSessions/{sessionId}/challengeRedirect"

	// Second screen (QR code) sessions
	RouteSecondScreenSessions = "/v7/secondScreenSessions"
	RouteSecondScreenSession  = "/v7/secondScreenSessions/{sessionId}"

	// Attaching an instrument is reserved for tokens carrying ScopeSecondScreenInstrument.
	RouteSecondScreenInstrument = "/v7/secondScreenSessions/{sessionId}/paymentInstrument"

	// Operational
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
)

const ScopeSecondScreenInstrument = "payx.secondscreen.instrument"
