package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

// NewTokenVerifier discovers the issuer's keys and returns a verifier for bearer tokens.
// An empty audience skips the audience check.
func NewTokenVerifier(ctx context.Context, issuer, audience string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewTokenVerifier] discover %s", issuer)
	}
	return provider.Verifier(&oidc.Config{
		ClientID:          audience,
		SkipClientIDCheck: audience == "",
	}), nil
}

// RequireAuth validates the Bearer token when a verifier is configured. Without a verifier the
// request passes through.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil || r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			writeErrorResponse(w, http.StatusUnauthorized, errorResponse{ErrorCode: "Unauthorized", Message: "missing bearer token"})
			return
		}

		token, err := s.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("trace_activity_id", traceActivityID(r)).
				Msg("bearer token rejected")
			writeErrorResponse(w, http.StatusUnauthorized, errorResponse{ErrorCode: "Unauthorized", Message: "invalid bearer token"})
			return
		}

		s.logger.Debug().
			Str("subject", token.Subject).
			Str("trace_activity_id", traceActivityID(r)).
			Msg("bearer token accepted")
		next(w, r.WithContext(context.WithValue(r.Context(), contextKeyIDToken, token)))
	}
}

// tokenScopes reads the scopes granted to a verified token, from either the space separated
// "scope" claim or the "scp" array.
func tokenScopes(token *oidc.IDToken) []string {
	var claims struct {
		Scope string   `json:"scope"`
		Scp   []string `json:"scp"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil
	}
	return append(strings.Fields(claims.Scope), claims.Scp...)
}

// RequireScope must run after RequireAuth. Without a verifier the request passes through.
func (s *Server) RequireScope(scope string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.verifier == nil {
				next(w, r)
				return
			}
			token, ok := r.Context().Value(contextKeyIDToken).(*oidc.IDToken)
			if !ok || !slices.Contains(tokenScopes(token), scope) {
				s.logger.Warn().
					Str("scope", scope).
					Str("trace_activity_id", traceActivityID(r)).
					Msg("bearer token lacks scope")
				writeErrorResponse(w, http.StatusForbidden, errorResponse{ErrorCode: "Forbidden", Message: "insufficient scope"})
				return
			}
			next(w, r)
		}
	}
}
