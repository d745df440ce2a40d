package config

import (
	"strings"

	"github.com/jrsteele09/go-payx-gateway/internal/transport"
)

// OAuthConfig covers outbound client-credentials auth to the downstream services and inbound
// bearer verification.
type OAuthConfig interface {
	GetServiceCredentials() transport.ClientCredentials
	GetOIDCIssuer() string
	GetOIDCAudience() string
}

type OAuth struct {
	source
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetServiceCredentials() transport.ClientCredentials {
	var scopes []string
	for _, s := range strings.Split(o.get("oauth.scopes", "OAUTH_SCOPES", ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return transport.ClientCredentials{
		ClientID:     o.get("oauth.client_id", "OAUTH_CLIENT_ID", ""),
		ClientSecret: o.get("oauth.client_secret", "OAUTH_CLIENT_SECRET", ""),
		TokenURL:     o.get("oauth.token_url", "OAUTH_TOKEN_URL", ""),
		Scopes:       scopes,
	}
}

// GetOIDCIssuer enables bearer-token verification on the API routes when set.
func (o OAuth) GetOIDCIssuer() string {
	return o.get("oidc.issuer", "OIDC_ISSUER", "")
}

func (o OAuth) GetOIDCAudience() string {
	return o.get("oidc.audience", "OIDC_AUDIENCE", "")
}
