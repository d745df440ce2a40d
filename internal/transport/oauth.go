package transport

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials holds the settings for service-to-service OAuth2.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Enabled reports whether outbound OAuth2 is configured.
func (cc ClientCredentials) Enabled() bool {
	return cc.ClientID != "" && cc.TokenURL != ""
}

// NewHTTPClient returns a client that attaches client-credentials tokens when cc is enabled,
// and a plain client otherwise.
func NewHTTPClient(ctx context.Context, cc ClientCredentials, timeout time.Duration) *http.Client {
	if !cc.Enabled() {
		return &http.Client{Timeout: timeout}
	}
	cfg := clientcredentials.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		TokenURL:     cc.TokenURL,
		Scopes:       cc.Scopes,
	}
	hc := cfg.Client(ctx)
	hc.Timeout = timeout
	return hc
}
