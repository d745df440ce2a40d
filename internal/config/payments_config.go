package config

import (
	"time"
)

type PaymentsConfig interface {
	GetSessionServiceURL() string
	GetSessionServiceAPIVersion() string
	GetPayerAuthURL() string
	GetPayerAuthAPIVersion() string
	GetAccessorTimeout() time.Duration
	GetPifdBaseURL() string
}

type Payments struct {
	source
}

var _ PaymentsConfig = Payments{}

func (p Payments) GetSessionServiceURL() string {
	return p.get("sessionstore.base_url", "SESSION_SERVICE_URL", "http://localhost:7001/")
}

func (p Payments) GetSessionServiceAPIVersion() string {
	return p.get("sessionstore.api_version", "SESSION_SERVICE_API_VERSION", "2015-09-23")
}

func (p Payments) GetPayerAuthURL() string {
	return p.get("payerauth.base_url", "PAYER_AUTH_URL", "http://localhost:7002/")
}

func (p Payments) GetPayerAuthAPIVersion() string {
	return p.get("payerauth.api_version", "PAYER_AUTH_API_VERSION", "2019-04-16")
}

// GetAccessorTimeout bounds each downstream call. Unparseable values fall back to 10s.
func (p Payments) GetAccessorTimeout() time.Duration {
	d, err := time.ParseDuration(p.get("accessor.timeout", "ACCESSOR_TIMEOUT", "10s"))
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetPifdBaseURL is the public front-end base used in ACS notification URLs.
func (p Payments) GetPifdBaseURL() string {
	return p.get("pifd.base_url", "PIFD_BASE_URL", "http://localhost:8080/v7")
}
