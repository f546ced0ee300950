package auth

import (
	"net/http"
)

// SecureRoundTripper authenticates every outbound request
type SecureRoundTripper struct {
	base     http.RoundTripper
	modifier *SecureRequestModifier
}

// NewSecureRoundTripper wraps base; a nil base means http.DefaultTransport
func NewSecureRoundTripper(base http.RoundTripper, provider SecureAuthProvider) *SecureRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &SecureRoundTripper{
		base:     base,
		modifier: NewSecureRequestModifier(provider),
	}
}

// RoundTrip clones req, adds credentials and forwards it
func (t *SecureRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	t.modifier.ModifyRequest(cloned)
	return t.base.RoundTrip(cloned)
}
