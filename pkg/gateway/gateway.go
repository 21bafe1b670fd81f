// Package gateway is a thin client for the external WhatsApp-compatible
// message gateway (instance lifecycle and message transport).
package gateway

import (
	"fmt"
	"net/http"
	"strings"
)

// Known gateway connection states.
const (
	StateOpen       = "open"
	StateConnecting = "connecting"
	StateClose      = "close"
)

// AuthStrategy names a header convention for presenting the gateway
// credential. Gateway deployments are not consistent about which one they
// honor, so calls try an ordered list until one is accepted.
type AuthStrategy struct {
	Name   string
	Header string
	Prefix string
}

// Apply sets the credential on the request using this strategy's convention.
func (s AuthStrategy) Apply(r *http.Request, credential string) {
	r.Header.Set(s.Header, s.Prefix+credential)
}

// DefaultAuthStrategies is the order in which header conventions are tried.
// New gateway conventions get appended here without touching call sites.
var DefaultAuthStrategies = []AuthStrategy{
	{Name: "apikey", Header: "apikey"},
	{Name: "bearer", Header: "Authorization", Prefix: "Bearer "},
	{Name: "x-api-key", Header: "X-Api-Key"},
}

// APIError is a non-success response from the gateway, carrying the HTTP
// status and response body for diagnosability.
type APIError struct {
	Operation string
	Status    int
	Body      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s failed (status %d): %s", e.Operation, e.Status, e.Body)
}

// IsConflict reports whether the error looks like "resource already exists".
// Some gateway versions answer 409, others 403 with an explanatory body.
func (e *APIError) IsConflict() bool {
	if e.Status == http.StatusConflict {
		return true
	}
	return e.Status == http.StatusForbidden && strings.Contains(strings.ToLower(e.Body), "already")
}

// PhoneFromJID extracts a +-prefixed phone number from a gateway JID such as
// "5511999990000@s.whatsapp.net". Returns "" when the JID carries no number.
func PhoneFromJID(jid string) string {
	number, _, found := strings.Cut(jid, "@")
	if !found || number == "" {
		return ""
	}
	if i := strings.IndexByte(number, ':'); i >= 0 { // device suffix, e.g. "5511...:12"
		number = number[:i]
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return "+" + number
}
