// Package api provides the HTTP surface for the authentication service.
package api

// APIVersion is the capability level reported by /status so clients can
// auto-detect what this server supports.
const (
	APIVersion1 = 1

	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"password-login",
		"webauthn-second-factor",
		"credential-management",
	},
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
