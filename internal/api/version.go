// Package api provides the HTTP API of the wallet orchestrator.
package api

// APIVersion1 is the first API version.
const (
	APIVersion1       = 1
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"oid4vci",
		"oid4vci-pre-authorized",
		"oid4vci-deferred",
		"oid4vp",
		"siop-id-token",
		"storage",
		"notifications",
	},
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
