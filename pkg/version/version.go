// Package version provides version information for the oracle-usdp service.
package version

// Version is the current version of the oracle-usdp service.
const Version = "0.3.0"

// AgentString returns the full agent string with versioning, sent as the
// User-Agent of outbound requests.
// Format: oracle-usdp/v{version}
func AgentString() string {
	return "oracle-usdp/v" + Version
}
