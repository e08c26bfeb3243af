// Package version identifies the server in logs, health responses, and
// protocol handshakes.
package version

// AppName names the server in the MCP handshake, the manifest, and the
// namespaced tool ids.
const AppName = "forgesyte"

// Semver is the release version reported by the health endpoint and the
// MCP serverInfo handshake.
const Semver = "1.0.0"

// Full returns "forgesyte/1.0.0" for user-agent strings and startup logs.
func Full() string {
	return AppName + "/" + Semver
}
