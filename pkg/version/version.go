// Package version holds the SDK version reported to the Outpost API.
// The values are overridden at build time through -ldflags.
package version

var (
	// Version is the version of the SDK.
	Version = "0.1.0"

	// CommitSHA is the commit SHA the SDK was built from.
	CommitSHA = ""
)

// UserAgent returns the User-Agent header value sent with every API request.
func UserAgent() string {
	return "outpost-go/" + Version
}
