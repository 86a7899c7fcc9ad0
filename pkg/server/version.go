package server

// Version is the GemsCraft version string.
// Override at build time with: go build -ldflags "-X github.com/apotter96/GemsCraft-Classic-sub000/pkg/server.Version=0.3.0"
var Version = "0.3.0"

// VersionString returns the full version display string.
func VersionString() string {
	return "GemsCraft " + Version
}
