// Package version holds build information set via -ldflags.
package version

// Version is overridden at build time with
// -ldflags "-X github.com/alvmarrod/dfimoveis-crawler/internal/version.Version=..."
var Version = "0.1.0-dev"
