// Package version holds build-time version information for the docchat
// binary. The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/docchat-go/internal/version.Version=v0.4.0 \
//	                    -X github.com/54b3r/docchat-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/docchat-go/internal/version.BuildDate=2025-01-01"
//
// Without ldflags the values fall back to readable defaults. Version is also
// reported by GET /api/health and tagged on Langfuse traces.
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v1.2.3").
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String formats all three values on one line for `docchat version`.
func String() string {
	return fmt.Sprintf("docchat %s (commit %s, built %s)", Version, Commit, BuildDate)
}
