// Package version holds build metadata, overridden at link time:
//
//	go build -ldflags "-X dumbo/pkg/version.Version=v1.2.0 -X dumbo/pkg/version.GitCommit=$(git rev-parse --short HEAD)"
package version

var (
	Version   = "0.1.0-dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)
