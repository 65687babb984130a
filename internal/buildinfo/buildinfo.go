// Package buildinfo exposes version data injected at link time, e.g.
//
//	go build -ldflags "-X github.com/dmitrijs2005/bizkeeper/internal/buildinfo.buildVersion=v1.0.0"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func valueOrNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// PrintBuildData writes version, date and commit to w, using "N/A" for
// values that were not set.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", valueOrNA(buildVersion))
	fmt.Fprintf(w, "Build date: %s\n", valueOrNA(buildDate))
	fmt.Fprintf(w, "Build commit: %s\n", valueOrNA(buildCommit))
}
