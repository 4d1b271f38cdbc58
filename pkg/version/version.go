// Package version reports the mcp-host build identity: an ldflags-injected
// tag/branch when built via a release pipeline, falling back to the VCS
// revision embedded by the Go toolchain otherwise. Surfaced in the
// initialize response's serverInfo.version and the --version flag.
package version

import (
	"encoding/json"
	"runtime"
	"runtime/debug"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// GitTag and GitBranch are set via -ldflags at release build time; both
// are empty for a plain `go build`.
var (
	GitTag    string
	GitBranch string
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Version resolves the most specific identity available: an injected tag,
// then an injected branch, then a short VCS revision from the embedded
// build info, then "dev".
func Version() string {
	switch {
	case GitTag != "":
		return GitTag
	case GitBranch != "":
		return GitBranch
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value[:12]
			}
		}
	}
	return "dev"
}

// JSON renders build metadata for execName as indented JSON, for --version
// output.
func JSON(execName string) []byte {
	metadata := map[string]string{
		"name":     execName,
		"version":  Version(),
		"compiler": runtime.Version(),
	}
	if GitTag != "" {
		metadata["tag"] = GitTag
	}
	if GitBranch != "" {
		metadata["branch"] = GitBranch
	}

	var goos, goarch string
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Path != "" {
			metadata["source"] = info.Main.Path
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					metadata["hash"] = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					metadata["build_time"] = s.Value
				}
			case "vcs.modified":
				if s.Value == "true" {
					metadata["modified"] = s.Value
				}
			case "GOOS":
				goos = s.Value
			case "GOARCH":
				goarch = s.Value
			}
		}
	}
	if goos != "" && goarch != "" {
		metadata["platform"] = goos + "/" + goarch
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}
