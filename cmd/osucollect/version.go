package main

import (
	"runtime/debug"
	"strings"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		version = describeBuild(version, info)
	}
}

// describeBuild appends the VCS revision, commit time and platform found in
// info to base. An unknown base is replaced by the module version, which is
// what go install records.
func describeBuild(base string, info *debug.BuildInfo) string {
	if base == unknownVersion && info.Main.Version != "" {
		base = info.Main.Version
	}

	settings := map[string]string{}
	for _, kv := range info.Settings {
		settings[kv.Key] = kv.Value
	}

	var parts []string
	if rev := settings["vcs.revision"]; len(rev) >= 8 {
		rev = rev[:8]
		if settings["vcs.modified"] == "true" {
			rev += "-modified"
		}
		parts = append(parts, rev)
	}
	if t := settings["vcs.time"]; t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, settings["GOOS"]+"-"+settings["GOARCH"])

	return base + " (" + strings.Join(parts, ", ") + ")"
}
