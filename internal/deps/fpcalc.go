package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// FpcalcRequirement describes the chromaprint fpcalc binary. It is optional:
// without it the scanner skips acoustic fingerprints and only exact duplicates
// are detected.
func FpcalcRequirement(command string) Requirement {
	return Requirement{
		Name:        "fpcalc",
		Command:     command,
		Description: "Chromaprint fingerprints for near-duplicate detection",
		Optional:    true,
		VersionArg:  "-version",
	}
}

// Requirements lists every external binary for the given fpcalc command.
func Requirements(fpcalcCommand string) []Requirement {
	return []Requirement{FpcalcRequirement(fpcalcCommand)}
}

func toolVersion(command, arg string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, command, arg).CombinedOutput()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
