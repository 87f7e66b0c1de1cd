package preflight

import (
	"context"

	"avmerge/internal/config"
	"avmerge/internal/deps"
)

// Result reports the outcome of a single preflight check.
// Warning marks an optional check that did not pass; Passed stays true.
type Result struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Warning bool   `json:"warning,omitempty"`
	Detail  string `json:"detail"`
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, dep := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromDependency(dep))
	}

	results = append(results,
		CheckDirectoryReadable("Audio directory", cfg.Paths.AudioDir),
		CheckDirectoryReadable("Video directory", cfg.Paths.VideoDir),
		CheckOutputDirectory("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// CheckSystemDeps evaluates the external binaries. Both the daemon status
// and the CLI check command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for merging",
			VersionArg:  "-version",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Used for intra-pair progress; merges still run without it",
			Optional:    true,
			VersionArg:  "-version",
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

func fromDependency(dep deps.Status) Result {
	result := Result{Name: dep.Name, Passed: dep.Available || dep.Optional}
	switch {
	case dep.Available && dep.Version != "":
		result.Detail = dep.Version
	case dep.Available:
		result.Detail = dep.Path
		if dep.Detail != "" {
			result.Detail += " (" + dep.Detail + ")"
		}
	case dep.Optional:
		result.Warning = true
		result.Detail = dep.Detail + " (optional)"
	default:
		result.Detail = dep.Detail
	}
	return result
}
