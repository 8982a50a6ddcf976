package preflight

import (
	"metapipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks that apply to cfg. The storage and
// out directories are created by a run, so only their nearest existing
// ancestor needs to be writable.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Public directory", cfg.Paths.PublicDir),
		CheckCreatableDirectory("Storage directory", cfg.Paths.StorageDir),
	}
	if cfg.Build.Prod {
		results = append(results, CheckCreatableDirectory("Out directory", cfg.Paths.OutDir))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
