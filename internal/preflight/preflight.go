package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"autocheck/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Profile directory", filepath.Dir(cfg.Paths.ProfilePath)),
	}

	if strings.TrimSpace(cfg.CheckIn.BaseURL) != "" {
		results = append(results, CheckService(ctx, cfg.CheckIn.BaseURL, cfg.CheckIn.UserAgent))
	} else {
		results = append(results, Result{Name: serviceCheckName, Detail: "checkin.base_url not set"})
	}
	return results
}

// Failed returns only the failing results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
