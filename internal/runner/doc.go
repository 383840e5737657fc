// Package runner executes one complete check-in run.
//
// A run takes a fresh profile snapshot, resolves enabled tasks, attempts each
// one with bounded concurrency, reports every outcome to the activity feed,
// builds a summary, optionally notifies WeCom, and records the result in the
// history store. At most one run is active at a time; overlapping triggers are
// dropped with ErrRunInProgress rather than queued.
package runner
