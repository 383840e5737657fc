// Package history persists completed check-in runs in SQLite.
//
// Each run is one row in runs with its per-task outcomes in outcomes, keyed
// by declaration position. The store is append-mostly: the runner records a
// run once it finishes, the CLI and API read recent runs back, and Prune caps
// how many runs are retained.
package history
