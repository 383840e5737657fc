// Package logging assembles the slog loggers used by the autocheck daemon and CLI.
//
// It owns the console and JSON handlers, level and output plumbing, the
// in-memory StreamHub that backs the activity feed, and the on-disk event
// archive. Context helpers tag lines with run identifiers and trigger
// origins so a single check-in run can be followed across components.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same field names.
package logging
