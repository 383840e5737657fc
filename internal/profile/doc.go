// Package profile owns the durable key/value document that holds accounts,
// locations, tasks and global settings.
//
// The document is a single JSON object keyed by top-level names ("accounts",
// "locations", "tasks", "scheduletime", "wecom", "debug"). Store.Get decodes
// one key into a caller-supplied default, Store.Save merges top-level keys and
// replaces the file atomically, and Store.Snapshot decodes everything at once
// into typed records for a run. Watcher reports external edits so the daemon
// can reschedule without a restart.
package profile
