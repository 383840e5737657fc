// Package preflight provides readiness checks for the filesystem paths and
// the external attendance service that autocheck depends on.
//
// The daemon logs RunAll results at startup, and the CLI "autocheck status"
// command renders them next to the scheduler state. Checks never modify
// anything and a failing check never blocks a run.
package preflight
