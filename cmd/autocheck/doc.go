// Package main hosts the autocheck CLI entrypoint and command graph.
//
// Lifecycle and run commands translate into IPC calls against the daemon.
// Profile editors (account, location, task, settings) write the profile
// document directly and then ask a running daemon to reload, so edits work
// whether or not the daemon is up.
package main
