// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
//
// The daemon registers a Server at data_dir/autocheck.sock; CLI commands Dial
// it to start, stop, trigger runs, reload the profile, follow the activity
// feed, tail the log file and browse run history. Request and response types
// in types.go are the wire contract.
package ipc
