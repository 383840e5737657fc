// Package logs tails the daemon log file for `autocheck logs --daemon`.
//
// Tail reads the last N lines with a backwards scan, continues from a byte
// offset, and in follow mode waits for new complete lines using fsnotify with
// a polling fallback. A file shorter than the requested offset is treated as
// rotated and read again from the start.
package logs
