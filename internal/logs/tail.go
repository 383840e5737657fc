package logs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TailOptions controls a Tail call. A negative Offset means "the last Limit
// lines"; otherwise reading starts at Offset bytes.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult holds complete lines and the offset just after the last one.
type TailResult struct {
	Lines  []string
	Offset int64
}

const (
	scanChunk    = 8 * 1024
	pollInterval = 250 * time.Millisecond
)

// Tail reads lines from path. When Follow is set and nothing new is
// available, it waits up to Wait for more. A missing file yields no lines.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}
	wait := max(opts.Wait, 0)

	var result TailResult
	if opts.Offset < 0 {
		result, err = lastLines(path, opts.Limit)
	} else {
		result, err = readFrom(path, opts.Offset)
	}
	if err != nil {
		return result, err
	}
	if len(result.Lines) > 0 || !opts.Follow || wait == 0 {
		return result, nil
	}
	return follow(ctx, path, result.Offset, wait)
}

// lastLines scans backwards from the last complete line until limit lines
// are collected.
func lastLines(path string, limit int) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	end, err := completeEnd(file, info.Size())
	if err != nil {
		return TailResult{}, err
	}
	if limit <= 0 || end == 0 {
		return TailResult{Offset: end}, nil
	}

	var buf []byte
	pos := end
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= limit {
		size := min(int64(scanChunk), pos)
		pos -= size
		chunk := make([]byte, size)
		if _, err := file.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return TailResult{}, fmt.Errorf("read log file: %w", err)
		}
		buf = append(chunk, buf...)
	}

	lines := splitLines(buf)
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// readFrom returns the complete lines after offset. A file shorter than
// offset was rotated or truncated and is read from the beginning.
func readFrom(path string, offset int64) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	data := make([]byte, info.Size()-offset)
	n, err := file.ReadAt(data, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return TailResult{Offset: offset}, fmt.Errorf("read log file: %w", err)
	}
	data = data[:n]

	cut := bytes.LastIndexByte(data, '\n')
	if cut < 0 {
		return TailResult{Offset: offset}, nil
	}
	return TailResult{Lines: splitLines(data[:cut+1]), Offset: offset + int64(cut) + 1}, nil
}

// follow blocks until complete lines appear after offset, wait elapses, or
// ctx ends. fsnotify events wake it early; the poll covers filesystems that
// do not deliver them.
func follow(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if watcher.Add(path) == nil {
			events = watcher.Events
		}
	}

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-timer.C:
			return result, nil
		case <-ticker.C:
		case <-events:
		}
		next, err := readFrom(path, result.Offset)
		if err != nil {
			return result, err
		}
		result.Offset = next.Offset
		if len(next.Lines) > 0 {
			result.Lines = next.Lines
			return result, nil
		}
	}
}

// completeEnd returns the offset just after the last newline in the first
// size bytes of file.
func completeEnd(file *os.File, size int64) (int64, error) {
	pos := size
	for pos > 0 {
		n := min(int64(scanChunk), pos)
		chunk := make([]byte, n)
		if _, err := file.ReadAt(chunk, pos-n); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read log file: %w", err)
		}
		if idx := bytes.LastIndexByte(chunk, '\n'); idx >= 0 {
			return pos - n + int64(idx) + 1, nil
		}
		pos -= n
	}
	return 0, nil
}

func splitLines(data []byte) []string {
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
