package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// pollInterval is how often follow mode rechecks the file.
const pollInterval = 250 * time.Millisecond

// TailOptions controls a Tail call. A negative Offset reads the last Limit
// lines; otherwise reading starts at Offset. With Follow set and nothing new
// to return, Tail waits up to Wait for more lines.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	// JobID keeps only lines that mention the job.
	JobID string
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log file at path. A missing file yields no lines
// and offset zero.
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

	keep := matcher(opts.JobID)
	var result TailResult
	if opts.Offset < 0 {
		result, err = readLast(path, opts.Limit, keep)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Truncated or rotated underneath us.
			offset = 0
		}
		result, err = readFrom(path, offset, keep)
	}
	if err != nil || len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, err
	}
	return follow(ctx, path, result.Offset, opts.Wait, keep)
}

func matcher(jobID string) func(string) bool {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool { return strings.Contains(line, jobID) }
}

// readLast keeps a ring of the last limit matching lines.
func readLast(path string, limit int, keep func(string) bool) (TailResult, error) {
	var ring []string
	start := 0
	offset, err := scan(path, 0, func(line string) {
		if limit <= 0 || !keep(line) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[start] = line
		start = (start + 1) % limit
	})
	if err != nil {
		return TailResult{}, err
	}
	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return TailResult{Lines: lines, Offset: offset}, nil
}

func readFrom(path string, offset int64, keep func(string) bool) (TailResult, error) {
	var lines []string
	next, err := scan(path, offset, func(line string) {
		if keep(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return TailResult{Offset: offset}, err
	}
	return TailResult{Lines: lines, Offset: next}, nil
}

// scan calls fn for every complete line after offset and returns the offset
// just past the last complete line. A trailing partial line is left for the
// next read.
func scan(path string, offset int64, fn func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		fn(strings.TrimRight(line, "\r\n"))
	}
}

func follow(ctx context.Context, path string, offset int64, wait time.Duration, keep func(string) bool) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-deadline.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
		}
		result, err := readFrom(path, offset, keep)
		if err != nil {
			return TailResult{Offset: offset}, err
		}
		offset = result.Offset
		if len(result.Lines) > 0 {
			return result, nil
		}
	}
}
