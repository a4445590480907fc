package deps

import (
	"context"
	"strings"
	"time"

	"murmur/internal/command"
)

const versionTimeout = 5 * time.Second

// Version runs `<binary> -version` and returns the first line of output, for
// example "ffmpeg version 6.1.1". It returns "" when the binary cannot run.
func Version(ctx context.Context, exec command.Executor, binary string) string {
	binary = strings.TrimSpace(binary)
	if binary == "" || exec == nil {
		return ""
	}
	stdout, _, err := command.Run(ctx, exec, binary, []string{"-hide_banner", "-version"}, versionTimeout)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(stdout)), "\n")
	return strings.TrimSpace(line)
}
