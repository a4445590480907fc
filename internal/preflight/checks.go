package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-shellwords"
	"golang.org/x/sys/unix"

	"murmur/internal/catalog"
	"murmur/internal/config"
	"murmur/internal/deps"
	"murmur/internal/tts"
)

const ttsCheckTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minMB free.
func CheckFreeSpace(name, path string, minMB int) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("statfs %s: %v", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if minMB > 0 && free < uint64(minMB)*1024*1024 {
		return Result{Name: name, Detail: fmt.Sprintf("%s, below the %d MB minimum", detail, minMB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckCatalog loads the voice and track catalog and verifies every track
// file exists.
func CheckCatalog(path string) Result {
	const name = "Catalog"
	cat, err := catalog.Load(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	var missing []string
	for _, track := range cat.Tracks() {
		if _, err := os.Stat(track.Path); err != nil {
			missing = append(missing, track.ID)
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("track audio missing for %s", strings.Join(missing, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d voices, %d tracks", len(cat.Voices()), len(cat.Tracks()))}
}

// CheckTTS verifies the TTS provider is reachable. It uses a single attempt.
func CheckTTS(ctx context.Context, provider tts.Provider) Result {
	name := fmt.Sprintf("TTS (%s)", provider.Name())
	checkCtx, cancel := context.WithTimeout(ctx, ttsCheckTimeout)
	defer cancel()
	if err := provider.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckSystemDeps evaluates the binaries murmur shells out to.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpeg.FFmpegBinary,
			Description: "Required for concatenation, tempo, volume, looping and mixing",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFmpeg.FFprobeBinary,
			Description: "Required for music track durations",
		},
	}
	if cfg.TTS.Provider == config.ProviderCommand {
		requirements = append(requirements, deps.Requirement{
			Name:        "TTS command",
			Command:     commandBinary(cfg.TTS.Command),
			Description: "Required by the command TTS provider",
		})
	}
	return deps.CheckBinaries(requirements)
}

func commandBinary(commandLine string) string {
	args, err := shellwords.Parse(commandLine)
	if err != nil || len(args) == 0 {
		return ""
	}
	return args[0]
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (unreachable)"
	}
	return err.Error()
}
