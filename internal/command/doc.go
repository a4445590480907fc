// Package command is the single seam through which murmur spawns external
// programs (ffmpeg, ffprobe, command-line TTS engines).
//
// Executor.Run buffers stdout and stderr, enforces a per-invocation timeout,
// and converts failures into *ExecutionError carrying the exit code and a tail
// of stderr. Tests substitute a scripted Executor instead of real binaries.
package command
