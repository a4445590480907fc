// Package deps reports whether the external programs murmur runs (ffmpeg,
// ffprobe, a command-line TTS engine) are installed.
package deps
