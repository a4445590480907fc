// Package transcode runs the ffmpeg chain that turns fragments into the
// final track: concatenate, tempo-shift, volume, loop to the music's
// duration, and mix with the music.
//
// Argument builders are pure so invocations can be asserted without a
// binary; Runner sends them through a command.Executor.
package transcode
