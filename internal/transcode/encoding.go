package transcode

import (
	"strconv"
	"strings"
)

// Encoding describes the final artifact's codec settings.
type Encoding struct {
	Format     string
	Bitrate    string
	SampleRate int
}

// Extension returns the file extension for the final artifact.
func (e Encoding) Extension() string {
	format := strings.ToLower(strings.TrimSpace(e.Format))
	if format == "" {
		return "mp3"
	}
	return format
}

func (e Encoding) codecArgs() []string {
	var args []string
	switch e.Extension() {
	case "wav":
		args = []string{"-c:a", IntermediateCodec}
	case "flac":
		args = []string{"-c:a", "flac"}
	case "ogg":
		args = []string{"-c:a", "libvorbis"}
	case "m4a":
		args = []string{"-c:a", "aac"}
	default:
		args = []string{"-c:a", "libmp3lame"}
	}
	if e.Bitrate != "" && e.Extension() != "wav" && e.Extension() != "flac" {
		args = append(args, "-b:a", e.Bitrate)
	}
	if e.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(e.SampleRate))
	}
	return args
}
