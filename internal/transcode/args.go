package transcode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	minAtempo = 0.5
	maxAtempo = 2.0

	// IntermediateCodec is used for every file between fragments and the mix.
	IntermediateCodec = "pcm_s16le"

	mixFilter = "[0:a][1:a]amix=inputs=2:duration=longest:dropout_transition=0[out]"
)

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
}

// ConcatArgs joins the entries of a concat-demuxer list file.
func ConcatArgs(listPath, output string, sampleRate int) []string {
	args := baseArgs()
	args = append(args, "-f", "concat", "-safe", "0", "-i", listPath)
	args = append(args, intermediateCodecArgs(sampleRate)...)
	return append(args, output)
}

// TempoArgs speeds input up (or slows it down) by multiplier without
// changing pitch.
func TempoArgs(input, output string, multiplier float64, sampleRate int) ([]string, error) {
	chain, err := AtempoChain(multiplier)
	if err != nil {
		return nil, err
	}
	args := baseArgs()
	args = append(args, "-i", input, "-filter:a", chain)
	args = append(args, intermediateCodecArgs(sampleRate)...)
	return append(args, output), nil
}

// VolumeArgs scales input by a linear gain factor.
func VolumeArgs(input, output string, gain float64, sampleRate int) ([]string, error) {
	if math.IsNaN(gain) || gain < 0 || gain > 1 {
		return nil, fmt.Errorf("volume gain %v outside [0, 1]", gain)
	}
	args := baseArgs()
	args = append(args, "-i", input, "-filter:a", "volume="+formatNumber(gain))
	args = append(args, intermediateCodecArgs(sampleRate)...)
	return append(args, output), nil
}

// LoopArgs repeats input indefinitely and truncates the result to seconds.
func LoopArgs(input, output string, seconds float64, sampleRate int) ([]string, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return nil, fmt.Errorf("loop duration %v must be positive", seconds)
	}
	args := baseArgs()
	args = append(args, "-stream_loop", "-1", "-i", input, "-t", formatNumber(seconds))
	args = append(args, intermediateCodecArgs(sampleRate)...)
	return append(args, output), nil
}

// MixArgs sums speech and music over the longer of the two timelines and
// encodes the final artifact.
func MixArgs(speech, music, output string, enc Encoding) []string {
	args := baseArgs()
	args = append(args, "-i", speech, "-i", music, "-filter_complex", mixFilter, "-map", "[out]")
	args = append(args, enc.codecArgs()...)
	return append(args, output)
}

// AtempoChain builds an atempo filter chain whose factors each stay within
// the filter's supported range and multiply to multiplier.
func AtempoChain(multiplier float64) (string, error) {
	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier <= 0 {
		return "", errors.New("tempo multiplier must be a positive number")
	}
	var factors []string
	remaining := multiplier
	for remaining > maxAtempo {
		factors = append(factors, "atempo="+formatNumber(maxAtempo))
		remaining /= maxAtempo
	}
	for remaining < minAtempo {
		factors = append(factors, "atempo="+formatNumber(minAtempo))
		remaining /= minAtempo
	}
	factors = append(factors, "atempo="+formatNumber(remaining))
	return strings.Join(factors, ","), nil
}

// ConcatList renders a concat-demuxer list. Single quotes in paths are
// escaped the way the demuxer expects.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	return b.String()
}

func intermediateCodecArgs(sampleRate int) []string {
	args := []string{"-c:a", IntermediateCodec}
	if sampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(sampleRate))
	}
	return args
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
