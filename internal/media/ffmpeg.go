package media

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"

	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/pkg/log"
)

// FFmpeg wraps the ffmpeg and ffprobe binaries. Probing supplies
// chapter boundaries and duration; slicing extracts bounded windows as
// mono 16kHz mp3 for the speech-to-text service.
type FFmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
}

type FFmpegOption func(*FFmpeg)

// WithBinaries overrides the ffmpeg and ffprobe commands, for
// non-standard install locations.
func WithBinaries(ffmpegCmd, ffprobeCmd string) FFmpegOption {
	return func(ff *FFmpeg) {
		if ffmpegCmd != "" {
			ff.ffmpegCmd = ffmpegCmd
		}
		if ffprobeCmd != "" {
			ff.ffprobeCmd = ffprobeCmd
		}
	}
}

func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	ff := &FFmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
	}
	for _, opt := range opts {
		opt(ff)
	}
	return ff
}

func (ff *FFmpeg) Probe(ctx context.Context, mediaPath string) (*Info, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindResource, "ffprobe not found")
	}

	cmd := exec.CommandContext(ctx, cmdPath, ff.probeArgs(mediaPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		log.Error("ffprobe failed for %s: %v (%s)", mediaPath, err, stderr.String())
		return nil, apperr.Wrap(err, apperr.KindUpstream, "ffprobe failed").
			WithContext("path", mediaPath)
	}
	return parseProbeOutput(output)
}

// Slice extracts [startSec, startSec+durationSec) from the source into
// outPath as mono 16kHz mp3. A failed slice leaves no usable output.
func (ff *FFmpeg) Slice(ctx context.Context, srcPath string, startSec, durationSec float64, outPath string) error {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return apperr.Wrap(err, apperr.KindResource, "ffmpeg not found")
	}

	cmd := exec.CommandContext(ctx, cmdPath, ff.sliceArgs(srcPath, startSec, durationSec, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error("ffmpeg slice failed for %s @%0.3f+%0.3f: %v (%s)",
			srcPath, startSec, durationSec, err, stderr.String())
		return apperr.Wrap(err, apperr.KindUpstream, "ffmpeg slice failed").
			WithContext("path", srcPath).
			WithContext("start", startSec)
	}
	return nil
}

func (ff *FFmpeg) probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_chapters",
		path,
	}
}

func (ff *FFmpeg) sliceArgs(srcPath string, startSec, durationSec float64, outPath string) []string {
	// -ss before -i seeks on the demuxer, which is fast and accurate
	// enough for whisper-sized windows.
	return []string{
		"-hide_banner",
		"-v", "error",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(durationSec),
		"-i", srcPath,
		"-ac", "1",
		"-ar", "16000",
		"-vn",
		"-f", "mp3",
		outPath,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
