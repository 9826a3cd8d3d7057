package ffmpeg

import (
	"fmt"
	"strconv"
	"time"
)

// CaptureArgs buffers up to maxDuration of a live playlist into out with a
// pure stream copy; no re-encode happens until clip time.
func CaptureArgs(streamURL, out string, maxDuration time.Duration, userAgent string) []string {
	args := []string{"-hide_banner", "-y"}
	if userAgent != "" {
		args = append(args, "-user_agent", userAgent)
	}
	args = append(args,
		"-i", streamURL,
		"-t", formatSeconds(maxDuration),
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	)
	return args
}

// ClipArgs cuts [start, start+duration) out of the buffer and re-encodes it
// for web delivery: H.264 medium/CRF 22, AAC 128k, faststart container.
func ClipArgs(buffer, out string, start, duration time.Duration) []string {
	return []string{
		"-hide_banner", "-y",
		"-ss", formatSeconds(start),
		"-i", buffer,
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "22",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		out,
	}
}

// ThumbnailArgs extracts the single frame at offset into out.
func ThumbnailArgs(input, out string, offset time.Duration) []string {
	return []string{
		"-hide_banner", "-y",
		"-ss", formatSeconds(offset),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "4",
		out,
	}
}

// PreviewArgs samples evenly spaced frames across the buffer into the
// numbered outPattern (e.g. "preview_%02d.jpg"). intervalSeconds is the
// gap between sampled frames.
func PreviewArgs(buffer, outPattern string, intervalSeconds int) []string {
	if intervalSeconds < 1 {
		intervalSeconds = 1
	}
	return []string{
		"-hide_banner", "-y",
		"-i", buffer,
		"-vf", fmt.Sprintf("fps=1/%d", intervalSeconds),
		"-q:v", "5",
		outPattern,
	}
}

// formatSeconds renders a duration as fractional seconds, the way the
// transcoder expects positional time arguments.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
