package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober wraps the ffprobe binary. The zero value uses "ffprobe" from PATH.
type Prober struct {
	Path string
}

func (p Prober) binary() string {
	if strings.TrimSpace(p.Path) == "" {
		return "ffprobe"
	}
	return p.Path
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration reads the container duration of a media file.
func (p Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", path}
	out, err := exec.CommandContext(ctx, p.binary(), args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse output: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: no duration in output", path)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
