package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// Progress is one parsed update from the transcoder's "-progress pipe:1"
// key/value stream.
type Progress struct {
	Frame     int64
	OutTimeUS int64
	TotalSize int64
	Speed     string
	State     string // "continue" or "end"
}

// OutTime returns the output timestamp as a duration.
func (p Progress) OutTime() time.Duration {
	return time.Duration(p.OutTimeUS) * time.Microsecond
}

// End reports whether this update is the final one.
func (p Progress) End() bool { return p.State == "end" }

// Percent converts the output timestamp into a 0..100 completion figure
// against the target duration, clamped at both ends.
func (p Progress) Percent(target time.Duration) int {
	if target <= 0 {
		return 0
	}
	pct := int(p.OutTime() * 100 / target)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// ProgressParser accumulates key/value lines into complete updates.
type ProgressParser struct {
	current Progress
}

func NewProgressParser() *ProgressParser { return &ProgressParser{} }

// ParseLine consumes one line and reports whether a complete update is
// ready (the stream terminates each update with a "progress=" line).
func (p *ProgressParser) ParseLine(line string) bool {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return false
	}
	switch key {
	case "frame":
		p.current.Frame, _ = strconv.ParseInt(value, 10, 64)
	case "out_time_us":
		p.current.OutTimeUS, _ = strconv.ParseInt(value, 10, 64)
	case "out_time":
		// Older builds emit only the HH:MM:SS.micros form.
		if p.current.OutTimeUS == 0 {
			if d, err := parseClockTime(value); err == nil {
				p.current.OutTimeUS = d.Microseconds()
			}
		}
	case "total_size":
		p.current.TotalSize, _ = strconv.ParseInt(value, 10, 64)
	case "speed":
		p.current.Speed = value
	case "progress":
		p.current.State = value
		return true
	}
	return false
}

// Current returns the latest accumulated update.
func (p *ProgressParser) Current() Progress { return p.current }

// parseClockTime parses the transcoder's HH:MM:SS.micros timestamp.
func parseClockTime(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, strconv.ErrSyntax
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return total, nil
}
