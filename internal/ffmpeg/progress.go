package ffmpeg

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timeRegex  = regexp.MustCompile(`(?:^|\s)(?:out_)?time=\s*(-?[0-9]+:[0-9]{2}:[0-9]{2}(?:\.[0-9]+)?)`)
	speedRegex = regexp.MustCompile(`(?:^|\s)speed=\s*([0-9.]+)x`)
)

// Progress is one sample taken from ffmpeg's stats output. Percent is -1
// when Total is unknown.
type Progress struct {
	Elapsed time.Duration `json:"elapsed"`
	Total   time.Duration `json:"total"`
	Percent float64       `json:"percent"`
	Speed   float64       `json:"speed,omitempty"`
}

// ProgressFunc receives samples as they are parsed.
type ProgressFunc func(Progress)

// ParseProgressLine extracts the processed media time and speed from a stats
// line such as "frame=  240 fps=60 ... time=00:00:08.00 bitrate=... speed=2.0x".
func ParseProgressLine(line string) (elapsed time.Duration, speed float64, ok bool) {
	matches := timeRegex.FindStringSubmatch(line)
	if len(matches) < 2 {
		return 0, 0, false
	}
	elapsed, ok = parseClock(matches[1])
	if !ok {
		return 0, 0, false
	}
	if m := speedRegex.FindStringSubmatch(line); len(m) > 1 {
		speed, _ = strconv.ParseFloat(m[1], 64)
	}
	return elapsed, speed, true
}

// parseClock converts HH:MM:SS(.frac) to a duration. Negative clocks, which
// ffmpeg prints before the first frame, are treated as zero.
func parseClock(value string) (time.Duration, bool) {
	if strings.HasPrefix(value, "-") {
		return 0, true
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	total := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return total + time.Duration(seconds*float64(time.Second)), true
}

func newProgress(elapsed, total time.Duration, speed float64) Progress {
	p := Progress{Elapsed: elapsed, Total: total, Percent: -1, Speed: speed}
	if total > 0 {
		p.Percent = min(100, float64(elapsed)/float64(total)*100)
	}
	return p
}

// scanStatsLines splits on either \n or \r since ffmpeg redraws its stats
// line with carriage returns.
func scanStatsLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tail keeps the last n non-progress lines of output.
type tail struct {
	n     int
	lines []string
}

func (t *tail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, "\n")
}
