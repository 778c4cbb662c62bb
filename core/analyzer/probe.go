package analyzer

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"sonexa/logger"
)

// durationProbe shells out to an external tool to read the media duration.
// ffprobe is tried first, then afinfo (macOS). When neither works the
// duration defaults to zero.
type durationProbe struct {
	ffprobePath string
	afinfoPath  string
}

var afinfoDurationRe = regexp.MustCompile(`duration:\s*([\d.]+)`)

func (d *durationProbe) duration(ctx context.Context, path string) float64 {
	if secs, ok := d.ffprobe(ctx, path); ok {
		return secs
	}
	if secs, ok := d.afinfo(ctx, path); ok {
		return secs
	}
	logger.Warn("could not determine duration", logger.String("path", path))
	return 0
}

func (d *durationProbe) ffprobe(ctx context.Context, path string) (float64, bool) {
	args := []string{
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, d.ffprobePath, args...)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return 0, false
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}

func (d *durationProbe) afinfo(ctx context.Context, path string) (float64, bool) {
	cmd := exec.CommandContext(ctx, d.afinfoPath, path)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return 0, false
	}

	match := afinfoDurationRe.FindStringSubmatch(out.String())
	if match == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return secs, true
}
