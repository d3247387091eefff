package mediasvc

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FFProbe shells out to ffprobe to read the container duration.
type FFProbe struct {
	Path string
}

var _ DurationProber = FFProbe{}

func (p FFProbe) Probe(ctx context.Context, file string) (float64, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	).Output()
	if err != nil {
		return 0, errors.Wrap(err, "running ffprobe")
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, errors.Wrap(err, "parsing ffprobe output")
	}
	return secs, nil
}
