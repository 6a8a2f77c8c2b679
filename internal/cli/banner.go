package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/t77yq/cronthat/internal/runner"
)

// BannerLayout formats the timestamp printed before every run
const BannerLayout = "2006-01-02 15:04:05.000000 -07:00"

// banner prints a timestamped line before every run and a blank line after
// it, and warns about failed runs that do not stop the schedule.
type banner struct {
	next        runner.Runner
	out         io.Writer
	now         func() time.Time
	stopOnError bool
	stamp       *color.Color
	warning     *color.Color
}

func newBanner(next runner.Runner, out io.Writer, now func() time.Time, stopOnError bool) *banner {
	return &banner{
		next:        next,
		out:         out,
		now:         now,
		stopOnError: stopOnError,
		stamp:       color.New(color.FgCyan),
		warning:     color.New(color.FgYellow),
	}
}

func (b *banner) Run(ctx context.Context, job runner.Job) (int, error) {
	fmt.Fprintf(b.out, "%s -- Spawning command\n", b.stamp.Sprint(b.now().Format(BannerLayout)))

	code, err := b.next.Run(ctx, job)
	fmt.Fprintln(b.out)

	if err == nil && code != 0 && !b.stopOnError {
		b.warning.Fprintln(b.out, "warning: command exited with non-zero status code")
	}
	return code, err
}
