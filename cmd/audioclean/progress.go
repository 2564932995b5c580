package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"audioclean/internal/scanner"
)

// scanProgress returns a progress callback drawing a bar on w, or nil when w
// is not a terminal.
func scanProgress(w io.Writer) (func(scanner.Progress), func()) {
	if !isTerminalWriter(w) {
		return nil, func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("hashing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	total := -1
	update := func(p scanner.Progress) {
		if p.Total != total {
			total = p.Total
			bar.ChangeMax(total)
		}
		_ = bar.Set(p.Done)
	}
	return update, func() { _ = bar.Finish() }
}
