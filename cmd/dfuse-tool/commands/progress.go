package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moffa90/go-dfuse/bootloader"
)

// progressBar renders a visual progress bar
type progressBar struct {
	width int
}

func (pb progressBar) render(percentage float64) string {
	filled := int(float64(pb.width) * percentage / 100.0)
	if filled > pb.width {
		filled = pb.width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("#", filled) + strings.Repeat(".", pb.width-filled)
	return fmt.Sprintf("[%s] %5.1f%%", bar, percentage)
}

// progressPrinter returns a callback that redraws one line per phase on w.
func progressPrinter(w io.Writer) bootloader.ProgressCallback {
	bar := progressBar{width: 40}
	var lastPhase string

	return func(p bootloader.Progress) {
		if p.Phase == bootloader.PhaseComplete {
			if lastPhase != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "Done, %d bytes in %s\n", p.Bytes, p.ElapsedTime.Round(time.Millisecond))
			lastPhase = ""
			return
		}

		if p.Phase != lastPhase {
			if lastPhase != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s\n", strings.ToUpper(p.Phase))
			lastPhase = p.Phase
		}

		fmt.Fprintf(w, "\r\033[K%s | %d/%d | %d bytes",
			bar.render(p.Percentage), p.Current, p.Total, p.Bytes)
	}
}
