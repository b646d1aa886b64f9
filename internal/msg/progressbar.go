package msg

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar renders finished/total commands on a single, rewritten line.
type ProgressBar struct {
	Total      int64
	Current    int64
	Indent     int
	Start      time.Time
	W          io.Writer
	Label      string
	lastPrint  time.Time
	throbIndex int
}

var throbbers = []rune{'|', '/', '-', '\\'}

func NewProgressBar(total int64, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total:     total,
		Indent:    indent,
		Start:     time.Now(),
		W:         w,
		lastPrint: time.Time{},
	}
}

// Add advances the bar by n steps and redraws at most every 40ms.
func (pb *ProgressBar) Add(n int64, label string) {
	pb.Current += n
	pb.Label = label
	if time.Since(pb.lastPrint) > 40*time.Millisecond {
		pb.print(false)
		pb.lastPrint = time.Now()
	}
}

// Redraw forces a redraw, e.g. after other output clobbered the line.
func (pb *ProgressBar) Redraw() {
	pb.print(false)
	pb.lastPrint = time.Now()
}

func (pb *ProgressBar) print(finish bool) {
	width := 40
	percent := float64(pb.Current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(width)), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	fmt.Fprintf(pb.W, "\r\033[K%s%6.f%% [%s] %c %d/%d %s",
		strings.Repeat(" ", pb.Indent),
		percent*100,
		bar,
		throb,
		pb.Current,
		pb.Total,
		pb.Label,
	)
}

func (pb *ProgressBar) Finish() {
	pb.Label = time.Since(pb.Start).Round(time.Millisecond).String()
	pb.print(true)
	fmt.Fprintln(pb.W)
}
