// Package progress renders the byte progress of a fragmented transfer on a
// terminal line.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 30

// Bar tracks bytes moved by a multi-round transfer. A zero total means the
// size is unknown until the transfer ends, as for fragmented reads.
type Bar struct {
	output   io.Writer
	label    string
	total    int64
	current  int64
	rounds   int
	start    time.Time
	last     time.Time
	interval time.Duration
	now      func() time.Time
}

// New returns a Bar writing to w. Use io.Discard to disable it.
func New(w io.Writer, label string, total int64) *Bar {
	now := time.Now()
	return &Bar{
		output:   w,
		label:    label,
		total:    total,
		start:    now,
		interval: 100 * time.Millisecond,
		now:      time.Now,
	}
}

// Round records one acknowledged round; transferred is the cumulative byte
// count so far.
func (b *Bar) Round(transferred int64) {
	if b == nil {
		return
	}
	b.current = transferred
	b.rounds++
	now := b.now()
	if now.Sub(b.last) < b.interval && (b.total == 0 || b.current < b.total) {
		return
	}
	b.last = now
	fmt.Fprint(b.output, "\r"+b.line(now))
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	if b.total == 0 {
		b.total = b.current
	}
	fmt.Fprint(b.output, "\r"+b.line(b.now())+"\n")
}

func (b *Bar) line(now time.Time) string {
	var sb strings.Builder
	if b.label != "" {
		sb.WriteString(b.label + " ")
	}
	if b.total > 0 {
		percent := float64(b.current) / float64(b.total) * 100
		filled := min(int(float64(barWidth)*percent/100), barWidth)
		sb.WriteByte('[')
		sb.WriteString(strings.Repeat("=", filled))
		if filled < barWidth {
			sb.WriteByte('>')
			sb.WriteString(strings.Repeat("-", barWidth-filled-1))
		}
		fmt.Fprintf(&sb, "] %d/%d B (%.1f%%)", b.current, b.total, percent)
	} else {
		fmt.Fprintf(&sb, "%d B", b.current)
	}
	elapsed := now.Sub(b.start)
	fmt.Fprintf(&sb, " | %d rounds | Elapsed: %s", b.rounds, formatDuration(elapsed))
	if eta := b.eta(elapsed); eta > 0 {
		fmt.Fprintf(&sb, " | ETA: %s", formatDuration(eta))
	}
	return sb.String()
}

func (b *Bar) eta(elapsed time.Duration) time.Duration {
	if b.current <= 0 || b.current >= b.total || elapsed <= 0 {
		return 0
	}
	rate := float64(b.current) / elapsed.Seconds()
	return time.Duration(float64(b.total-b.current) / rate * float64(time.Second))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
