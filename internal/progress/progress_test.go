package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

// clockedBar returns a Bar whose time advances by step on every reading.
func clockedBar(w io.Writer, label string, total int64, step time.Duration) *Bar {
	b := New(w, label, total)
	t := time.Unix(1700000000, 0)
	b.start = t
	b.now = func() time.Time {
		t = t.Add(step)
		return t
	}
	return b
}

func TestBarRound(t *testing.T) {
	var buf bytes.Buffer
	b := clockedBar(&buf, "write Recipe", 600, 200*time.Millisecond)

	b.Round(480)
	out := buf.String()
	if !strings.HasPrefix(out, "\rwrite Recipe [") {
		t.Fatalf("output should start with the label: %q", out)
	}
	if !strings.Contains(out, "480/600 B (80.0%)") || !strings.Contains(out, "| 1 rounds |") {
		t.Errorf("output missing progress: %q", out)
	}
	if !strings.Contains(out, "ETA:") {
		t.Errorf("incomplete transfer should show ETA: %q", out)
	}
	if strings.Count(out, "=") != 24 {
		t.Errorf("bar should be 80%% filled: %q", out)
	}
}

func TestBarUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	b := clockedBar(&buf, "", 0, time.Second)
	b.Round(480)
	b.Round(960)
	if !strings.Contains(buf.String(), "\r960 B | 2 rounds") {
		t.Errorf("output = %q", buf.String())
	}
	if strings.Contains(buf.String(), "[") || strings.Contains(buf.String(), "ETA") {
		t.Errorf("unknown total should not draw a bar: %q", buf.String())
	}

	buf.Reset()
	b.Finish()
	if !strings.Contains(buf.String(), "960/960 B (100.0%)") || !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("finish = %q", buf.String())
	}
}

func TestBarThrottle(t *testing.T) {
	var buf bytes.Buffer
	b := clockedBar(&buf, "", 1000, 10*time.Millisecond)
	b.Round(100)
	b.Round(200)
	b.Round(300)
	if n := strings.Count(buf.String(), "\r"); n != 1 {
		t.Errorf("rendered %d times, want 1 within the interval", n)
	}
	b.Round(1000)
	if n := strings.Count(buf.String(), "\r"); n != 2 {
		t.Errorf("completion should always render, got %d renders", n)
	}
	if b.rounds != 4 {
		t.Errorf("rounds = %d, want 4", b.rounds)
	}
}

func TestBarFinishNoETA(t *testing.T) {
	var buf bytes.Buffer
	b := clockedBar(&buf, "read", 100, time.Second)
	b.Round(100)
	b.Finish()
	if strings.Contains(buf.String(), "ETA") {
		t.Errorf("complete transfer should not show ETA: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "["+strings.Repeat("=", barWidth)+"]") {
		t.Errorf("bar should be full: %q", buf.String())
	}
}

func TestNilBar(t *testing.T) {
	var b *Bar
	b.Round(10)
	b.Finish()
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{0, "0ms"},
		{1500 * time.Millisecond, "1.5s"},
		{30 * time.Second, "30.0s"},
		{90 * time.Second, "1m30s"},
		{5*time.Minute + 15*time.Second, "5m15s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
