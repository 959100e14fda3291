package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const barWidth = 30

type terminalService struct {
	mu       sync.Mutex
	w        io.Writer
	begin    time.Time
	last     time.Time
	done     int
	total    int
	finished bool
}

// NewTerminal draws a single progress line on w, redrawn in place.
func NewTerminal(w io.Writer) IService {
	return &terminalService{w: w, begin: time.Now()}
}

func (svc *terminalService) Report(done, total int) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.done, svc.total = done, total
	// Redraw at most every 100ms except for the final frame.
	if done < total && time.Since(svc.last) < 100*time.Millisecond {
		return
	}
	svc.last = time.Now()
	fmt.Fprint(svc.w, "\r"+svc.line())
}

func (svc *terminalService) Finish() {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.finished {
		return
	}
	svc.finished = true
	fmt.Fprint(svc.w, "\r"+svc.line()+"\n")
}

func (svc *terminalService) line() string {
	return renderLine(svc.done, svc.total, time.Since(svc.begin))
}

func renderLine(done, total int, elapsed time.Duration) string {
	ratio := 0.0
	if total > 0 {
		ratio = float64(done) / float64(total)
	}
	if ratio > 1 {
		ratio = 1
	}

	filled := int(ratio * barWidth)
	bar := color.GreenString(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)

	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(done) / s
	}

	return fmt.Sprintf("%3.0f%%|%s| %d/%d [%s, %.2fit/s]", ratio*100, bar, done, total, elapsed.Truncate(time.Second), rate)
}
