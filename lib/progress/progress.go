// Package progress renders a single-line terminal progress bar. Output is
// best-effort; rendering never influences exit codes or error handling.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// ticksPerSecond bounds the redraw rate of Throttled.
const ticksPerSecond = 60

// Renderer draws "name [====    ] current/total" lines, redrawing in place
// with a carriage return.
type Renderer struct {
	w        io.Writer
	width    func() int
	now      func() time.Time
	lastTick uint64
}

// New creates a Renderer writing to stdout, sized to the terminal.
func New() *Renderer {
	return &Renderer{
		w:     os.Stdout,
		width: terminalWidth,
		now:   time.Now,
	}
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return w
	}
	return 80
}

// Unthrottled draws the bar unconditionally. The line occupies the full
// terminal width minus one column; when the terminal is too narrow for the
// fixed parts nothing is drawn.
func (r *Renderer) Unthrottled(name string, current, total uint64) {
	wholeWidth := r.width() - 1
	numbers := fmt.Sprintf("%d/%d", current, total)
	barWidth := wholeWidth - len(name) - len(" [] ") - len(numbers)
	if barWidth < 1 || total < 1 || current > total {
		return
	}
	fillWidth := int(current * uint64(barWidth) / total)

	var b strings.Builder
	b.Grow(wholeWidth + 1)
	b.WriteByte('\r')
	b.WriteString(name)
	b.WriteString(" [")
	b.WriteString(strings.Repeat("=", fillWidth))
	b.WriteString(strings.Repeat(" ", barWidth-fillWidth))
	b.WriteString("] ")
	b.WriteString(numbers)
	fmt.Fprint(r.w, b.String())
}

// Throttled draws the bar at most ticksPerSecond times per second. Ticks are
// derived from the wall-clock time reported by r.now.
func (r *Renderer) Throttled(name string, current, total uint64) {
	now := r.now()
	ticks := uint64(now.Unix())*ticksPerSecond +
		uint64(now.Nanosecond())*ticksPerSecond/uint64(time.Second)
	if ticks == r.lastTick {
		return
	}
	r.lastTick = ticks
	r.Unthrottled(name, current, total)
}

// Finish completes a phase: a final full redraw and a newline.
func (r *Renderer) Finish(name string, total uint64) {
	r.Unthrottled(name, total, total)
	fmt.Fprintln(r.w)
}
