package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jrwynneiii/rtlaudio/demod"
)

// meterWidth is the 30-cell indicator inherited from the original tool; a
// peak of 1.0 fills 30 cells and full-scale quadrature pins the bar.
const meterWidth = 30

// Meter renders a single-line level bar on a terminal, erasing and redrawing
// in place so the stream status stays on one line.
type Meter struct {
	w     io.Writer
	width int
}

func NewMeter(w io.Writer) *Meter {
	return &Meter{w: w, width: meterWidth}
}

// Render draws one frame of the bar for the given block peak.
func (m *Meter) Render(peak float64) {
	cells := int(peak * float64(m.width))
	if cells > m.width {
		cells = m.width
	}
	if cells < 0 {
		cells = 0
	}
	fmt.Fprintf(m.w, "\x1b[2K\r[%-*s]", m.width, strings.Repeat("|", cells))
}

// Run redraws the bar from the pipeline's last block peak until the context
// is done, then clears the line so the shell prompt lands clean.
func (m *Meter) Run(ctx context.Context, pipe *demod.Pipeline, refresh time.Duration) {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(m.w, "\x1b[2K\r")
			return
		case <-ticker.C:
			m.Render(pipe.Peak())
		}
	}
}
