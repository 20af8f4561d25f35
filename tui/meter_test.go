package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func renderOne(peak float64) string {
	var buf bytes.Buffer
	NewMeter(&buf).Render(peak)
	return buf.String()
}

func TestMeterRender(t *testing.T) {
	cases := []struct {
		name  string
		peak  float64
		cells int
	}{
		{"silence", 0, 0},
		{"near silence", 0.004, 0},
		{"half", 0.5, 15},
		{"unity", 1.0, 30},
		{"full scale quadrature pins the bar", 1.414, 30},
		{"negative clamps empty", -1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := "\x1b[2K\r[" + strings.Repeat("|", tc.cells) +
				strings.Repeat(" ", meterWidth-tc.cells) + "]"
			assert.Equal(t, want, renderOne(tc.peak))
		})
	}
}

func TestMeterRedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	m := NewMeter(&buf)
	m.Render(0.5)
	m.Render(0.1)

	// Every frame must start by erasing the line and homing the cursor,
	// never emitting a newline.
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\x1b[2K\r"))
	assert.NotContains(t, out, "\n")
}
