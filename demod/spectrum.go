package demod

import (
	"math"
	"time"

	"github.com/racerxdl/segdsp/tools"
	"gonum.org/v1/gonum/dsp/fourier"
)

// fftStride keeps the plot narrow enough to draw in a terminal cell grid.
const fftStride = 128

// fftFloor shifts power readings up so the widget only sees non-negative
// values; anything quieter than -fftFloor dB clamps to the baseline.
const fftFloor = 120.0

// fftHold throttles snapshots; the dashboard redraws far slower than blocks
// arrive.
const fftHold = 500 * time.Millisecond

// updateFFT computes a decimated power spectrum of one audio-rate block and
// publishes it for the dashboard. Runs on its own goroutine; fftWorking is
// already set by the caller and cleared here after the hold interval.
func (p *Pipeline) updateFFT(samples []complex64) {
	defer func() {
		time.Sleep(fftHold)
		p.fftWorking.Store(false)
	}()

	input := make([]complex128, len(samples))
	for i, s := range samples {
		input[i] = complex128(s)
	}

	fft := fourier.NewCmplxFFT(len(input))
	coeff := fft.Coefficients(nil, input)

	output := make([]float64, 0, len(coeff)/fftStride+1)
	for i := 0; i < len(coeff); i += fftStride {
		v := tools.ComplexAbsSquared(complex64(coeff[fft.ShiftIdx(i)]))
		db := 10.0*math.Log10(float64(v)) + fftFloor
		if math.IsNaN(db) || db < 0 {
			db = 0
		}
		output = append(output, db)
	}

	p.fftMu.Lock()
	p.currentFFT = output
	p.fftMu.Unlock()
}

// Spectrum returns the latest power spectrum snapshot, or nil before the
// first block lands.
func (p *Pipeline) Spectrum() []float64 {
	p.fftMu.RLock()
	defer p.fftMu.RUnlock()
	if p.currentFFT == nil {
		return nil
	}
	out := make([]float64, len(p.currentFFT))
	copy(out, p.currentFFT)
	return out
}
