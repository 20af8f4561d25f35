package demod

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/jrwynneiii/rtlaudio/audio"
)

// blockQueue bounds the hand-off between the driver callback and the audio
// write. The sound card's blocking consumption is the real backpressure; a
// few blocks of slack absorb scheduling jitter without adding real latency.
const blockQueue = 4

// AudioSink consumes one interleaved stereo block, blocking until the device
// has taken it.
type AudioSink interface {
	Write([]float32) error
}

// Pipeline pulls raw blocks off SampleInput, runs them through the transform
// and pushes the result into the sink. Counter fields are atomics so the
// meter and the dashboard can poll them from their own goroutines.
type Pipeline struct {
	SampleInput chan []byte

	transform *Transform
	sink      AudioSink
	tee       AudioSink

	Blocks    atomic.Uint64
	Dropped   atomic.Uint64
	Underruns atomic.Uint64

	peak    atomic.Uint64 // float64 bits, last block
	maxPeak atomic.Uint64 // float64 bits, session high-water mark

	// DoFFT enables the spectrum snapshot for the dashboard. Set it before
	// Start.
	DoFFT      bool
	fftWorking atomic.Bool
	fftMu      sync.RWMutex
	currentFFT []float64
}

// NewPipeline wires a transform to its sinks. tee may be nil; when present
// every block written to the sink is also handed to it.
func NewPipeline(transform *Transform, sink, tee AudioSink) *Pipeline {
	return &Pipeline{
		SampleInput: make(chan []byte, blockQueue),
		transform:   transform,
		sink:        sink,
		tee:         tee,
	}
}

// Start consumes sample blocks until SampleInput is closed. Bad blocks are
// dropped and underruns survived; the stream only ends when the producer
// closes the channel.
func (p *Pipeline) Start() {
	for block := range p.SampleInput {
		out, peak, err := p.transform.Process(block)
		if err != nil {
			p.Dropped.Add(1)
			log.Errorf("Dropping block: %v", err)
			continue
		}
		if out == nil {
			// Shutting down. Keep draining so the producer never stalls
			// on a full channel.
			continue
		}

		p.storePeak(peak)
		if p.DoFFT && !p.fftWorking.Load() {
			p.fftWorking.Store(true)
			go p.updateFFT(append([]complex64(nil), p.transform.Decimated()...))
		}

		if err := p.sink.Write(out); err != nil {
			if errors.Is(err, audio.ErrUnderrun) {
				p.Underruns.Add(1)
				log.Warn("Playback underrun, resuming")
			} else {
				log.Errorf("Audio write failed: %v", err)
			}
		}
		if p.tee != nil {
			if err := p.tee.Write(out); err != nil {
				log.Errorf("Stopping WAV capture: %v", err)
				p.tee = nil
			}
		}
		p.Blocks.Add(1)
	}
}

func (p *Pipeline) storePeak(peak float64) {
	p.peak.Store(math.Float64bits(peak))
	if peak > p.MaxPeak() {
		p.maxPeak.Store(math.Float64bits(peak))
	}
}

// Peak reports the peak magnitude of the most recent block.
func (p *Pipeline) Peak() float64 {
	return math.Float64frombits(p.peak.Load())
}

// MaxPeak reports the highest block peak seen since startup.
func (p *Pipeline) MaxPeak() float64 {
	return math.Float64frombits(p.maxPeak.Load())
}
