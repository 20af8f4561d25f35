package demod

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrwynneiii/rtlaudio/audio"
	"github.com/jrwynneiii/rtlaudio/config"
)

// fakeSink records everything written to it and can be primed to fail.
type fakeSink struct {
	blocks [][]float32
	errs   []error
}

func (s *fakeSink) Write(p []float32) error {
	s.blocks = append(s.blocks, append([]float32(nil), p...))
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func runPipeline(t *testing.T, pipe *Pipeline, blocks ...[]byte) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		pipe.Start()
		close(done)
	}()
	for _, b := range blocks {
		pipe.SampleInput <- b
	}
	close(pipe.SampleInput)
	<-done
}

func TestPipelinePlaysBlocks(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})
	sink := &fakeSink{}
	pipe := NewPipeline(tr, sink, nil)

	runPipeline(t, pipe, constantBlock(255, 255), constantBlock(127, 128))

	require.Len(t, sink.blocks, 2)
	assert.EqualValues(t, 2, pipe.Blocks.Load())
	assert.InDelta(t, 1.0, float64(sink.blocks[0][0]), 1e-6)
	assert.InDelta(t, 0.0, float64(sink.blocks[1][0]), 0.005)
	assert.InDelta(t, math.Sqrt2, pipe.MaxPeak(), 1e-6)
}

func TestPipelineSurvivesUnderrun(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})
	sink := &fakeSink{errs: []error{audio.ErrUnderrun}}
	pipe := NewPipeline(tr, sink, nil)

	runPipeline(t, pipe, constantBlock(255, 255), constantBlock(255, 255))

	assert.Len(t, sink.blocks, 2)
	assert.EqualValues(t, 1, pipe.Underruns.Load())
	assert.EqualValues(t, 2, pipe.Blocks.Load())
}

func TestPipelineDropsBadBlocks(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})
	sink := &fakeSink{}
	pipe := NewPipeline(tr, sink, nil)

	runPipeline(t, pipe, make([]byte, 100), constantBlock(255, 255))

	assert.Len(t, sink.blocks, 1)
	assert.EqualValues(t, 1, pipe.Dropped.Load())
	assert.EqualValues(t, 1, pipe.Blocks.Load())
}

func TestPipelineDrainsWhileStopping(t *testing.T) {
	tr, stopping := newTestTransform(t, Conf{})
	sink := &fakeSink{}
	pipe := NewPipeline(tr, sink, nil)

	stopping.Store(true)
	runPipeline(t, pipe, constantBlock(255, 255), constantBlock(255, 255))

	assert.Empty(t, sink.blocks)
	assert.Zero(t, pipe.Blocks.Load())
}

func TestPipelineDisablesBrokenTee(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})
	sink := &fakeSink{}
	tee := &fakeSink{errs: []error{errors.New("disk full")}}
	pipe := NewPipeline(tr, sink, tee)

	runPipeline(t, pipe, constantBlock(255, 255), constantBlock(255, 255))

	assert.Len(t, sink.blocks, 2)
	assert.Len(t, tee.blocks, 1)
}

func TestPipelineSpectrumSnapshot(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})
	sink := &fakeSink{}
	pipe := NewPipeline(tr, sink, nil)
	pipe.DoFFT = true

	assert.Nil(t, pipe.Spectrum())

	runPipeline(t, pipe, constantBlock(255, 255))

	// The snapshot goroutine publishes before its hold interval starts.
	deadline := time.After(2 * time.Second)
	for pipe.Spectrum() == nil {
		select {
		case <-deadline:
			t.Fatal("no spectrum published")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	bins := pipe.Spectrum()
	assert.Equal(t, config.FrameCount/fftStride, len(bins))
}
