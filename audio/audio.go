package audio

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/jrwynneiii/rtlaudio/config"
)

// ErrUnderrun reports that the device drained its ring buffer before we
// refilled it. The stream recovers on the next write, so callers should log
// it and keep going.
var ErrUnderrun = errors.New("playback underrun")

// Writer plays interleaved stereo float32 frames through the default output
// device. Write blocks until the device has taken the whole block, which is
// what paces the rest of the pipeline.
type Writer struct {
	stream *portaudio.Stream
	buf    []float32
}

func NewWriter() (*Writer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	w := &Writer{
		buf: make([]float32, config.FrameCount*config.AudioChannels),
	}
	stream, err := portaudio.OpenDefaultStream(
		0, config.AudioChannels, float64(config.AudioSampleRate), config.FrameCount, &w.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting playback stream: %w", err)
	}
	w.stream = stream
	log.Debugf("Playback stream open: %d Hz, %d channels, %d frames/block",
		config.AudioSampleRate, config.AudioChannels, config.FrameCount)
	return w, nil
}

func (w *Writer) Write(samples []float32) error {
	if len(samples) != len(w.buf) {
		return fmt.Errorf("audio block is %d samples, want %d", len(samples), len(w.buf))
	}
	copy(w.buf, samples)
	if err := w.stream.Write(); err != nil {
		if errors.Is(err, portaudio.OutputUnderflowed) {
			return ErrUnderrun
		}
		return err
	}
	return nil
}

// Close stops the stream, letting queued frames drain, then tears it down.
func (w *Writer) Close() error {
	err := w.stream.Stop()
	if cerr := w.stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()
	return err
}
