package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jrwynneiii/rtlaudio/config"
)

const wavBitDepth = 16

// WAVWriter tees the playback stream into a 16-bit PCM WAV file.
type WAVWriter struct {
	f   *os.File
	enc *wav.Encoder
	buf *audio.IntBuffer
}

func NewWAVWriter(path string) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating wav file: %w", err)
	}
	return &WAVWriter{
		f:   f,
		enc: wav.NewEncoder(f, config.AudioSampleRate, wavBitDepth, config.AudioChannels, 1),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: config.AudioChannels,
				SampleRate:  config.AudioSampleRate,
			},
			Data:           make([]int, 0, config.FrameCount*config.AudioChannels),
			SourceBitDepth: wavBitDepth,
		},
	}, nil
}

func (w *WAVWriter) Write(samples []float32) error {
	w.buf.Data = w.buf.Data[:0]
	for _, s := range samples {
		w.buf.Data = append(w.buf.Data, clampInt16(s))
	}
	return w.enc.Write(w.buf)
}

// clampInt16 scales a [-1, 1] sample to int16 range. Raw quadrature can peak
// past full scale, so out of range values saturate instead of wrapping.
func clampInt16(s float32) int {
	v := int(s * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

// Close finalizes the RIFF header; a WAV that skips this is unreadable.
func (w *WAVWriter) Close() error {
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}
