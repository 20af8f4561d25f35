package demod

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync/atomic"

	SatHelper "github.com/opensatelliteproject/libsathelper"
	"github.com/racerxdl/segdsp/dsp"

	"github.com/jrwynneiii/rtlaudio/config"
)

// Channel selector values, matching the tool's -c flag.
const (
	ChannelBoth = iota
	ChannelLeft
	ChannelRight
)

// Detector modes. Raw copies the decimated quadrature component straight
// into the frame, faithful to the original receiver this tool grew out of.
// AM and FM are a conventional envelope detector and polar discriminator.
const (
	ModeRaw = "raw"
	ModeAM  = "am"
	ModeFM  = "fm"
)

// defaultFIRTransition is the low-pass transition width in Hz used when the
// config file does not say otherwise.
const defaultFIRTransition = 2000

type Conf struct {
	Mode    string
	Channel int
	Volume  float32

	// UseFIR swaps the boxcar decimator for a proper low-pass FIR.
	UseFIR        bool
	FIRTransition float64

	// UseAGC runs the SatHelper gain loop over the full-rate samples
	// before decimation.
	UseAGC bool
	AGC    config.AGCConf
}

// Transform converts one raw u8 I/Q block into one interleaved stereo audio
// block. It owns its output buffer for the life of the process and rewrites
// it in place on every call, so slots the channel selector skips keep
// whatever they held before. Not safe for concurrent use.
type Transform struct {
	mode    string
	channel int
	volume  float32

	stopping *atomic.Bool

	agc SatHelper.AGC
	fir *dsp.FirFilter

	iq   []complex64 // normalized full-rate samples
	agcd []complex64 // AGC output, same length as iq
	dec  []complex64 // decimated samples, one per output frame
	out  []float32   // interleaved stereo frames

	prev complex64 // discriminator state carried across blocks
}

func NewTransform(conf Conf, stopping *atomic.Bool) (*Transform, error) {
	switch conf.Mode {
	case ModeRaw, ModeAM, ModeFM:
	default:
		return nil, fmt.Errorf("unknown detector mode %q", conf.Mode)
	}
	switch conf.Channel {
	case ChannelBoth, ChannelLeft, ChannelRight:
	default:
		return nil, fmt.Errorf("channel selector must be 0, 1 or 2, got %d", conf.Channel)
	}

	volume := conf.Volume
	if volume == 0 {
		volume = 1
	}

	t := &Transform{
		mode:     conf.Mode,
		channel:  conf.Channel,
		volume:   volume,
		stopping: stopping,
		iq:       make([]complex64, config.FrameCount*config.Decimation),
		dec:      make([]complex64, config.FrameCount),
		out:      make([]float32, config.FrameCount*config.AudioChannels),
	}

	if conf.UseAGC {
		t.agc = SatHelper.NewAGC(conf.AGC.Rate, conf.AGC.Reference, conf.AGC.Gain, conf.AGC.MaxGain)
		t.agcd = make([]complex64, len(t.iq))
	}
	if conf.UseFIR {
		transition := conf.FIRTransition
		if transition <= 0 {
			transition = defaultFIRTransition
		}
		cutoff := float64(config.AudioSampleRate)/2 - transition/2
		t.fir = dsp.MakeDecimationFirFilter(config.Decimation,
			dsp.MakeLowPass(1, float64(config.SDRSampleRate), cutoff, transition))
	}

	return t, nil
}

// Process fills the reusable output block from one raw I/Q block and reports
// the peak magnitude seen across it. A nil slice with a nil error means the
// transform is shutting down; the output buffer is left untouched in that
// case. A block of the wrong size is rejected without touching the buffer
// either.
func (t *Transform) Process(iq []byte) ([]float32, float64, error) {
	if t.stopping != nil && t.stopping.Load() {
		return nil, 0, nil
	}
	if len(iq) != config.IQBlockSize {
		return nil, 0, fmt.Errorf("input block is %d bytes, want %d", len(iq), config.IQBlockSize)
	}

	NormalizeU8(iq, t.iq)
	samples := t.iq
	if t.agc != nil {
		t.agc.Work(&samples[0], &t.agcd[0], len(samples))
		samples = t.agcd
	}
	if t.fir != nil {
		t.dec = t.fir.Work(samples)
		if len(t.dec) != config.FrameCount {
			return nil, 0, fmt.Errorf("decimator produced %d samples, want %d", len(t.dec), config.FrameCount)
		}
	} else {
		decimate(samples, t.dec)
	}

	var maxA float64
	for j, z := range t.dec {
		i := float64(real(z))
		q := float64(imag(z))
		a := math.Sqrt(i*i + q*q)
		if a > maxA {
			maxA = a
		}

		var v float32
		switch t.mode {
		case ModeRaw:
			v = float32(q)
		case ModeAM:
			v = float32(a)
		case ModeFM:
			v = float32(cmplx.Phase(complex128(z) * cmplx.Conj(complex128(t.prev))))
			t.prev = z
		}
		v *= t.volume

		if t.channel == ChannelBoth || t.channel == ChannelLeft {
			t.out[j*2] = v
		}
		if t.channel == ChannelBoth || t.channel == ChannelRight {
			t.out[j*2+1] = v
		}
	}

	return t.out, maxA, nil
}

// Decimated exposes the most recent block of decimated samples. Valid until
// the next Process call; callers that hold on to it must copy.
func (t *Transform) Decimated() []complex64 {
	return t.dec
}

// NormalizeU8 converts interleaved u8 I/Q bytes into complex samples in
// [-1, 1]. 127.5 is the rtl-sdr zero point; no byte maps to exactly zero.
func NormalizeU8(iq []byte, dst []complex64) {
	n := len(iq) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = complex(u8Norm(iq[i*2]), u8Norm(iq[i*2+1]))
	}
}

func u8Norm(b byte) float32 {
	return (float32(b) - 127.5) / 127.5
}

// decimate averages config.Decimation consecutive samples per output sample,
// accumulating in float64 so long runs of same-signed input do not drift.
func decimate(in []complex64, out []complex64) {
	for j := range out {
		var sumI, sumQ float64
		base := j * config.Decimation
		for k := 0; k < config.Decimation; k++ {
			z := in[base+k]
			sumI += float64(real(z))
			sumQ += float64(imag(z))
		}
		out[j] = complex(float32(sumI/config.Decimation), float32(sumQ/config.Decimation))
	}
}
