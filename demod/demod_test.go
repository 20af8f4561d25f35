package demod

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrwynneiii/rtlaudio/config"
)

func newTestTransform(t *testing.T, conf Conf) (*Transform, *atomic.Bool) {
	t.Helper()
	if conf.Mode == "" {
		conf.Mode = ModeRaw
	}
	var stopping atomic.Bool
	tr, err := NewTransform(conf, &stopping)
	require.NoError(t, err)
	return tr, &stopping
}

// constantBlock builds a full I/Q block with every in-phase byte set to i
// and every quadrature byte set to q.
func constantBlock(i, q byte) []byte {
	block := make([]byte, config.IQBlockSize)
	for n := 0; n < len(block); n += 2 {
		block[n] = i
		block[n+1] = q
	}
	return block
}

// quantize maps a [-1, 1] value onto the u8 wire format.
func quantize(v float64) byte {
	b := math.Round(v*127.5 + 127.5)
	if b > 255 {
		b = 255
	}
	if b < 0 {
		b = 0
	}
	return byte(b)
}

func maxAbs(samples []float32) float64 {
	var m float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > m {
			m = a
		}
	}
	return m
}

func TestProcessSilence(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})

	out, peak, err := tr.Process(constantBlock(127, 128))
	require.NoError(t, err)
	require.Len(t, out, config.FrameCount*config.AudioChannels)

	// 127 and 128 straddle the 127.5 zero point; nothing can be closer to
	// silence than half a quantization step on each component.
	step := 1.0 / 127.5
	assert.Less(t, peak, step)
	assert.Less(t, maxAbs(out), step)
}

func TestProcessFullScale(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})

	out, peak, err := tr.Process(constantBlock(255, 255))
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt2, peak, 1e-6)
	assert.InDelta(t, 1.0, float64(out[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(out[1]), 1e-6)
}

func TestProcessAveragesEachFrame(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})

	// Identical samples within a frame must survive averaging exactly.
	out, _, err := tr.Process(constantBlock(200, 60))
	require.NoError(t, err)

	want := (60.0 - 127.5) / 127.5
	for j := 0; j < 16; j++ {
		assert.InDelta(t, want, float64(out[j*2]), 1e-6, "frame %d", j)
	}
}

func TestProcessAveragesAcrossFrame(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})

	// Vary the quadrature bytes within each frame; the output must be the
	// mean of the five normalized values, not any single one of them.
	block := make([]byte, config.IQBlockSize)
	qs := []byte{10, 60, 127, 200, 250}
	var want float64
	for _, q := range qs {
		want += (float64(q) - 127.5) / 127.5
	}
	want /= float64(len(qs))

	for n := 0; n < config.FrameCount*config.Decimation; n++ {
		block[n*2] = 128
		block[n*2+1] = qs[n%config.Decimation]
	}

	out, _, err := tr.Process(block)
	require.NoError(t, err)
	assert.InDelta(t, want, float64(out[0]), 1e-6)
	assert.InDelta(t, want, float64(out[2]), 1e-6)
}

func TestChannelSelector(t *testing.T) {
	cases := []struct {
		name    string
		channel int
		left    bool
		right   bool
	}{
		{"both", ChannelBoth, true, true},
		{"left", ChannelLeft, true, false},
		{"right", ChannelRight, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, _ := newTestTransform(t, Conf{Channel: tc.channel})
			out, _, err := tr.Process(constantBlock(255, 255))
			require.NoError(t, err)

			var badLeft, badRight int
			for j := 0; j < config.FrameCount; j++ {
				l, r := float64(out[j*2]), float64(out[j*2+1])
				if tc.left && math.Abs(l-1) > 1e-6 || !tc.left && l != 0 {
					badLeft++
				}
				if tc.right && math.Abs(r-1) > 1e-6 || !tc.right && r != 0 {
					badRight++
				}
			}
			assert.Zero(t, badLeft, "left slots out of contract")
			assert.Zero(t, badRight, "right slots out of contract")
		})
	}
}

func TestSkippedSlotsKeepPreviousContents(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{Channel: ChannelLeft})

	first, _, err := tr.Process(constantBlock(255, 255))
	require.NoError(t, err)
	second, _, err := tr.Process(constantBlock(127, 64))
	require.NoError(t, err)

	// Same backing buffer both times, and the untouched right slots still
	// hold their initial values.
	assert.Same(t, &first[0], &second[0])
	for j := 0; j < config.FrameCount; j++ {
		require.Zero(t, second[j*2+1], "right slot %d", j)
	}
}

func TestTerminationFlagShortCircuits(t *testing.T) {
	tr, stopping := newTestTransform(t, Conf{})

	before, _, err := tr.Process(constantBlock(255, 255))
	require.NoError(t, err)
	snapshot := append([]float32(nil), before...)

	stopping.Store(true)
	out, peak, err := tr.Process(constantBlock(10, 10))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Zero(t, peak)

	// The output buffer must not have been touched by the aborted call.
	assert.Equal(t, snapshot, before)
}

func TestRejectsWrongSizeBlock(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{})

	before, _, err := tr.Process(constantBlock(255, 255))
	require.NoError(t, err)
	snapshot := append([]float32(nil), before...)

	for _, n := range []int{0, 1, config.IQBlockSize - 2, config.IQBlockSize + 2} {
		out, _, err := tr.Process(make([]byte, n))
		assert.Error(t, err, "size %d", n)
		assert.Nil(t, out)
	}
	assert.Equal(t, snapshot, before)
}

func TestOutputLengthIsInvariant(t *testing.T) {
	for _, mode := range []string{ModeRaw, ModeAM, ModeFM} {
		tr, _ := newTestTransform(t, Conf{Mode: mode})
		out, _, err := tr.Process(constantBlock(90, 180))
		require.NoError(t, err)
		assert.Len(t, out, config.FrameCount*config.AudioChannels, "mode %s", mode)
	}
}

func TestModeAMEnvelope(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{Mode: ModeAM})

	out, peak, err := tr.Process(constantBlock(255, 255))
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, float64(out[0]), 1e-6)
	assert.InDelta(t, math.Sqrt2, peak, 1e-6)

	// Envelope is sign-blind.
	out, _, err = tr.Process(constantBlock(0, 0))
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, float64(out[0]), 1e-6)
}

func TestModeFMConstantRotation(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{Mode: ModeFM})

	// A phasor rotating a fixed step per full-rate sample comes out of the
	// discriminator as a constant: step times the decimation factor.
	step := math.Pi / 40
	block := make([]byte, config.IQBlockSize)
	for n := 0; n < config.FrameCount*config.Decimation; n++ {
		phi := step * float64(n)
		block[n*2] = quantize(0.9 * math.Cos(phi))
		block[n*2+1] = quantize(0.9 * math.Sin(phi))
	}

	out, _, err := tr.Process(block)
	require.NoError(t, err)

	// Skip frame zero; the discriminator has no previous sample yet.
	var sum float64
	for j := 1; j < config.FrameCount; j++ {
		sum += float64(out[j*2])
	}
	mean := sum / float64(config.FrameCount-1)
	assert.InDelta(t, step*config.Decimation, mean, 0.01)
}

func TestVolumeScalesOutput(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{Volume: 0.25})

	out, peak, err := tr.Process(constantBlock(255, 255))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, float64(out[0]), 1e-6)
	// Peak reflects the signal, not the playback level.
	assert.InDelta(t, math.Sqrt2, peak, 1e-6)
}

func TestFIRDecimatorKeepsGeometry(t *testing.T) {
	tr, _ := newTestTransform(t, Conf{UseFIR: true})

	// Warm the filter up, then check the steady state: a DC input must
	// come out near DC with unit gain.
	var out []float32
	var err error
	for i := 0; i < 3; i++ {
		out, _, err = tr.Process(constantBlock(255, 255))
		require.NoError(t, err)
	}
	require.Len(t, out, config.FrameCount*config.AudioChannels)
	assert.InDelta(t, 1.0, float64(out[config.FrameCount]), 0.05)
}

func TestNewTransformValidation(t *testing.T) {
	var stopping atomic.Bool

	_, err := NewTransform(Conf{Mode: "ssb"}, &stopping)
	assert.Error(t, err)

	_, err = NewTransform(Conf{Mode: ModeRaw, Channel: 3}, &stopping)
	assert.Error(t, err)

	_, err = NewTransform(Conf{Mode: ModeRaw, Channel: -1}, &stopping)
	assert.Error(t, err)
}

func TestNormalizeU8Extremes(t *testing.T) {
	dst := make([]complex64, 2)
	NormalizeU8([]byte{0, 255, 127, 128}, dst)

	assert.InDelta(t, -1.0, float64(real(dst[0])), 1e-6)
	assert.InDelta(t, 1.0, float64(imag(dst[0])), 1e-6)
	assert.InDelta(t, -0.5/127.5, float64(real(dst[1])), 1e-6)
	assert.InDelta(t, 0.5/127.5, float64(imag(dst[1])), 1e-6)
}
