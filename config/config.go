package config

import "hz.tools/rf"

// Fixed stream geometry. The dongle delivers interleaved u8 I/Q at 240 kHz
// and the sound card consumes stereo float32 frames at 48 kHz, which leaves
// a 5:1 decimation between the two.
const (
	AudioSampleRate = 48000
	AudioChannels   = 2

	// FrameCount is the number of stereo frames per audio block. The I/Q
	// block size derived from it stays a multiple of 16384 bytes, which is
	// what librtlsdr wants for its transfer buffers.
	FrameCount = 16384

	SDRSampleRate = 240000
	Decimation    = SDRSampleRate / AudioSampleRate

	// IQBlockSize is the size in bytes of one raw I/Q block: FrameCount
	// output frames, Decimation input samples each, two bytes per sample.
	IQBlockSize = FrameCount * Decimation * 2
)

type RadioConf struct {
	Backend   string  `koanf:"backend"`
	Driver    string  `koanf:"driver"`
	Address   string  `koanf:"address"`
	Device    string  `koanf:"device"`
	Frequency rf.Hz   `koanf:"frequency"`
	Gain      float64 `koanf:"gain"`
	PPM       int     `koanf:"ppm"`
}

type AudioConf struct {
	Channel int     `koanf:"channel"`
	Volume  float64 `koanf:"volume"`
	WAVPath string  `koanf:"wav_path"`
}

type DSPConf struct {
	Mode              string  `koanf:"mode"`
	FIR               bool    `koanf:"fir"`
	AGC               bool    `koanf:"agc"`
	LowPassTransition float64 `koanf:"lowpass_transition_width"`
}

type AGCConf struct {
	Rate      float32 `koanf:"rate"`
	Reference float32 `koanf:"reference"`
	Gain      float32 `koanf:"gain"`
	MaxGain   float32 `koanf:"max_gain"`
}

// DefaultAGC returns the stock loop settings for the software AGC.
func DefaultAGC() AGCConf {
	return AGCConf{
		Rate:      0.01,
		Reference: 0.5,
		Gain:      1,
		MaxGain:   4000,
	}
}

type TuiConf struct {
	RefreshMs       int  `koanf:"refresh_ms"`
	EnableLogOutput bool `koanf:"enable_log_output"`
	EnableSpectrum  bool `koanf:"enable_spectrum"`
}

func DefaultTui() TuiConf {
	return TuiConf{
		RefreshMs:       250,
		EnableLogOutput: true,
		EnableSpectrum:  true,
	}
}
