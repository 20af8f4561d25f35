package main

import "github.com/jrwynneiii/rtlaudio/config"

var cli struct {
	Verbose bool `help:"Prints debug output"`
	Profile bool `help:"Output a pprof profile to ./cpu.pprof"`

	Probe struct {
	} `cmd:"" help:"List the available SDR devices and SoapySDR configuration"`

	Listen struct {
		Freq    config.Frequency `short:"f" default:"${radio_frequency}" help:"Center frequency (accepts 148039000, 148.039M or 148.039MHz)"`
		Device  string           `short:"d" default:"${radio_device}" help:"Device index or serial (empty picks the first device)"`
		Gain    float64          `short:"g" default:"${radio_gain}" help:"Tuner gain in dB (0 = automatic)"`
		PPM     int              `short:"p" default:"${radio_ppm}" help:"Frequency correction in ppm"`
		Channel int              `short:"c" default:"${audio_channel}" help:"Audio channel selector (0 both, 1 left, 2 right)"`
		Mode    string           `default:"${dsp_mode}" enum:"raw,am,fm" help:"Detector mode"`
		FIR     bool             `default:"${dsp_fir}" help:"Decimate with a low-pass FIR instead of block averaging"`
		AGC     bool             `default:"${dsp_agc}" help:"Run the gain loop over the samples ahead of the decimator"`
		Volume  float64          `default:"${audio_volume}" help:"Output volume multiplier"`
		WAV     string           `default:"${audio_wav}" help:"Tee the audio into a 16-bit PCM WAV file"`
		TUI     bool             `default:"${tui_enabled}" help:"Full-screen dashboard instead of the line meter"`
		Backend string           `default:"${radio_backend}" enum:"rtlsdr,soapy" help:"SDR backend"`
	} `cmd:"" help:"Tune, demodulate and play audio from the SDR"`

	Record struct {
		Output  string           `arg:"" help:"Output file for raw u8 I/Q samples"`
		Freq    config.Frequency `short:"f" default:"${radio_frequency}" help:"Center frequency"`
		Device  string           `short:"d" default:"${radio_device}" help:"Device index or serial"`
		Gain    float64          `short:"g" default:"${radio_gain}" help:"Tuner gain in dB (0 = automatic)"`
		PPM     int              `short:"p" default:"${radio_ppm}" help:"Frequency correction in ppm"`
		Bytes   uint64           `short:"n" default:"0" help:"Stop after this many bytes (0 streams until cancelled)"`
		Backend string           `default:"${radio_backend}" enum:"rtlsdr,soapy" help:"SDR backend"`
	} `cmd:"" help:"Capture raw I/Q samples to a file"`
}
