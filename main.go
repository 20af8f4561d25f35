package main

import (
	"errors"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jrwynneiii/rtlaudio/radio"
)

var configFile = koanf.New(".")

func getConfigPath() string {
	paths := []string{"/etc/rtlaudio/config.hcl", "~/.config/rtlaudio/config.hcl", "./config.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Debugf("Found config file: %s", path)
			return path
		}
	}
	return ""
}

func loadConfig() {
	if path := getConfigPath(); path != "" {
		if err := configFile.Load(file.Provider(path), hcl.Parser(true)); err != nil {
			log.Errorf("Could not read config file: %v", err)
		}
	}
	configFile.Load(env.Provider("", env.Opt{
		Prefix: "RTLAUDIO_",
		TransformFunc: func(k, v string) (string, any) {
			key := strings.ToLower(strings.TrimPrefix(k, "RTLAUDIO_"))
			return strings.Replace(key, "_", ".", 1), v
		},
	}), nil)
}

// flagDefaults exposes config file values as flag defaults, so a config.hcl
// can change the out of the box behavior but flags always win.
func flagDefaults() kong.Vars {
	s := func(key, fallback string) string {
		if configFile.Exists(key) {
			return configFile.String(key)
		}
		return fallback
	}
	return kong.Vars{
		"radio_backend":   s("radio.backend", "rtlsdr"),
		"radio_device":    s("radio.device", ""),
		"radio_frequency": s("radio.frequency", "148039000"),
		"radio_gain":      s("radio.gain", "0"),
		"radio_ppm":       s("radio.ppm", "0"),
		"audio_channel":   s("audio.channel", "0"),
		"audio_volume":    s("audio.volume", "1.0"),
		"audio_wav":       s("audio.wav_path", ""),
		"dsp_mode":        s("dsp.mode", "raw"),
		"dsp_fir":         s("dsp.fir", "false"),
		"dsp_agc":         s("dsp.agc", "false"),
		"tui_enabled":     s("tui.enabled", "false"),
	}
}

func main() {
	loadConfig()

	flags := kong.Parse(&cli,
		kong.Name("rtlaudio"),
		kong.Description("Stream, demodulate and play audio from an RTL-SDR."),
		flagDefaults(),
		kong.UsageOnError(),
	)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			log.Fatalf("Could not create profile: %v", err)
		}
		pprof.StartCPUProfile(prof)
	}

	var code int
	switch flags.Command() {
	case "probe":
		radio.Probe()
	case "listen":
		code = runListen()
	case "record <output>":
		code = runRecord()
	default:
		log.Errorf("Command not recognized: %s", flags.Command())
		code = 1
	}

	if cli.Profile {
		pprof.StopCPUProfile()
	}
	os.Exit(code)
}
