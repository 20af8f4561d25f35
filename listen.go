package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jrwynneiii/rtlaudio/audio"
	"github.com/jrwynneiii/rtlaudio/config"
	"github.com/jrwynneiii/rtlaudio/demod"
	"github.com/jrwynneiii/rtlaudio/radio"
	"github.com/jrwynneiii/rtlaudio/tui"
)

func runListen() int {
	rconf := config.RadioConf{
		Backend:   cli.Listen.Backend,
		Driver:    configFile.String("radio.driver"),
		Address:   configFile.String("radio.address"),
		Device:    cli.Listen.Device,
		Frequency: cli.Listen.Freq.Hz(),
		Gain:      cli.Listen.Gain,
		PPM:       cli.Listen.PPM,
	}

	agcConf := config.DefaultAGC()
	if err := configFile.Unmarshal("agc", &agcConf); err != nil {
		log.Warnf("Ignoring bad agc config: %v", err)
	}

	var stopping atomic.Bool
	transform, err := demod.NewTransform(demod.Conf{
		Mode:          cli.Listen.Mode,
		Channel:       cli.Listen.Channel,
		Volume:        float32(cli.Listen.Volume),
		UseFIR:        cli.Listen.FIR,
		FIRTransition: configFile.Float64("dsp.lowpass_transition_width"),
		UseAGC:        cli.Listen.AGC,
		AGC:           agcConf,
	}, &stopping)
	if err != nil {
		log.Fatalf("Invalid DSP configuration: %v", err)
	}

	speaker, err := audio.NewWriter()
	if err != nil {
		log.Fatalf("Could not open audio output: %v", err)
	}
	defer speaker.Close()

	var tee demod.AudioSink
	if cli.Listen.WAV != "" {
		w, err := audio.NewWAVWriter(cli.Listen.WAV)
		if err != nil {
			log.Fatalf("Could not open WAV file: %v", err)
		}
		defer w.Close()
		tee = w
		log.Infof("Teeing audio to %s", cli.Listen.WAV)
	}

	pipe := demod.NewPipeline(transform, speaker, tee)

	src, err := newSource(rconf, pipe.SampleInput)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := src.Connect(); err != nil {
		log.Fatalf("Could not open SDR: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(&stopping, func() {
		cancel()
		src.Stop()
	})

	done := make(chan error, 1)
	go func() {
		err := src.Start(ctx)
		close(pipe.SampleInput)
		done <- err
	}()

	tuiConf := config.DefaultTui()
	if err := configFile.Unmarshal("tui", &tuiConf); err != nil {
		log.Warnf("Ignoring bad tui config: %v", err)
	}
	if tuiConf.RefreshMs <= 0 {
		tuiConf.RefreshMs = config.DefaultTui().RefreshMs
	}
	refresh := time.Duration(tuiConf.RefreshMs) * time.Millisecond

	if cli.Listen.TUI {
		pipe.DoFFT = tuiConf.EnableSpectrum

		ui := tui.New(pipe, tui.StreamInfo{
			Backend:   cli.Listen.Backend,
			Frequency: rconf.Frequency,
			Mode:      cli.Listen.Mode,
			Channel:   cli.Listen.Channel,
		}, tuiConf)
		pipeDone := make(chan struct{})
		go func() {
			pipe.Start()
			close(pipeDone)
			ui.Stop()
		}()
		if err := ui.Run(); err != nil {
			log.Errorf("UI failed: %v", err)
		}
		// The user may have quit the dashboard directly; wind the SDR down
		// the same way a signal would, and wait for the pipeline to stop
		// touching the sink before the defers close it.
		stopping.Store(true)
		cancel()
		src.Stop()
		log.SetOutput(os.Stderr)
		<-pipeDone
	} else {
		meter := tui.NewMeter(os.Stderr)
		go meter.Run(ctx, pipe, refresh)
		pipe.Start()
		cancel()
	}

	if err := <-done; err != nil {
		log.Errorf("Library error: %v, exiting...", err)
		return 1
	}
	if stopping.Load() {
		log.Info("User cancel, exiting...")
	}
	return 0
}

func newSource(conf config.RadioConf, out chan<- []byte) (radio.Source, error) {
	switch conf.Backend {
	case "", "rtlsdr":
		return radio.NewRTLSDR(conf, out), nil
	case "soapy":
		return radio.NewSoapy(conf, out), nil
	default:
		return nil, fmt.Errorf("unknown SDR backend %q", conf.Backend)
	}
}

// installSignalHandler wires the usual teardown: flag the DSP to stop
// touching buffers first, then kick the driver out of its blocking read.
func installSignalHandler(stopping *atomic.Bool, stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGPIPE)
	go func() {
		s := <-sigCh
		log.Warnf("Signal caught (%v), exiting...", s)
		stopping.Store(true)
		stop()
	}()
}
