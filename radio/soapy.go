package radio

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"

	"github.com/jrwynneiii/rtlaudio/config"
)

// soapyReadSize is the number of CF32 elements requested per stream read.
// Ten reads assemble one block, so a stuck device surfaces within a second.
const soapyReadSize = 8192

// soapyReadTimeout is the per-read timeout in microseconds.
const soapyReadTimeout = uint(100000)

// Soapy streams blocks from any SoapySDR-visible device. The CF32 samples it
// hands back are re-quantized to the u8 wire format so that both backends
// feed the exact same transform.
type Soapy struct {
	conf config.RadioConf
	out  chan<- []byte

	dev    *device.SDRDevice
	stream *device.SDRStreamCF32

	buffers [][]complex64
	block   []byte
	fill    int
}

func NewSoapy(conf config.RadioConf, out chan<- []byte) *Soapy {
	buffers := make([][]complex64, 1)
	buffers[0] = make([]complex64, soapyReadSize)
	return &Soapy{
		conf:    conf,
		out:     out,
		buffers: buffers,
		block:   make([]byte, config.IQBlockSize),
	}
}

func initSoapySDR() {
	log.Debugf("Using SoapySDR versions: ABI: %s API: %s Lib: %s",
		version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	log.Debugf("SoapySDR modules root path: %v", modules.GetRootPath())
	for _, module := range modules.ListModules() {
		moduleVersion := modules.GetModuleVersion(module)
		if len(moduleVersion) == 0 {
			moduleVersion = "[None]"
		}
		log.Debugf("Found SoapySDR module: %v, version: %v", module, moduleVersion)
	}
	// Tune down the soapy logger so it doesn't yell about rtl-tcp.
	sdrlogger.SetLogLevel(sdrlogger.Error)
}

func (s *Soapy) Connect() error {
	initSoapySDR()

	args := map[string]string{}
	if s.conf.Driver != "" {
		args["driver"] = s.conf.Driver
	}
	if s.conf.Driver == "rtltcp" {
		args["rtltcp"] = s.conf.Address
	} else if s.conf.Device != "" {
		args["serial"] = s.conf.Device
	}

	dev, err := device.Make(args)
	if err != nil {
		return fmt.Errorf("creating SoapySDR device: %w", err)
	}
	s.dev = dev
	if s.conf.Driver != "" {
		log.Infof("Using SoapySDR driver: %s", s.conf.Driver)
	} else {
		log.Info("Using first SoapySDR device found")
	}

	if err := dev.SetSampleRate(device.DirectionRX, 0, float64(config.SDRSampleRate)); err != nil {
		log.Warnf("Could not set sample rate: %v", err)
	} else {
		log.Infof("Sampling at %d S/s", config.SDRSampleRate)
	}

	if err := dev.SetFrequency(device.DirectionRX, 0, float64(s.conf.Frequency), nil); err != nil {
		log.Warnf("Could not set center frequency: %v", err)
	} else {
		log.Infof("Tuned to %s", s.conf.Frequency)
	}

	if s.conf.Gain == 0 {
		if err := dev.SetGainMode(device.DirectionRX, 0, true); err != nil {
			log.Warnf("Could not enable automatic gain: %v", err)
		} else {
			log.Info("Tuner gain set to automatic")
		}
	} else {
		if err := dev.SetGainMode(device.DirectionRX, 0, false); err != nil {
			log.Warnf("Could not enable manual gain: %v", err)
		}
		if err := dev.SetGain(device.DirectionRX, 0, s.conf.Gain); err != nil {
			log.Warnf("Could not set tuner gain: %v", err)
		} else {
			log.Infof("Tuner gain set to %.1f dB", s.conf.Gain)
		}
	}

	if s.conf.PPM != 0 {
		if err := dev.SetFrequencyCorrection(device.DirectionRX, 0, float64(s.conf.PPM)); err != nil {
			log.Warnf("Could not set ppm correction: %v", err)
		} else {
			log.Infof("Frequency correction set to %d ppm", s.conf.PPM)
		}
	}

	stream, err := dev.SetupSDRStreamCF32(device.DirectionRX, []uint{0}, nil)
	if err != nil {
		return fmt.Errorf("setting up IQ stream: %w", err)
	}
	s.stream = stream
	return nil
}

// Start activates the stream and assembles fixed-size blocks until the
// context is cancelled. Read timeouts are logged and retried; the device
// deciding to sulk for a while is not fatal.
func (s *Soapy) Start(ctx context.Context) error {
	if err := s.stream.Activate(0, 0, 0); err != nil {
		return fmt.Errorf("activating IQ stream: %w", err)
	}
	log.Info("Reading samples from SoapySDR...")

	flags := make([]int, 1)

	// Discard one read so stale hardware buffers never reach the pipeline.
	s.stream.Read(s.buffers, soapyReadSize, flags, soapyReadTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, n, err := s.stream.Read(s.buffers, soapyReadSize, flags, soapyReadTimeout)
		if err != nil {
			log.Debugf("Stream read: %v", err)
			continue
		}
		s.append(ctx, s.buffers[0][:n])
	}
}

// append quantizes samples into the staging block, emitting a copy every
// time it fills.
func (s *Soapy) append(ctx context.Context, samples []complex64) {
	for len(samples) > 0 {
		room := (len(s.block) - s.fill) / 2
		take := len(samples)
		if take > room {
			take = room
		}
		quantizeU8(samples[:take], s.block[s.fill:])
		s.fill += take * 2
		samples = samples[take:]

		if s.fill == len(s.block) {
			block := make([]byte, len(s.block))
			copy(block, s.block)
			select {
			case <-ctx.Done():
				return
			case s.out <- block:
			}
			s.fill = 0
		}
	}
}

// Stop deactivates the stream, which unblocks a pending read.
func (s *Soapy) Stop() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Deactivate(0, 0); err != nil {
		log.Debugf("Stream deactivate failed: %v", err)
	}
}

// Close releases the stream. The device handle is left to the OS; unmaking
// it has a double free history in the cgo bindings.
func (s *Soapy) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

// quantizeU8 maps [-1, 1] components onto the u8 wire format, saturating
// anything the AGC or a hot frontend pushed past full scale.
func quantizeU8(samples []complex64, dst []byte) {
	for i, z := range samples {
		dst[i*2] = u8Quant(real(z))
		dst[i*2+1] = u8Quant(imag(z))
	}
}

func u8Quant(v float32) byte {
	b := math.Round(float64(v)*127.5 + 127.5)
	if b > 255 {
		b = 255
	}
	if b < 0 {
		b = 0
	}
	return byte(b)
}
