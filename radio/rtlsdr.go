package radio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	rtl "github.com/jpoirier/gortlsdr"

	"github.com/jrwynneiii/rtlaudio/config"
)

// RTLSDR streams u8 I/Q blocks straight from a local RTL2832U dongle via
// librtlsdr's async interface.
type RTLSDR struct {
	conf config.RadioConf
	out  chan<- []byte

	dev *rtl.Context
	ctx context.Context
	wg  sync.WaitGroup
}

func NewRTLSDR(conf config.RadioConf, out chan<- []byte) *RTLSDR {
	return &RTLSDR{conf: conf, out: out}
}

// Connect opens the device named by conf.Device and tunes it. A device that
// cannot be opened is fatal to the caller; tuning calls that fail are only
// warned about, matching the rtl_* tools.
func (r *RTLSDR) Connect() error {
	index, err := FindDevice(r.conf.Device)
	if err != nil {
		return err
	}

	name := rtl.GetDeviceName(index)
	dev, err := rtl.Open(index)
	if err != nil {
		return fmt.Errorf("opening device #%d (%s): %w", index, name, err)
	}
	r.dev = dev
	log.Infof("Using device #%d: %s", index, name)

	if err := dev.SetSampleRate(config.SDRSampleRate); err != nil {
		log.Warnf("Could not set sample rate: %v", err)
	} else {
		log.Infof("Sampling at %d S/s", config.SDRSampleRate)
	}

	if err := dev.SetCenterFreq(int(r.conf.Frequency)); err != nil {
		log.Warnf("Could not set center frequency: %v", err)
	} else {
		log.Infof("Tuned to %s", r.conf.Frequency)
	}

	if r.conf.Gain == 0 {
		if err := dev.SetTunerGainMode(false); err != nil {
			log.Warnf("Could not enable automatic gain: %v", err)
		} else {
			log.Info("Tuner gain set to automatic")
		}
	} else {
		gain := int(r.conf.Gain * 10)
		if gains, err := dev.GetTunerGains(); err == nil && len(gains) > 0 {
			gain = NearestGain(gains, gain)
		}
		if err := dev.SetTunerGainMode(true); err != nil {
			log.Warnf("Could not enable manual gain: %v", err)
		}
		if err := dev.SetTunerGain(gain); err != nil {
			log.Warnf("Could not set tuner gain: %v", err)
		} else {
			log.Infof("Tuner gain set to %.1f dB", float64(gain)/10)
		}
	}

	// librtlsdr rejects a correction of zero, so only touch it when asked.
	if r.conf.PPM != 0 {
		if err := dev.SetFreqCorrection(r.conf.PPM); err != nil {
			log.Warnf("Could not set ppm correction: %v", err)
		} else {
			log.Infof("Frequency correction set to %d ppm", r.conf.PPM)
		}
	}

	return nil
}

// Start flushes stale transfers and hands control to librtlsdr's async
// reader. It blocks until Stop is called or the USB stack fails; a clean
// cancel returns nil.
func (r *RTLSDR) Start(ctx context.Context) error {
	if err := r.dev.ResetBuffer(); err != nil {
		return fmt.Errorf("resetting device buffer: %w", err)
	}
	r.ctx = ctx
	log.Info("Reading samples in async mode...")

	r.wg.Add(1)
	defer r.wg.Done()
	return r.dev.ReadAsync(r.callback, nil, 0, config.IQBlockSize)
}

// callback runs on librtlsdr's reader thread. The driver recycles buf after
// we return, so the block is copied before crossing the channel.
func (r *RTLSDR) callback(buf []byte) {
	block := make([]byte, len(buf))
	copy(block, buf)
	select {
	case <-r.ctx.Done():
	case r.out <- block:
	}
}

// Stop asks the async reader to wind down. Safe to call from a signal
// handler goroutine while Start is blocked.
func (r *RTLSDR) Stop() {
	if r.dev == nil {
		return
	}
	if err := r.dev.CancelAsync(); err != nil {
		log.Debugf("Cancel async failed: %v", err)
	}
}

func (r *RTLSDR) Close() error {
	r.wg.Wait()
	if r.dev == nil {
		return nil
	}
	return r.dev.Close()
}

// FindDevice resolves a device argument against the connected dongles. An
// empty argument picks the first device.
func FindDevice(arg string) (int, error) {
	count := rtl.GetDeviceCount()
	serials := make([]string, count)
	for i := 0; i < count; i++ {
		_, _, serial, err := rtl.GetDeviceUsbStrings(i)
		if err != nil {
			log.Debugf("Could not read USB strings for device #%d: %v", i, err)
			continue
		}
		serials[i] = serial
	}
	return matchDevice(serials, arg)
}

// matchDevice implements the search order of librtlsdr's convenience helper:
// numeric index first, then exact serial, then serial prefix, then suffix.
func matchDevice(serials []string, arg string) (int, error) {
	if len(serials) == 0 {
		return -1, errors.New("no RTL-SDR devices found")
	}
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, nil
	}
	if index, err := strconv.Atoi(arg); err == nil && index >= 0 && index < len(serials) {
		return index, nil
	}
	for i, s := range serials {
		if s == arg {
			return i, nil
		}
	}
	for i, s := range serials {
		if strings.HasPrefix(s, arg) {
			return i, nil
		}
	}
	for i, s := range serials {
		if strings.HasSuffix(s, arg) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no device matches %q", arg)
}

// NearestGain snaps a requested gain in tenths of dB to the closest value the
// tuner supports.
func NearestGain(gains []int, target int) int {
	nearest := gains[0]
	for _, g := range gains {
		if abs(g-target) < abs(nearest-target) {
			nearest = g
		}
	}
	return nearest
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
