package radio

import (
	"github.com/charmbracelet/log"
	rtl "github.com/jpoirier/gortlsdr"
	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"
)

// Probe lists everything both backends can see: dongles librtlsdr claims
// directly, then whatever SoapySDR modules are installed and the devices
// they enumerate.
func Probe() {
	probeRTLSDR()
	probeSoapy()
}

func probeRTLSDR() {
	count := rtl.GetDeviceCount()
	log.Infof("Found %d RTL-SDR device(s)", count)

	for i := 0; i < count; i++ {
		manufact, product, serial, err := rtl.GetDeviceUsbStrings(i)
		if err != nil {
			log.Warnf("Device #%d: could not read USB strings: %v", i, err)
			continue
		}
		log.Infof("Device #%d: %s", i, rtl.GetDeviceName(i))
		log.Infof("\t- USB: %s %s, serial: %s", manufact, product, serial)

		dev, err := rtl.Open(i)
		if err != nil {
			log.Warnf("\t- Could not open for details (in use?): %v", err)
			continue
		}
		if gains, err := dev.GetTunerGains(); err == nil {
			steps := make([]float64, len(gains))
			for n, g := range gains {
				steps[n] = float64(g) / 10
			}
			log.Infof("\t- Gain steps (dB): %v", steps)
		}
		dev.Close()
	}
}

func probeSoapy() {
	log.Infof("Using SoapySDR versions: ABI: %s API: %s Lib: %s",
		version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	log.Infof("SoapySDR modules root path: %v", modules.GetRootPath())

	modulesFound := modules.ListModules()
	if len(modulesFound) > 0 {
		for _, module := range modulesFound {
			moduleVersion := modules.GetModuleVersion(module)
			if len(moduleVersion) == 0 {
				moduleVersion = "[None]"
			}
			log.Infof("Found SoapySDR module: %v, version: %v", module, moduleVersion)
		}
	} else {
		log.Info("No SoapySDR modules found")
	}

	sdrlogger.SetLogLevel(sdrlogger.Error)

	devices := device.Enumerate(nil)
	log.Infof("Found %d SoapySDR device(s)", len(devices))

	args := make([]map[string]string, len(devices))
	for idx, dev := range devices {
		args[idx] = map[string]string{"driver": dev["driver"]}
	}
	devs, err := device.MakeList(args)
	if err != nil {
		log.Errorf("SoapySDR could not open devices: %v", err)
		return
	}
	for idx, dev := range devs {
		log.Infof("Driver: %s", args[idx]["driver"])
		logSoapySettings(dev)
	}
	// Unmaking the list double frees inside the cgo library, so the handles
	// are left for the OS to clean up.
}

func logSoapySettings(dev *device.SDRDevice) {
	settings := dev.GetSettingInfo()
	if len(settings) > 0 {
		log.Info("Settings:")
		for _, setting := range settings {
			log.Infof("\t- %s: %v", setting.Key, setting.Value)
		}
	}

	numChannels := dev.GetNumChannels(device.DirectionRX)
	for channel := uint(0); channel < numChannels; channel++ {
		log.Infof("Channel %d:", channel)
		log.Infof("\tCurrent sample rate: %v", dev.GetSampleRate(device.DirectionRX, channel))
		log.Info("\tAvailable sample rates:")
		for _, sampleRateRange := range dev.GetSampleRateRange(device.DirectionRX, channel) {
			log.Infof("\t\t- %v", sampleRateRange.ToString())
		}
		log.Infof("\tIQ sample types: %v", dev.GetStreamFormats(device.DirectionRX, channel))
	}
}
