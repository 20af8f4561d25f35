package main

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/jrwynneiii/rtlaudio/config"
)

// recordQueue gives the file writer the same slack the audio path gets.
const recordQueue = 4

func runRecord() int {
	out, err := os.Create(cli.Record.Output)
	if err != nil {
		log.Fatalf("Could not create output file: %v", err)
	}
	defer out.Close()

	rconf := config.RadioConf{
		Backend:   cli.Record.Backend,
		Driver:    configFile.String("radio.driver"),
		Address:   configFile.String("radio.address"),
		Device:    cli.Record.Device,
		Frequency: cli.Record.Freq.Hz(),
		Gain:      cli.Record.Gain,
		PPM:       cli.Record.PPM,
	}

	blocks := make(chan []byte, recordQueue)
	src, err := newSource(rconf, blocks)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := src.Connect(); err != nil {
		log.Fatalf("Could not open SDR: %v", err)
	}
	defer src.Close()

	var stopping atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(&stopping, func() {
		cancel()
		src.Stop()
	})

	done := make(chan error, 1)
	go func() {
		err := src.Start(ctx)
		close(blocks)
		done <- err
	}()

	limit := cli.Record.Bytes
	var written uint64
	for block := range blocks {
		if limit > 0 && written+uint64(len(block)) > limit {
			block = block[:limit-written]
		}
		n, err := out.Write(block)
		written += uint64(n)
		if err != nil {
			log.Errorf("Short write, samples lost: %v", err)
			cancel()
			src.Stop()
			break
		}
		if limit > 0 && written >= limit {
			log.Infof("Byte limit reached")
			cancel()
			src.Stop()
			break
		}
	}
	// Drain whatever the callback queued before the cancel landed so the
	// producer is never stuck on a send.
	for range blocks {
	}

	err = <-done
	log.Infof("Captured %d bytes to %s", written, cli.Record.Output)
	if err != nil {
		log.Errorf("Library error: %v, exiting...", err)
		return 1
	}
	return 0
}
