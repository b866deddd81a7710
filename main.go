// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"beatlight/cmd"
	"beatlight/internal/build"
	"beatlight/internal/capture"
	"beatlight/internal/config"
	"beatlight/internal/graph"
	applog "beatlight/internal/log"
	"beatlight/internal/snapshot"
	"beatlight/internal/tui"
)

// main is the entry point for the percussive detection and lighting
// prediction pipeline. The program flow mirrors the teacher's three-phase
// shape:
//
//  1. Startup (cold path): build info, PortAudio init, CLI parsing, one-off
//     commands.
//  2. Concurrent (hot path): capture stream, feeder goroutine, DSP graph
//     loop, all running until a signal or a configured timeout.
//  3. Shutdown (cold path): stop capture, close the graph's sinks, write the
//     final snapshot.
func main() {
	runtime.GOMAXPROCS(3) // capture, feeder, DSP — §5's three-thread model

	if err := build.Initialize(); err != nil {
		applog.Warnf("main: build info unset (%v), continuing with defaults", err)
	}

	if err := capture.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer capture.Terminate()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Command == "list" {
		if err := tui.StartDeviceListUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	os.Exit(run(cfg))
}

// run executes the capture/feeder/DSP pipeline described by cfg and returns
// the process exit code: 0 on a clean stop, 2 when the configured capture
// device cannot be found (§6/§7's one device-selection failure mode).
func run(cfg *config.Config) int {
	devices, err := capture.ListDevices()
	if err != nil {
		log.Printf("main: %v", err)
		return 1
	}
	deviceIndex, err := capture.FindDeviceBySubstring(devices, cfg.Audio.DeviceSubstring)
	if err != nil {
		log.Printf("main: %v", err)
		return 2
	}

	pl, err := graph.Build(cfg)
	if err != nil {
		log.Printf("main: %v", err)
		return 1
	}
	defer pl.Close()

	stream, err := capture.Open(capture.Params{
		DeviceIndex:     deviceIndex,
		Channels:        1,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.HopSize,
		Ring:            pl.Ring,
	})
	if err != nil {
		log.Printf("main: %v", err)
		return 1
	}
	if err := stream.Start(); err != nil {
		log.Printf("main: %v", err)
		return 1
	}

	stop := make(chan struct{})
	feederDone := make(chan struct{})
	go func() {
		pl.Feeder.Run(stop)
		close(feederDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var timeoutCh <-chan time.Time
	if cfg.TimeoutSeconds > 0 {
		timeoutCh = time.After(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}

	graphStop := make(chan struct{})
	graphDone := make(chan struct{})
	go func() {
		pl.Run(graphStop)
		close(graphDone)
	}()

	select {
	case <-sigCh:
	case <-timeoutCh:
	}

	close(stop)
	close(graphStop)
	<-feederDone

	select {
	case <-graphDone:
	case <-time.After(2 * time.Second):
		log.Printf("main: DSP thread did not stop within 2s, detaching")
	}

	if err := stream.Stop(); err != nil {
		log.Printf("main: %v", err)
	}

	if cfg.OutputSnapshotPath != "" {
		snap := snapshot.Snapshot{
			FramesProcessed: int(pl.Graph.Ticks()),
			RingOverruns:    pl.Ring.Overruns(),
		}
		if err := snapshot.Write(cfg.OutputSnapshotPath, snap); err != nil {
			log.Printf("main: %v", err)
		}
	}

	return 0
}
