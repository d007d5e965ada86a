// SPDX-License-Identifier: MIT

// Package audio is the hardware boundary: a PortAudio duplex stream whose
// callback plays metronome clicks on the output side and captures input into
// pool buffers for the analysis thread.
//
// The callback never blocks, never allocates, and never logs. Pool
// exhaustion drops input for the period instead of stalling output.
package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"beatbox/internal/buffer"
	"beatbox/internal/log"
	"beatbox/internal/metronome"
)

// Config holds the stream parameters the driver needs.
type Config struct {
	DeviceID        int // -1 selects the system default input
	SampleRate      uint32
	FramesPerBuffer int
	LowLatency      bool
}

// Driver owns the PortAudio duplex stream. The pool, frame counter and BPM
// cell are shared with the engine.
type Driver struct {
	cfg          Config
	pool         *buffer.Pool
	frameCounter *atomic.Uint64
	bpm          *atomic.Uint32

	click    []float32
	clickPos int // index into click while a click is sounding, -1 when idle

	current *buffer.Buffer // capture buffer being filled, nil when exhausted
	filled  int

	dropped atomic.Uint64 // input samples lost to pool exhaustion

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	stream       *portaudio.Stream
}

// NewDriver prepares a driver against the shared engine state. PortAudio
// must already be initialized.
func NewDriver(cfg Config, pool *buffer.Pool, frameCounter *atomic.Uint64, bpm *atomic.Uint32) (*Driver, error) {
	inputDevice, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:          cfg,
		pool:         pool,
		frameCounter: frameCounter,
		bpm:          bpm,
		click:        metronome.GenerateClick(cfg.SampleRate),
		clickPos:     -1,
		inputDevice:  inputDevice,
	}
	if cfg.LowLatency {
		d.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		d.inputLatency = inputDevice.DefaultHighInputLatency
	}
	return d, nil
}

// Start opens and starts the duplex stream.
func (d *Driver) Start() error {
	outputDevice, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("no output device for metronome: %w", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   d.inputDevice,
			Latency:  d.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   outputDevice,
			Latency:  outputDevice.DefaultLowOutputLatency,
		},
		FramesPerBuffer: d.cfg.FramesPerBuffer,
		SampleRate:      float64(d.cfg.SampleRate),
	}

	stream, err := portaudio.OpenStream(params, d.callback)
	if err != nil {
		return fmt.Errorf("opening duplex stream: %w", err)
	}
	d.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		d.stream = nil
		return fmt.Errorf("starting stream: %w", err)
	}

	log.Infof("audio: stream started on %q at %d Hz, %d frames/buffer",
		d.inputDevice.Name, d.cfg.SampleRate, d.cfg.FramesPerBuffer)
	return nil
}

// Stop stops and closes the stream and publishes any partially filled
// capture buffer so its samples are not lost.
func (d *Driver) Stop() error {
	if d.stream != nil {
		if err := d.stream.Stop(); err != nil {
			return err
		}
		if err := d.stream.Close(); err != nil {
			return err
		}
		d.stream = nil
	}

	if d.current != nil && d.filled > 0 {
		for i := d.filled; i < len(d.current.Data); i++ {
			d.current.Data[i] = 0
		}
		d.pool.Publish(d.current)
		d.current = nil
		d.filled = 0
	}

	if n := d.dropped.Load(); n > 0 {
		log.Warnf("audio: %d input samples dropped to pool exhaustion", n)
	}
	return nil
}

// DroppedSamples reports how many input samples were lost to pool
// exhaustion since start.
func (d *Driver) DroppedSamples() uint64 {
	return d.dropped.Load()
}

// callback runs once per audio period on the PortAudio thread. Hot path:
// pre-allocated state only, skip-and-continue on pool exhaustion.
func (d *Driver) callback(in, out []float32) {
	frame := d.frameCounter.Load()
	bpm := d.bpm.Load()
	var spb uint64
	if bpm > 0 {
		spb = metronome.SamplesPerBeat(bpm, d.cfg.SampleRate)
	}

	for i := range out {
		if spb > 0 && metronome.IsOnBeat(frame+uint64(i), spb) {
			d.clickPos = 0
		}
		if d.clickPos >= 0 && d.clickPos < len(d.click) {
			out[i] = d.click[d.clickPos]
			d.clickPos++
		} else {
			d.clickPos = -1
			out[i] = 0
		}
	}

	for i, sample := range in {
		if d.current == nil {
			b, err := d.pool.Acquire()
			if err != nil {
				// Pool exhausted: drop the rest of this period.
				d.dropped.Add(uint64(len(in) - i))
				break
			}
			b.Start = frame + uint64(i)
			d.current = b
			d.filled = 0
		}

		d.current.Data[d.filled] = sample
		d.filled++
		if d.filled == len(d.current.Data) {
			d.pool.Publish(d.current)
			d.current = nil
			d.filled = 0
		}
	}

	d.frameCounter.Add(uint64(len(in)))
}
