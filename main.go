package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beatbox/cmd"
	"beatbox/internal/audio"
	"beatbox/internal/calibration"
	"beatbox/internal/config"
	"beatbox/internal/engine"
	"beatbox/internal/log"
	"beatbox/internal/transport"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	// ---- Startup ----

	opts, err := cmd.ParseArgs()
	if err != nil {
		return err
	}
	if !opts.Run && opts.Command == "" {
		return nil // help or version output already handled
	}

	hot, err := config.NewHotConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	defer hot.Close()
	cfg := hot.Get()
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	} else {
		log.Warnf("unknown log level %q, using info", cfg.LogLevel)
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if opts.Command == "list" {
		return audio.ListDevices()
	}

	// ---- Engine and driver ----

	var recorder *audio.Recorder
	if cfg.Recording.Enabled {
		name := cfg.Recording.OutputFile
		if name == "" {
			name = "beatbox-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
		}
		recorder, err = audio.NewRecorder(name, cfg.Audio.SampleRate)
		if err != nil {
			return err
		}
		log.Infof("recording to %s", name)
	}

	eng := engine.New(engine.Config{
		SampleRate:    cfg.Audio.SampleRate,
		BPM:           cfg.Metronome.BPM,
		Onset:         cfg.OnsetDetectorConfig(),
		Level2:        cfg.Classifier.Level2,
		SamplesNeeded: cfg.Calibration.SamplesNeeded,
		Recorder:      recorderOrNil(recorder),
	})

	if cfg.Calibration.StateFile != "" {
		state, err := calibration.LoadStateFile(cfg.Calibration.StateFile)
		if err != nil {
			return err
		}
		eng.ImportCalibration(state)
		if state.Calibrated {
			log.Infof("loaded calibration from %s", cfg.Calibration.StateFile)
		}
	}

	driver, err := audio.NewDriver(audio.Config{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}, eng.Pool(), eng.FrameCounter(), eng.BPMCell())
	if err != nil {
		return err
	}

	var tr transport.Transport
	if cfg.Transport.WebSocketEnabled {
		tr = transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
	} else {
		tr = transport.NewLoggingTransport()
	}
	defer tr.Close()

	pub := transport.NewPublisher(tr, eng.Results(), eng.Progress())

	// Live config edits retune the metronome and log level without a restart.
	hot.OnReload(func(c *config.Config) {
		if level, ok := log.ParseLevel(c.LogLevel); ok {
			log.SetLevel(level)
		}
		if c.Metronome.BPM != 0 {
			if err := eng.SetBPM(c.Metronome.BPM); err != nil {
				log.Warnf("ignoring reloaded bpm: %v", err)
			}
		}
	})
	if err := hot.Watch(); err != nil {
		log.Warnf("config watch disabled: %v", err)
	}

	// ---- Run ----

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	eng.Start()
	pub.Start()
	if err := driver.Start(); err != nil {
		eng.Stop()
		pub.Stop()
		return err
	}

	fmt.Println("beatbox trainer running, Ctrl+C to stop")
	<-done

	// ---- Shutdown ----

	if err := driver.Stop(); err != nil {
		log.Errorf("stopping audio driver: %v", err)
	}
	eng.Stop()
	pub.Stop()

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.Errorf("closing recording: %v", err)
		}
	}

	if cfg.Calibration.StateFile != "" {
		state := eng.CalibrationState()
		if state.Calibrated {
			if err := calibration.SaveStateFile(cfg.Calibration.StateFile, state); err != nil {
				log.Errorf("saving calibration: %v", err)
			}
		}
	}
	return nil
}

// recorderOrNil avoids storing a typed nil in the engine's interface field.
func recorderOrNil(r *audio.Recorder) engine.Recorder {
	if r == nil {
		return nil
	}
	return r
}
