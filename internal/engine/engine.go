// Package engine runs the analysis thread: it drains the buffer pool's data
// queue, detects onsets, extracts features, and routes each onset either to
// the calibration workflow or through the classifier and quantizer. It also
// owns the command surface the control layer calls into.
package engine

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"beatbox/internal/analysis"
	"beatbox/internal/buffer"
	"beatbox/internal/calibration"
	"beatbox/internal/log"
)

// ErrInvalidBPM rejects a tempo that would make the beat grid degenerate.
var ErrInvalidBPM = errors.New("bpm must be greater than zero")

const defaultChannelBuffer = 64

// Recorder receives every analyzed buffer for offline capture. Implemented
// by the WAV recorder; nil disables recording.
type Recorder interface {
	Write(samples []float32) error
}

// Config carries the engine's construction parameters.
type Config struct {
	SampleRate    uint32
	BPM           uint32
	BufferCount   int
	BufferSize    int
	Onset         analysis.OnsetConfig
	Level2        bool
	SamplesNeeded int // calibration samples per sound
	ChannelBuffer int // outbound channel capacity
	Recorder      Recorder
}

// Engine is the orchestrator. The audio driver shares its buffer pool, frame
// counter and BPM cell; everything else is owned by the analysis goroutine.
type Engine struct {
	pool       *buffer.Pool
	detector   *analysis.OnsetDetector
	extractor  *analysis.FeatureExtractor
	classifier *analysis.Classifier
	quantizer  *analysis.Quantizer

	frameCounter atomic.Uint64
	bpm          atomic.Uint32
	sampleRate   uint32

	// calMu guards the calibration workflow. The per-onset probe uses
	// TryLock and falls back to classification on contention; command
	// handlers block.
	calMu     sync.Mutex
	procedure *calibration.Procedure
	state     calibration.State

	samplesNeeded int
	recorder      Recorder

	results  chan analysis.ClassificationResult
	progress chan calibration.Progress

	stop chan struct{}
	done chan struct{}
}

// New builds an engine and its buffer pool. The pool is shared with the
// audio driver via Pool().
func New(cfg Config) *Engine {
	if cfg.BufferCount <= 0 {
		cfg.BufferCount = buffer.DefaultBufferCount
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = buffer.DefaultBufferSize
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = defaultChannelBuffer
	}

	e := &Engine{
		pool:          buffer.NewPool(cfg.BufferCount, cfg.BufferSize),
		detector:      analysis.NewOnsetDetector(cfg.Onset),
		extractor:     analysis.NewFeatureExtractor(float64(cfg.SampleRate)),
		sampleRate:    cfg.SampleRate,
		state:         calibration.DefaultState(),
		samplesNeeded: cfg.SamplesNeeded,
		recorder:      cfg.Recorder,
		results:       make(chan analysis.ClassificationResult, cfg.ChannelBuffer),
		progress:      make(chan calibration.Progress, cfg.ChannelBuffer),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	e.classifier = analysis.NewClassifier(e.state.Thresholds())
	e.classifier.SetLevel2(cfg.Level2)
	e.quantizer = analysis.NewQuantizer(cfg.SampleRate, &e.bpm)
	e.bpm.Store(cfg.BPM)
	return e
}

// Pool returns the shared buffer pool for the audio driver.
func (e *Engine) Pool() *buffer.Pool { return e.pool }

// FrameCounter returns the shared frame counter the audio callback advances.
func (e *Engine) FrameCounter() *atomic.Uint64 { return &e.frameCounter }

// BPM returns the current tempo.
func (e *Engine) BPM() uint32 { return e.bpm.Load() }

// BPMCell returns the shared tempo cell for the audio driver's metronome.
func (e *Engine) BPMCell() *atomic.Uint32 { return &e.bpm }

// Results streams one ClassificationResult per onset in classification mode.
func (e *Engine) Results() <-chan analysis.ClassificationResult { return e.results }

// Progress streams calibration progress updates while calibrating.
func (e *Engine) Progress() <-chan calibration.Progress { return e.progress }

// SetBPM updates the tempo for the metronome and quantizer.
func (e *Engine) SetBPM(bpm uint32) error {
	if bpm == 0 {
		return ErrInvalidBPM
	}
	e.bpm.Store(bpm)
	log.Infof("engine: bpm set to %d", bpm)
	return nil
}

// StartCalibration installs a fresh calibration workflow and switches the
// analysis loop into calibration mode.
func (e *Engine) StartCalibration() error {
	e.calMu.Lock()
	defer e.calMu.Unlock()

	if e.procedure != nil {
		return calibration.ErrAlreadyInProgress
	}
	p := calibration.NewProcedure(e.samplesNeeded)
	if err := p.Start(); err != nil {
		return err
	}
	e.procedure = p
	e.emitProgress(p.Progress())
	return nil
}

// FinishCalibration finalizes the workflow into a new threshold set. The
// workflow stays active if it is not complete yet.
func (e *Engine) FinishCalibration() (calibration.State, error) {
	e.calMu.Lock()
	defer e.calMu.Unlock()

	if e.procedure == nil {
		return calibration.State{}, calibration.ErrNotCalibrating
	}
	state, err := e.procedure.Finalize()
	if err != nil {
		return calibration.State{}, err
	}

	e.state = state
	e.classifier.SetThresholds(state.Thresholds())
	e.procedure = nil
	log.Infof("engine: calibration finished, thresholds %+v", state)
	return state, nil
}

// CancelCalibration discards the active workflow, keeping the previous
// thresholds.
func (e *Engine) CancelCalibration() {
	e.calMu.Lock()
	defer e.calMu.Unlock()
	if e.procedure != nil {
		e.procedure = nil
		log.Infof("engine: calibration cancelled")
	}
}

// AcceptLastCandidate promotes the retained near-miss sample for the sound
// being calibrated.
func (e *Engine) AcceptLastCandidate() error {
	e.calMu.Lock()
	defer e.calMu.Unlock()

	if e.procedure == nil {
		return calibration.ErrNotCalibrating
	}
	if err := e.procedure.AcceptLastCandidate(); err != nil {
		return err
	}
	e.emitProgress(e.procedure.Progress())
	return nil
}

// CalibrationState returns the thresholds currently in use.
func (e *Engine) CalibrationState() calibration.State {
	e.calMu.Lock()
	defer e.calMu.Unlock()
	return e.state
}

// ImportCalibration installs externally persisted thresholds.
func (e *Engine) ImportCalibration(state calibration.State) {
	e.calMu.Lock()
	defer e.calMu.Unlock()
	e.state = state
	e.classifier.SetThresholds(state.Thresholds())
	log.Infof("engine: imported calibration state (calibrated=%v)", state.Calibrated)
}

// Start launches the analysis goroutine.
func (e *Engine) Start() {
	go e.run()
}

// Stop drains the analysis goroutine and waits for it to exit. In-flight
// buffer processing runs to completion.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)
	log.Infof("engine: analysis loop started")

	for {
		buf, ok := e.pool.Take(e.stop)
		if !ok {
			log.Infof("engine: analysis loop stopped")
			return
		}
		e.processBuffer(buf)
		e.pool.Release(buf)
	}
}

// processBuffer runs one buffer through the pipeline. Failures are logged
// and skipped so a malformed buffer can never halt the loop.
func (e *Engine) processBuffer(buf *buffer.Buffer) {
	samples := buf.Data
	bufRMS := rms(samples)

	if e.recorder != nil {
		if err := e.recorder.Write(samples); err != nil {
			log.Warnf("engine: recording failed: %v", err)
		}
	}

	if e.feedNoiseFloor(bufRMS) {
		return
	}

	streamPos := e.detector.SamplesProcessed()
	onsets := e.detector.Process(samples)
	if len(onsets) > 0 {
		log.Debugf("engine: %d onsets in buffer starting at frame %d", len(onsets), buf.Start)
	}

	for _, onset := range onsets {
		rel := int(onset - streamPos)
		if rel < 0 || rel+analysis.FeatureWindowSize > len(samples) {
			// Too close to the buffer edge for a full feature window.
			log.Debugf("engine: onset at %d lacks a full feature window, skipped", onset)
			continue
		}

		window := samples[rel : rel+analysis.FeatureWindowSize]
		features := e.extractor.Extract(window)
		absFrame := buf.Start + uint64(rel)

		if e.tryCalibrate(features, rms(window)) {
			continue
		}

		hit, confidence := e.classifier.Classify(features)
		timing := e.quantizer.Quantize(absFrame)
		e.emitResult(analysis.ClassificationResult{
			Hit:        hit,
			Timing:     timing,
			Timestamp:  absFrame,
			Confidence: confidence,
		})
	}
}

// feedNoiseFloor forwards buffer RMS to the workflow during the noise floor
// phase. Returns true when the buffer was consumed by that phase.
func (e *Engine) feedNoiseFloor(bufRMS float64) bool {
	if !e.calMu.TryLock() {
		return false
	}
	defer e.calMu.Unlock()

	if e.procedure == nil || !e.procedure.InNoiseFloorPhase() {
		return false
	}
	if _, err := e.procedure.AddNoiseFloorSample(bufRMS); err != nil {
		log.Warnf("engine: noise floor sample rejected: %v", err)
		return true
	}
	e.emitProgress(e.procedure.Progress())
	return true
}

// tryCalibrate offers an onset to the calibration workflow. Lock contention
// or no active workflow means the caller should classify instead.
func (e *Engine) tryCalibrate(features analysis.Features, onsetRMS float64) bool {
	if !e.calMu.TryLock() {
		// Contended: treat as not calibrating rather than stall.
		return false
	}
	defer e.calMu.Unlock()

	if e.procedure == nil {
		return false
	}
	if err := e.procedure.AddSample(features, onsetRMS); err != nil {
		log.Warnf("engine: calibration sample rejected: %v", err)
	}
	e.emitProgress(e.procedure.Progress())
	return true
}

// emitResult sends without blocking; a slow consumer drops results rather
// than stalling analysis.
func (e *Engine) emitResult(r analysis.ClassificationResult) {
	select {
	case e.results <- r:
	default:
		log.Warnf("engine: result channel full, dropping %s", r.Hit)
	}
}

func (e *Engine) emitProgress(p calibration.Progress) {
	select {
	case e.progress <- p:
	default:
	}
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
