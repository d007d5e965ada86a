package transport

import (
	"sync"
	"testing"
	"time"

	"beatbox/internal/analysis"
	"beatbox/internal/calibration"
	"beatbox/pkg/utils"
)

// recordingTransport captures sent payloads behind a mutex so the test can
// poll while the publisher goroutine is still running.
type recordingTransport struct {
	mu   sync.Mutex
	sent []any
}

func (r *recordingTransport) Send(data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, data)
	return nil
}

func (r *recordingTransport) Close() error { return nil }

func (r *recordingTransport) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublisherForwardsResults(t *testing.T) {
	rt := &recordingTransport{}
	results := make(chan analysis.ClassificationResult, 4)
	progress := make(chan calibration.Progress, 4)

	p := NewPublisher(rt, results, progress)
	p.Start()
	defer p.Stop()

	results <- analysis.ClassificationResult{
		Hit:        analysis.HitKick,
		Timestamp:  4800,
		Confidence: 0.8,
	}

	waitFor(t, func() bool { return len(rt.snapshot()) == 1 })

	msg, ok := rt.snapshot()[0].(Message)
	if !ok {
		t.Fatalf("sent payload is %T, want Message", rt.snapshot()[0])
	}
	if msg.Type != MessageHit {
		t.Errorf("message type = %q, want %q", msg.Type, MessageHit)
	}
	r, ok := msg.Payload.(analysis.ClassificationResult)
	if !ok || r.Hit != analysis.HitKick {
		t.Errorf("payload = %+v, want kick result", msg.Payload)
	}
}

func TestPublisherForwardsProgress(t *testing.T) {
	rt := &recordingTransport{}
	results := make(chan analysis.ClassificationResult, 4)
	progress := make(chan calibration.Progress, 4)

	p := NewPublisher(rt, results, progress)
	p.Start()
	defer p.Stop()

	progress <- calibration.Progress{
		CurrentSound:     calibration.SoundSnare,
		SamplesCollected: 3,
		SamplesNeeded:    10,
	}

	waitFor(t, func() bool { return len(rt.snapshot()) == 1 })

	msg := rt.snapshot()[0].(Message)
	if msg.Type != MessageCalibration {
		t.Errorf("message type = %q, want %q", msg.Type, MessageCalibration)
	}
	pr := msg.Payload.(calibration.Progress)
	if pr.CurrentSound != calibration.SoundSnare || pr.SamplesCollected != 3 {
		t.Errorf("payload = %+v", pr)
	}
}

func TestPublisherState(t *testing.T) {
	mt := &utils.MockTransport{}
	p := NewPublisher(mt, nil, nil)

	p.PublishState(calibration.State{KickCentroidMax: 1200, Calibrated: true})

	if len(mt.Sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mt.Sent))
	}
	msg := mt.Sent[0].(Message)
	if msg.Type != MessageState {
		t.Errorf("message type = %q, want %q", msg.Type, MessageState)
	}
	if st := msg.Payload.(calibration.State); !st.Calibrated {
		t.Error("state payload lost Calibrated flag")
	}
}

func TestPublisherStopIsIdempotent(t *testing.T) {
	p := NewPublisher(&utils.MockTransport{}, make(chan analysis.ClassificationResult), make(chan calibration.Progress))
	p.Start()
	p.Stop()
	p.Stop()
}
