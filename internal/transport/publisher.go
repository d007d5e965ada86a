// SPDX-License-Identifier: MIT
package transport

import (
	"sync"

	"beatbox/internal/analysis"
	"beatbox/internal/calibration"
	"beatbox/internal/log"
)

// Publisher drains the engine's result and progress channels and forwards
// each event to a Transport wrapped in a typed Message envelope. It runs in
// its own goroutine so transport latency never touches the analysis thread.
type Publisher struct {
	transport Transport
	results   <-chan analysis.ClassificationResult
	progress  <-chan calibration.Progress

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPublisher wires the engine's output channels to a transport.
func NewPublisher(t Transport, results <-chan analysis.ClassificationResult, progress <-chan calibration.Progress) *Publisher {
	return &Publisher{
		transport: t,
		results:   results,
		progress:  progress,
		doneChan:  make(chan struct{}),
	}
}

// Start launches the forwarding goroutine.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.run()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.doneChan:
			return
		case r := <-p.results:
			if err := p.transport.Send(Message{Type: MessageHit, Payload: r}); err != nil {
				log.Warnf("publisher: send failed: %v", err)
			}
		case pr := <-p.progress:
			if err := p.transport.Send(Message{Type: MessageCalibration, Payload: pr}); err != nil {
				log.Warnf("publisher: send failed: %v", err)
			}
		}
	}
}

// PublishState pushes a calibration state snapshot, typically after a
// calibration run completes or a saved state is loaded.
func (p *Publisher) PublishState(state calibration.State) {
	if err := p.transport.Send(Message{Type: MessageState, Payload: state}); err != nil {
		log.Warnf("publisher: state send failed: %v", err)
	}
}

// Stop halts forwarding and waits for the goroutine to exit. The transport
// itself is left open; the caller owns its lifecycle.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.doneChan)
	})
	p.wg.Wait()
}
