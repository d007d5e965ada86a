// Package utils holds shared test helpers: deterministic signal generators
// and a transport stub. Production code must not depend on this package.
package utils

import (
	"math"
	"math/rand"
)

// GenerateSineWave returns size samples of a pure sine at the given frequency,
// amplitude 0.9 to stay clear of full scale.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * 0.9)
	}
	return buffer
}

// GenerateWhiteNoise returns size samples of seeded white noise in [-0.9, 0.9].
// The fixed seed keeps tests deterministic.
func GenerateWhiteNoise(size int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32((rng.Float64()*2 - 1) * 0.9)
	}
	return buffer
}

// GenerateImpulse returns a silent buffer of size samples with a short
// broadband burst (ten full-scale samples) starting at offset.
func GenerateImpulse(size, offset int) []float32 {
	buffer := make([]float32, size)
	for i := 0; i < 10 && offset+i < size; i++ {
		if i%2 == 0 {
			buffer[offset+i] = 0.95
		} else {
			buffer[offset+i] = -0.95
		}
	}
	return buffer
}

// GenerateDecay returns a unit-amplitude exponential decay whose envelope
// falls by 1/e every decayMs milliseconds.
func GenerateDecay(size int, sampleRate, decayMs float64) []float32 {
	decaySamples := decayMs / 1000.0 * sampleRate
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(math.Exp(-float64(i) / decaySamples))
	}
	return buffer
}

// MockTransport implements the transport.Transport interface for tests.
type MockTransport struct {
	Sent []any
}

// Send records the payload for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.Sent = append(m.Sent, data)
	return nil
}

// Close is a no-op.
func (m *MockTransport) Close() error { return nil }
