package audio

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const recordBitDepth = 16

// Recorder captures analyzed buffers to a mono WAV file. It runs on the
// analysis thread, never inside the audio callback, so file I/O cannot
// stall the stream.
type Recorder struct {
	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *goaudio.IntBuffer
}

// NewRecorder creates the output file and WAV encoder.
func NewRecorder(filename string, sampleRate uint32) (*Recorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("creating recording file: %w", err)
	}

	return &Recorder{
		file:    file,
		encoder: wav.NewEncoder(file, int(sampleRate), recordBitDepth, 1, 1),
		sampleBuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
		},
	}, nil
}

// Write appends one buffer of float32 samples, converting to 16-bit PCM.
func (r *Recorder) Write(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return fmt.Errorf("recorder closed")
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		r.sampleBuf.Data[i] = int(s * 32767)
	}

	return r.encoder.Write(r.sampleBuf)
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}
	if err := r.encoder.Close(); err != nil {
		return err
	}
	r.encoder = nil

	err := r.file.Close()
	r.file = nil
	return err
}
