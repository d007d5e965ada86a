package audio

import (
	"sync/atomic"
	"testing"

	"beatbox/internal/buffer"
	"beatbox/internal/metronome"
)

// testDriver builds a driver around a pool without touching PortAudio.
func testDriver(pool *buffer.Pool, bpm uint32) (*Driver, *atomic.Uint64) {
	var fc atomic.Uint64
	var bpmCell atomic.Uint32
	bpmCell.Store(bpm)
	d := &Driver{
		cfg:          Config{SampleRate: 48000, FramesPerBuffer: 256},
		pool:         pool,
		frameCounter: &fc,
		bpm:          &bpmCell,
		click:        metronome.GenerateClick(48000),
		clickPos:     -1,
	}
	return d, &fc
}

func runCallback(d *Driver, frames int) {
	in := make([]float32, frames)
	out := make([]float32, frames)
	for i := range in {
		in[i] = 0.5
	}
	d.callback(in, out)
}

func TestCallbackAdvancesFrameCounter(t *testing.T) {
	d, fc := testDriver(buffer.NewPool(4, 512), 120)

	runCallback(d, 256)
	runCallback(d, 256)
	if got := fc.Load(); got != 512 {
		t.Errorf("frame counter = %d, want 512", got)
	}
}

func TestCallbackEmitsClickOnBeat(t *testing.T) {
	d, _ := testDriver(buffer.NewPool(4, 512), 120)

	in := make([]float32, 256)
	out := make([]float32, 256)
	d.callback(in, out)

	// Frame 0 is a beat boundary, so the click starts immediately.
	var energy float32
	for _, s := range out {
		if s < 0 {
			energy -= s
		} else {
			energy += s
		}
	}
	if energy == 0 {
		t.Error("no click output at the frame 0 beat boundary")
	}
}

func TestCallbackSilentWithoutMetronome(t *testing.T) {
	d, _ := testDriver(buffer.NewPool(4, 512), 0)

	in := make([]float32, 256)
	out := make([]float32, 256)
	for i := range out {
		out[i] = 0.7 // stale data the callback must overwrite
	}
	d.callback(in, out)

	for i, s := range out {
		if s != 0 {
			t.Fatalf("out[%d] = %v with BPM 0, want silence", i, s)
		}
	}
}

func TestCallbackCapturesIntoPool(t *testing.T) {
	pool := buffer.NewPool(4, 256)
	d, _ := testDriver(pool, 120)

	runCallback(d, 256) // exactly one buffer worth

	b, ok := pool.TryTake()
	if !ok {
		t.Fatal("no captured buffer published")
	}
	if b.Start != 0 {
		t.Errorf("buffer start frame = %d, want 0", b.Start)
	}
	if b.Data[0] != 0.5 || b.Data[255] != 0.5 {
		t.Error("captured samples do not match input")
	}
	pool.Release(b)

	runCallback(d, 256)
	b, ok = pool.TryTake()
	if !ok {
		t.Fatal("second buffer not published")
	}
	if b.Start != 256 {
		t.Errorf("second buffer start frame = %d, want 256", b.Start)
	}
	pool.Release(b)
}

func TestCallbackDropsOnPoolExhaustion(t *testing.T) {
	pool := buffer.NewPool(2, 256)
	d, fc := testDriver(pool, 120)

	// Fill both buffers without draining, then one more period.
	runCallback(d, 256)
	runCallback(d, 256)
	runCallback(d, 256)

	if d.DroppedSamples() == 0 {
		t.Error("exhausted pool must drop samples, not block")
	}
	if got := fc.Load(); got != 768 {
		t.Errorf("frame counter = %d, want 768 despite drops", got)
	}
}

func TestStopFlushesPartialBuffer(t *testing.T) {
	pool := buffer.NewPool(4, 512)
	d, _ := testDriver(pool, 120)

	runCallback(d, 256) // half a buffer
	if pool.Pending() != 0 {
		t.Fatal("partial buffer published early")
	}

	// Stop with no open stream still flushes the partial capture.
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	b, ok := pool.TryTake()
	if !ok {
		t.Fatal("partial buffer not flushed on stop")
	}
	if b.Data[0] != 0.5 || b.Data[300] != 0 {
		t.Error("flushed buffer should be zero-padded past the filled region")
	}
}
