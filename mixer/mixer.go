// Package mixer combines two asynchronous mono sample streams (microphone
// and system audio) into one stream under a fixed mixing law, active only
// when a session records in Mixed mode.
package mixer

import (
	"sync"
	"time"
)

// tickInterval is how often the mixer drains its input channels.
const tickInterval = 10 * time.Millisecond

// MixAudio combines two sample buffers sample-by-sample:
// out[i] = clamp((a[i] + b[i]) * 0.5, -1, 1), padding the shorter buffer
// with zeros. The result has max(len(a), len(b)) samples.
//
// Grounded on the teacher's small-pure-function style (see
// audio.Resample / the teacher's resampleLinear) — new logic since
// AIWisper interleaves stereo rather than averaging.
func MixAudio(a, b []float32) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var av, bv float32
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = clamp((av+bv)*0.5, -1.0, 1.0)
	}
	return out
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Mixer drains two buffered input channels (1024 chunks each) every
// 10ms, mixes whatever is queued on each, and forwards the result to out.
// The input channels are bounded: WriteMic/WriteSystem block while their
// channel is full. It is finite: Stop causes the run loop to exit after
// flushing the channels' current contents. Grounded on
// _examples/original_source/src-tauri/src/audio_toolkit/mixed_recorder.rs's
// 10ms mixer thread.
type Mixer struct {
	mic chan []float32
	sys chan []float32
	out chan []float32

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a Mixer. Callers push chunks through WriteMic and
// WriteSystem; Output returns the mixed stream.
func New() *Mixer {
	return &Mixer{
		mic:  make(chan []float32, 1024),
		sys:  make(chan []float32, 1024),
		out:  make(chan []float32, 1024),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// WriteMic enqueues a chunk from the microphone source. Never blocks
// indefinitely in practice: the channel is generously buffered, matching
// the "never lose already-captured audio" requirement.
func (m *Mixer) WriteMic(samples []float32) {
	select {
	case m.mic <- samples:
	case <-m.stop:
	}
}

// WriteSystem enqueues a chunk from the system-audio source.
func (m *Mixer) WriteSystem(samples []float32) {
	select {
	case m.sys <- samples:
	case <-m.stop:
	}
}

// Output returns the mixed sample stream.
func (m *Mixer) Output() <-chan []float32 {
	return m.out
}

// Run drives the 10ms drain/mix/forward loop. Call it on its own
// goroutine; it returns once Stop has flushed the remaining input.
func (m *Mixer) Run() {
	defer close(m.done)
	defer close(m.out)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.drainAndEmit()
			return
		case <-ticker.C:
			m.drainAndEmit()
		}
	}
}

func (m *Mixer) drainAndEmit() {
	micBuf := drainAll(m.mic)
	sysBuf := drainAll(m.sys)
	if len(micBuf) == 0 && len(sysBuf) == 0 {
		return
	}
	mixed := MixAudio(micBuf, sysBuf)
	select {
	case m.out <- mixed:
	default:
		// Downstream (the sink) is falling behind; drop this mixed
		// chunk rather than block the mixing loop.
	}
}

func drainAll(ch chan []float32) []float32 {
	var out []float32
	for {
		select {
		case chunk := <-ch:
			out = append(out, chunk...)
		default:
			return out
		}
	}
}

// Stop signals the run loop to flush and exit, then waits for it to
// finish. Safe to call multiple times.
func (m *Mixer) Stop() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}
