package devices

import (
	"errors"
	"sync"

	"github.com/dkeye/golive/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/rs/zerolog/log"
)

var (
	errNoDisplay = errors.New("no display track")
	errNotAudio  = errors.New("track is not a captured audio track")
)

// window is how much PCM a tap keeps, in samples.
const window = 4096

// Tapper opens raw PCM readers on captured microphone tracks.
type Tapper struct{}

var _ core.AudioTapper = Tapper{}

func (Tapper) AudioTap(lt core.LocalTrack) (core.AudioSource, error) {
	t, ok := lt.(*track)
	if !ok {
		return nil, errNotAudio
	}
	at, ok := t.media.(*mediadevices.AudioTrack)
	if !ok {
		return nil, errNotAudio
	}
	tap := newTap(at.NewReader(false))
	go tap.run()
	return tap, nil
}

type tap struct {
	reader audio.Reader
	ring   *ring

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newTap(r audio.Reader) *tap {
	return &tap{reader: r, ring: newRing(window), done: make(chan struct{})}
}

func (t *tap) run() {
	defer close(t.done)
	for {
		chunk, release, err := t.reader.Read()
		if err != nil {
			log.Debug().Err(err).Str("module", "devices").Msg("audio tap ended")
			return
		}
		rate := chunk.ChunkInfo().SamplingRate
		samples := mono(chunk)
		release()

		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		t.ring.write(samples, rate)
	}
}

func (t *tap) SampleRate() int           { return t.ring.sampleRate() }
func (t *tap) Samples(dst []float64) int { return t.ring.read(dst) }

// Close detaches the tap. The reader goroutine exits with the next chunk or
// when the track ends.
func (t *tap) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// mono downmixes a chunk to its first channel, normalized to [-1, 1].
func mono(chunk wave.Audio) []float64 {
	info := chunk.ChunkInfo()
	ch := info.Channels
	if ch < 1 {
		ch = 1
	}
	out := make([]float64, info.Len)
	switch c := chunk.(type) {
	case *wave.Int16Interleaved:
		for i := range out {
			out[i] = float64(c.Data[i*ch]) / 32768
		}
	case *wave.Float32Interleaved:
		for i := range out {
			out[i] = float64(c.Data[i*ch])
		}
	default:
		for i := range out {
			out[i] = float64(chunk.At(i, 0).Int()) / float64(1<<63)
		}
	}
	return out
}

// ring keeps the newest PCM samples.
type ring struct {
	mu     sync.Mutex
	buf    []float64
	pos    int
	filled int
	rate   int
}

func newRing(size int) *ring {
	return &ring{buf: make([]float64, size)}
}

func (r *ring) write(samples []float64, rate int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
	for _, s := range samples {
		r.buf[r.pos] = s
		r.pos = (r.pos + 1) % len(r.buf)
	}
	r.filled = min(r.filled+len(samples), len(r.buf))
}

func (r *ring) read(dst []float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(len(dst), r.filled)
	start := (r.pos - n + len(r.buf)) % len(r.buf)
	for i := range n {
		dst[i] = r.buf[(start+i)%len(r.buf)]
	}
	return n
}

func (r *ring) sampleRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}
