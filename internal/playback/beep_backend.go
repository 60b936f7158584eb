package playback

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/pkg/errors"
)

const (
	beepOutputRate  = beep.SampleRate(44100)
	beepResampleQty = 4
)

// beepBufferSize is the speaker's internal buffer, in samples, at
// beepOutputRate; it cannot be a const because SampleRate.N is a method.
var beepBufferSize = beepOutputRate.N(time.Second / 20)

// BeepBackend is a streaming/decoding AudioBackend built on gopxl/beep/v2.
// Unlike OtoBackend it decodes compressed audio itself: LoadNext sniffs the
// container from the leading bytes (mp3, flac, ogg/vorbis, or wav) and
// resamples to beepOutputRate so every song shares one speaker mixer.
type BeepBackend struct {
	mu sync.Mutex

	current, next *beepSlot

	finishedReported bool
}

type beepSlot struct {
	id       catalog.SongID
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl

	finMu    sync.Mutex
	finished bool
}

func (s *beepSlot) markFinished() {
	s.finMu.Lock()
	s.finished = true
	s.finMu.Unlock()
}

func (s *beepSlot) isFinished() bool {
	s.finMu.Lock()
	defer s.finMu.Unlock()
	return s.finished
}

// speakerInit guards speaker.Init, which the beep package requires be
// called exactly once per process.
var speakerInit sync.Once
var speakerInitErr error

// NewBeepBackend initializes the shared speaker output (once per process)
// and returns a backend ready to load songs.
func NewBeepBackend() (*BeepBackend, error) {
	speakerInit.Do(func() {
		speakerInitErr = speaker.Init(beepOutputRate, beepBufferSize)
	})
	if speakerInitErr != nil {
		return nil, errors.Wrap(speakerInitErr, "beep backend: init speaker")
	}
	return &BeepBackend{}, nil
}

// sniffDecode picks a decoder by magic bytes and decodes data into a
// resampled stream at beepOutputRate.
func sniffDecode(data []byte) (beep.StreamSeekCloser, error) {
	rc := io.NopCloser(bytes.NewReader(data))
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		streamer, format, err = flac.Decode(rc)
	case bytes.HasPrefix(data, []byte("OggS")):
		streamer, format, err = vorbis.Decode(rc)
	case bytes.HasPrefix(data, []byte("RIFF")):
		streamer, format, err = wav.Decode(rc)
	default:
		streamer, format, err = mp3.Decode(rc)
	}
	if err != nil {
		return nil, errors.Wrap(err, "beep backend: decode")
	}
	if format.SampleRate == beepOutputRate {
		return streamer, nil
	}
	resampled := beep.Resample(beepResampleQty, format.SampleRate, beepOutputRate, streamer)
	return &resampleSeekCloser{Streamer: resampled, inner: streamer}, nil
}

// resampleSeekCloser adapts beep.Resample's plain beep.Streamer back to
// StreamSeekCloser by delegating Seek/Len/Position/Close to the
// pre-resample streamer (resampling is sample-rate conversion only, it
// does not change sample offsets in the underlying decode).
type resampleSeekCloser struct {
	beep.Streamer
	inner beep.StreamSeekCloser
}

func (r *resampleSeekCloser) Len() int        { return r.inner.Len() }
func (r *resampleSeekCloser) Position() int   { return r.inner.Position() }
func (r *resampleSeekCloser) Seek(p int) error { return r.inner.Seek(p) }
func (r *resampleSeekCloser) Close() error    { return r.inner.Close() }

func (b *BeepBackend) newSlot(id catalog.SongID, data []byte) (*beepSlot, error) {
	streamer, err := sniffDecode(data)
	if err != nil {
		return nil, err
	}
	slot := &beepSlot{id: id, streamer: streamer}
	slot.ctrl = &beep.Ctrl{Streamer: streamer, Paused: true}
	speaker.Play(beep.Seq(slot.ctrl, beep.Callback(slot.markFinished)))
	return slot, nil
}

func (b *BeepBackend) LoadNext(id catalog.SongID, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, err := b.newSlot(id, data)
	if err != nil {
		return err
	}
	if b.next != nil {
		b.next.streamer.Close()
	}
	b.next = slot
	return nil
}

func (b *BeepBackend) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return
	}
	speaker.Lock()
	b.current.ctrl.Paused = false
	speaker.Unlock()
}

func (b *BeepBackend) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return
	}
	speaker.Lock()
	b.current.ctrl.Paused = true
	speaker.Unlock()
}

func (b *BeepBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return
	}
	speaker.Lock()
	b.current.ctrl.Paused = true
	speaker.Unlock()
	if err := b.current.streamer.Seek(0); err != nil {
		log.WithError(err).WithField("song", b.current.id).Warn("beep backend: seek to start failed")
	}
}

func (b *BeepBackend) SkipToNext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		speaker.Lock()
		b.current.ctrl.Paused = true
		speaker.Unlock()
		b.current.streamer.Close()
	}
	b.current = b.next
	b.next = nil
	b.finishedReported = false
}

func (b *BeepBackend) CurrentSong() (catalog.SongID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return 0, false
	}
	return b.current.id, true
}

func (b *BeepBackend) NextSong() (catalog.SongID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next == nil {
		return 0, false
	}
	return b.next.id, true
}

func (b *BeepBackend) SongFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && b.current.isFinished() && !b.finishedReported {
		b.finishedReported = true
		return true
	}
	return false
}

func (b *BeepBackend) Position() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return 0, false
	}
	speaker.Lock()
	pos := b.current.streamer.Position()
	speaker.Unlock()
	return beepOutputRate.D(pos), true
}

// Close releases decode resources for any loaded songs.
func (b *BeepBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.streamer.Close()
	}
	if b.next != nil {
		b.next.streamer.Close()
	}
	return nil
}
