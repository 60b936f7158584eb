package playback

import (
	"sync"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
)

// SleepBackend is a headless AudioBackend: it performs no audio I/O and
// instead sleeps for each song's catalog duration, reporting "finished"
// once that duration elapses. Useful for tests and for running a server
// with no sound hardware attached.
type SleepBackend struct {
	mu  sync.Mutex
	cat *catalog.Catalog

	current, next *sleepSong
	playing       bool

	// running is true iff a deadline (until) is live; otherwise remaining
	// holds the time left when last paused/stopped.
	running   bool
	until     time.Time
	remaining time.Duration

	finishedReported bool
}

type sleepSong struct {
	id       catalog.SongID
	duration time.Duration
}

// NewSleepBackend returns a SleepBackend that looks up song durations from
// cat.
func NewSleepBackend(cat *catalog.Catalog) *SleepBackend {
	return &SleepBackend{cat: cat}
}

func (b *SleepBackend) LoadNext(id catalog.SongID, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	song, ok := b.cat.Song(id)
	if !ok {
		return catalog.ErrNotFound
	}
	b.next = &sleepSong{id: id, duration: time.Duration(song.DurationMillis) * time.Millisecond}
	return nil
}

// setFinished rearms the countdown for the current song, running or not,
// mirroring sleep.rs's set_finished.
func (b *SleepBackend) setFinished(run bool) {
	if b.current == nil {
		b.running = false
		return
	}
	if run {
		b.running = true
		b.until = time.Now().Add(b.current.duration)
	} else {
		b.running = false
		b.remaining = b.current.duration
	}
}

func (b *SleepBackend) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playing = true
	if !b.running && b.current != nil {
		b.running = true
		b.until = time.Now().Add(b.remaining)
	}
}

func (b *SleepBackend) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playing = false
	if b.running {
		b.remaining = time.Until(b.until)
		b.running = false
	}
}

func (b *SleepBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playing = false
	b.setFinished(false)
}

func (b *SleepBackend) SkipToNext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.next
	b.next = nil
	b.finishedReported = false
	b.setFinished(b.playing)
}

func (b *SleepBackend) CurrentSong() (catalog.SongID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return 0, false
	}
	return b.current.id, true
}

func (b *SleepBackend) NextSong() (catalog.SongID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next == nil {
		return 0, false
	}
	return b.next.id, true
}

func (b *SleepBackend) SongFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	finishedNow := b.current != nil && ((b.running && !time.Now().Before(b.until)) || (!b.running && b.remaining <= 0))
	if finishedNow && !b.finishedReported {
		b.finishedReported = true
		return true
	}
	return false
}

func (b *SleepBackend) Position() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || b.current.duration <= 0 {
		return 0, false
	}
	var remaining time.Duration
	if b.running {
		remaining = time.Until(b.until)
	} else {
		remaining = b.remaining
	}
	if remaining < 0 {
		remaining = 0
	}
	return b.current.duration - remaining, true
}
