// Package playback drives "what plays now" from the queue (spec §4.6): a
// Scheduler ticks an AudioBackend against the command engine's queue,
// synthesizing NextSong when a song finishes and keeping the backend's
// loaded current/next songs in sync with the queue's.
package playback

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
)

// DefaultTickInterval matches spec §4.6's "typically 10x/second".
const DefaultTickInterval = 100 * time.Millisecond

// maxMissingRetries bounds how many consecutive ticks the scheduler will
// wait for a song's bytes to become ready before treating it as a decode
// error (spec §4.6: "Missing bytes ... behave as decode error after one
// retry cycle").
const maxMissingRetries = 1

// Scheduler owns an AudioBackend and reconciles it against the engine's
// queue on every tick (spec §4.6).
type Scheduler struct {
	engine   *command.Engine
	backend  AudioBackend
	interval time.Duration

	mu             sync.Mutex
	missingRetries map[catalog.SongID]int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler returns a Scheduler driving backend from engine's state,
// ticking at DefaultTickInterval.
func NewScheduler(engine *command.Engine, backend AudioBackend) *Scheduler {
	return &Scheduler{
		engine:         engine,
		backend:        backend,
		interval:       DefaultTickInterval,
		missingRetries: make(map[catalog.SongID]int),
	}
}

// Start spawns the tick loop. It is a no-op if already running.
func (s *Scheduler) Start() {
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one reconciliation pass (spec §4.6, steps 1-4).
func (s *Scheduler) tick() {
	if s.backend.SongFinished() {
		s.engine.Apply(command.NextSong())
	}

	q := s.engine.Queue()

	queueCurrent, haveCurrent := q.CurrentSongID()
	backendCurrent, backendHasCurrent := s.backend.CurrentSong()
	if haveCurrent && (!backendHasCurrent || queueCurrent != backendCurrent) {
		s.reconcileCurrent(queueCurrent)
	}

	queueNext, haveNext := q.NextSongID()
	backendNext, backendHasNext := s.backend.NextSong()
	if haveNext && (!backendHasNext || queueNext != backendNext) {
		s.reconcileNext(queueNext)
	}

	if s.engine.Playing() {
		s.backend.Play()
	} else {
		s.backend.Pause()
	}
}

// reconcileCurrent loads id into the backend as the current song, advancing
// past it on a decode error or an unresolvable cache miss.
func (s *Scheduler) reconcileCurrent(id catalog.SongID) {
	data, state := s.songBytes(id)
	switch state {
	case catalog.CacheLoaded:
		s.clearRetry(id)
		if err := s.backend.LoadNext(id, data); err != nil {
			log.WithError(err).WithField("song", id).Warn("decode error on current song")
			s.engine.Apply(command.ErrorInfo("decode error: " + err.Error()))
			s.engine.Apply(command.NextSong())
			return
		}
		s.backend.SkipToNext()
	case catalog.CacheFailed:
		log.WithField("song", id).Warn("current song bytes failed to load")
		s.engine.Apply(command.ErrorInfo("failed to load song bytes"))
		s.engine.Apply(command.NextSong())
		s.clearRetry(id)
	default: // CacheNone or CacheLoading: not ready yet.
		if s.bumpRetry(id) > maxMissingRetries {
			log.WithField("song", id).Warn("current song bytes never became available")
			s.engine.Apply(command.ErrorInfo("song bytes unavailable"))
			s.engine.Apply(command.NextSong())
			s.clearRetry(id)
			return
		}
		s.ensureLoading(id)
	}
}

// reconcileNext preloads id into the backend's "next" slot. Failures here
// are logged but never advance the queue (spec §4.6: "non-fatal").
func (s *Scheduler) reconcileNext(id catalog.SongID) {
	data, state := s.songBytes(id)
	switch state {
	case catalog.CacheLoaded:
		if err := s.backend.LoadNext(id, data); err != nil {
			log.WithError(err).WithField("song", id).Warn("decode error preloading next song")
			s.engine.Apply(command.ErrorInfo("decode error preloading next song: " + err.Error()))
		}
	case catalog.CacheFailed:
		log.WithField("song", id).Warn("next song bytes failed to load")
		s.engine.Apply(command.ErrorInfo("failed to preload next song"))
	default:
		s.ensureLoading(id)
	}
}

// songBytes looks up id's cache state without triggering a load.
func (s *Scheduler) songBytes(id catalog.SongID) ([]byte, catalog.CachedState) {
	song, ok := s.engine.Catalog().Song(id)
	if !ok {
		return nil, catalog.CacheFailed
	}
	if data, ok := song.Cache.Bytes(); ok {
		return data, catalog.CacheLoaded
	}
	return nil, song.Cache.State()
}

// ensureLoading starts a loader goroutine for id's file bytes if one is not
// already in flight. The cache manager (internal/cache) independently keeps
// upcoming songs warm; this is the scheduler's own urgent path so gapless
// playback does not wait on the cache manager's poll interval.
func (s *Scheduler) ensureLoading(id catalog.SongID) {
	song, ok := s.engine.Catalog().Song(id)
	if !ok {
		return
	}
	if _, ok := song.Cache.BeginLoad(); !ok {
		return // already loading
	}
	dir := s.engine.Catalog().LibraryDirectory()
	go func() {
		data, err := os.ReadFile(filepath.Join(dir, song.Location))
		song.Cache.FinishLoad(data, err)
	}()
}

func (s *Scheduler) bumpRetry(id catalog.SongID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingRetries[id]++
	return s.missingRetries[id]
}

func (s *Scheduler) clearRetry(id catalog.SongID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.missingRetries, id)
}
