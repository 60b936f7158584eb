// Package cache runs the background cache manager: a goroutine that keeps
// upcoming songs' bytes resident and evicts under memory pressure (spec
// §4.7), grounded on the should-cache-set/eviction/prefetch algorithm of
// original_source/musicdb-lib's cache_manager.rs.
package cache

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// DefaultShortInterval is the poll period right after the manager did
	// something, so it can keep up with fast-moving playback.
	DefaultShortInterval = time.Second
	// DefaultLongInterval is the poll period once idle.
	DefaultLongInterval = 20 * time.Second

	bytesPerMiB = 1024 * 1024
)

// Manager preloads up to SongsToCache upcoming songs and evicts cached
// bytes when free memory drops below MinAvailMem, subject to never
// dropping the current or next song (spec §4.7, scenario S5).
type Manager struct {
	engine *command.Engine

	minAvailMem  atomic.Uint64 // bytes
	maxAvailMem  atomic.Uint64 // bytes
	songsToCache atomic.Int64

	shortInterval time.Duration
	longInterval  time.Duration

	loading sync.Map // catalog.SongID -> struct{}, songs with a loader goroutine in flight

	mu     sync.Mutex // serializes Start/Stop
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager returns a Manager over engine's catalog and queue. minAvailMem
// and maxAvailMem are in bytes; songsToCache is clamped to a minimum of 2
// (current + next) per spec §4.7.
func NewManager(engine *command.Engine, minAvailMem, maxAvailMem uint64, songsToCache int) *Manager {
	if songsToCache < 2 {
		songsToCache = 2
	}
	m := &Manager{
		engine:        engine,
		shortInterval: DefaultShortInterval,
		longInterval:  DefaultLongInterval,
	}
	m.minAvailMem.Store(minAvailMem)
	m.maxAvailMem.Store(maxAvailMem)
	m.songsToCache.Store(int64(songsToCache))
	return m
}

// SetMemoryMiB updates the eviction/prefetch thresholds in mebibytes,
// mirroring cache_manager.rs's set_memory_mib. Safe to call while running.
func (m *Manager) SetMemoryMiB(minMiB, maxMiB uint64) {
	m.minAvailMem.Store(minMiB * bytesPerMiB)
	m.maxAvailMem.Store(maxMiB * bytesPerMiB)
}

// SetSongsToCache updates how many upcoming songs to keep resident,
// clamped to a minimum of 2.
func (m *Manager) SetSongsToCache(n int) {
	if n < 2 {
		n = 2
	}
	m.songsToCache.Store(int64(n))
}

// Start spawns the poll loop. It is a no-op if already running.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(m.stopCh, m.doneCh)
}

// Stop halts the poll loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.stopCh = nil
}

func (m *Manager) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	interval := m.shortInterval
	for {
		select {
		case <-stopCh:
			return
		case <-time.After(interval):
		}
		if m.tick() {
			interval = m.shortInterval
		} else {
			interval = m.longInterval
		}
	}
}

// tick runs one pass of the algorithm (spec §4.7, steps 1-4) and reports
// whether it did anything, which keeps the poll interval short.
func (m *Manager) tick() bool {
	cat := m.engine.Catalog()
	q := m.engine.Queue()

	current, haveCurrent := q.CurrentSongID()
	next, haveNext := q.NextSongID()
	shouldCache := m.shouldCacheSet(q)

	didWork := false

	available, err := availableMemory()
	if err != nil {
		log.WithError(err).Warn("failed to read available memory")
	} else if available < m.minAvailMem.Load() {
		log.WithField("available", humanize.Bytes(available)).Debug("available memory below threshold, evicting")
		if m.evictOne(cat, shouldCache, current, haveCurrent, next, haveNext) {
			didWork = true
		}
	} else if available > m.maxAvailMem.Load() {
		if m.prefetchOne(cat, shouldCache) {
			didWork = true
		}
	}

	if m.ensureNextLoading(cat, next, haveNext) {
		didWork = true
	}

	return didWork
}

// shouldCacheSet walks a clone of q forward from its current position,
// collecting up to SongsToCache distinct song ids starting with the
// current song (spec §4.7 step 1), without disturbing live playback. The
// walk takes at most SongsToCache advance steps, so a queue that repeats
// songs (an infinite Loop) still terminates.
func (m *Manager) shouldCacheSet(q *queue.Queue) []catalog.SongID {
	clone := q.Clone()
	want := int(m.songsToCache.Load())

	var ids []catalog.SongID
	seen := make(map[catalog.SongID]bool)
	if id, ok := clone.CurrentSongID(); ok {
		ids = append(ids, id)
		seen[id] = true
	}
	for steps := 0; len(ids) < want && steps < want; steps++ {
		if !clone.Advance() {
			break
		}
		id, ok := clone.CurrentSongID()
		if !ok {
			break
		}
		if seen[id] {
			continue
		}
		ids = append(ids, id)
		seen[id] = true
	}
	return ids
}

func inSet(ids []catalog.SongID, id catalog.SongID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// evictOne drops the cached bytes of a single song to relieve memory
// pressure, preferring a song outside the should-cache set and never
// touching current or next (spec §4.7 step 2, scenario S5).
func (m *Manager) evictOne(cat *catalog.Catalog, shouldCache []catalog.SongID, current catalog.SongID, haveCurrent bool, next catalog.SongID, haveNext bool) bool {
	protected := func(id catalog.SongID) bool {
		return (haveCurrent && id == current) || (haveNext && id == next)
	}

	// Prefer evicting a cached song that is not in the should-cache set at
	// all.
	for _, song := range cat.Songs() {
		if song.Cache == nil || protected(song.ID) || inSet(shouldCache, song.ID) {
			continue
		}
		if _, ok := song.Cache.Bytes(); ok && song.Cache.Uncache() {
			log.WithField("song", song.ID).Debug("evicted uncached-priority song")
			return true
		}
	}

	// Otherwise evict the furthest-out should-cache member that isn't
	// current or next.
	for i := len(shouldCache) - 1; i >= 0; i-- {
		id := shouldCache[i]
		if protected(id) {
			continue
		}
		song, ok := cat.Song(id)
		if !ok || song.Cache == nil {
			continue
		}
		if _, ok := song.Cache.Bytes(); ok && song.Cache.Uncache() {
			log.WithField("song", id).Debug("evicted should-cache song under pressure")
			return true
		}
	}
	return false
}

// prefetchOne starts loading the first should-cache song that has no bytes
// and no load in flight, then stops (spec §4.7 step 3: one start per tick).
func (m *Manager) prefetchOne(cat *catalog.Catalog, shouldCache []catalog.SongID) bool {
	for _, id := range shouldCache {
		if m.startLoad(cat, id) {
			return true
		}
	}
	return false
}

// ensureNextLoading guarantees the queue's next song always has a load in
// flight or resident bytes, independent of the memory-pressure branches
// above (spec §4.7 step 4).
func (m *Manager) ensureNextLoading(cat *catalog.Catalog, next catalog.SongID, haveNext bool) bool {
	if !haveNext {
		return false
	}
	return m.startLoad(cat, next)
}

// startLoad begins an async disk read for id if it has no bytes and no
// load already in flight. It reports whether it actually started one.
func (m *Manager) startLoad(cat *catalog.Catalog, id catalog.SongID) bool {
	song, ok := cat.Song(id)
	if !ok || song.Cache == nil {
		return false
	}
	if _, ok := song.Cache.Bytes(); ok {
		return false
	}
	if song.Cache.State() == catalog.CacheLoading {
		return false
	}
	if _, loading := m.loading.LoadOrStore(id, struct{}{}); loading {
		return false
	}
	if _, ok := song.Cache.BeginLoad(); !ok {
		m.loading.Delete(id)
		return false
	}
	dir := cat.LibraryDirectory()
	go func() {
		defer m.loading.Delete(id)
		data, err := os.ReadFile(filepath.Join(dir, song.Location))
		song.Cache.FinishLoad(data, err)
	}()
	return true
}

// availableMemory reports currently available system memory in bytes.
func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
