package cache

import (
	"testing"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
)

// loadCached puts song id's cache directly into the Loaded state with the
// given bytes, bypassing disk I/O.
func loadCached(t *testing.T, cat *catalog.Catalog, id catalog.SongID, data []byte) {
	t.Helper()
	song, ok := cat.Song(id)
	if !ok {
		t.Fatalf("song %v not in catalog", id)
	}
	done, ok := song.Cache.BeginLoad()
	if !ok {
		t.Fatalf("song %v already loading", id)
	}
	song.Cache.FinishLoad(data, nil)
	<-done
}

func threeSongQueue(t *testing.T) (*catalog.Catalog, *queue.Queue, catalog.SongID, catalog.SongID, catalog.SongID) {
	t.Helper()
	cat := catalog.New()
	id1 := cat.AddSong(&catalog.Song{Title: "one", DurationMillis: 10})
	id2 := cat.AddSong(&catalog.Song{Title: "two", DurationMillis: 10})
	id3 := cat.AddSong(&catalog.Song{Title: "three", DurationMillis: 10})

	root := queue.NewFolderNode("")
	root.Folder.Children = []*queue.Node{
		queue.NewSongNode(id1),
		queue.NewSongNode(id2),
		queue.NewSongNode(id3),
	}
	q := queue.New()
	q.SetRoot(root)

	return cat, q, id1, id2, id3
}

func TestShouldCacheSetStartsWithCurrentAndDoesNotMutateQueue(t *testing.T) {
	cat, q, id1, id2, id3 := threeSongQueue(t)
	engine := command.New(cat, q, "", nil)
	m := NewManager(engine, 0, 0, 3)

	got := m.shouldCacheSet(engine.Queue())
	want := []catalog.SongID{id1, id2, id3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	// The live queue's position must be unaffected by the walk.
	cur, ok := q.CurrentSongID()
	if !ok || cur != id1 {
		t.Fatalf("expected live queue still at %v, got %v ok=%v", id1, cur, ok)
	}
}

func TestEvictionNeverTouchesCurrentOrNext(t *testing.T) {
	cat, q, id1, id2, id3 := threeSongQueue(t)
	loadCached(t, cat, id1, []byte{1})
	loadCached(t, cat, id2, []byte{2})
	loadCached(t, cat, id3, []byte{3})

	engine := command.New(cat, q, "", nil)
	m := NewManager(engine, 0, 0, 3)

	shouldCache := m.shouldCacheSet(engine.Queue())
	current, _ := q.CurrentSongID()
	next, _ := q.NextSongID()

	evicted := false
	for i := 0; i < 10; i++ {
		if !m.evictOne(cat, shouldCache, current, true, next, true) {
			break
		}
		evicted = true
	}
	if !evicted {
		t.Fatal("expected at least one eviction to succeed")
	}

	song1, _ := cat.Song(id1)
	song2, _ := cat.Song(id2)
	if _, ok := song1.Cache.Bytes(); !ok {
		t.Fatal("current song's bytes must never be evicted")
	}
	if _, ok := song2.Cache.Bytes(); !ok {
		t.Fatal("next song's bytes must never be evicted")
	}
}

func TestEvictionPrefersSongsOutsideShouldCacheSet(t *testing.T) {
	cat, q, id1, id2, id3 := threeSongQueue(t)
	loadCached(t, cat, id1, []byte{1})
	loadCached(t, cat, id2, []byte{2})
	loadCached(t, cat, id3, []byte{3})

	engine := command.New(cat, q, "", nil)
	m := NewManager(engine, 0, 0, 2) // only id1, id2 are should-cache

	shouldCache := m.shouldCacheSet(engine.Queue())
	current, _ := q.CurrentSongID()
	next, _ := q.NextSongID()

	if !m.evictOne(cat, shouldCache, current, true, next, true) {
		t.Fatal("expected an eviction to happen")
	}

	song3, _ := cat.Song(id3)
	if _, ok := song3.Cache.Bytes(); ok {
		t.Fatal("expected id3 (outside should-cache set) to be evicted first")
	}
	song1, _ := cat.Song(id1)
	song2, _ := cat.Song(id2)
	if _, ok := song1.Cache.Bytes(); !ok {
		t.Fatal("id1 (current) must remain cached")
	}
	if _, ok := song2.Cache.Bytes(); !ok {
		t.Fatal("id2 (next) must remain cached")
	}
}

func TestPrefetchStartsLoadingFirstUncachedShouldCacheSong(t *testing.T) {
	cat, q, id1, id2, _ := threeSongQueue(t)
	// id1 resolves to no real file; give it a Location so the loader
	// goroutine has something to attempt (it will fail, which is fine: we
	// only assert that a load was started).
	song1, _ := cat.Song(id1)
	song1.Location = "does-not-exist-1.pcm"
	song2, _ := cat.Song(id2)
	song2.Location = "does-not-exist-2.pcm"

	engine := command.New(cat, q, "", nil)
	m := NewManager(engine, 0, 0, 3)

	shouldCache := m.shouldCacheSet(engine.Queue())
	if !m.prefetchOne(cat, shouldCache) {
		t.Fatal("expected prefetchOne to start a load")
	}
	if song1.Cache.State() != catalog.CacheLoading && song1.Cache.State() != catalog.CacheFailed {
		t.Fatalf("expected id1 to be loading or already failed, got %v", song1.Cache.State())
	}
}

func TestEnsureNextLoadingAlwaysTargetsQueueNext(t *testing.T) {
	cat, q, _, id2, _ := threeSongQueue(t)
	song2, _ := cat.Song(id2)
	song2.Location = "does-not-exist.pcm"

	engine := command.New(cat, q, "", nil)
	m := NewManager(engine, 0, 0, 3)

	next, haveNext := q.NextSongID()
	if !haveNext || next != id2 {
		t.Fatalf("expected next = %v, got %v ok=%v", id2, next, haveNext)
	}
	if !m.ensureNextLoading(cat, next, haveNext) {
		t.Fatal("expected ensureNextLoading to start a load for the queue's next song")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && song2.Cache.State() == catalog.CacheLoading {
		time.Sleep(time.Millisecond)
	}
	if song2.Cache.State() != catalog.CacheFailed {
		t.Fatalf("expected load of a nonexistent file to fail, got state %v", song2.Cache.State())
	}
}

func TestSetSongsToCacheClampsToMinimumTwo(t *testing.T) {
	engine := command.New(catalog.New(), queue.New(), "", nil)
	m := NewManager(engine, 0, 0, 1)
	if got := m.songsToCache.Load(); got != 2 {
		t.Fatalf("expected clamp to 2, got %d", got)
	}
	m.SetSongsToCache(0)
	if got := m.songsToCache.Load(); got != 2 {
		t.Fatalf("expected clamp to 2, got %d", got)
	}
	m.SetSongsToCache(5)
	if got := m.songsToCache.Load(); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestSetMemoryMiBConvertsToBytes(t *testing.T) {
	engine := command.New(catalog.New(), queue.New(), "", nil)
	m := NewManager(engine, 0, 0, 2)
	m.SetMemoryMiB(64, 256)
	if got := m.minAvailMem.Load(); got != 64*bytesPerMiB {
		t.Fatalf("expected %d, got %d", 64*bytesPerMiB, got)
	}
	if got := m.maxAvailMem.Load(); got != 256*bytesPerMiB {
		t.Fatalf("expected %d, got %d", 256*bytesPerMiB, got)
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	engine := command.New(catalog.New(), queue.New(), "", nil)
	m := NewManager(engine, 0, 0, 2)
	m.shortInterval = time.Millisecond
	m.longInterval = time.Millisecond

	m.Start()
	m.Start() // no-op, must not deadlock or spawn a second loop
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop() // no-op
}
