package playback

import (
	"testing"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
)

// loadCached puts song id's cache directly into the Loaded state with the
// given bytes, bypassing disk I/O, so scheduler ticks never hit the
// filesystem in tests.
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

func twoSongQueue(t *testing.T) (*catalog.Catalog, *queue.Queue, catalog.SongID, catalog.SongID) {
	t.Helper()
	cat := catalog.New()
	id1 := cat.AddSong(&catalog.Song{Title: "one", DurationMillis: 10})
	id2 := cat.AddSong(&catalog.Song{Title: "two", DurationMillis: 10})

	root := queue.NewFolderNode("")
	root.Folder.Children = []*queue.Node{queue.NewSongNode(id1), queue.NewSongNode(id2)}
	q := queue.New()
	q.SetRoot(root)

	return cat, q, id1, id2
}

func TestSchedulerLoadsCurrentAndNextIntoBackend(t *testing.T) {
	cat, q, id1, id2 := twoSongQueue(t)
	loadCached(t, cat, id1, []byte{1})
	loadCached(t, cat, id2, []byte{2})

	engine := command.New(cat, q, "", nil)
	backend := NewSleepBackend(cat)
	sched := NewScheduler(engine, backend)

	sched.tick()

	cur, ok := backend.CurrentSong()
	if !ok || cur != id1 {
		t.Fatalf("expected backend current = %v, got %v ok=%v", id1, cur, ok)
	}
	next, ok := backend.NextSong()
	if !ok || next != id2 {
		t.Fatalf("expected backend next = %v, got %v ok=%v", id2, next, ok)
	}
}

func TestSchedulerAdvancesOnSongFinished(t *testing.T) {
	cat, q, id1, id2 := twoSongQueue(t)
	loadCached(t, cat, id1, []byte{1})
	loadCached(t, cat, id2, []byte{2})

	engine := command.New(cat, q, "", nil)
	engine.Apply(command.Resume())
	backend := NewSleepBackend(cat)
	sched := NewScheduler(engine, backend)

	sched.tick() // loads current=id1, next=id2, starts playing

	cur, _ := q.CurrentSongID()
	if cur != id1 {
		t.Fatalf("expected queue current %v, got %v", id1, cur)
	}

	// Force the sleep backend's timer to have elapsed.
	backend.mu.Lock()
	backend.until = time.Now().Add(-time.Millisecond)
	backend.mu.Unlock()

	sched.tick() // should observe song finished and advance the queue

	cur, _ = q.CurrentSongID()
	if cur != id2 {
		t.Fatalf("expected queue to have advanced to %v, got %v", id2, cur)
	}
}

func TestSchedulerReconcilesPlayPause(t *testing.T) {
	cat, q, id1, _ := twoSongQueue(t)
	loadCached(t, cat, id1, []byte{1})

	engine := command.New(cat, q, "", nil)
	backend := NewSleepBackend(cat)
	sched := NewScheduler(engine, backend)

	sched.tick()
	if backend.playing {
		t.Fatal("expected backend paused while engine is not playing")
	}

	engine.Apply(command.Resume())
	sched.tick()
	if !backend.playing {
		t.Fatal("expected backend playing after Resume")
	}

	engine.Apply(command.Pause())
	sched.tick()
	if backend.playing {
		t.Fatal("expected backend paused after Pause")
	}
}

func TestSchedulerRetriesThenAdvancesOnMissingBytes(t *testing.T) {
	cat := catalog.New()
	// A song whose file can never be found: no library directory set, and
	// the location points nowhere on disk.
	id := cat.AddSong(&catalog.Song{Title: "ghost", Location: "does-not-exist.pcm", DurationMillis: 10})

	root := queue.NewFolderNode("")
	root.Folder.Children = []*queue.Node{queue.NewSongNode(id)}
	q := queue.New()
	q.SetRoot(root)

	engine := command.New(cat, q, "", nil)
	engine.Apply(command.Resume())
	backend := NewSleepBackend(cat)
	sched := NewScheduler(engine, backend)

	sched.tick() // None -> kicks off a (failing) load, retry count 1

	// Wait for the async loader to mark the song Failed.
	song, _ := cat.Song(id)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if song.Cache.State() == catalog.CacheFailed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	sched.tick() // Failed -> ErrorInfo + NextSong; queue has one song so it exhausts, pauses and resets to the root

	if engine.Playing() {
		t.Fatal("expected exhausting the queue to pause playback")
	}
	if cur, ok := q.CurrentSongID(); !ok || cur != id {
		t.Fatalf("expected queue reset to its first song %d after exhausting, got %d (ok=%v)", id, cur, ok)
	}
}
