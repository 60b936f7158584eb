package command

import (
	"testing"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
)

func TestCommandRoundTripSimple(t *testing.T) {
	for _, c := range []*Command{Resume(), Pause(), Stop(), Save(), NextSong()} {
		w := codec.NewWriter()
		c.Encode(w)
		got, err := Decode(codec.NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("decode %v: %v", c.Tag, err)
		}
		if got.Tag != c.Tag {
			t.Fatalf("tag mismatch: want %v got %v", c.Tag, got.Tag)
		}
	}
}

func TestCommandRoundTripQueueAdd(t *testing.T) {
	node := queue.NewSongNode(42)
	cmd := QueueAdd(queue.Path{1, 2}, node)

	w := codec.NewWriter()
	cmd.Encode(w)
	got, err := Decode(codec.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tag != TagQueueAdd {
		t.Fatalf("expected QueueAdd, got %v", got.Tag)
	}
	if len(got.Path) != 2 || got.Path[0] != 1 || got.Path[1] != 2 {
		t.Fatalf("path mismatch: %v", got.Path)
	}
	if got.Node.Kind != queue.KindSong || got.Node.Song != 42 {
		t.Fatalf("node mismatch: %+v", got.Node)
	}
}

func TestCommandRoundTripModifyMapsToModifyNotAdd(t *testing.T) {
	// Regression guard for the documented bug-fix vs original_source:
	// 0x90/0x93/0x9C must decode as Modify*, never as a second Add*.
	cmd := ModifySong(&catalog.Song{ID: 7, Title: "x", Cache: &catalog.SongCache{}})
	w := codec.NewWriter()
	cmd.Encode(w)
	if w.Bytes()[0] != byte(TagModifySong) {
		t.Fatalf("expected tag byte 0x90, got 0x%02X", w.Bytes()[0])
	}
	got, err := Decode(codec.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tag != TagModifySong {
		t.Fatalf("expected ModifySong, got %v", got.Tag)
	}
}

func TestCommandDecodeUnknownTag(t *testing.T) {
	w := codec.NewWriter()
	w.Byte(0x7A)
	if _, err := Decode(codec.NewReader(w.Bytes())); err == nil {
		t.Fatal("expected an error for an unrecognized command tag")
	}
}

func newTestEngine(t *testing.T) (*Engine, *catalog.Catalog, *queue.Queue) {
	t.Helper()
	cat := catalog.New()
	q := queue.New()
	return New(cat, q, "", nil), cat, q
}

func TestEngineResumePause(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Apply(Resume())
	if !e.Playing() {
		t.Fatal("expected playing after Resume")
	}
	e.Apply(Pause())
	if e.Playing() {
		t.Fatal("expected paused after Pause")
	}
	e.Apply(Resume())
	e.Apply(Stop())
	if e.Playing() {
		t.Fatal("expected paused after Stop")
	}
}

func TestEngineNextSongExhaustionResetsAndPauses(t *testing.T) {
	e, _, q := newTestEngine(t)
	if err := q.Add(nil, []*queue.Node{queue.NewSongNode(1)}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	e.Apply(Resume())

	e.Apply(NextSong())
	if e.Playing() {
		t.Fatal("expected exhaustion to pause playback")
	}
	cur, ok := q.CurrentSongID()
	if !ok || cur != 1 {
		t.Fatalf("expected reset queue to be current again at song 1, got %v ok=%v", cur, ok)
	}
}

func TestEngineSyncDatabaseReplacesCatalog(t *testing.T) {
	e, cat, _ := newTestEngine(t)
	cat.AddSong(&catalog.Song{Title: "stale"})

	fresh := &catalog.Song{ID: 9, Title: "fresh"}
	e.Apply(SyncDatabase(nil, nil, []*catalog.Song{fresh}))

	if _, ok := cat.Song(9); !ok {
		t.Fatal("expected synced song present")
	}
	if len(cat.Songs()) != 1 {
		t.Fatalf("expected catalog replaced wholesale, got %d songs", len(cat.Songs()))
	}
}

func TestEngineQueueAddThenGoto(t *testing.T) {
	e, _, q := newTestEngine(t)
	e.Apply(QueueAdd(nil, queue.NewSongNode(5)))
	e.Apply(QueueAdd(nil, queue.NewSongNode(6)))

	if n, finite := q.RemainingSongCount(); !finite || n != 2 {
		t.Fatalf("expected 2 songs queued, got %d finite=%v", n, finite)
	}

	e.Apply(QueueGoto(queue.Path{1}))
	cur, ok := q.CurrentSongID()
	if !ok || cur != 6 {
		t.Fatalf("expected goto to select song 6, got %v ok=%v", cur, ok)
	}
}

func TestEngineBroadcastsEveryAppliedCommand(t *testing.T) {
	cat := catalog.New()
	q := queue.New()
	var seen []Tag
	rec := recorderBroadcaster(func(c *Command) { seen = append(seen, c.Tag) })
	e := New(cat, q, "", rec)

	e.Apply(Resume())
	e.Apply(Pause())

	if len(seen) != 2 || seen[0] != TagResume || seen[1] != TagPause {
		t.Fatalf("expected [Resume Pause] in order, got %v", seen)
	}
}

type recorderBroadcaster func(*Command)

func (r recorderBroadcaster) Broadcast(c *Command) { r(c) }
