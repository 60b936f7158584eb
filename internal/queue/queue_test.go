package queue

import (
	"testing"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/codec"
)

func songCatalog(t *testing.T, durations ...uint64) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	for _, d := range durations {
		cat.AddSong(&catalog.Song{DurationMillis: d})
	}
	return cat
}

// TestAdvanceThroughNestedLoop exercises spec scenario S3: Folder[Loop(total=2,
// Song(1)), Song(2)], current = song 1. advance() should yield: second loop
// iteration (still song 1), then song 2, then exhausted.
func TestAdvanceThroughNestedLoop(t *testing.T) {
	loop := NewLoopNode(2, NewSongNode(1))
	root := NewFolderNode("")
	root.Folder.Children = []*Node{loop, NewSongNode(2)}

	q := &Queue{root: root}

	cur, ok := q.CurrentSongID()
	if !ok || cur != 1 {
		t.Fatalf("expected current song 1, got %v ok=%v", cur, ok)
	}

	if !q.Advance() {
		t.Fatal("expected advance to succeed (second loop iteration)")
	}
	cur, _ = q.CurrentSongID()
	if cur != 1 {
		t.Fatalf("expected song 1 on second loop iteration, got %v", cur)
	}

	if !q.Advance() {
		t.Fatal("expected advance to succeed (song 2)")
	}
	cur, _ = q.CurrentSongID()
	if cur != 2 {
		t.Fatalf("expected song 2, got %v", cur)
	}

	if q.Advance() {
		t.Fatal("expected queue to be exhausted")
	}
}

// TestAdvanceIdempotentOnceExhausted exercises: advance() exactly
// remaining_song_count() times exhausts the queue; one more call is a
// no-op returning false.
func TestAdvanceIdempotentOnceExhausted(t *testing.T) {
	root := NewFolderNode("")
	root.Folder.Children = []*Node{NewSongNode(1), NewSongNode(2), NewSongNode(3)}
	q := &Queue{root: root}

	n, finite := q.RemainingSongCount()
	if !finite || n != 3 {
		t.Fatalf("expected finite count 3, got %d finite=%v", n, finite)
	}

	for i := 0; i < n-1; i++ {
		if !q.Advance() {
			t.Fatalf("advance %d: expected success", i)
		}
	}
	if q.Advance() {
		t.Fatal("expected exhaustion on final required advance")
	}
	if q.Advance() {
		t.Fatal("expected advance past exhaustion to remain false")
	}
}

// TestShufflePreservesCursorIdentity exercises spec scenario S4.
func TestShufflePreservesCursorIdentity(t *testing.T) {
	root := NewFolderNode("")
	for i := catalog.SongID(0); i < 5; i++ {
		root.Folder.Children = append(root.Folder.Children, NewSongNode(i))
	}
	root.Folder.Cursor = 2
	q := &Queue{root: root}

	if err := q.Shuffle(nil); err != nil {
		t.Fatalf("shuffle: %v", err)
	}

	seen := make(map[int]bool)
	if len(root.Folder.Order) != 5 {
		t.Fatalf("expected permutation of length 5, got %d", len(root.Folder.Order))
	}
	for _, v := range root.Folder.Order {
		if v < 0 || v >= 5 || seen[v] {
			t.Fatalf("invalid permutation %v", root.Folder.Order)
		}
		seen[v] = true
	}

	cur, ok := q.CurrentSongID()
	if !ok || cur != 2 {
		t.Fatalf("expected shuffle to preserve current song 2, got %v ok=%v", cur, ok)
	}
}

func TestInsertShiftsCursorAtOrPastPoint(t *testing.T) {
	root := NewFolderNode("")
	root.Folder.Children = []*Node{NewSongNode(0), NewSongNode(1)}
	root.Folder.Cursor = 1
	q := &Queue{root: root}

	if err := q.InsertAt(nil, 1, []*Node{NewSongNode(9)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if root.Folder.Cursor != 2 {
		t.Fatalf("expected cursor shifted to 2, got %d", root.Folder.Cursor)
	}
	cur, _ := q.CurrentSongID()
	if cur != 1 {
		t.Fatalf("expected current song still 1, got %v", cur)
	}
}

func TestRemoveAdjustsCursor(t *testing.T) {
	root := NewFolderNode("")
	root.Folder.Children = []*Node{NewSongNode(0), NewSongNode(1), NewSongNode(2)}
	root.Folder.Cursor = 2
	q := &Queue{root: root}

	if _, err := q.Remove(Path{0}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if root.Folder.Cursor != 1 {
		t.Fatalf("expected cursor 1 after removing before it, got %d", root.Folder.Cursor)
	}
	cur, _ := q.CurrentSongID()
	if cur != 2 {
		t.Fatalf("expected current song still 2, got %v", cur)
	}
}

func TestGotoIdempotentAndReenables(t *testing.T) {
	root := NewFolderNode("")
	child := NewSongNode(5)
	child.Enabled = false
	root.Folder.Children = []*Node{NewSongNode(0), child}
	q := &Queue{root: root}

	if err := q.Goto(Path{1}); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if !child.Enabled {
		t.Fatal("expected goto to re-enable the target node")
	}
	cur, _ := q.CurrentSongID()
	if cur != 5 {
		t.Fatalf("expected current song 5, got %v", cur)
	}

	// Applying goto again must be a no-op equal to applying it once.
	if err := q.Goto(Path{1}); err != nil {
		t.Fatalf("goto (again): %v", err)
	}
	cur2, _ := q.CurrentSongID()
	if cur2 != cur {
		t.Fatalf("goto not idempotent: got %v then %v", cur, cur2)
	}
}

func TestEmptyFolderAdvanceIsNoop(t *testing.T) {
	q := New()
	if _, ok := q.CurrentSongID(); ok {
		t.Fatal("expected no current song in empty queue")
	}
	if q.Advance() {
		t.Fatal("expected advance on empty folder to return false")
	}
}

func TestPathOutOfBoundsIsNotFound(t *testing.T) {
	root := NewFolderNode("")
	root.Folder.Children = []*Node{NewSongNode(0)}
	q := &Queue{root: root}

	if _, err := q.Get(Path{5}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := q.Remove(Path{5}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on remove, got %v", err)
	}
}

func TestDurationRemainingInfiniteLoop(t *testing.T) {
	cat := songCatalog(t, 1000, 2000)
	root := NewFolderNode("")
	root.Folder.Children = []*Node{
		NewSongNode(0),
		NewLoopNode(0, NewSongNode(1)),
	}
	q := &Queue{root: root}

	d := q.DurationRemaining(cat)
	if !d.Infinite {
		t.Fatal("expected infinite flag with a total==0 Loop on the path")
	}
}

func TestDurationRemainingFinite(t *testing.T) {
	cat := songCatalog(t, 1000, 2000, 3000)
	root := NewFolderNode("")
	root.Folder.Children = []*Node{NewSongNode(0), NewSongNode(1), NewSongNode(2)}
	root.Folder.Cursor = 1
	q := &Queue{root: root}

	d := q.DurationRemaining(cat)
	if d.Infinite {
		t.Fatal("did not expect infinite")
	}
	if d.Millis != 5000 {
		t.Fatalf("expected 5000ms remaining (songs 1,2), got %d", d.Millis)
	}
}

func TestNodeRoundTrip(t *testing.T) {
	loop := NewLoopNode(3, NewSongNode(7))
	loop.Loop.Done = 1
	folder := NewFolderNode("mix")
	folder.Folder.Children = []*Node{NewSongNode(1), loop, NewSongNode(2)}
	folder.Folder.Cursor = 1
	folder.Folder.Order = []int{2, 0, 1}
	folder.Enabled = false

	w := codec.NewWriter()
	folder.Encode(w)

	r := codec.NewReader(w.Bytes())
	decoded, err := Decode(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Enabled {
		t.Fatal("expected decoded node to be disabled")
	}
	if decoded.Kind != KindFolder {
		t.Fatalf("expected folder, got kind %v", decoded.Kind)
	}
	if decoded.Folder.Name != "mix" || decoded.Folder.Cursor != 1 {
		t.Fatalf("folder fields mismatch: %+v", decoded.Folder)
	}
	if len(decoded.Folder.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(decoded.Folder.Children))
	}
	innerLoop := decoded.Folder.Children[1]
	if innerLoop.Kind != KindLoop || innerLoop.Loop.Total != 3 || innerLoop.Loop.Done != 1 {
		t.Fatalf("loop fields mismatch: %+v", innerLoop.Loop)
	}
	for i, want := range []int{2, 0, 1} {
		if decoded.Folder.Order[i] != want {
			t.Fatalf("order mismatch at %d: got %d want %d", i, decoded.Folder.Order[i], want)
		}
	}
}

func TestUnknownTagDegradesToInvalidFolder(t *testing.T) {
	w := codec.NewWriter()
	w.Byte(0xFF) // enabled
	w.Byte(0x7A) // unrecognized tag
	r := codec.NewReader(w.Bytes())

	n, err := Decode(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Kind != KindFolder || n.Folder.Name != "<invalid byte received>" {
		t.Fatalf("expected diagnostic empty folder, got %+v", n)
	}
}

func TestAppendEndToEnd(t *testing.T) {
	q := New()
	if err := q.Add(nil, []*Node{NewSongNode(1), NewSongNode(2)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	n, finite := q.RemainingSongCount()
	if !finite || n != 2 {
		t.Fatalf("expected 2 remaining songs, got %d finite=%v", n, finite)
	}
}
