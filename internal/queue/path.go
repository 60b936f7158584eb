package queue

import (
	"math/rand"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
)

// Path is an ordered sequence of child indices from the root. An empty
// Path denotes the root itself. A Loop node consumes no Path element of
// its own: descent through a Loop always follows its single Inner child
// transparently (spec §4.3).
type Path []int

// length reports how many logical children f currently has (the shuffled
// count when Order is set, otherwise len(Children)).
func (f *Folder) length() int {
	if f.Order != nil {
		return len(f.Order)
	}
	return len(f.Children)
}

// resolve descends from n following path, consuming one element per
// Folder boundary and transparently passing through Loops. It does not
// peel a trailing Loop: if path is fully consumed on a Loop node, that
// Loop node itself is returned.
func resolve(n *Node, path Path) (*Node, error) {
	for len(path) > 0 {
		for n.Kind == KindLoop {
			n = n.Loop.Inner
		}
		if n.Kind != KindFolder {
			return nil, ErrNotFound
		}
		child, _ := n.Folder.at(path[0])
		if child == nil {
			return nil, ErrNotFound
		}
		n = child
		path = path[1:]
	}
	return n, nil
}

// resolveFolder resolves path to a Folder, peeling any trailing Loop
// wrappers. Used by every operation that addresses "the folder at path"
// (InsertAt, Add, Shuffle) as well as by Update/Remove, which resolve
// the parent folder of the node path[len(path)-1] identifies.
func resolveFolder(n *Node, path Path) (*Folder, error) {
	target, err := resolve(n, path)
	if err != nil {
		return nil, err
	}
	for target.Kind == KindLoop {
		target = target.Loop.Inner
	}
	if target.Kind != KindFolder {
		return nil, ErrWrongKind
	}
	return target.Folder, nil
}

// initNode resets a subtree's cursors (and, recursively, its children's)
// to the start, matching the original "init on entry" behavior: a folder
// newly made current always begins at its first child.
func initNode(n *Node) {
	switch n.Kind {
	case KindFolder:
		n.Folder.Cursor = 0
		for _, c := range n.Folder.Children {
			initNode(c)
		}
	case KindLoop:
		initNode(n.Loop.Inner)
	}
}

// Get returns the node addressed by path.
func (q *Queue) Get(path Path) (*Node, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return resolve(q.root, path)
}

// Update replaces the node at path with n wholesale (QueueUpdate, spec
// §6.1 tag 0x1C). An empty path replaces the root.
func (q *Queue) Update(path Path, n *Node) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(path) == 0 {
		if n == nil {
			n = NewFolderNode("")
		}
		q.root = n
		return nil
	}
	parent, err := resolveFolder(q.root, path[:len(path)-1])
	if err != nil {
		return err
	}
	idx := path[len(path)-1]
	_, actual := parent.at(idx)
	if actual < 0 {
		return ErrNotFound
	}
	parent.Children[actual] = n
	return nil
}

// insertIntoFolder splices nodes into f at logical position, shifting the
// cursor by len(nodes) if it sits at or past the insertion point so the
// currently-playing child stays current (spec §4.3).
func insertIntoFolder(f *Folder, position int, nodes []*Node) error {
	n := f.length()
	if position < 0 || position > n {
		return ErrNotFound
	}
	if f.Cursor >= position {
		f.Cursor += len(nodes)
	}
	for _, nn := range nodes {
		initNode(nn)
	}
	if f.Order == nil {
		tail := append([]*Node{}, f.Children[position:]...)
		f.Children = append(append(f.Children[:position:position], nodes...), tail...)
		return nil
	}
	base := len(f.Children)
	newIdx := make([]int, len(nodes))
	for i := range nodes {
		newIdx[i] = base + i
	}
	f.Children = append(f.Children, nodes...)
	tail := append([]int{}, f.Order[position:]...)
	f.Order = append(append(f.Order[:position:position], newIdx...), tail...)
	return nil
}

// InsertAt splices nodes into the folder at path, at logical position
// (QueueInsert, spec §6.1 tag 0x1E).
func (q *Queue) InsertAt(path Path, position int, nodes []*Node) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	f, err := resolveFolder(q.root, path)
	if err != nil {
		return err
	}
	return insertIntoFolder(f, position, nodes)
}

// appendToFolder pushes nodes onto the end of f. Unlike InsertAt, it never
// touches the cursor: appending past the current end of a folder must not
// disturb what is currently playing (the original's add_to_end leaves
// index untouched; only explicit-position insert shifts it).
func appendToFolder(f *Folder, nodes []*Node) {
	for _, nn := range nodes {
		initNode(nn)
	}
	base := len(f.Children)
	f.Children = append(f.Children, nodes...)
	if f.Order != nil {
		for i := range nodes {
			f.Order = append(f.Order, base+i)
		}
	}
}

// Add appends nodes to the end of the folder at path (QueueAdd, spec
// §6.1 tag 0x1A).
func (q *Queue) Add(path Path, nodes []*Node) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	f, err := resolveFolder(q.root, path)
	if err != nil {
		return err
	}
	appendToFolder(f, nodes)
	return nil
}

// removeFromFolder deletes the logical child at idx, compensating the
// shuffle permutation (if any) and the cursor for the removal.
func removeFromFolder(f *Folder, idx int) (*Node, error) {
	if f.Order != nil {
		if idx < 0 || idx >= len(f.Order) {
			return nil, ErrNotFound
		}
		if f.Cursor > idx {
			f.Cursor--
		}
		actual := f.Order[idx]
		f.Order = append(f.Order[:idx], f.Order[idx+1:]...)
		for i, o := range f.Order {
			if o > actual {
				f.Order[i] = o - 1
			}
		}
		removed := f.Children[actual]
		f.Children = append(f.Children[:actual], f.Children[actual+1:]...)
		return removed, nil
	}
	if idx < 0 || idx >= len(f.Children) {
		return nil, ErrNotFound
	}
	if f.Cursor > idx {
		f.Cursor--
	}
	removed := f.Children[idx]
	f.Children = append(f.Children[:idx], f.Children[idx+1:]...)
	return removed, nil
}

// Remove deletes the node at path, returning the removed node (QueueRemove,
// spec §6.1 tag 0x19). Removing the root is not supported (no-op
// ErrNotFound): the root must always exist.
func (q *Queue) Remove(path Path) (*Node, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(path) == 0 {
		return nil, ErrNotFound
	}
	parent, err := resolveFolder(q.root, path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	return removeFromFolder(parent, path[len(path)-1])
}

// Goto sets the cursors along path so that the addressed node becomes
// current, re-enabling it if it was disabled (spec §4.3: "goto through a
// disabled node re-enables it").
func (q *Queue) Goto(path Path) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return gotoInner(q.root, path)
}

func gotoInner(n *Node, path Path) error {
	if len(path) == 0 {
		return nil
	}
	for n.Kind == KindLoop {
		n = n.Loop.Inner
	}
	if n.Kind != KindFolder {
		return ErrNotFound
	}
	idx := path[0]
	child, _ := n.Folder.at(idx)
	if child == nil {
		return ErrNotFound
	}
	n.Folder.Cursor = idx
	child.Enabled = true
	return gotoInner(child, path[1:])
}

// ResetToRoot reinitializes every cursor in the tree to its start. The
// command engine calls this when Advance reports the queue is exhausted
// (spec §4.4).
func (q *Queue) ResetToRoot() {
	q.mu.Lock()
	defer q.mu.Unlock()
	initNode(q.root)
}

// advance is the recursive cascade: a Folder advances its current child
// first; only if that child is itself exhausted does the folder move its
// own cursor, skipping disabled children, and reporting false (bubbling up
// to the parent) once its cursor runs off the end. A Loop advances its
// inner queue, and only increments its own Done counter once the inner
// queue is exhausted.
func advance(n *Node) bool {
	switch n.Kind {
	case KindSong:
		return false
	case KindFolder:
		return advanceFolder(n.Folder)
	case KindLoop:
		if advance(n.Loop.Inner) {
			return true
		}
		n.Loop.Done++
		if n.Loop.Total == 0 || n.Loop.Done < n.Loop.Total {
			initNode(n.Loop.Inner)
			return true
		}
		n.Loop.Done = 0
		return false
	default:
		return false
	}
}

func advanceFolder(f *Folder) bool {
	cur, _ := f.current()
	if cur != nil && advance(cur) {
		return true
	}
	if cur != nil {
		initNode(cur)
	}
	for {
		n := f.length()
		if f.Cursor+1 >= n {
			f.Cursor = n
			return false
		}
		f.Cursor++
		child, _ := f.at(f.Cursor)
		if child == nil {
			f.Cursor = n
			return false
		}
		if child.Enabled {
			initNode(child)
			return true
		}
	}
}

// Advance moves the queue to the next song, returning true iff a next song
// now exists and is current (NextSong, spec §4.4/§6.1 tag 0xF2).
func (q *Queue) Advance() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return advance(q.root)
}

// currentNode descends cursors (and Loop inners) to the active leaf.
func currentNode(n *Node) *Node {
	for {
		switch n.Kind {
		case KindSong:
			return n
		case KindLoop:
			n = n.Loop.Inner
		case KindFolder:
			child, _ := n.Folder.current()
			if child == nil {
				return nil
			}
			n = child
		default:
			return nil
		}
	}
}

// CurrentSongID reports the song id currently playing, if any.
func (q *Queue) CurrentSongID() (catalog.SongID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := currentNode(q.root)
	if n == nil {
		return 0, false
	}
	return n.Song, true
}

func firstNode(n *Node) *Node {
	switch n.Kind {
	case KindSong:
		return n
	case KindFolder:
		c, _ := n.Folder.at(0)
		if c == nil {
			return nil
		}
		return firstNode(c)
	case KindLoop:
		return firstNode(n.Loop.Inner)
	default:
		return nil
	}
}

// nextNode peeks at what Advance would make current, without mutating.
func nextNode(n *Node) *Node {
	switch n.Kind {
	case KindSong:
		return nil
	case KindLoop:
		if v := nextNode(n.Loop.Inner); v != nil {
			return v
		}
		if n.Loop.Total == 0 || n.Loop.Done+1 < n.Loop.Total {
			return firstNode(n.Loop.Inner)
		}
		return nil
	case KindFolder:
		cur, _ := n.Folder.current()
		if cur == nil {
			return nil
		}
		if v := nextNode(cur); v != nil {
			return v
		}
		for i := n.Folder.Cursor + 1; ; i++ {
			nxt, _ := n.Folder.at(i)
			if nxt == nil {
				return nil
			}
			if nxt.Enabled {
				return firstNode(nxt)
			}
		}
	default:
		return nil
	}
}

// NextSongID reports the song id that would become current after the next
// Advance, if any.
func (q *Queue) NextSongID() (catalog.SongID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := nextNode(q.root)
	if n == nil {
		return 0, false
	}
	return n.Song, true
}

// Shuffle installs a fresh random permutation on the folder at path,
// chosen so the folder's currently playing child stays current (spec
// §4.3, scenario S4). Unlike the commands in §6.1, shuffle has no wire
// tag of its own: callers broadcast the result via QueueUpdate so every
// sink observes the new permutation.
func (q *Queue) Shuffle(path Path) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	f, err := resolveFolder(q.root, path)
	if err != nil {
		return err
	}
	n := len(f.Children)
	if n == 0 {
		f.Order = nil
		return nil
	}
	curActual := f.Cursor
	if f.Order != nil && f.Cursor < len(f.Order) {
		curActual = f.Order[f.Cursor]
	}
	perm := rand.Perm(n)
	if f.Cursor < n {
		for i, v := range perm {
			if v == curActual {
				perm[f.Cursor], perm[i] = perm[i], perm[f.Cursor]
				break
			}
		}
	}
	f.Order = perm
	return nil
}

// Duration is the result of a DurationRemaining/DurationTotal walk:
// Millis is finite playback time known so far; Infinite is set when an
// infinite Loop (Total == 0) lies on the summed path.
type Duration struct {
	Millis   uint64
	Infinite bool
}

func durationTotal(n *Node, cat *catalog.Catalog) Duration {
	var d Duration
	addDuration(n, cat, &d, true)
	return d
}

func addDuration(n *Node, cat *catalog.Catalog, d *Duration, includePast bool) {
	if !n.Enabled {
		return
	}
	switch n.Kind {
	case KindSong:
		if s, ok := cat.Song(n.Song); ok {
			d.Millis += s.DurationMillis
		}
	case KindFolder:
		f := n.Folder
		for i := 0; i < f.length(); i++ {
			if !includePast && i < f.Cursor {
				continue
			}
			child, _ := f.at(i)
			if child == nil {
				continue
			}
			addDuration(child, cat, d, includePast)
		}
	case KindLoop:
		lp := n.Loop
		if lp.Total == 0 {
			d.Infinite = true
			return
		}
		dt := durationTotal(lp.Inner, cat)
		if includePast {
			d.Millis += dt.Millis * lp.Total
			if dt.Infinite {
				d.Infinite = true
			}
			return
		}
		addDuration(lp.Inner, cat, d, false)
		var remaining uint64
		if lp.Total > lp.Done+1 {
			remaining = lp.Total - (lp.Done + 1)
		}
		d.Millis += dt.Millis * remaining
		if dt.Infinite {
			d.Infinite = true
		}
	}
}

// DurationRemaining sums song durations from the current position to the
// end of the queue, including the currently playing song.
func (q *Queue) DurationRemaining(cat *catalog.Catalog) Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	var d Duration
	addDuration(q.root, cat, &d, false)
	return d
}

// DurationTotal sums every song duration in the queue regardless of
// position.
func (q *Queue) DurationTotal(cat *catalog.Catalog) Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return durationTotal(q.root, cat)
}

func countAll(n *Node) (int, bool) {
	if !n.Enabled {
		return 0, true
	}
	switch n.Kind {
	case KindSong:
		return 1, true
	case KindFolder:
		total := 0
		for _, c := range n.Folder.Children {
			v, finite := countAll(c)
			if !finite {
				return 0, false
			}
			total += v
		}
		return total, true
	case KindLoop:
		if n.Loop.Total == 0 {
			return 0, false
		}
		v, finite := countAll(n.Loop.Inner)
		if !finite {
			return 0, false
		}
		return v * int(n.Loop.Total), true
	default:
		return 0, true
	}
}

func remainingCount(n *Node) (int, bool) {
	if !n.Enabled {
		return 0, true
	}
	switch n.Kind {
	case KindSong:
		return 1, true
	case KindFolder:
		f := n.Folder
		total := 0
		for i := f.Cursor; i < f.length(); i++ {
			child, _ := f.at(i)
			if child == nil {
				continue
			}
			v, finite := remainingCount(child)
			if !finite {
				return 0, false
			}
			total += v
		}
		return total, true
	case KindLoop:
		lp := n.Loop
		if lp.Total == 0 {
			return 0, false
		}
		innerRemaining, finite := remainingCount(lp.Inner)
		if !finite {
			return 0, false
		}
		innerTotal, _ := countAll(lp.Inner)
		var remainIters uint64
		if lp.Total > lp.Done+1 {
			remainIters = lp.Total - (lp.Done + 1)
		}
		return innerRemaining + innerTotal*int(remainIters), true
	default:
		return 0, true
	}
}

// RemainingSongCount counts the songs from the current position to the end
// of the queue; finite is false when an infinite Loop makes the count
// unbounded (spec §8: "advance() called remaining_song_count() times
// transitions it to exhausted").
func (q *Queue) RemainingSongCount() (count int, finite bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return remainingCount(q.root)
}
