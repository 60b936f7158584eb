// Package queue implements the recursive play-queue tree: a Song leaf, a
// Folder composite with a cursor and optional shuffle permutation, and a
// Loop that repeats its single child a fixed or infinite number of times.
// Nodes are addressed by Path, an ordered sequence of child indices from
// the root; a Loop consumes no path component of its own (descent through
// a Loop always follows its single inner child).
package queue

import (
	"sync"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/pkg/errors"
)

// Kind discriminates the tagged Queue variant a Node holds.
type Kind int

const (
	KindSong Kind = iota
	KindFolder
	KindLoop
)

// ErrNotFound is returned when a Path does not resolve to an existing node.
var ErrNotFound = errors.New("queue: path out of range")

// ErrWrongKind is returned when an operation that addresses a folder
// (InsertAt, Add, Shuffle, and the parent lookup of Update/Remove) resolves
// to a Song instead.
var ErrWrongKind = errors.New("queue: node is not a folder")

// Node is one element of the queue tree. Exactly one of Folder/Loop is
// non-nil depending on Kind; Kind == KindSong uses only Song.
type Node struct {
	Enabled bool
	Kind    Kind

	Song   catalog.SongID
	Folder *Folder
	Loop   *Loop
}

// Folder is a composite node: an ordered list of children, a cursor
// pointing at the currently active one, and an optional shuffle
// permutation over 0..len(Children).
type Folder struct {
	Cursor   int
	Children []*Node
	Name     string
	Order    []int // nil means no shuffle; len(Order) == len(Children) otherwise
}

// Loop repeats Inner Total times (Total == 0 means infinite); Done counts
// completed iterations so far.
type Loop struct {
	Total uint64
	Done  uint64
	Inner *Node
}

// NewSongNode returns an enabled Song leaf.
func NewSongNode(id catalog.SongID) *Node {
	return &Node{Enabled: true, Kind: KindSong, Song: id}
}

// NewFolderNode returns an enabled, empty Folder named name.
func NewFolderNode(name string) *Node {
	return &Node{Enabled: true, Kind: KindFolder, Folder: &Folder{Name: name}}
}

// NewLoopNode returns an enabled Loop wrapping inner.
func NewLoopNode(total uint64, inner *Node) *Node {
	return &Node{Enabled: true, Kind: KindLoop, Loop: &Loop{Total: total, Inner: inner}}
}

// invalidTagFolder is what an unrecognized wire tag degrades to (spec §4.1,
// §6.1): an empty, enabled folder carrying a diagnostic name.
func invalidTagFolder() *Node {
	return &Node{Enabled: true, Kind: KindFolder, Folder: &Folder{Name: "<invalid byte received>"}}
}

// at returns the i'th child of f in logical (possibly shuffled) order.
func (f *Folder) at(i int) (*Node, int) {
	actual := i
	if f.Order != nil {
		if i < 0 || i >= len(f.Order) {
			return nil, -1
		}
		actual = f.Order[i]
	}
	if actual < 0 || actual >= len(f.Children) {
		return nil, -1
	}
	return f.Children[actual], actual
}

// current returns the folder's currently-indexed child, resolved through
// the shuffle permutation if any.
func (f *Folder) current() (*Node, int) {
	return f.at(f.Cursor)
}

// Queue owns the queue tree and its mutex; the server holds exactly one,
// wrapping the root Folder (spec glossary: "Queue ... its root is a
// Folder").
type Queue struct {
	mu   sync.Mutex
	root *Node
}

// New returns an empty Queue with an enabled, empty root Folder.
func New() *Queue {
	return &Queue{root: NewFolderNode("")}
}

// Root returns the current root node. Callers must not retain it across
// mutating calls without re-fetching; it is returned for read-only
// inspection (bootstrap snapshot, fanout) under the Queue's own lock
// discipline at the call site.
func (q *Queue) Root() *Node {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.root
}

// SetRoot installs a brand-new root, as QueueUpdate(emptyPath, newRoot)
// does at the wire level.
func (q *Queue) SetRoot(n *Node) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n == nil {
		n = NewFolderNode("")
	}
	q.root = n
}

// Clone returns a deep copy of the queue. The cache manager walks a clone
// forward with Advance to discover upcoming songs without disturbing the
// live playback position (spec §4.7).
func (q *Queue) Clone() *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &Queue{root: cloneNode(q.root)}
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := &Node{Enabled: n.Enabled, Kind: n.Kind, Song: n.Song}
	switch n.Kind {
	case KindFolder:
		f := &Folder{Cursor: n.Folder.Cursor, Name: n.Folder.Name}
		if n.Folder.Order != nil {
			f.Order = append([]int(nil), n.Folder.Order...)
		}
		f.Children = make([]*Node, len(n.Folder.Children))
		for i, child := range n.Folder.Children {
			f.Children[i] = cloneNode(child)
		}
		c.Folder = f
	case KindLoop:
		c.Loop = &Loop{Total: n.Loop.Total, Done: n.Loop.Done, Inner: cloneNode(n.Loop.Inner)}
	}
	return c
}
