package queue

import (
	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/codec"
)

// Wire tags for the Queue node variant (spec §6.1): a leading enabled byte
// (>= 4 set bits means enabled) followed by one of these tag bytes.
const (
	tagSong   byte = 0xFF
	tagFolder byte = 0x00
	tagLoop   byte = 0xC0
)

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// Encode appends the wire encoding of n: the enabled byte, then the
// tagged variant payload.
func (n *Node) Encode(w *codec.Writer) {
	if n.Enabled {
		w.Byte(0xFF)
	} else {
		w.Byte(0x00)
	}
	switch n.Kind {
	case KindSong:
		w.Byte(tagSong)
		w.U64(uint64(n.Song))
	case KindFolder:
		w.Byte(tagFolder)
		n.Folder.encode(w)
	case KindLoop:
		w.Byte(tagLoop)
		w.U64(n.Loop.Total)
		w.U64(n.Loop.Done)
		n.Loop.Inner.Encode(w)
	}
}

func (f *Folder) encode(w *codec.Writer) {
	w.Usize(uint64(f.Cursor))
	w.Usize(uint64(len(f.Children)))
	for _, c := range f.Children {
		c.Encode(w)
	}
	w.String(f.Name)
	if f.Order == nil {
		w.OptionAbsent()
		return
	}
	w.OptionPresent()
	seq := make([]uint64, len(f.Order))
	for i, v := range f.Order {
		seq[i] = uint64(v)
	}
	w.U64Seq(seq)
}

// Decode reads a Node in the format Encode writes. An unrecognized tag
// degrades to an empty folder named "<invalid byte received>", keeping the
// enabled flag read from the node's leading byte
// (spec §4.1, §6.1) rather than failing the whole decode.
func Decode(r *codec.Reader) (*Node, error) {
	enabledByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	tag, err := r.Byte()
	if err != nil {
		return nil, err
	}
	n := &Node{Enabled: popcount(enabledByte) >= 4}
	switch tag {
	case tagSong:
		id, err := r.U64()
		if err != nil {
			return nil, err
		}
		n.Kind = KindSong
		n.Song = catalog.SongID(id)
	case tagFolder:
		n.Kind = KindFolder
		f, err := decodeFolder(r)
		if err != nil {
			return nil, err
		}
		n.Folder = f
	case tagLoop:
		total, err := r.U64()
		if err != nil {
			return nil, err
		}
		done, err := r.U64()
		if err != nil {
			return nil, err
		}
		inner, err := Decode(r)
		if err != nil {
			return nil, err
		}
		n.Kind = KindLoop
		n.Loop = &Loop{Total: total, Done: done, Inner: inner}
	default:
		invalid := invalidTagFolder()
		invalid.Enabled = n.Enabled
		return invalid, nil
	}
	return n, nil
}

func decodeFolder(r *codec.Reader) (*Folder, error) {
	cursor, err := r.Usize()
	if err != nil {
		return nil, err
	}
	count, err := r.Usize()
	if err != nil {
		return nil, err
	}
	children := make([]*Node, 0, count)
	for i := uint64(0); i < count; i++ {
		c, err := Decode(r)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	name, err := r.String()
	if err != nil {
		return nil, err
	}
	orderSeq, err := r.OptU64Seq()
	if err != nil {
		return nil, err
	}
	var order []int
	if orderSeq != nil {
		order = make([]int, len(orderSeq))
		for i, v := range orderSeq {
			order[i] = int(v)
		}
	}
	return &Folder{
		Cursor:   int(cursor),
		Children: children,
		Name:     name,
		Order:    order,
	}, nil
}
