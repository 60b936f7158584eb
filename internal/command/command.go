// Package command defines the wire-level Command sum type (spec §6.1) and
// the single-writer Engine that applies it to a catalog and queue.
package command

import (
	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
	"github.com/pkg/errors"
)

// Tag identifies a Command variant on the wire.
type Tag byte

const (
	TagResume              Tag = 0xC0
	TagPause               Tag = 0x30
	TagStop                Tag = 0xF0
	TagSave                Tag = 0xF3
	TagNextSong            Tag = 0xF2
	TagSyncDatabase        Tag = 0x58
	TagQueueUpdate         Tag = 0x1C
	TagQueueAdd            Tag = 0x1A
	TagQueueInsert         Tag = 0x1E
	TagQueueRemove         Tag = 0x19
	TagQueueGoto           Tag = 0x1B
	TagAddSong             Tag = 0x50
	TagAddAlbum            Tag = 0x53
	TagAddArtist           Tag = 0x5C
	TagModifySong          Tag = 0x90
	TagModifyAlbum         Tag = 0x93
	TagModifyArtist        Tag = 0x9C
	TagSetLibraryDirectory Tag = 0x31

	// TagErrorInfo is a local extension: spec prose (§4.6, §7) requires the
	// scheduler to broadcast a decode/cache failure to every sink, but
	// spec.md's §6.1 table never assigns it a byte. 0xE1 is otherwise
	// unused by the table above. A decoder that does not know this tag
	// cannot skip it (the wire format carries no length prefix), so it
	// fails like any other unknown tag (see ErrUnknownTag).
	TagErrorInfo Tag = 0xE1
)

// ErrUnknownTag is returned by Decode for a tag byte outside the table
// above. Unlike the Queue node codec, an unrecognized Command has no safe
// default: the caller should drop the connection that sent it.
var ErrUnknownTag = errors.New("command: unknown wire tag")

// Command is a tagged union over every variant in spec §6.1. Only the
// fields relevant to Tag are populated; the rest are zero.
type Command struct {
	Tag Tag

	// QueueUpdate, QueueAdd, QueueInsert, QueueRemove, QueueGoto.
	Path     queue.Path
	Node     *queue.Node
	Position int

	// SyncDatabase.
	Artists []*catalog.Artist
	Albums  []*catalog.Album
	Songs   []*catalog.Song

	// AddSong, ModifySong.
	Song *catalog.Song
	// AddAlbum, ModifyAlbum.
	Album *catalog.Album
	// AddArtist, ModifyArtist.
	Artist *catalog.Artist

	// SetLibraryDirectory.
	LibraryDirectory string

	// ErrorInfo.
	ErrorMessage string
}

func Resume() *Command { return &Command{Tag: TagResume} }
func Pause() *Command  { return &Command{Tag: TagPause} }
func Stop() *Command   { return &Command{Tag: TagStop} }
func Save() *Command   { return &Command{Tag: TagSave} }
func NextSong() *Command { return &Command{Tag: TagNextSong} }

func SyncDatabase(artists []*catalog.Artist, albums []*catalog.Album, songs []*catalog.Song) *Command {
	return &Command{Tag: TagSyncDatabase, Artists: artists, Albums: albums, Songs: songs}
}

func QueueUpdate(path queue.Path, node *queue.Node) *Command {
	return &Command{Tag: TagQueueUpdate, Path: path, Node: node}
}

func QueueAdd(path queue.Path, node *queue.Node) *Command {
	return &Command{Tag: TagQueueAdd, Path: path, Node: node}
}

func QueueInsert(path queue.Path, position int, node *queue.Node) *Command {
	return &Command{Tag: TagQueueInsert, Path: path, Position: position, Node: node}
}

func QueueRemove(path queue.Path) *Command {
	return &Command{Tag: TagQueueRemove, Path: path}
}

func QueueGoto(path queue.Path) *Command {
	return &Command{Tag: TagQueueGoto, Path: path}
}

func AddSong(s *catalog.Song) *Command     { return &Command{Tag: TagAddSong, Song: s} }
func AddAlbum(a *catalog.Album) *Command   { return &Command{Tag: TagAddAlbum, Album: a} }
func AddArtist(a *catalog.Artist) *Command { return &Command{Tag: TagAddArtist, Artist: a} }

func ModifySong(s *catalog.Song) *Command     { return &Command{Tag: TagModifySong, Song: s} }
func ModifyAlbum(a *catalog.Album) *Command   { return &Command{Tag: TagModifyAlbum, Album: a} }
func ModifyArtist(a *catalog.Artist) *Command { return &Command{Tag: TagModifyArtist, Artist: a} }

func SetLibraryDirectory(dir string) *Command {
	return &Command{Tag: TagSetLibraryDirectory, LibraryDirectory: dir}
}

func ErrorInfo(message string) *Command {
	return &Command{Tag: TagErrorInfo, ErrorMessage: message}
}

func encodePath(w *codec.Writer, path queue.Path) {
	seq := make([]uint64, len(path))
	for i, v := range path {
		seq[i] = uint64(v)
	}
	w.U64Seq(seq)
}

func decodePath(r *codec.Reader) (queue.Path, error) {
	seq, err := r.U64Seq()
	if err != nil {
		return nil, err
	}
	path := make(queue.Path, len(seq))
	for i, v := range seq {
		path[i] = int(v)
	}
	return path, nil
}

// Encode appends the wire encoding of c: a one-byte tag, then its payload.
func (c *Command) Encode(w *codec.Writer) {
	w.Byte(byte(c.Tag))
	switch c.Tag {
	case TagResume, TagPause, TagStop, TagSave, TagNextSong:
		// no payload
	case TagSyncDatabase:
		w.Usize(uint64(len(c.Artists)))
		for _, a := range c.Artists {
			a.Encode(w)
		}
		w.Usize(uint64(len(c.Albums)))
		for _, a := range c.Albums {
			a.Encode(w)
		}
		w.Usize(uint64(len(c.Songs)))
		for _, s := range c.Songs {
			s.Encode(w)
		}
	case TagQueueUpdate, TagQueueAdd:
		encodePath(w, c.Path)
		c.Node.Encode(w)
	case TagQueueInsert:
		encodePath(w, c.Path)
		w.Usize(uint64(c.Position))
		c.Node.Encode(w)
	case TagQueueRemove, TagQueueGoto:
		encodePath(w, c.Path)
	case TagAddSong, TagModifySong:
		c.Song.Encode(w)
	case TagAddAlbum, TagModifyAlbum:
		c.Album.Encode(w)
	case TagAddArtist, TagModifyArtist:
		c.Artist.Encode(w)
	case TagSetLibraryDirectory:
		w.String(c.LibraryDirectory)
	case TagErrorInfo:
		w.String(c.ErrorMessage)
	}
}

// Decode reads a Command in the format Encode writes. Tags 0x90/0x93/0x9C
// decode as Modify* (spec.md's authoritative table); note that
// original_source's from_bytes maps those same three bytes to duplicate
// Add* variants, which this implementation treats as a bug and does not
// reproduce (see DESIGN.md).
func Decode(r *codec.Reader) (*Command, error) {
	tagByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	tag := Tag(tagByte)
	c := &Command{Tag: tag}
	switch tag {
	case TagResume, TagPause, TagStop, TagSave, TagNextSong:
		// no payload
	case TagSyncDatabase:
		n, err := r.Usize()
		if err != nil {
			return nil, errors.Wrap(err, "command: decode artist count")
		}
		c.Artists = make([]*catalog.Artist, 0, n)
		for i := uint64(0); i < n; i++ {
			a, err := catalog.DecodeArtist(r)
			if err != nil {
				return nil, errors.Wrapf(err, "command: decode artist %d", i)
			}
			c.Artists = append(c.Artists, a)
		}
		n, err = r.Usize()
		if err != nil {
			return nil, errors.Wrap(err, "command: decode album count")
		}
		c.Albums = make([]*catalog.Album, 0, n)
		for i := uint64(0); i < n; i++ {
			a, err := catalog.DecodeAlbum(r)
			if err != nil {
				return nil, errors.Wrapf(err, "command: decode album %d", i)
			}
			c.Albums = append(c.Albums, a)
		}
		n, err = r.Usize()
		if err != nil {
			return nil, errors.Wrap(err, "command: decode song count")
		}
		c.Songs = make([]*catalog.Song, 0, n)
		for i := uint64(0); i < n; i++ {
			s, err := catalog.DecodeSong(r)
			if err != nil {
				return nil, errors.Wrapf(err, "command: decode song %d", i)
			}
			c.Songs = append(c.Songs, s)
		}
	case TagQueueUpdate, TagQueueAdd:
		path, err := decodePath(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode path")
		}
		node, err := queue.Decode(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode queue node")
		}
		c.Path, c.Node = path, node
	case TagQueueInsert:
		path, err := decodePath(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode path")
		}
		pos, err := r.Usize()
		if err != nil {
			return nil, errors.Wrap(err, "command: decode position")
		}
		node, err := queue.Decode(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode queue node")
		}
		c.Path, c.Position, c.Node = path, int(pos), node
	case TagQueueRemove, TagQueueGoto:
		path, err := decodePath(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode path")
		}
		c.Path = path
	case TagAddSong, TagModifySong:
		s, err := catalog.DecodeSong(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode song")
		}
		c.Song = s
	case TagAddAlbum, TagModifyAlbum:
		a, err := catalog.DecodeAlbum(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode album")
		}
		c.Album = a
	case TagAddArtist, TagModifyArtist:
		a, err := catalog.DecodeArtist(r)
		if err != nil {
			return nil, errors.Wrap(err, "command: decode artist")
		}
		c.Artist = a
	case TagSetLibraryDirectory:
		dir, err := r.String()
		if err != nil {
			return nil, errors.Wrap(err, "command: decode library directory")
		}
		c.LibraryDirectory = dir
	case TagErrorInfo:
		msg, err := r.String()
		if err != nil {
			return nil, errors.Wrap(err, "command: decode error message")
		}
		c.ErrorMessage = msg
	default:
		return nil, errors.Wrapf(ErrUnknownTag, "tag 0x%02X", tagByte)
	}
	return c, nil
}
