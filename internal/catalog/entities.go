package catalog

import (
	"sync"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/pkg/errors"
)

// ArtistID, AlbumID, SongID, and CoverID are opaque 64-bit identifiers, one
// namespace per entity kind. They are assigned on insertion as the lowest
// id not currently in use, so an id freed by a removal can be assigned again.
type (
	ArtistID uint64
	AlbumID  uint64
	SongID   uint64
	CoverID  uint64
)

// GeneralData carries free-form tags attached to an Artist, Album, or Song.
type GeneralData struct {
	Tags []string
}

func (g GeneralData) encode(w *codec.Writer) {
	w.StringSeq(g.Tags)
}

func decodeGeneralData(r *codec.Reader) (GeneralData, error) {
	tags, err := r.StringSeq()
	if err != nil {
		return GeneralData{}, errors.Wrap(err, "decode general data")
	}
	return GeneralData{Tags: tags}, nil
}

// Artist is a catalog entity: a name, an optional cover, and the ordered
// album/single-song ids it owns.
type Artist struct {
	ID      ArtistID
	Name    string
	Cover   *CoverID
	Albums  []AlbumID
	Singles []SongID
	General GeneralData
}

// Encode appends the wire encoding of a in field order
// id, name, albums, singles, cover, general.
func (a *Artist) Encode(w *codec.Writer) {
	w.U64(uint64(a.ID))
	w.String(a.Name)
	w.U64Seq(idsToU64(a.Albums))
	w.U64Seq(idsToU64(a.Singles))
	encodeOptCoverID(w, a.Cover)
	a.General.encode(w)
}

// DecodeArtist reads an Artist in the field order written by Encode.
func DecodeArtist(r *codec.Reader) (*Artist, error) {
	id, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode artist id")
	}
	name, err := r.String()
	if err != nil {
		return nil, errors.Wrap(err, "decode artist name")
	}
	albums, err := r.U64Seq()
	if err != nil {
		return nil, errors.Wrap(err, "decode artist albums")
	}
	singles, err := r.U64Seq()
	if err != nil {
		return nil, errors.Wrap(err, "decode artist singles")
	}
	cover, err := decodeOptCoverID(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode artist cover")
	}
	general, err := decodeGeneralData(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode artist general data")
	}
	return &Artist{
		ID:      ArtistID(id),
		Name:    name,
		Cover:   cover,
		Albums:  u64ToAlbumIDs(albums),
		Singles: u64ToSongIDs(singles),
		General: general,
	}, nil
}

// Album is a catalog entity: a name, the artist it belongs to, its ordered
// song list, and an optional cover.
type Album struct {
	ID      AlbumID
	Name    string
	Artist  ArtistID
	Cover   *CoverID
	Songs   []SongID
	General GeneralData
}

// Encode appends the wire encoding in field order
// id, name, artist, songs, cover, general.
func (a *Album) Encode(w *codec.Writer) {
	w.U64(uint64(a.ID))
	w.String(a.Name)
	w.U64(uint64(a.Artist))
	w.U64Seq(idsToU64(a.Songs))
	encodeOptCoverID(w, a.Cover)
	a.General.encode(w)
}

// DecodeAlbum reads an Album in the field order written by Encode.
func DecodeAlbum(r *codec.Reader) (*Album, error) {
	id, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode album id")
	}
	name, err := r.String()
	if err != nil {
		return nil, errors.Wrap(err, "decode album name")
	}
	artist, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode album artist")
	}
	songs, err := r.U64Seq()
	if err != nil {
		return nil, errors.Wrap(err, "decode album songs")
	}
	cover, err := decodeOptCoverID(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode album cover")
	}
	general, err := decodeGeneralData(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode album general data")
	}
	return &Album{
		ID:      AlbumID(id),
		Name:    name,
		Artist:  ArtistID(artist),
		Cover:   cover,
		Songs:   u64ToSongIDs(songs),
		General: general,
	}, nil
}

// CachedState is the per-song cached-bytes state machine: None -> Loading ->
// Loaded|Failed. It is never part of the Codec encoding and is serialized
// independently of the catalog's main lock by its own mutex.
type CachedState int

const (
	// CacheNone means no bytes are resident and no load is in flight.
	CacheNone CachedState = iota
	// CacheLoading means a loader goroutine is currently reading the bytes.
	CacheLoading
	// CacheLoaded means bytes are resident and immutable.
	CacheLoaded
	// CacheFailed means the most recent load attempt failed.
	CacheFailed
)

// SongCache holds the runtime-only cached bytes slot for a Song. It is
// guarded by its own mutex so loader goroutines never contend with the
// catalog's combined lock.
type SongCache struct {
	mu      sync.Mutex
	state   CachedState
	bytes   []byte
	loading chan struct{}
}

// State returns the current cache state.
func (c *SongCache) State() CachedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bytes returns the cached bytes, if loaded. It never blocks.
func (c *SongCache) Bytes() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CacheLoaded {
		return nil, false
	}
	return c.bytes, true
}

// BeginLoad transitions None -> Loading and returns a done channel the
// caller must close via FinishLoad. It reports false if a load is already
// in flight (the caller must not start a second loader).
func (c *SongCache) BeginLoad() (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CacheLoading {
		return nil, false
	}
	c.state = CacheLoading
	c.loading = make(chan struct{})
	return c.loading, true
}

// FinishLoad transitions Loading -> Loaded or Loading -> Failed.
func (c *SongCache) FinishLoad(data []byte, err error) {
	c.mu.Lock()
	if err != nil {
		c.state = CacheFailed
		c.bytes = nil
	} else {
		c.state = CacheLoaded
		c.bytes = data
	}
	done := c.loading
	c.loading = nil
	c.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Uncache drops resident bytes, returning true if bytes were actually held.
func (c *SongCache) Uncache() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CacheLoaded {
		c.state = CacheNone
		c.bytes = nil
		return true
	}
	return false
}

// Song is a catalog entity describing one playable file.
type Song struct {
	ID             SongID
	Location       string // path relative to the library directory
	Title          string
	Album          *AlbumID
	Artist         ArtistID
	MoreArtists    []ArtistID
	Cover          *CoverID
	FileSize       uint64
	DurationMillis uint64
	General        GeneralData

	// Cache is runtime-only and never encoded.
	Cache *SongCache
}

// NewSong returns a Song with a freshly allocated cache slot.
func NewSong() *Song {
	return &Song{Cache: &SongCache{}}
}

// Encode appends the wire encoding in field order id, location, title,
// album, artist, more_artists, cover, file_size, duration_millis, general.
func (s *Song) Encode(w *codec.Writer) {
	w.U64(uint64(s.ID))
	w.String(s.Location)
	w.String(s.Title)
	encodeOptAlbumID(w, s.Album)
	w.U64(uint64(s.Artist))
	w.U64Seq(idsToU64(s.MoreArtists))
	encodeOptCoverID(w, s.Cover)
	w.U64(s.FileSize)
	w.U64(s.DurationMillis)
	s.General.encode(w)
}

// DecodeSong reads a Song in the field order written by Encode. The
// returned Song always has a fresh, empty cache slot: cached bytes are
// never part of the wire format.
func DecodeSong(r *codec.Reader) (*Song, error) {
	id, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode song id")
	}
	location, err := r.String()
	if err != nil {
		return nil, errors.Wrap(err, "decode song location")
	}
	title, err := r.String()
	if err != nil {
		return nil, errors.Wrap(err, "decode song title")
	}
	album, err := decodeOptAlbumID(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode song album")
	}
	artist, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode song artist")
	}
	moreArtists, err := r.U64Seq()
	if err != nil {
		return nil, errors.Wrap(err, "decode song more_artists")
	}
	cover, err := decodeOptCoverID(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode song cover")
	}
	fileSize, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode song file_size")
	}
	durationMillis, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode song duration_millis")
	}
	general, err := decodeGeneralData(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode song general data")
	}
	return &Song{
		ID:             SongID(id),
		Location:       location,
		Title:          title,
		Album:          album,
		Artist:         ArtistID(artist),
		MoreArtists:    u64ToArtistIDs(moreArtists),
		Cover:          cover,
		FileSize:       fileSize,
		DurationMillis: durationMillis,
		General:        general,
		Cache:          &SongCache{},
	}, nil
}

// CoverCache holds a Cover's runtime-only lazily loaded bytes, along with
// the time they were last accessed. Unlike song bytes, covers are never
// evicted by policy; callers may use LastAccess to build their own
// housekeeping on top.
type CoverCache struct {
	mu         sync.Mutex
	bytes      []byte
	thumbnail  []byte
	lastAccess time.Time
}

// Get returns cached bytes (original, thumbnail) if present, updating the
// last-access timestamp.
func (c *CoverCache) Get() (original, thumbnail []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bytes == nil {
		return nil, nil, false
	}
	c.lastAccess = time.Now()
	return c.bytes, c.thumbnail, true
}

// Set stores freshly loaded bytes.
func (c *CoverCache) Set(original, thumbnail []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes = original
	c.thumbnail = thumbnail
	c.lastAccess = time.Now()
}

// LastAccess reports the timestamp of the most recent Get or Set.
func (c *CoverCache) LastAccess() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAccess
}

// Cover is a catalog entity describing one image file.
type Cover struct {
	ID       CoverID
	Location string // path relative to the library directory

	// Cache is runtime-only and never encoded.
	Cache *CoverCache
}

// NewCover returns a Cover with a freshly allocated cache slot.
func NewCover() *Cover {
	return &Cover{Cache: &CoverCache{}}
}

// Encode appends the wire encoding: id, location.
func (c *Cover) Encode(w *codec.Writer) {
	w.U64(uint64(c.ID))
	w.String(c.Location)
}

// DecodeCover reads a Cover in the field order written by Encode.
func DecodeCover(r *codec.Reader) (*Cover, error) {
	id, err := r.U64()
	if err != nil {
		return nil, errors.Wrap(err, "decode cover id")
	}
	location, err := r.String()
	if err != nil {
		return nil, errors.Wrap(err, "decode cover location")
	}
	return &Cover{
		ID:       CoverID(id),
		Location: location,
		Cache:    &CoverCache{},
	}, nil
}

func idsToU64[T ~uint64](ids []T) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

func u64ToAlbumIDs(v []uint64) []AlbumID {
	out := make([]AlbumID, len(v))
	for i, x := range v {
		out[i] = AlbumID(x)
	}
	return out
}

func u64ToSongIDs(v []uint64) []SongID {
	out := make([]SongID, len(v))
	for i, x := range v {
		out[i] = SongID(x)
	}
	return out
}

func u64ToArtistIDs(v []uint64) []ArtistID {
	out := make([]ArtistID, len(v))
	for i, x := range v {
		out[i] = ArtistID(x)
	}
	return out
}

func encodeOptCoverID(w *codec.Writer, id *CoverID) {
	if id == nil {
		w.OptionAbsent()
		return
	}
	w.OptionPresent()
	w.U64(uint64(*id))
}

func decodeOptCoverID(r *codec.Reader) (*CoverID, error) {
	v, err := r.OptU64()
	if err != nil || v == nil {
		return nil, err
	}
	id := CoverID(*v)
	return &id, nil
}

func encodeOptAlbumID(w *codec.Writer, id *AlbumID) {
	if id == nil {
		w.OptionAbsent()
		return
	}
	w.OptionPresent()
	w.U64(uint64(*id))
}

func decodeOptAlbumID(r *codec.Reader) (*AlbumID, error) {
	v, err := r.OptU64()
	if err != nil || v == nil {
		return nil, err
	}
	id := AlbumID(*v)
	return &id, nil
}
