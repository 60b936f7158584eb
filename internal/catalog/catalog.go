// Package catalog holds the in-memory maps of artists, albums, songs, and
// covers, with id assignment and referential upkeep on insert.
package catalog

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Update/Remove operations on an unknown id.
var ErrNotFound = errors.New("catalog: entity not found")

// Catalog is the combined, lock-protected map of all four entity kinds. The
// server holds exactly one Catalog; it is the unit of the "single writer"
// state the command engine mutates and the fanout/cache-manager/scheduler
// goroutines read under brief locks.
type Catalog struct {
	mu sync.RWMutex

	libraryDir string

	artists map[ArtistID]*Artist
	albums  map[AlbumID]*Album
	songs   map[SongID]*Song
	covers  map[CoverID]*Cover
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		artists: make(map[ArtistID]*Artist),
		albums:  make(map[AlbumID]*Album),
		songs:   make(map[SongID]*Song),
		covers:  make(map[CoverID]*Cover),
	}
}

// LibraryDirectory returns the configured music library root.
func (c *Catalog) LibraryDirectory() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.libraryDir
}

// SetLibraryDirectory updates the configured music library root.
func (c *Catalog) SetLibraryDirectory(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.libraryDir = dir
}

func lowestFreeArtistID(m map[ArtistID]*Artist) ArtistID {
	for id := ArtistID(0); ; id++ {
		if _, ok := m[id]; !ok {
			return id
		}
	}
}

func lowestFreeAlbumID(m map[AlbumID]*Album) AlbumID {
	for id := AlbumID(0); ; id++ {
		if _, ok := m[id]; !ok {
			return id
		}
	}
}

func lowestFreeSongID(m map[SongID]*Song) SongID {
	for id := SongID(0); ; id++ {
		if _, ok := m[id]; !ok {
			return id
		}
	}
}

func lowestFreeCoverID(m map[CoverID]*Cover) CoverID {
	for id := CoverID(0); ; id++ {
		if _, ok := m[id]; !ok {
			return id
		}
	}
}

// AddArtist assigns the lowest unused artist id, stores the artist, and
// returns the assigned id. The caller-supplied id is ignored.
func (c *Catalog) AddArtist(a *Artist) ArtistID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := lowestFreeArtistID(c.artists)
	a.ID = id
	c.artists[id] = a
	return id
}

// AddAlbum assigns the lowest unused album id, stores the album, and
// appends the album id to its artist's album list if that artist exists.
func (c *Catalog) AddAlbum(a *Album) AlbumID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := lowestFreeAlbumID(c.albums)
	a.ID = id
	c.albums[id] = a
	if artist, ok := c.artists[a.Artist]; ok {
		artist.Albums = append(artist.Albums, id)
	}
	return id
}

// AddSong assigns the lowest unused song id, stores the song, and appends
// it to its album's song list (if it has an album) or its artist's singles
// list (if not), when that parent exists.
func (c *Catalog) AddSong(s *Song) SongID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := lowestFreeSongID(c.songs)
	s.ID = id
	if s.Cache == nil {
		s.Cache = &SongCache{}
	}
	c.songs[id] = s
	if s.Album != nil {
		if album, ok := c.albums[*s.Album]; ok {
			album.Songs = append(album.Songs, id)
		}
	} else if artist, ok := c.artists[s.Artist]; ok {
		artist.Singles = append(artist.Singles, id)
	}
	return id
}

// AddCover assigns the lowest unused cover id, stores the cover, and
// returns the assigned id.
func (c *Catalog) AddCover(cov *Cover) CoverID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := lowestFreeCoverID(c.covers)
	cov.ID = id
	if cov.Cache == nil {
		cov.Cache = &CoverCache{}
	}
	c.covers[id] = cov
	return id
}

// UpdateArtist replaces the stored artist by id. Returns ErrNotFound if the
// id is unknown.
func (c *Catalog) UpdateArtist(a *Artist) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.artists[a.ID]; !ok {
		return ErrNotFound
	}
	c.artists[a.ID] = a
	return nil
}

// UpdateAlbum replaces the stored album by id. Returns ErrNotFound if the
// id is unknown.
func (c *Catalog) UpdateAlbum(a *Album) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.albums[a.ID]; !ok {
		return ErrNotFound
	}
	c.albums[a.ID] = a
	return nil
}

// UpdateSong replaces the stored song by id, preserving its existing cache
// slot (cached bytes are never part of a command payload). Returns
// ErrNotFound if the id is unknown.
func (c *Catalog) UpdateSong(s *Song) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.songs[s.ID]
	if !ok {
		return ErrNotFound
	}
	s.Cache = existing.Cache
	c.songs[s.ID] = s
	return nil
}

// RemoveArtist deletes the artist by id. It does not cascade: albums and
// songs referencing this artist are left with a dangling reference, which
// resolves as a not-found no-op on subsequent lookups (spec §7).
func (c *Catalog) RemoveArtist(id ArtistID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.artists[id]; !ok {
		return ErrNotFound
	}
	delete(c.artists, id)
	return nil
}

// RemoveAlbum deletes the album by id. It does not cascade.
func (c *Catalog) RemoveAlbum(id AlbumID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.albums[id]; !ok {
		return ErrNotFound
	}
	delete(c.albums, id)
	return nil
}

// RemoveSong deletes the song by id. It does not cascade.
func (c *Catalog) RemoveSong(id SongID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.songs[id]; !ok {
		return ErrNotFound
	}
	delete(c.songs, id)
	return nil
}

// RemoveCover deletes the cover by id.
func (c *Catalog) RemoveCover(id CoverID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.covers[id]; !ok {
		return ErrNotFound
	}
	delete(c.covers, id)
	return nil
}

// Artist returns the artist with the given id, if any.
func (c *Catalog) Artist(id ArtistID) (*Artist, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.artists[id]
	return a, ok
}

// Album returns the album with the given id, if any.
func (c *Catalog) Album(id AlbumID) (*Album, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.albums[id]
	return a, ok
}

// Song returns the song with the given id, if any.
func (c *Catalog) Song(id SongID) (*Song, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.songs[id]
	return s, ok
}

// Cover returns the cover with the given id, if any.
func (c *Catalog) Cover(id CoverID) (*Cover, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cov, ok := c.covers[id]
	return cov, ok
}

// Artists returns a snapshot slice of every artist, in arbitrary order.
func (c *Catalog) Artists() []*Artist {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Artist, 0, len(c.artists))
	for _, a := range c.artists {
		out = append(out, a)
	}
	return out
}

// Albums returns a snapshot slice of every album, in arbitrary order.
func (c *Catalog) Albums() []*Album {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Album, 0, len(c.albums))
	for _, a := range c.albums {
		out = append(out, a)
	}
	return out
}

// Songs returns a snapshot slice of every song, in arbitrary order.
func (c *Catalog) Songs() []*Song {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Song, 0, len(c.songs))
	for _, s := range c.songs {
		out = append(out, s)
	}
	return out
}

// ReplaceAll discards the current artists/albums/songs wholesale and
// installs the given ones, preserving each song's existing cache slot when
// its id matches a song that already existed. This backs the SyncDatabase
// command (spec §4.4): it is a full catalog replace that leaves the queue
// untouched (see DESIGN.md's Open Question decision).
func (c *Catalog) ReplaceAll(artists []*Artist, albums []*Album, songs []*Song) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldSongs := c.songs

	c.artists = make(map[ArtistID]*Artist, len(artists))
	for _, a := range artists {
		c.artists[a.ID] = a
	}

	c.albums = make(map[AlbumID]*Album, len(albums))
	for _, a := range albums {
		c.albums[a.ID] = a
	}

	c.songs = make(map[SongID]*Song, len(songs))
	for _, s := range songs {
		if existing, ok := oldSongs[s.ID]; ok {
			s.Cache = existing.Cache
		} else if s.Cache == nil {
			s.Cache = &SongCache{}
		}
		c.songs[s.ID] = s
	}
}
