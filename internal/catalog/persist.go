package catalog

import (
	"os"
	"path/filepath"

	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/pkg/errors"
)

// Save writes the database file to path: library directory, then artists,
// albums, songs, and covers, each Codec-encoded in that order (spec §6.4).
// Queue state, playback position, and cached bytes are never written here.
func (c *Catalog) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w := codec.NewWriter()
	w.String(c.libraryDir)

	w.Usize(uint64(len(c.artists)))
	for _, a := range c.artists {
		a.Encode(w)
	}

	w.Usize(uint64(len(c.albums)))
	for _, a := range c.albums {
		a.Encode(w)
	}

	w.Usize(uint64(len(c.songs)))
	for _, s := range c.songs {
		s.Encode(w)
	}

	w.Usize(uint64(len(c.covers)))
	for _, cov := range c.covers {
		cov.Encode(w)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "catalog: create database directory")
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, w.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, "catalog: write database file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "catalog: finalize database file")
	}

	log.WithField("path", path).Info("saved database")
	return nil
}

// Load reads a database file written by Save and returns a new Catalog
// holding its contents. A missing file is not an error: the returned
// catalog is empty, matching first-run behavior.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, errors.Wrap(err, "catalog: read database file")
	}

	r := codec.NewReader(data)

	libraryDir, err := r.String()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: decode library directory")
	}

	c := New()
	c.libraryDir = libraryDir

	numArtists, err := r.Usize()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: decode artist count")
	}
	for i := uint64(0); i < numArtists; i++ {
		a, err := DecodeArtist(r)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: decode artist %d", i)
		}
		c.artists[a.ID] = a
	}

	numAlbums, err := r.Usize()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: decode album count")
	}
	for i := uint64(0); i < numAlbums; i++ {
		a, err := DecodeAlbum(r)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: decode album %d", i)
		}
		c.albums[a.ID] = a
	}

	numSongs, err := r.Usize()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: decode song count")
	}
	for i := uint64(0); i < numSongs; i++ {
		s, err := DecodeSong(r)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: decode song %d", i)
		}
		c.songs[s.ID] = s
	}

	numCovers, err := r.Usize()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: decode cover count")
	}
	for i := uint64(0); i < numCovers; i++ {
		cov, err := DecodeCover(r)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: decode cover %d", i)
		}
		c.covers[cov.ID] = cov
	}

	log.WithField("path", path).Info("loaded database")
	return c, nil
}
