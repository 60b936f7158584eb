package command

import (
	"sync"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
)

// Broadcaster hands an applied Command to every registered sink, in the
// engine's application order (spec §4.5). *fanout.Fanout satisfies this.
type Broadcaster interface {
	Broadcast(cmd *Command)
}

// nullBroadcaster is installed when an Engine is built without one, so
// Apply never needs a nil check on the hot path.
type nullBroadcaster struct{}

func (nullBroadcaster) Broadcast(*Command) {}

// Engine is the single writer over a Catalog and Queue: every mutation in
// the system funnels through Apply, which runs on one goroutine at a time
// (spec §4.4, §5 "Command thread"). Apply holds applyMu for its whole
// duration, so concurrent callers are serialized by the Engine itself.
type Engine struct {
	cat       *catalog.Catalog
	queue     *queue.Queue
	sinks     Broadcaster
	dbPath    string
	playingMu sync.Mutex
	playing   bool

	// applyMu serializes Apply across concurrent callers (per-connection
	// reader goroutines, the scheduler) so "single writer" is a mutual-
	// exclusion guarantee rather than a property callers must arrange for
	// themselves (spec §5: "the command engine ... runs on one thread at a
	// time").
	applyMu sync.Mutex
}

// New returns an Engine over cat and q. dbPath is where Save writes the
// database file; sinks receives every applied command. A nil sinks is
// replaced with a no-op broadcaster so tests may omit it.
func New(cat *catalog.Catalog, q *queue.Queue, dbPath string, sinks Broadcaster) *Engine {
	if sinks == nil {
		sinks = nullBroadcaster{}
	}
	return &Engine{cat: cat, queue: q, dbPath: dbPath, sinks: sinks}
}

// Queue returns the engine's queue, for read-only observers such as the
// playback scheduler and cache manager. Mutation must still go through
// Apply; callers only read from it.
func (e *Engine) Queue() *queue.Queue {
	return e.queue
}

// Catalog returns the engine's catalog, for read-only observers. Mutation
// must still go through Apply.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// WithLock runs fn while holding the same lock Apply takes, blocking any
// concurrent command application for fn's duration. The server frontend
// uses this to take a bootstrap snapshot and register the resulting sink
// with the fanout atomically (spec §4.8: "sink registration happens before
// the lock is released"), so no command applied after the snapshot can be
// missed or delivered twice to the new connection.
func (e *Engine) WithLock(fn func()) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	fn()
}

// Playing reports whether the engine currently considers playback active.
func (e *Engine) Playing() bool {
	e.playingMu.Lock()
	defer e.playingMu.Unlock()
	return e.playing
}

func (e *Engine) setPlaying(v bool) {
	e.playingMu.Lock()
	e.playing = v
	e.playingMu.Unlock()
}

// Apply mutates catalog/queue state per cmd, then hands cmd to the
// broadcaster. Commands are authoritative: there is no validation, no
// rollback, no conflict detection (spec §4.4) — a malformed path or
// unknown id is logged and otherwise ignored rather than rejected.
func (e *Engine) Apply(cmd *Command) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	switch cmd.Tag {
	case TagResume:
		e.setPlaying(true)
	case TagPause:
		e.setPlaying(false)
	case TagStop:
		// Stop never advances the queue; it only clears playing, exactly
		// like Pause. Neither the engine nor the scheduler rewinds the
		// current song: AudioBackend.Stop is never called, so the backend
		// keeps its position and Resume continues from there.
		e.setPlaying(false)
	case TagNextSong:
		if !e.queue.Advance() {
			e.setPlaying(false)
			e.queue.ResetToRoot()
		}
	case TagSave:
		if e.dbPath == "" {
			log.Warn("save requested but no database path is configured")
			break
		}
		if err := e.cat.Save(e.dbPath); err != nil {
			log.WithError(err).Error("save failed")
		}
	case TagSyncDatabase:
		e.cat.ReplaceAll(cmd.Artists, cmd.Albums, cmd.Songs)
	case TagQueueUpdate:
		if err := e.queue.Update(cmd.Path, cmd.Node); err != nil {
			log.WithError(err).WithField("path", cmd.Path).Warn("queue update failed")
		}
	case TagQueueAdd:
		if err := e.queue.Add(cmd.Path, []*queue.Node{cmd.Node}); err != nil {
			log.WithError(err).WithField("path", cmd.Path).Warn("queue add failed")
		}
	case TagQueueInsert:
		if err := e.queue.InsertAt(cmd.Path, cmd.Position, []*queue.Node{cmd.Node}); err != nil {
			log.WithError(err).WithField("path", cmd.Path).Warn("queue insert failed")
		}
	case TagQueueRemove:
		if _, err := e.queue.Remove(cmd.Path); err != nil {
			log.WithError(err).WithField("path", cmd.Path).Warn("queue remove failed")
		}
	case TagQueueGoto:
		if err := e.queue.Goto(cmd.Path); err != nil {
			log.WithError(err).WithField("path", cmd.Path).Warn("queue goto failed")
		}
	case TagAddSong:
		e.cat.AddSong(cmd.Song)
	case TagAddAlbum:
		e.cat.AddAlbum(cmd.Album)
	case TagAddArtist:
		e.cat.AddArtist(cmd.Artist)
	case TagModifySong:
		if err := e.cat.UpdateSong(cmd.Song); err != nil {
			log.WithError(err).WithField("id", cmd.Song.ID).Warn("modify song failed")
		}
	case TagModifyAlbum:
		if err := e.cat.UpdateAlbum(cmd.Album); err != nil {
			log.WithError(err).WithField("id", cmd.Album.ID).Warn("modify album failed")
		}
	case TagModifyArtist:
		if err := e.cat.UpdateArtist(cmd.Artist); err != nil {
			log.WithError(err).WithField("id", cmd.Artist.ID).Warn("modify artist failed")
		}
	case TagSetLibraryDirectory:
		e.cat.SetLibraryDirectory(cmd.LibraryDirectory)
	case TagErrorInfo:
		log.WithField("message", cmd.ErrorMessage).Warn("playback error reported")
	}
	e.sinks.Broadcast(cmd)
}
