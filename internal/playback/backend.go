package playback

import (
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
)

// AudioBackend is the pluggable audio output the Scheduler drives (spec
// §6.5). An implementation is otherwise opaque to the scheduler: three
// reference implementations coexist in this package (oto raw-PCM, beep
// streaming/decoding, and a sleep-timer stub for headless tests).
type AudioBackend interface {
	// LoadNext prepares id for playback from raw file bytes, replacing
	// whatever was previously loaded as "next". Implementations may
	// begin gapless preparation (decoding ahead) but must not start
	// audible output until Play is called for this song.
	LoadNext(id catalog.SongID, data []byte) error

	// Play resumes or starts output of the current song.
	Play()
	// Pause suspends output without discarding position.
	Pause()
	// Stop halts output and resets position to the start of the current
	// song.
	Stop()
	// SkipToNext promotes whatever was loaded via LoadNext to current,
	// discarding any remaining output of the previous current song.
	SkipToNext()

	// CurrentSong reports the song the backend considers "now playing",
	// if any.
	CurrentSong() (catalog.SongID, bool)
	// NextSong reports the song the backend has preloaded as "next", if
	// any.
	NextSong() (catalog.SongID, bool)

	// SongFinished is an edge-triggered predicate: it reports true at
	// most once per completed song, the first time it is polled after
	// the current song's output has fully drained.
	SongFinished() bool

	// Position reports elapsed playback time of the current song, if the
	// backend can report it.
	Position() (time.Duration, bool)
}
