package playback

import (
	"bytes"
	"time"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/hajimehoshi/oto/v2"
	"github.com/pkg/errors"
)

const (
	otoSampleRate = 44100
	otoChannels   = 2
	otoBitDepth   = 2 // 16-bit PCM
)

// OtoBackend is a raw-PCM AudioBackend built on hajimehoshi/oto/v2. Unlike
// beep_backend.go, it performs no decoding: bytes handed to LoadNext must
// already be signed 16-bit little-endian PCM at otoSampleRate/otoChannels.
// It is adapted from the donor project's OtoOutput, trading its
// continuous-buffer design (one long-lived Player fed by Write calls, used
// there to keep a visualizer in sync) for one Player per loaded song, since
// this backend needs an edge-triggered "finished" signal rather than a
// visualization feed.
type OtoBackend struct {
	ctx *oto.Context

	current, next *otoSlot
	playing       bool

	finishedReported bool
}

type otoSlot struct {
	id      catalog.SongID
	data    []byte
	player  oto.Player
	started bool
}

// NewOtoBackend creates an oto output context at otoSampleRate/otoChannels
// and returns a backend ready to load songs.
func NewOtoBackend() (*OtoBackend, error) {
	ctx, ready, err := oto.NewContext(otoSampleRate, otoChannels, otoBitDepth)
	if err != nil {
		return nil, errors.Wrap(err, "oto backend: create context")
	}
	<-ready
	return &OtoBackend{ctx: ctx}, nil
}

func (b *OtoBackend) newSlot(id catalog.SongID, data []byte) *otoSlot {
	return &otoSlot{id: id, data: data, player: b.ctx.NewPlayer(bytes.NewReader(data))}
}

func (b *OtoBackend) LoadNext(id catalog.SongID, data []byte) error {
	if b.next != nil {
		b.next.player.Close()
	}
	b.next = b.newSlot(id, data)
	return nil
}

func (b *OtoBackend) Play() {
	b.playing = true
	if b.current != nil {
		b.current.started = true
		b.current.player.Play()
	}
}

func (b *OtoBackend) Pause() {
	b.playing = false
	if b.current != nil {
		b.current.started = false
		b.current.player.Pause()
	}
}

func (b *OtoBackend) Stop() {
	b.playing = false
	if b.current != nil {
		b.current.player.Close()
		b.current = b.newSlot(b.current.id, b.current.data)
	}
}

func (b *OtoBackend) SkipToNext() {
	if b.current != nil {
		b.current.player.Close()
	}
	b.current = b.next
	b.next = nil
	b.finishedReported = false
	if b.current != nil && b.playing {
		b.current.started = true
		b.current.player.Play()
	}
}

func (b *OtoBackend) CurrentSong() (catalog.SongID, bool) {
	if b.current == nil {
		return 0, false
	}
	return b.current.id, true
}

func (b *OtoBackend) NextSong() (catalog.SongID, bool) {
	if b.next == nil {
		return 0, false
	}
	return b.next.id, true
}

func (b *OtoBackend) SongFinished() bool {
	finishedNow := b.current != nil && b.current.started && !b.current.player.IsPlaying()
	if finishedNow && !b.finishedReported {
		b.finishedReported = true
		return true
	}
	return false
}

// Position is not implemented: oto/v2's Player exposes no play-head offset,
// only BufferedSize, which does not distinguish "not started" from "caught
// up".
func (b *OtoBackend) Position() (time.Duration, bool) {
	return 0, false
}

// Close releases the underlying oto players. It is not part of AudioBackend;
// callers that own an OtoBackend for the lifetime of a process should call
// it during shutdown.
func (b *OtoBackend) Close() error {
	if b.current != nil {
		b.current.player.Close()
	}
	if b.next != nil {
		b.next.player.Close()
	}
	return nil
}
