package fanout

import (
	"bytes"
	"errors"
	"testing"

	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
)

func TestBroadcastDeliversInOrderToByteSink(t *testing.T) {
	var buf bytes.Buffer
	f := New()
	f.Register(NewByteSink(&buf))

	f.Broadcast(command.Resume())
	f.Broadcast(command.Pause())

	r := codec.NewReader(buf.Bytes())
	first, err := command.Decode(r)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	second, err := command.Decode(r)
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if first.Tag != command.TagResume || second.Tag != command.TagPause {
		t.Fatalf("wrong order: %v then %v", first.Tag, second.Tag)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("boom") }

func TestBroadcastRemovesFailingSink(t *testing.T) {
	f := New()
	f.Register(NewByteSink(failingWriter{}))
	if f.Count() != 1 {
		t.Fatalf("expected 1 sink registered, got %d", f.Count())
	}

	f.Broadcast(command.Resume())

	if f.Count() != 0 {
		t.Fatalf("expected failing sink removed, got %d remaining", f.Count())
	}
}

func TestChannelSinkFullBufferIsDropped(t *testing.T) {
	ch := make(chan *command.Command, 1)
	done := make(chan struct{})
	f := New()
	f.Register(NewChannelSink(ch, done))

	f.Broadcast(command.Resume()) // fills the buffer
	f.Broadcast(command.Pause())  // buffer full: sink should be dropped

	if f.Count() != 0 {
		t.Fatalf("expected sink dropped on full buffer, got %d remaining", f.Count())
	}
	if got := <-ch; got.Tag != command.TagResume {
		t.Fatalf("expected the first command to have been delivered, got %v", got.Tag)
	}
}

func TestCallbackSinkRemovedOnError(t *testing.T) {
	calls := 0
	f := New()
	f.Register(NewCallbackSink(func(cmd *command.Command) error {
		calls++
		return errors.New("nope")
	}))

	f.Broadcast(command.Resume())
	f.Broadcast(command.Pause())

	if calls != 1 {
		t.Fatalf("expected exactly one delivery attempt before removal, got %d", calls)
	}
}
