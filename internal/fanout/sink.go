package fanout

import (
	"io"

	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
	"github.com/pkg/errors"
)

// Sink is an update endpoint: something the Fanout delivers every applied
// Command to, in order, until delivery fails once (spec §4.5).
type Sink interface {
	deliver(cmd *command.Command) error
}

// ErrSinkClosed is returned by a sink whose underlying connection or
// channel has gone away.
var ErrSinkClosed = errors.New("fanout: sink closed")

// ErrSinkFull is returned by a ChannelSink whose buffer has no room. The
// engine must never block on a slow consumer (spec §5), so a full buffer
// is treated the same as a closed one: the sink is dropped.
var ErrSinkFull = errors.New("fanout: channel sink buffer full")

// ByteSink writes each command's Codec encoding to w (a net.Conn, typically).
// A write error removes it from the Fanout.
type ByteSink struct {
	w io.Writer
}

// NewByteSink wraps w as a byte-stream sink.
func NewByteSink(w io.Writer) *ByteSink {
	return &ByteSink{w: w}
}

func (s *ByteSink) deliver(cmd *command.Command) error {
	w := codec.NewWriter()
	cmd.Encode(w)
	_, err := s.w.Write(w.Bytes())
	return errors.Wrap(err, "fanout: byte sink write")
}

// ChannelSink delivers each command over a buffered Go channel. Delivery
// never blocks: a full buffer or a closed done channel both count as
// failure and unregister the sink.
type ChannelSink struct {
	ch     chan<- *command.Command
	done   <-chan struct{}
	closed bool
}

// NewChannelSink wraps ch as a typed-channel sink. done, if non-nil, is
// closed by the owner to signal the sink should be torn down even if the
// channel itself is never closed (sending on a closed channel panics, so
// callers must close done instead of ch).
func NewChannelSink(ch chan<- *command.Command, done <-chan struct{}) *ChannelSink {
	return &ChannelSink{ch: ch, done: done}
}

func (s *ChannelSink) deliver(cmd *command.Command) error {
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- cmd:
		return nil
	case <-s.done:
		s.closed = true
		return ErrSinkClosed
	default:
		return ErrSinkFull
	}
}

// CallbackSink delivers each command via a user-provided function. A
// returned error removes the sink.
type CallbackSink struct {
	fn func(cmd *command.Command) error
}

// NewCallbackSink wraps fn as a sink.
func NewCallbackSink(fn func(cmd *command.Command) error) *CallbackSink {
	return &CallbackSink{fn: fn}
}

func (s *CallbackSink) deliver(cmd *command.Command) error {
	return s.fn(cmd)
}
