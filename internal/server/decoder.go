package server

import (
	"bufio"
	"errors"
	"io"

	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
)

// commandDecoder decodes a stream of wire-format Commands off a connection.
// command.Decode works against an in-memory buffer (codec.Reader), not an
// io.Reader, and a Command's total length is not known up front (the wire
// format is not length-prefixed at the top level — original_source's
// Command::from_bytes reads directly off a stream instead). commandDecoder
// bridges the two: it grows an accumulation buffer, attempts a decode, and
// on a short-buffer error reads more and retries.
type commandDecoder struct {
	r   *bufio.Reader
	buf []byte
}

func newCommandDecoder(r *bufio.Reader) *commandDecoder {
	return &commandDecoder{r: r}
}

// next blocks until a full Command has arrived and returns it decoded, or
// returns an error if the connection fails or is closed.
func (d *commandDecoder) next() (*command.Command, error) {
	for {
		if len(d.buf) > 0 {
			cr := codec.NewReader(d.buf)
			cmd, err := command.Decode(cr)
			if err == nil {
				d.buf = d.buf[cr.Pos():]
				return cmd, nil
			}
			if !errors.Is(err, codec.ErrShortBuffer) {
				return nil, err
			}
			// fall through to read more bytes
		}
		chunk := make([]byte, 4096)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
		}
		if err != nil {
			if n == 0 {
				return nil, err
			}
			if err != io.EOF {
				return nil, err
			}
		}
	}
}
