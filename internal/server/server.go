// Package server implements the transport-level frontend (spec §4.8): an
// accept loop that reads a one-line handshake off each new connection and
// either runs the bidirectional "main" command role or the read-only "get"
// bulk fetch role (§4.9).
package server

import (
	"bufio"
	"net"
	"strings"
	"sync"

	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
	"github.com/austinkregel/local-media/musicdbd/internal/fanout"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// roleMain and roleGet are the two handshake lines a client may send.
const (
	roleMain = "main"
	roleGet  = "get"
)

// Server accepts connections on a net.Listener and dispatches each one to
// the main command role or the get bulk-fetch role (spec §4.8).
type Server struct {
	engine *command.Engine
	fanout *fanout.Fanout
	bulk   *BulkFetcher

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// New returns a Server over engine and fanout, serving bulk-fetch requests
// with bulk (see NewBulkFetcher).
func New(engine *command.Engine, fo *fanout.Fanout, bulk *BulkFetcher) *Server {
	return &Server{engine: engine, fanout: fo, bulk: bulk}
}

// Serve accepts connections on ln until it is closed or Stop is called.
// It blocks; callers typically run it in its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			log.WithError(err).Warn("accept failed")
			return err
		}
		go s.handleConnection(conn)
	}
}

// Stop closes the listener, ending any in-progress Serve call.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("connection handler panicked")
		}
	}()

	connID := uuid.NewString()
	connLog := log.WithField("conn", connID)

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}
	role := strings.TrimRight(line, "\r\n")

	switch role {
	case roleMain:
		connLog.Info("main connection established")
		s.handleMain(conn, r, connLog)
	case roleGet:
		connLog.Debug("get connection established")
		s.bulk.handleConnection(conn, r)
	default:
		connLog.WithField("role", role).Warn("unrecognized handshake role")
		conn.Close()
	}
}

// handleMain implements the bidirectional command role (spec §4.8): a
// bootstrap snapshot is written and the connection registered as a sink
// before the catalog/queue lock is released, then inbound commands are
// decoded and applied until the connection errs out. connLog carries this
// connection's correlation id (spec §5: per-connection reader threads) so
// its lifecycle can be traced across the log alongside every other sink.
func (s *Server) handleMain(conn net.Conn, r *bufio.Reader, connLog *logrus.Entry) {
	sink := fanout.NewByteSink(conn)
	s.writeBootstrap(conn, sink)

	dec := newCommandDecoder(r)
	for {
		cmd, err := dec.next()
		if err != nil {
			connLog.WithError(err).Debug("main connection reader exiting")
			conn.Close()
			return
		}
		s.engine.Apply(cmd)
	}
}

// writeBootstrap takes the snapshot lock, writes the bootstrap sequence
// (spec §6.2) directly to conn, and registers sink with the fanout before
// any lock is released, so no live command can be missed or duplicated
// (spec §4.8).
func (s *Server) writeBootstrap(conn net.Conn, sink *fanout.ByteSink) {
	cat := s.engine.Catalog()
	q := s.engine.Queue()

	s.engine.WithLock(func() {
		artists, albums, songs := cat.Artists(), cat.Albums(), cat.Songs()

		writeCommand(conn, command.SyncDatabase(artists, albums, songs))
		writeCommand(conn, command.QueueUpdate(queue.Path{}, q.Root()))
		if s.engine.Playing() {
			writeCommand(conn, command.Resume())
		}
		writeCommand(conn, command.SetLibraryDirectory(cat.LibraryDirectory()))

		s.fanout.Register(sink)
	})
}

func writeCommand(conn net.Conn, cmd *command.Command) {
	w := codec.NewWriter()
	cmd.Encode(w)
	if _, err := conn.Write(w.Bytes()); err != nil {
		log.WithError(err).Debug("bootstrap write failed")
	}
}
