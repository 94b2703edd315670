package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yash101/scramjet/sockio"
	"github.com/yash101/scramjet/storage"
)

// Config contains the settings the embedding process passes in. Zero
// values are not filled in here; userconfig validates and defaults before
// the server is built.
type Config struct {
	// Filesystem path for the listening UNIX socket
	SocketPath string
	// Per-call stall budget for socket reads, including the wait for the
	// next request
	ReadTimeout time.Duration
	// Per-call stall budget for socket writes
	WriteTimeout time.Duration
	// Longest key or value accepted on the wire; larger lengths tear
	// down the connection
	MaxPayload int64
}

// Server owns the listening socket and tracks live connections so a
// shutdown can interrupt them.
type Server struct {
	cfg    Config
	db     storage.OrderedKV
	logger zerolog.Logger

	ln    net.Listener
	conns sync.Map
	wg    sync.WaitGroup

	shutdown atomic.Bool
	closeMu  sync.Mutex
	closed   bool
	done     chan struct{}
}

// New returns a Server serving db over cfg.SocketPath.
func New(cfg Config, db storage.OrderedKV, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		db:     db,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ListenAndServe binds the UNIX socket, removing any stale socket file
// first, and accepts connections until Shutdown. A nil return means the
// server stopped because of Shutdown or because the listener was closed.
func (s *Server) ListenAndServe() error {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("can't remove the stale socket file: %w", err)
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("can't listen on %v: %w", s.cfg.SocketPath, err)
	}

	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.closeMu.Unlock()

	s.logger.Info().Str("socket", s.cfg.SocketPath).Msg("listening")

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.wg.Add(1)
		go s.handleConn(c)
	}
}

// handleConn runs one connection's request loop. The socket is closed
// exactly once when the worker exits, whatever the exit path.
func (s *Server) handleConn(c net.Conn) {
	defer s.wg.Done()

	sock := sockio.New(c, &s.shutdown)
	s.conns.Store(sock, struct{}{})
	defer func() {
		s.conns.Delete(sock)
		sock.Close()
	}()

	w := newWorker(sock, s.db, &s.cfg, s.logger)
	w.run()
}

// Shutdown stops accepting, wakes every blocked connection by closing its
// socket, and waits for all workers to exit. Safe to call more than once
// and from any goroutine; every caller returns only once teardown is
// complete.
func (s *Server) Shutdown() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	ln := s.ln
	s.closeMu.Unlock()

	// Workers consult this flag at every wakeup; the closes below are the
	// wakeup.
	s.shutdown.Store(true)

	if ln != nil {
		ln.Close()
	}

	s.conns.Range(func(key, _ interface{}) bool {
		if c, ok := key.(*sockio.Conn); ok {
			c.Close()
		}
		return true
	})

	s.wg.Wait()

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Msg("can't remove the socket file")
	}

	s.logger.Info().Msg("server stopped")
	close(s.done)
}
