// Package echo is a TCP endpoint that writes every chunk it reads straight back. It is
// the default remote side for load runs and the fixture for tests.
package echo

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"sockbench/internal/logger"
)

type ServerConfig struct {
	Addr string
	// Delay is slept before each echo to simulate a slow backend.
	Delay      time.Duration
	BufferSize int
	Logger     *slog.Logger
}

type Server struct {
	cfg ServerConfig
	ln  net.Listener
	log *slog.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	accepted atomic.Int64
	echoed   atomic.Int64
}

// Listen binds the address without serving yet. Use ":0" for an ephemeral port.
func Listen(cfg ServerConfig) (*Server, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:   cfg,
		ln:    ln,
		log:   logger.Or(cfg.Logger).With("component", "echo"),
		conns: make(map[net.Conn]struct{}),
	}, nil
}

// Start listens and serves in the background.
func Start(cfg ServerConfig) (*Server, error) {
	s, err := Listen(cfg)
	if err != nil {
		return nil, err
	}
	go s.Serve()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Accepted is the number of connections accepted so far.
func (s *Server) Accepted() int64 { return s.accepted.Load() }

// Echoed is the number of chunks written back so far.
func (s *Server) Echoed() int64 { return s.echoed.Load() }

// Serve accepts until Close. It returns nil after a clean shutdown.
func (s *Server) Serve() error {
	s.log.Info("echo server listening", "addr", s.Addr(), "delay", s.cfg.Delay)
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.accepted.Add(1)

		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(c)
	}
}

// Run serves until ctx is done, then closes the server.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	select {
	case <-ctx.Done():
		s.Close()
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Close stops accepting, drops open connections and waits for their handlers.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.ln.Close()

	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			if s.cfg.Delay > 0 {
				time.Sleep(s.cfg.Delay)
			}
			s.echoed.Add(1)
			if _, werr := c.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
