package inter

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/config"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/metrics"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/packet"
	"go.uber.org/zap"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("inter: server closed")

// LinkInfo describes a connected world process.
type LinkInfo struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Server accepts world-process links and dispatches their frames.
type Server struct {
	cfg     config.InterConfig
	router  *Router
	metrics *metrics.InterMetrics
	logger  *zap.Logger

	allowed map[string]bool

	mu     sync.Mutex
	ln     net.Listener
	conns  map[*Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a Server. m may be nil.
func NewServer(cfg config.InterConfig, router *Router, m *metrics.InterMetrics, logger *zap.Logger) *Server {
	allowed := make(map[string]bool, len(cfg.AllowedIPs))
	for _, ip := range cfg.AllowedIPs {
		allowed[ip] = true
	}
	return &Server{
		cfg:     cfg,
		router:  router,
		metrics: m,
		logger:  logger,
		allowed: allowed,
		conns:   make(map[*Conn]struct{}),
	}
}

// Listen binds the configured address without accepting yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("inter server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts links until Shutdown. It calls Listen first if needed.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("inter accept timeout", zap.Error(err))
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}
		if !s.permitted(nc.RemoteAddr()) {
			s.metrics.IncRejected("ip_not_allowed")
			s.logger.Warn("inter link refused", zap.String("remote", nc.RemoteAddr().String()))
			_ = nc.Close()
			continue
		}

		c := NewConn(nc, s.cfg.SendBuf, s.logger)
		if !s.track(c) {
			c.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go s.serveConn(ctx, c, nc)
	}
}

func (s *Server) permitted(addr net.Addr) bool {
	if len(s.allowed) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}
	return s.allowed[host]
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.metrics.SetLinks(len(s.conns))
	s.logger.Info("inter link connected", zap.String("remote", c.Remote), zap.String("link_id", c.ID))
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.metrics.SetLinks(len(s.conns))
	s.mu.Unlock()
	s.logger.Info("inter link disconnected", zap.String("remote", c.Remote), zap.String("link_id", c.ID))
}

// serveConn reads frames in arrival order and dispatches each before
// reading the next.
func (s *Server) serveConn(ctx context.Context, c *Conn, nc net.Conn) {
	defer s.wg.Done()
	defer s.untrack(c)
	defer c.Close()

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = nc.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		f, err := packet.ReadFrame(nc)
		if err != nil {
			switch {
			case errors.Is(err, packet.ErrBadLength):
				s.metrics.IncRejected("bad_length")
				s.logger.Error("inter link desynchronised, closing",
					zap.String("remote", c.Remote), zap.Error(err))
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), c.IsClosed():
			default:
				s.logger.Warn("inter read error", zap.String("remote", c.Remote), zap.Error(err))
			}
			return
		}
		s.router.Dispatch(ctx, c, f)
	}
}

// Links returns a snapshot of connected world processes ordered by
// connection time.
func (s *Server) Links() []LinkInfo {
	s.mu.Lock()
	out := make([]LinkInfo, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, LinkInfo{ID: c.ID, Remote: c.Remote, ConnectedAt: c.ConnectedAt})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// LinkCount returns the number of connected world processes.
func (s *Server) LinkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown stops accepting, closes every link and waits for their read
// loops to exit or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
