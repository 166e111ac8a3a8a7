package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coopfund/backoffice/internal/app/system"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Service runs the HTTP server as a lifecycle-managed component.
type Service struct {
	server *http.Server
	log    *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan error
}

var _ system.Service = (*Service)(nil)

// NewService wraps handler in a server listening on addr.
func NewService(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &Service{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       2 * time.Minute,
		},
		log: log,
	}
}

func (s *Service) Name() string { return "http" }

// Start binds the listener synchronously so address errors surface here,
// then serves in the background.
func (s *Service) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.done = make(chan error, 1)
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
	go func() {
		err := s.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.log.WithError(err).Error("http server stopped")
		}
		s.done <- err
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Stop drains in-flight requests until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return <-done
}
