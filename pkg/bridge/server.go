package bridge

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/glazed/pkg/cmds/values"
)

// Server drives the event router and HTTP server lifecycle for the bridge.
type Server struct {
	baseCtx context.Context
	router  *Router
	httpSrv *http.Server
}

// NewServer builds a Router and http.Server pair.
func NewServer(ctx context.Context, parsed *values.Values, opts ...RouterOption) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	r, err := NewRouter(ctx, parsed, opts...)
	if err != nil {
		return nil, err
	}
	httpSrv, err := r.BuildHTTPServer()
	if err != nil {
		return nil, errors.Wrap(err, "build http server")
	}
	return &Server{baseCtx: ctx, router: r, httpSrv: httpSrv}, nil
}

// NewFromRouter constructs a server from an existing Router and http.Server.
func NewFromRouter(ctx context.Context, r *Router, httpSrv *http.Server) *Server {
	if ctx == nil {
		panic("bridge: NewFromRouter requires non-nil ctx")
	}
	if r == nil {
		panic("bridge: NewFromRouter requires non-nil router")
	}
	if httpSrv == nil {
		panic("bridge: NewFromRouter requires non-nil http server")
	}
	return &Server{baseCtx: ctx, router: r, httpSrv: httpSrv}
}

func (s *Server) Router() *Router { return s.router }

func (s *Server) HTTPServer() *http.Server {
	if s == nil {
		return nil
	}
	return s.httpSrv
}

// Run serves until ctx is cancelled or an interrupt arrives, then shuts the
// HTTP server down gracefully and closes the router.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if s == nil || s.router == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error { return s.router.router.Run(srvCtx) })

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownBase := context.WithoutCancel(ctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownBase, 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if err := s.router.Close(); err != nil {
			log.Error().Err(err).Msg("router close error")
		} else {
			log.Info().Msg("router closed")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting view bridge server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
