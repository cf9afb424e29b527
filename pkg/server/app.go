package server

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	xhttp "MacroPull/pkg/http"
	applogger "MacroPull/pkg/logger"
)

// Service is a background component started before the HTTP server and
// stopped after it.
type Service interface {
	Start(ctx context.Context)
	Stop()
}

// Sweeper drops idle per-client state on an interval.
type Sweeper interface {
	Run(interval time.Duration, stop <-chan struct{})
}

// App encapsulates the entire application lifecycle.
type App struct {
	log        *applogger.Logger
	httpServer *xhttp.Server
	services   []Service
	sweepers   []Sweeper
	closers    []io.Closer

	shutdownTimeout time.Duration
}

type Option func(*App)

func WithServices(s ...Service) Option {
	return func(a *App) { a.services = append(a.services, s...) }
}

func WithSweepers(s ...Sweeper) Option {
	return func(a *App) { a.sweepers = append(a.sweepers, s...) }
}

// WithClosers registers resources closed, in order, after everything stopped.
func WithClosers(c ...io.Closer) Option {
	return func(a *App) { a.closers = append(a.closers, c...) }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// New creates a new App instance with all dependencies.
func New(log *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{log: log, httpServer: httpServer, shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, s := range a.services {
		s.Start(ctx)
	}

	sweepStop := make(chan struct{})
	for _, s := range a.sweepers {
		go s.Run(time.Minute, sweepStop)
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			close(sweepStop)
			a.shutdown()
			return err
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	close(sweepStop)
	a.shutdown()
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown() {
	a.log.Info("shutting down...")

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
		cancel()
	}

	for i := len(a.services) - 1; i >= 0; i-- {
		a.services[i].Stop()
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
