package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/admission"
	"cipherline/internal/config"
	"cipherline/internal/instrument"
	"cipherline/internal/log"
	"cipherline/internal/monitor"
	"cipherline/internal/relay"
	"cipherline/internal/server"
	"cipherline/internal/services/identity"
	"cipherline/internal/session"
	"cipherline/internal/store"
	"cipherline/internal/worker"
)

// App is a fully wired relay.
type App struct {
	worker.Worker

	cfg *config.Config
	log *logging.Logger

	Logs     *log.Backend
	DB       *store.BoltStore
	Metrics  *instrument.Metrics
	Monitor  *monitor.Monitor
	Sessions *session.Store
	Rates    *admission.RateLimiter
	Lockout  *admission.Lockout
	Relay    *relay.Relay
	Identity *identity.Service
	Server   *server.Server

	addr       net.Addr
	metricsSrv *http.Server
}

// Start launches the listener and every background worker. It returns
// once the listener is bound.
func (a *App) Start() error {
	addr, err := a.Server.Start(a.cfg.Server.Address)
	if err != nil {
		return err
	}
	a.addr = addr

	a.Sessions.StartSweeper()
	a.Monitor.Start()
	a.Every(a.cfg.Admission.RateLimitWindow.Duration, func(now time.Time) {
		if n := a.Rates.Prune(now); n > 0 {
			a.log.Debugf("Pruned %d rate limit windows", n)
		}
	})
	a.Every(a.cfg.Admission.LockDuration.Duration, func(now time.Time) {
		if n := a.Lockout.Prune(now); n > 0 {
			a.log.Debugf("Pruned %d lockout records", n)
		}
	})

	if a.cfg.Server.MetricsAddress != "" {
		ln, err := net.Listen("tcp", a.cfg.Server.MetricsAddress)
		if err != nil {
			a.Shutdown(context.Background())
			return err
		}
		a.metricsSrv = &http.Server{Handler: a.Metrics.Handler(), ReadHeaderTimeout: 10 * time.Second}
		a.Go(func() {
			if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Errorf("Metrics listener exited: %v", err)
			}
		})
		a.log.Noticef("Serving metrics on %v", ln.Addr())
	}
	return nil
}

// Addr is the bound listener address, valid after Start.
func (a *App) Addr() net.Addr { return a.addr }

// Shutdown stops the relay: the network edge first, then the workers, then
// storage.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Server.Shutdown(ctx)
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Shutdown(ctx)
	}
	a.Halt()
	a.Monitor.Halt()
	a.Sessions.Halt()
	if cerr := a.DB.Close(); err == nil {
		err = cerr
	}
	a.log.Noticef("Relay stopped")
	return err
}
