package app

import (
	"errors"
	"fmt"
	"os"

	"cipherline/internal/admission"
	"cipherline/internal/crypto"
	"cipherline/internal/instrument"
	"cipherline/internal/log"
	"cipherline/internal/monitor"
	"cipherline/internal/relay"
	"cipherline/internal/server"
	"cipherline/internal/services/identity"
	"cipherline/internal/session"
	"cipherline/internal/store"
)

// New constructs the dependency graph from opts. Nothing runs until Start.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	logs := opts.Logs
	if logs == nil {
		var err error
		logs, err = log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
		if err != nil {
			return nil, err
		}
	}
	a := &App{cfg: cfg, Logs: logs, log: logs.GetLogger("relayd")}

	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("app: data dir: %w", err)
	}

	// Relay signing key, sealed at rest.
	keys := store.NewKeyFileStore(cfg.Identity.KeyFile, opts.kdf())
	signer, created, err := keys.LoadOrCreate(opts.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("app: relay key: %w", err)
	}
	if created {
		a.log.Noticef("Generated relay signing key %s", crypto.Fingerprint(signer.Public()))
	}

	db, err := store.OpenBolt(cfg.Identity.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db

	tokens, err := identity.NewTokenAuthority([]byte(cfg.Identity.TokenSecret), cfg.Identity.TokenTTL.Duration)
	if err != nil {
		db.Close()
		return nil, err
	}
	if cfg.Identity.TokenSecret == "" {
		a.log.Warningf("No TokenSecret configured; tokens will not survive a restart")
	}

	a.Metrics = instrument.New()

	resources := opts.Resources
	if resources == nil {
		ps, err := monitor.NewProcessSampler()
		if err != nil {
			a.log.Warningf("Resource sampling unavailable: %v", err)
		} else {
			resources = ps
		}
	}
	a.Monitor = monitor.New(monitor.Config{
		CheckInterval:          cfg.Monitor.CheckInterval.Duration,
		RetentionPeriod:        cfg.Monitor.RetentionPeriod.Duration,
		RetentionSweepInterval: cfg.Monitor.RetentionSweepInterval.Duration,
		Thresholds: monitor.Thresholds{
			FailedLogins:   cfg.Monitor.FailedLoginThreshold,
			FailedRequests: cfg.Monitor.FailedRequestThreshold,
			Connections:    cfg.Monitor.ConnectionThreshold,
			Memory:         cfg.Monitor.MemoryThreshold,
			CPU:            cfg.Monitor.CPUThreshold,
		},
	}, db, a.Metrics, monitor.Gauges{
		Connections: func() int { return a.Server.Connections() },
		Sessions:    func() int { return a.Sessions.Count() },
	}, resources, logs.GetLogger("monitor"))

	a.Sessions = session.New(session.Config{
		MaxPerUser:        cfg.Session.MaxPerUser,
		Duration:          cfg.Session.Duration.Duration,
		InactivityTimeout: cfg.Session.InactivityTimeout.Duration,
		SweepInterval:     cfg.Session.SweepInterval.Duration,
	}, session.WithLogger(logs.GetLogger("session")), session.WithEventSink(a.Monitor))

	a.Lockout = admission.NewLockout(cfg.Admission.LoginFailureThreshold, cfg.Admission.LockDuration.Duration)
	a.Rates = admission.NewRateLimiter(cfg.Admission.RateLimitCeiling, cfg.Admission.RateLimitWindow.Duration)

	registry := relay.NewRegistry()
	a.Relay = relay.New(registry, a.Sessions, signer, a.Metrics, logs.GetLogger("relay"))
	crypto.Wipe(signer[:])

	a.Identity = identity.New(db, tokens, a.Lockout, a.Metrics, a.Monitor, logs.GetLogger("identity"), identity.DefaultHashParams())

	a.Server = server.New(server.Config{
		MaxPayloadBytes:   cfg.Server.MaxPayloadBytes,
		HeartbeatInterval: cfg.Server.HeartbeatInterval.Duration,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		SendQueueSize:     cfg.Server.SendQueueSize,
		MaxMessageAge:     cfg.Session.MaxMessageAge.Duration,
		FramesPerMinute:   cfg.Admission.FramesPerMinute,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}, server.Deps{
		Sessions: a.Sessions,
		Registry: registry,
		Relay:    a.Relay,
		Conns:    admission.NewConnLimiter(cfg.Admission.MaxConnectionsPerAddress),
		Rates:    a.Rates,
		Lockout:  a.Lockout,
		Tokens:   tokens,
		Accounts: a.Identity,
		Metrics:  a.Metrics,
		Events:   a.Monitor,
	}, logs)

	a.Metrics.RegisterGauges(a.Server.Connections, a.Sessions.Count)
	return a, nil
}
