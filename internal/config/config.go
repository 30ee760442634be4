// Package config provides the relay configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"cipherline/internal/log"
)

const (
	defaultAddress         = "127.0.0.1:8080"
	defaultDataDir         = "./data"
	defaultLogLevel        = "NOTICE"
	defaultMaxPayload      = 1 << 20
	defaultSendQueue       = 64
	defaultDatabase        = "relay.db"
	defaultKeyFile         = "relay.key"
	defaultTokenTTL        = 24 * time.Hour
	defaultMaxMessageAge   = 5 * time.Minute
	defaultHeartbeat       = 30 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultSessionDuration = 24 * time.Hour
	defaultInactivity      = 30 * time.Minute
	defaultSweepInterval   = time.Minute

	defaultConnsPerAddress = 3
	defaultRateWindow      = 15 * time.Minute
	defaultRateCeiling     = 100
	defaultFramesPerMinute = 100
	defaultLockThreshold   = 5
	defaultLockDuration    = 15 * time.Minute
	defaultMaxPerUser      = 3

	defaultCheckInterval     = time.Minute
	defaultRetention         = 30 * 24 * time.Hour
	defaultRetentionInterval = 24 * time.Hour
	defaultFailedLogins      = 5
	defaultFailedRequests    = 100
	defaultConnections       = 1000
	defaultMemoryFraction    = 0.9
	defaultCPUFraction       = 0.8

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CIPHERLINE_"
)

// Duration is a time.Duration written as a string ("30s", "15m") in TOML.
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func orDefault(d *Duration, def time.Duration) {
	if d.Duration <= 0 {
		d.Duration = def
	}
}

// Server is the listener and transport configuration.
type Server struct {
	// Address is the host:port the HTTP and WebSocket listener binds.
	Address string
	// MetricsAddress, if set, serves /metrics on a separate listener.
	MetricsAddress string
	// DataDir holds the database and key file.
	DataDir string
	// MaxPayloadBytes bounds a single inbound frame.
	MaxPayloadBytes int64
	// HeartbeatInterval is the ping period; an unanswered ping closes the connection.
	HeartbeatInterval Duration
	// WriteTimeout bounds each outbound frame write.
	WriteTimeout Duration
	// SendQueueSize is the per-connection outbound buffer, in frames.
	SendQueueSize int
	// AllowedOrigins restricts browser WebSocket origins. Empty allows any.
	AllowedOrigins []string
}

func (s *Server) applyDefaults() {
	if s.Address == "" {
		s.Address = defaultAddress
	}
	if s.DataDir == "" {
		s.DataDir = defaultDataDir
	}
	if s.MaxPayloadBytes <= 0 {
		s.MaxPayloadBytes = defaultMaxPayload
	}
	if s.SendQueueSize <= 0 {
		s.SendQueueSize = defaultSendQueue
	}
	orDefault(&s.HeartbeatInterval, defaultHeartbeat)
	orDefault(&s.WriteTimeout, defaultWriteTimeout)
}

func (s *Server) validate() error {
	if _, _, err := net.SplitHostPort(s.Address); err != nil {
		return fmt.Errorf("config: Server: Address '%v' is invalid: %v", s.Address, err)
	}
	if s.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(s.MetricsAddress); err != nil {
			return fmt.Errorf("config: Server: MetricsAddress '%v' is invalid: %v", s.MetricsAddress, err)
		}
	}
	return nil
}

// Admission bounds what a single peer may ask of the relay.
type Admission struct {
	MaxConnectionsPerAddress int
	RateLimitWindow          Duration
	RateLimitCeiling         int
	FramesPerMinute          int
	LoginFailureThreshold    int
	LockDuration             Duration
}

func (a *Admission) applyDefaults() {
	if a.MaxConnectionsPerAddress <= 0 {
		a.MaxConnectionsPerAddress = defaultConnsPerAddress
	}
	if a.RateLimitCeiling <= 0 {
		a.RateLimitCeiling = defaultRateCeiling
	}
	if a.FramesPerMinute <= 0 {
		a.FramesPerMinute = defaultFramesPerMinute
	}
	if a.LoginFailureThreshold <= 0 {
		a.LoginFailureThreshold = defaultLockThreshold
	}
	orDefault(&a.RateLimitWindow, defaultRateWindow)
	orDefault(&a.LockDuration, defaultLockDuration)
}

// Session bounds session lifetime.
type Session struct {
	MaxPerUser        int
	Duration          Duration
	InactivityTimeout Duration
	SweepInterval     Duration
	// MaxMessageAge is the replay window for inbound envelopes.
	MaxMessageAge Duration
}

func (s *Session) applyDefaults() {
	if s.MaxPerUser <= 0 {
		s.MaxPerUser = defaultMaxPerUser
	}
	orDefault(&s.Duration, defaultSessionDuration)
	orDefault(&s.InactivityTimeout, defaultInactivity)
	orDefault(&s.SweepInterval, defaultSweepInterval)
	orDefault(&s.MaxMessageAge, defaultMaxMessageAge)
}

func (s *Session) validate() error {
	if s.InactivityTimeout.Duration > s.Duration.Duration {
		return errors.New("config: Session: InactivityTimeout exceeds Duration")
	}
	return nil
}

// Monitor configures sampling, retention and alert thresholds.
type Monitor struct {
	CheckInterval          Duration
	RetentionPeriod        Duration
	RetentionSweepInterval Duration

	FailedLoginThreshold   uint64
	FailedRequestThreshold uint64
	ConnectionThreshold    int
	MemoryThreshold        float64
	CPUThreshold           float64
}

func (m *Monitor) applyDefaults() {
	orDefault(&m.CheckInterval, defaultCheckInterval)
	orDefault(&m.RetentionPeriod, defaultRetention)
	orDefault(&m.RetentionSweepInterval, defaultRetentionInterval)
	if m.FailedLoginThreshold == 0 {
		m.FailedLoginThreshold = defaultFailedLogins
	}
	if m.FailedRequestThreshold == 0 {
		m.FailedRequestThreshold = defaultFailedRequests
	}
	if m.ConnectionThreshold <= 0 {
		m.ConnectionThreshold = defaultConnections
	}
	if m.MemoryThreshold <= 0 {
		m.MemoryThreshold = defaultMemoryFraction
	}
	if m.CPUThreshold <= 0 {
		m.CPUThreshold = defaultCPUFraction
	}
}

func (m *Monitor) validate() error {
	if m.MemoryThreshold > 1 || m.CPUThreshold > 1 {
		return errors.New("config: Monitor: resource thresholds are fractions in (0, 1]")
	}
	return nil
}

// Identity configures accounts, tokens and the relay signing key.
type Identity struct {
	// TokenSecret signs bearer tokens. Empty means a random per-process secret.
	TokenSecret string
	TokenTTL    Duration
	// KeyFile is the sealed relay signing key, relative to DataDir if not absolute.
	KeyFile string
	// Database is the bbolt file, relative to DataDir if not absolute.
	Database string
}

func (i *Identity) applyDefaults(dataDir string) {
	orDefault(&i.TokenTTL, defaultTokenTTL)
	if i.KeyFile == "" {
		i.KeyFile = defaultKeyFile
	}
	if i.Database == "" {
		i.Database = defaultDatabase
	}
	if !filepath.IsAbs(i.KeyFile) {
		i.KeyFile = filepath.Join(dataDir, i.KeyFile)
	}
	if !filepath.IsAbs(i.Database) {
		i.Database = filepath.Join(dataDir, i.Database)
	}
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool
	// File specifies the log file, if omitted stdout will be used.
	File string
	// Level specifies the log level.
	Level string
}

func (l *Logging) validate() error {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	_, err := log.LevelFromString(l.Level)
	return err
}

// Config is the top level relay configuration.
type Config struct {
	Server    *Server
	Admission *Admission
	Session   *Session
	Monitor   *Monitor
	Identity  *Identity
	Logging   *Logging
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Admission == nil {
		cfg.Admission = &Admission{}
	}
	if cfg.Session == nil {
		cfg.Session = &Session{}
	}
	if cfg.Monitor == nil {
		cfg.Monitor = &Monitor{}
	}
	if cfg.Identity == nil {
		cfg.Identity = &Identity{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}

	cfg.Server.applyDefaults()
	cfg.Admission.applyDefaults()
	cfg.Session.applyDefaults()
	cfg.Monitor.applyDefaults()
	cfg.Identity.applyDefaults(cfg.Server.DataDir)

	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Session.validate(); err != nil {
		return err
	}
	if err := cfg.Monitor.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load parses the provided buffer b as a config file body, applies
// environment overrides, and returns the validated Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: no nil buffer as config file")
	}
	cfg := new(Config)
	if _, err := toml.Decode(string(b), cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file. An empty path
// yields the defaults plus environment overrides.
func LoadFile(f string) (*Config, error) {
	if f == "" {
		return Load([]byte{})
	}
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// applyEnv overlays CIPHERLINE_* variables onto cfg. Sections are created
// as needed; defaults are applied afterwards.
func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Identity == nil {
		cfg.Identity = &Identity{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Admission == nil {
		cfg.Admission = &Admission{}
	}

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("ADDRESS", &cfg.Server.Address)
	str("METRICS_ADDRESS", &cfg.Server.MetricsAddress)
	str("DATA_DIR", &cfg.Server.DataDir)
	str("TOKEN_SECRET", &cfg.Identity.TokenSecret)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FILE", &cfg.Logging.File)
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvPrefix + "MAX_CONNECTIONS_PER_ADDRESS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sMAX_CONNECTIONS_PER_ADDRESS: %v", EnvPrefix, err)
		}
		cfg.Admission.MaxConnectionsPerAddress = n
	}
	return nil
}
