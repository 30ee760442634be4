package app

import (
	"cipherline/internal/config"
	"cipherline/internal/crypto"
	"cipherline/internal/log"
	"cipherline/internal/monitor"
)

// Options holds runtime wiring inputs that do not belong in the config file.
type Options struct {
	Config *config.Config
	// Passphrase unlocks (or creates) the relay signing key file.
	Passphrase string
	// KDF overrides the key-file scrypt cost. Zero means the default.
	KDF crypto.KDFParams
	// Logs overrides the backend built from Config.Logging.
	Logs *log.Backend
	// Resources overrides the process sampler; tests pass a fake.
	Resources monitor.ResourceSampler
}

func (o *Options) kdf() crypto.KDFParams {
	if o.KDF == (crypto.KDFParams{}) {
		return crypto.DefaultKDFParams()
	}
	return o.KDF
}
