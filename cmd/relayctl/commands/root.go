package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cipherline/internal/client"
	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/store"
)

var (
	home       string
	passphrase string
	relayURL   string
	username   string

	profiles *store.ProfileFileStore
)

func Execute() error {
	root := &cobra.Command{
		Use:          "relayctl",
		Short:        "Client for the cipherline relay",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".cipherline")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			profiles = store.NewProfileFileStore(home)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.cipherline)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting your signing key")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "your username")

	root.AddCommand(registerCmd(), loginCmd(), fingerprintCmd(), keyCmd(), sendCmd(), listenCmd())
	return root.Execute()
}

func keyStore(u domain.Username) *store.KeyFileStore {
	return store.NewKeyFileStore(store.SigningKeyPath(home, u), crypto.DefaultKDFParams())
}

// profile loads the stored profile for --username, letting --relay
// override the remembered URL.
func profile() (store.Profile, error) {
	if username == "" {
		return store.Profile{}, fmt.Errorf("--username required")
	}
	p, ok, err := profiles.LoadProfile(domain.Username(username))
	if err != nil {
		return store.Profile{}, err
	}
	if !ok {
		return store.Profile{}, fmt.Errorf("no profile for %q; run register first", username)
	}
	if relayURL != "" {
		p.Relay = relayURL
	}
	return p, nil
}

func signingKey(u domain.Username) (domain.Ed25519Private, error) {
	if passphrase == "" {
		return domain.Ed25519Private{}, fmt.Errorf("passphrase required (-p)")
	}
	return keyStore(u).LoadRelayKey(passphrase)
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// connect dials the relay, authenticates and agrees a session key.
func connect(ctx context.Context, p store.Profile) (*client.Conn, error) {
	if p.Token == "" {
		return nil, fmt.Errorf("not logged in; run login first")
	}
	signer, err := signingKey(p.Username)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := client.Dial(dctx, wsURL(p.Relay), signer)
	crypto.Wipe(signer[:])
	if err != nil {
		return nil, err
	}
	if err := c.Authenticate(p.Token); err != nil {
		c.Close()
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	if err := c.KeyExchange(); err != nil {
		c.Close()
		return nil, fmt.Errorf("key exchange: %w", err)
	}
	return c, nil
}
