package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cipherline/internal/app"
	"cipherline/internal/config"
	"cipherline/internal/crypto"
	"cipherline/internal/store"
)

const passphraseEnv = config.EnvPrefix + "KEY_PASSPHRASE"

var (
	configFile string
	address    string
	passphrase string
)

func main() {
	root := &cobra.Command{
		Use:          "relayd",
		Short:        "cipherline relay server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "f", "", "path to TOML config file")
	root.PersistentFlags().StringVar(&passphrase, "passphrase", "", "relay key passphrase (or $"+passphraseEnv+")")
	root.AddCommand(serveCmd(), genkeyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	pass := passphrase
	if pass == "" {
		pass = os.Getenv(passphraseEnv)
	}
	if pass == "" {
		return nil, "", fmt.Errorf("relay key passphrase required (--passphrase or $%s)", passphraseEnv)
	}
	return cfg, pass, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pass, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			a, err := app.New(app.Options{Config: cfg, Passphrase: pass})
			if err != nil {
				return err
			}
			if err := a.Start(); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer signal.Stop(sigCh)
			for sig := range sigCh {
				if sig == syscall.SIGHUP {
					if err := a.Logs.Rotate(); err != nil {
						fmt.Fprintf(os.Stderr, "relayd: log rotation failed: %v\n", err)
					}
					continue
				}
				break
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err = a.Shutdown(ctx)
			_ = a.Logs.Close()
			return err
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "override Server.Address")
	return cmd
}

// genkeyCmd creates the sealed relay key ahead of the first serve.
func genkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Create the relay signing key if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pass, err := loadConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
				return err
			}
			ks := store.NewKeyFileStore(cfg.Identity.KeyFile, crypto.DefaultKDFParams())
			key, created, err := ks.LoadOrCreate(pass)
			if err != nil {
				return err
			}
			pub := key.Public()
			crypto.Wipe(key[:])
			if created {
				fmt.Printf("Created %s\n", cfg.Identity.KeyFile)
			} else {
				fmt.Printf("Using existing %s\n", cfg.Identity.KeyFile)
			}
			fmt.Printf("Relay key: %s\nFingerprint: %s\n", crypto.B64(pub[:]), crypto.Fingerprint(pub))
			return nil
		},
	}
}
