package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherline/internal/client"
	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/store"
)

func registerCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a signing key and register it with the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if relayURL == "" {
				return fmt.Errorf("no relay configured. use --relay")
			}
			u := domain.Username(args[0])

			// Reuse an existing key so re-registering elsewhere keeps one identity.
			priv, created, err := keyStore(u).LoadOrCreate(passphrase)
			if err != nil {
				return err
			}
			pub := priv.Public()
			crypto.Wipe(priv[:])

			id, err := client.NewHTTP(relayURL).Register(u.String(), password, pub)
			if err != nil {
				return err
			}
			if err := profiles.SaveProfile(store.Profile{Relay: relayURL, Username: u, UserID: id}); err != nil {
				return err
			}

			if created {
				fmt.Println("Generated a new signing key.")
			}
			fmt.Printf("Registered %s as %s\nFingerprint: %s\n", u, id, crypto.Fingerprint(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile()
			if err != nil {
				return err
			}
			token, id, err := client.NewHTTP(p.Relay).Login(p.Username.String(), password)
			if err != nil {
				return err
			}
			p.Token, p.UserID = token, id
			if err := profiles.SaveProfile(p); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", p.Username, p.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
