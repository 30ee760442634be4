package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherline/internal/client"
	"cipherline/internal/crypto"
	"cipherline/internal/domain"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print your signing key fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			priv, err := signingKey(domain.Username(username))
			if err != nil {
				return err
			}
			pub := priv.Public()
			crypto.Wipe(priv[:])
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(pub))
			return nil
		},
	}
}

// keyCmd fetches another user's key so it can be compared out of band.
func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <user-id>",
		Short: "Fetch a user's registered signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile()
			if err != nil {
				return err
			}
			pub, err := client.NewHTTP(p.Relay).FetchKey(p.Token, domain.UserID(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("Key: %s\nFingerprint: %s\n", crypto.B64(pub[:]), crypto.Fingerprint(pub))
			return nil
		},
	}
}
