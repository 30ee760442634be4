package commands

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"cipherline/internal/domain"
	"cipherline/internal/protocol/frame"
)

// send <user-id> <message>: seal and send one message over a fresh connection.
func sendCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "send <user-id> <message>",
		Short: "Seal and send a message to a connected user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile()
			if err != nil {
				return err
			}
			c, err := connect(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Send(domain.UserID(args[0]), []byte(args[1])); err != nil {
				return err
			}

			// The relay only answers a message when it could not be relayed.
			_ = c.SetReadDeadline(time.Now().Add(wait))
			f, err := c.Next()
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				fmt.Println("sent")
				return nil
			case err != nil:
				return err
			}
			if e, ok := f.(frame.Error); ok {
				return e
			}
			fmt.Println("sent")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to wait for a delivery error")
	return cmd
}
