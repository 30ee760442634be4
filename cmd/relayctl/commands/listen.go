package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"cipherline/internal/protocol/frame"
)

// listen: stay connected and print every delivered message until interrupted.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print messages as they are delivered",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := profile()
			if err != nil {
				return err
			}
			c, err := connect(ctx, p)
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				c.Close()
			}()
			fmt.Printf("Listening as %s (session %s)\n", c.UserID(), c.SessionID())

			for {
				m, err := c.Receive()
				var fe frame.Error
				switch {
				case err == nil:
					fmt.Printf("[%s %s] %s\n", m.SentAt.Format("15:04:05"), m.From, m.Plaintext)
				case errors.As(err, &fe):
					fmt.Fprintf(os.Stderr, "relay: %v\n", fe)
				case ctx.Err() != nil:
					return nil
				case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
					fmt.Println("Connection closed by relay")
					return nil
				default:
					return err
				}
			}
		},
	}
}
