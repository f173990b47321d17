package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

func alertCmd(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "alert",
		Short: "Send or watch alerts",
	}

	c.AddCommand(
		&cobra.Command{
			Use:   "send <name> <payload>...",
			Short: "Publish an alert",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, release, err := g.connect(cmd.Context())
				if err != nil {
					return err
				}
				defer release()

				return svc.AlertSend(cmd.Context(), args[0], strings.Join(args[1:], " "))
			},
		},
		&cobra.Command{
			Use:   "watch <name>...",
			Short: "Print alerts until interrupted",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, release, err := g.connect(cmd.Context())
				if err != nil {
					return err
				}
				defer release()

				out := &lockedWriter{w: cmd.OutOrStdout()}
				for _, name := range args {
					if _, err := svc.AlertSubscribe(name, func(name, payload string) error {
						_, err := fmt.Fprintf(out, "%s\t%s\n", name, payload)
						return err
					}); err != nil {
						return err
					}
				}

				<-cmd.Context().Done()
				return nil
			},
		},
	)
	return c
}

// lockedWriter serialises writes from concurrent alert handlers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
