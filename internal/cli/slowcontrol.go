package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/services-client/internal/services"
)

func slowControlCmd(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:     "sc",
		Aliases: []string{"slowcontrol"},
		Short:   "Read and change another service's slow-control variables",
	}

	c.AddCommand(
		&cobra.Command{
			Use:   "list <service>",
			Short: "List a service's variables",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := g.slowControl(cmd, args[0], services.SlowControlRequest{Command: services.CommandList})
				if err != nil {
					return err
				}
				if len(resp.Variables) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "(no variables)")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tTYPE\tVALUE")
				for _, v := range resp.Variables {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Name, v.Type, v.Value)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "get <service> <variable>",
			Short: "Read a variable",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := g.slowControl(cmd, args[0], services.SlowControlRequest{Command: services.CommandGet, Name: args[1]})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <service> <variable> <value>",
			Short: "Change a variable and print the stored value",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := g.slowControl(cmd, args[0], services.SlowControlRequest{Command: services.CommandSet, Name: args[1], Value: args[2]})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Value)
				return nil
			},
		},
	)
	return c
}

func (g *globals) slowControl(cmd *cobra.Command, service string, req services.SlowControlRequest) (services.SlowControlResponse, error) {
	svc, release, err := g.connect(cmd.Context())
	if err != nil {
		return services.SlowControlResponse{}, err
	}
	defer release()

	return svc.RemoteSlowControl(cmd.Context(), service, req, services.WithTimeout(g.timeout))
}
