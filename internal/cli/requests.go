package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/services-client/internal/backend"
	"github.com/nerrad567/services-client/internal/services"
)

func readyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check that the middleman answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, release, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if !svc.Ready(cmd.Context(), g.timeout) {
				return errors.New("middleman did not answer")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ready")
			return nil
		},
	}
}

func logCmd(g *globals) *cobra.Command {
	var severity int

	c := &cobra.Command{
		Use:   "log <message>...",
		Short: "Send a log message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			return svc.SendLog(cmd.Context(), strings.Join(args, " "), severity, g.callOptions()...)
		},
	}

	c.Flags().IntVarP(&severity, "severity", "s", services.SeverityInfo, "0 error, 1 warning, 2 info, 3 debug")
	return c
}

func alarmCmd(g *globals) *cobra.Command {
	var level int

	c := &cobra.Command{
		Use:   "alarm <message>...",
		Short: "Raise an alarm and wait for it to be recorded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			return svc.SendAlarm(cmd.Context(), strings.Join(args, " "), level, g.callOptions()...)
		},
	}

	c.Flags().IntVarP(&level, "level", "l", 0, "alarm level")
	return c
}

func monitorCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <json>",
		Short: "Send a monitoring data object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			return svc.SendMonitoringData(cmd.Context(), args[0], g.callOptions()...)
		},
	}
}

func queryCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "query <database> <sql>",
		Short: "Run a SQL query on a middleman database and print each row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			rows, err := svc.SQLQuery(cmd.Context(), args[0], args[1], g.callOptions()...)
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Fprintln(cmd.OutOrStdout(), row)
			}
			return nil
		},
	}
}

// Config kinds accepted by get-config.
const (
	configCalibration = "calibration"
	configDevice      = "device"
	configRun         = "run"
	configRunDevice   = "run-device"
)

func getConfigCmd(g *globals) *cobra.Command {
	var (
		name    string
		id      int
		version int
	)

	c := &cobra.Command{
		Use:       "get-config <calibration|device|run|run-device>",
		Short:     "Fetch a stored configuration",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{configCalibration, configDevice, configRun, configRunDevice},
		RunE: func(cmd *cobra.Command, args []string) error {
			if (args[0] == configRun || args[0] == configRunDevice) && name == "" && id < 0 {
				return fmt.Errorf("%s needs --name or --id", args[0])
			}

			svc, release, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			opts := g.callOptions(services.WithVersion(version))
			var out string
			switch args[0] {
			case configCalibration:
				out, err = svc.GetCalibrationData(ctx, opts...)
			case configDevice:
				out, err = svc.GetDeviceConfig(ctx, opts...)
			case configRun:
				if name != "" {
					out, err = svc.GetRunConfigByName(ctx, name, opts...)
				} else {
					out, err = svc.GetRunConfig(ctx, id, opts...)
				}
			case configRunDevice:
				var v int
				if name != "" {
					out, v, err = svc.GetRunDeviceConfigByName(ctx, name, opts...)
				} else {
					out, v, err = svc.GetRunDeviceConfig(ctx, id, opts...)
				}
				if err == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "device config version %d\n", v)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "run configuration name")
	c.Flags().IntVar(&id, "id", -1, "run configuration ID")
	c.Flags().IntVar(&version, "version", backend.LatestVersion, "stored version (default latest)")
	return c
}

func plotCmd(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "plot",
		Short: "Fetch stored plots",
	}

	c.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Print a stored plot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			plot, err := svc.GetPlot(cmd.Context(), args[0], g.callOptions()...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plot)
		},
	})
	return c
}
