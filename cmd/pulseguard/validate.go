package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hed1ad/pulseguard/pkg/io/serial"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the session it describes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			w := a.stdout
			fmt.Fprintf(w, "config %s ok\n", a.configPath)
			fmt.Fprintf(w, "  session:   warm-up %s, baseline %s, tick %s\n",
				cfg.Session.Warmup, cfg.Session.Baseline, cfg.Session.TickInterval)
			fmt.Fprintf(w, "  crypto:    %s, fixed nonce\n", cfg.Crypto.Algorithm)
			fmt.Fprintf(w, "  model:     %d trees, contamination %g, min %d samples\n",
				cfg.Model.Trees, cfg.Model.Contamination, cfg.Model.MinSamples)
			fmt.Fprintf(w, "  source:    %s %s\n", cfg.Source.Type, cfg.Source.Path)
			if cfg.Metrics.Enabled || cfg.Telemetry.Websocket {
				fmt.Fprintf(w, "  telemetry: %s (metrics %t, websocket %t)\n",
					cfg.Metrics.Addr, cfg.Metrics.Enabled, cfg.Telemetry.Websocket)
			}
			return nil
		},
	}
}

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := serial.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(a.stdout, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(a.stdout, p)
			}
			return nil
		},
	}
}
