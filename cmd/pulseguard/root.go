package main

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/pulseguard/pkg/config"
)

// Version is set at build time.
var Version = "dev"

const defaultConfigPath = "pulseguard.yaml"

type app struct {
	configPath string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

// NewRootCommand builds the CLI wired to the process streams.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "pulseguard",
		Short:         "Encrypted heart-rate ingestion with isolation-forest outlier detection",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "path to the session configuration")

	cmd.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newSealCmd(a),
		newPortsCmd(a),
	)

	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath == "" {
		return nil, errors.New("--config is required")
	}
	return config.Load(a.configPath)
}
