package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lllypuk/aduser/internal/config"
)

// app carries the process streams and the loaded configuration shared by all
// subcommands.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:               "aduser",
		Short:             "Update directory user records",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "",
		"config file (default: configs/config.yaml, config.yaml or /etc/aduser/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newUpdateCommand(a),
		newServeCommand(a),
		newAuditCommand(a),
	)

	return root
}

func (a *app) load(_ *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader().Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	a.cfg = cfg
	a.logger = setupLogger(cfg, a.errOut)
	return nil
}
