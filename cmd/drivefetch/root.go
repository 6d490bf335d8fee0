package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iconidentify/drivestream/internal/api"
	"github.com/iconidentify/drivestream/internal/config"
	"github.com/iconidentify/drivestream/internal/engine"
)

// app carries flags shared by all subcommands and the lazily built engine.
type app struct {
	configPath string
	verbose    bool

	engine *engine.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "drivefetch",
		Short:         "Resolve and download shared drive files",
		Long:          `Resolves a file identifier to its byte stream the way the drivestream server does, trying each known download URL and following interstitial pages.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every probe to stderr")

	root.AddCommand(
		newGetCmd(a),
		newCandidatesCmd(a),
		newLinksCmd(a),
		newVersionCmd(),
	)
	return root
}

// load builds the engine on first use.
func (a *app) load(cmd *cobra.Command) (*engine.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	eng, err := engine.New(cfg, nil, api.StreamPath, logger)
	if err != nil {
		return nil, err
	}
	a.engine = eng
	return eng, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "drivefetch %s (built %s)\n", Version, BuildTime)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
