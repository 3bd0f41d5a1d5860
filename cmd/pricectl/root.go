package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backoffice-pricing/internal/obs"
)

var version = "dev"

type rootOptions struct {
	logFormat string
	logLevel  string
	logger    zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pricectl",
		Short:         "Price invoice drafts, unit conversions and contract liquidations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = obs.NewLogger(opts.logFormat, opts.logLevel).With().Str("component", cmd.Name()).Logger()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "log format (json or console)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(
		newQuoteCmd(opts),
		newUnitsCmd(opts),
		newSettleCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

func readJSONFile(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
