package main

import (
	"context"
	"eegrecords/internal/config"
	"fmt"

	"github.com/spf13/cobra"
)

const rootLongDesc string = `eegrecords keeps EEG examination records.

Storage and logging come from (highest precedence first) flags,
EEGRECORDS_* environment variables, an optional config file and built-in
defaults.

Examples:
  eegrecords seed --demo
  eegrecords seed --file patients.yaml
  eegrecords patients list
  eegrecords summary -o json`

const rootShortDesc string = "EEG examination records"

type rootOptions struct {
	configFile string
	envFile    string
	output     string

	cfg config.Config
}

// NewRootCmd assembles the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "eegrecords",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment variables from this dotenv file")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format (text, json)")
	config.AddPersistentFlags(cmd, config.Flags)

	cmd.AddCommand(
		newSeedCmd(opts),
		newPatientsCmd(opts),
		newSessionsCmd(opts),
		newFilesCmd(opts),
		newAnalysesCmd(opts),
		newSummaryCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	switch o.output {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", o.output)
	}
	v, err := config.NewViper(config.Options{ConfigFile: o.configFile, EnvFile: o.envFile})
	if err != nil {
		return err
	}
	if err := config.BindFlags(v, cmd.Flags(), config.Flags); err != nil {
		return err
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// withApp opens the configured backends, runs fn and releases them again.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, o.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}
