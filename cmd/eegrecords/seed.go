package main

import (
	"context"
	"eegrecords/internal/core"
	"eegrecords/internal/seedfile"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const seedLongDesc string = `Create or update patients and sessions from a seed batch.

The batch commits atomically. Every session gets exactly one placeholder
result file. Running the same batch again on the same day updates the
existing records instead of creating new ones.

Examples:
  eegrecords seed --demo
  eegrecords seed --file patients.yaml
  eegrecords seed demo-file demo.toml`

const seedShortDesc string = "Seed patients and sessions"

type seedCommander struct {
	root *rootOptions
	file string
	demo bool
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	cmder := &seedCommander{root: root}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "Seed batch file (yaml, json or toml)")
	cmd.Flags().BoolVarP(&cmder.demo, "demo", "m", false, "Seed the built-in demo batch")
	cmd.MarkFlagsMutuallyExclusive("file", "demo")
	cmd.AddCommand(newSeedDemoFileCmd())
	return cmd
}

func (c *seedCommander) specs() ([]core.PatientSpec, error) {
	switch {
	case c.demo:
		return seedfile.Demo(), nil
	case c.file != "":
		return seedfile.Load(c.file)
	default:
		return nil, errors.New("nothing to seed: pass --file or --demo")
	}
}

func (c *seedCommander) run(cmd *cobra.Command) error {
	specs, err := c.specs()
	if err != nil {
		return err
	}
	return c.root.withApp(cmd, func(ctx context.Context, a *app) error {
		report, err := a.svc.Seed(ctx, specs)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if c.root.jsonOutput() {
			return writeJSON(out, map[string]int{
				"patients_affected": report.PatientsAffected(),
				"sessions_affected": report.SessionsAffected(),
				"files_created":     report.FilesCreated,
			})
		}
		fmt.Fprintf(out, "%s Patients created/updated: %s %s\n", successMark,
			nameStyle.Render(fmt.Sprint(report.PatientsAffected())),
			dimStyle.Render(fmt.Sprintf("(%d new)", report.PatientsCreated)))
		fmt.Fprintf(out, "%s Sessions created/updated: %s %s\n", successMark,
			nameStyle.Render(fmt.Sprint(report.SessionsAffected())),
			dimStyle.Render(fmt.Sprintf("(%d new)", report.SessionsCreated)))
		fmt.Fprintf(out, "%s Files created: %s\n", successMark, nameStyle.Render(fmt.Sprint(report.FilesCreated)))
		return nil
	})
}

func newSeedDemoFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo-file <path>",
		Short: "Write the built-in demo batch to a seed file",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := seedfile.FormatOf(args[0])
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := seedfile.Encode(f, format, seedfile.Demo()); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", successMark, args[0])
			return nil
		},
	}
}
