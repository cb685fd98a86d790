package main

import (
	"context"
	"eegrecords/internal/core"
	"eegrecords/pkg/domain"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Create and delete EEG sessions",
	}
	cmd.AddCommand(newSessionsCreateCmd(root), newSessionsDeleteCmd(root))
	return cmd
}

func newSessionsCreateCmd(root *rootOptions) *cobra.Command {
	var (
		patientID  string
		start      string
		duration   int
		technician string
		conclusion string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session for a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startedAt, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				s, _, err := a.svc.CreateSession(ctx, core.Session{
					PatientID:       patientID,
					StartedAt:       startedAt,
					DurationMinutes: duration,
					Technician:      technician,
					Conclusion:      conclusion,
				})
				if err != nil {
					return err
				}
				if root.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), s)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Created session %s\n", successMark, dimStyle.Render(s.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&patientID, "patient", "", "Owning patient ID")
	cmd.Flags().StringVar(&start, "start", "", "Start instant (RFC 3339)")
	cmd.Flags().IntVar(&duration, "duration", domain.DefaultSessionDurationMinutes, "Duration in minutes")
	cmd.Flags().StringVar(&technician, "technician", "", "Technician name")
	cmd.Flags().StringVar(&conclusion, "conclusion", "", "Conclusion")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("technician")
	return cmd
}

func newSessionsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session with its files and analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.svc.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted session %s\n", successMark, args[0])
				return nil
			})
		},
	}
}
