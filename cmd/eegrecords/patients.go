package main

import (
	"context"
	"eegrecords/internal/core"
	"eegrecords/pkg/domain"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPatientsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patients",
		Aliases: []string{"patient"},
		Short:   "List, show, create and delete patients",
	}
	cmd.AddCommand(
		newPatientsListCmd(root),
		newPatientsShowCmd(root),
		newPatientsCreateCmd(root),
		newPatientsDeleteCmd(root),
	)
	return cmd
}

func newPatientsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List patients by name with their session counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				patients, err := a.svc.ListPatients(ctx)
				if err != nil {
					return err
				}
				if root.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), patients)
				}
				rows := make([][]string, 0, len(patients))
				for _, p := range patients {
					rows = append(rows, []string{p.ID, p.FullName, p.BirthDate.Format("2006-01-02"), strconv.Itoa(p.SessionCount)})
				}
				return renderTable(cmd.OutOrStdout(), []string{"ID", "NAME", "BIRTH DATE", "SESSIONS"}, rows)
			})
		},
	}
}

func newPatientsShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <patient-id>",
		Short: "Show a patient with sessions, files and analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := a.svc.GetPatientWithSessions(ctx, args[0])
				if err != nil {
					return err
				}
				if root.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), rec)
				}
				return printPatientRecord(cmd, rec)
			})
		},
	}
}

func printPatientRecord(cmd *cobra.Command, rec core.PatientRecord) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", nameStyle.Render(rec.FullName), dimStyle.Render(rec.ID))
	fmt.Fprintf(out, "  born %s", rec.BirthDate.Format("2006-01-02"))
	if rec.ContactInfo != "" {
		fmt.Fprintf(out, ", %s", rec.ContactInfo)
	}
	fmt.Fprintln(out)
	for _, s := range rec.Sessions {
		fmt.Fprintf(out, "\n  %s %s, %d min, %s\n", nameStyle.Render(s.StartedAt.Format("2006-01-02 15:04")),
			dimStyle.Render(s.ID), s.DurationMinutes, s.Technician)
		if s.Conclusion != "" {
			fmt.Fprintf(out, "    %s\n", s.Conclusion)
		}
		for _, f := range s.Files {
			marker := ""
			if f.IsPlaceholder {
				marker = dimStyle.Render(" (placeholder)")
			}
			fmt.Fprintf(out, "    file %s %s%s\n", f.File.Name, dimStyle.Render(f.ID), marker)
		}
		for _, a := range s.Analyses {
			fmt.Fprintf(out, "    %s: %s (%.2f) %s\n", a.ModelName, a.EmotionLabel.DisplayName(), a.Confidence, dimStyle.Render(a.ID))
		}
	}
	return nil
}

func newPatientsCreateCmd(root *rootOptions) *cobra.Command {
	var name, birth, contact string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			birthDate, err := domain.ParseDate(birth)
			if err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				p, _, err := a.svc.CreatePatient(ctx, core.Patient{FullName: name, BirthDate: birthDate, ContactInfo: contact})
				if err != nil {
					return err
				}
				if root.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), p)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Created patient %s %s\n", successMark, nameStyle.Render(p.FullName), dimStyle.Render(p.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&birth, "birth-date", "", "Birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&contact, "contact", "", "Contact information")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("birth-date")
	return cmd
}

func newPatientsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <patient-id>",
		Short: "Delete a patient with all sessions, files and analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.svc.DeletePatient(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted patient %s\n", successMark, args[0])
				return nil
			})
		},
	}
}
