package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSummaryCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show record totals and the latest sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				sum, err := a.svc.Summary(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if root.jsonOutput() {
					return writeJSON(out, sum)
				}
				fmt.Fprintf(out, "Patients: %s  Sessions: %s  Files: %s  Analyses: %s\n",
					nameStyle.Render(fmt.Sprint(sum.Patients)),
					nameStyle.Render(fmt.Sprint(sum.Sessions)),
					nameStyle.Render(fmt.Sprint(sum.ResultFiles)),
					nameStyle.Render(fmt.Sprint(sum.AnalysisResults)))
				if len(sum.Latest) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(sum.Latest))
				for _, s := range sum.Latest {
					rows = append(rows, []string{s.StartedAt.Format("2006-01-02 15:04"), s.PatientName, s.Technician, s.Conclusion})
				}
				return renderTable(out, []string{"START", "PATIENT", "TECHNICIAN", "CONCLUSION"}, rows)
			})
		},
	}
}
