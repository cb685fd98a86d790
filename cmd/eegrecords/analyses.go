package main

import (
	"context"
	"eegrecords/internal/core"
	"eegrecords/pkg/domain"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newAnalysesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyses",
		Aliases: []string{"analysis"},
		Short:   "Attach and delete emotion analysis results",
	}
	cmd.AddCommand(newAnalysesAttachCmd(root), newAnalysesDeleteCmd(root))
	return cmd
}

func newAnalysesAttachCmd(root *rootOptions) *cobra.Command {
	var (
		in            core.AnalysisInput
		label         string
		metrics       string
		visualization string
	)
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach an analysis result to a session",
		Long: fmt.Sprintf(`Attach an externally computed emotion classification to a session.

Labels: %v
Visualizations: %v`, domain.EmotionLabels(), domain.VisualizationExtensions()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := domain.ParseEmotionLabel(label)
			if err != nil {
				return err
			}
			in.EmotionLabel = parsed
			if metrics != "" {
				if err := json.Unmarshal([]byte(metrics), &in.Metrics); err != nil {
					return fmt.Errorf("--metrics must be a JSON object: %w", err)
				}
			}
			if visualization != "" {
				data, err := os.ReadFile(visualization)
				if err != nil {
					return err
				}
				in.Visualization = &core.Upload{Name: filepath.Base(visualization), Data: data}
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				res, _, err := a.svc.AttachAnalysis(ctx, in)
				if err != nil {
					return err
				}
				if root.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Attached %s: %s %s\n", successMark,
					res.ModelName, nameStyle.Render(res.EmotionLabel.DisplayName()), dimStyle.Render(res.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.SessionID, "session", "", "Owning session ID")
	cmd.Flags().StringVar(&in.ModelName, "model", "", "Model name")
	cmd.Flags().StringVar(&label, "label", "", "Emotion label")
	cmd.Flags().Float64Var(&in.Confidence, "confidence", 0, "Confidence in [0, 1]")
	cmd.Flags().StringVar(&metrics, "metrics", "", "Extra metrics as a JSON object")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Notes")
	cmd.Flags().StringVar(&visualization, "visualization", "", "Visualization image or PDF to store")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func newAnalysesDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <analysis-id>",
		Short: "Delete an analysis result and its visualization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.svc.DeleteAnalysisResult(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted analysis %s\n", successMark, args[0])
				return nil
			})
		},
	}
}
