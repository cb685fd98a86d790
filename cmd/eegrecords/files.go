package main

import (
	"context"
	"eegrecords/internal/blob"
	"eegrecords/internal/core"
	"eegrecords/pkg/domain"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newFilesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "files",
		Aliases: []string{"file"},
		Short:   "Attach, fetch and delete result files and sweep orphan bytes",
	}
	cmd.AddCommand(newFilesAttachCmd(root), newFilesGetCmd(root), newFilesDeleteCmd(root), newFilesOrphansCmd(root))
	return cmd
}

func newFilesAttachCmd(root *rootOptions) *cobra.Command {
	var sessionID, description string
	cmd := &cobra.Command{
		Use:   "attach <path>",
		Short: "Attach a result file (edf, csv, txt) to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := filepath.Base(args[0])
			if err := domain.ValidateResultFileName(name); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				f, _, err := a.svc.AttachFile(ctx, sessionID, data, name, description)
				if err != nil {
					return err
				}
				if root.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), f)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Attached %s %s\n", successMark, nameStyle.Render(name), dimStyle.Render(f.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Owning session ID")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newFilesGetCmd(root *rootOptions) *cobra.Command {
	var (
		asURL  bool
		expiry time.Duration
	)
	cmd := &cobra.Command{
		Use:   "get <file-id>",
		Short: "Write the stored bytes of a result file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if asURL {
					u, err := a.svc.ResultFileURL(ctx, args[0], expiry)
					if err != nil {
						return err
					}
					if root.jsonOutput() {
						return writeJSON(cmd.OutOrStdout(), map[string]string{"id": args[0], "url": u})
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
					return err
				}
				f, err := a.svc.GetResultFile(ctx, args[0])
				if err != nil {
					return err
				}
				_, rc, err := a.svc.OpenFile(ctx, f.File)
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(cmd.OutOrStdout(), rc)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asURL, "url", false, "Print a download URL instead of the bytes")
	cmd.Flags().DurationVar(&expiry, "expires", core.DefaultURLExpiry, "Lifetime of the URL printed by --url")
	return cmd
}

func newFilesOrphansCmd(root *rootOptions) *cobra.Command {
	var (
		remove bool
		minAge time.Duration
	)
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List stored bytes no record references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				find := a.svc.FindOrphanFiles
				if remove {
					find = a.svc.RemoveOrphanFiles
				}
				orphans, err := find(ctx, minAge)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if root.jsonOutput() {
					if orphans == nil {
						orphans = []blob.Info{}
					}
					return writeJSON(out, orphans)
				}
				if len(orphans) == 0 {
					fmt.Fprintf(out, "%s No orphan files\n", successMark)
					return nil
				}
				rows := make([][]string, 0, len(orphans))
				for _, o := range orphans {
					rows = append(rows, []string{o.Key, fmt.Sprint(o.Size), o.LastModified.Format("2006-01-02 15:04")})
				}
				if err := renderTable(out, []string{"KEY", "BYTES", "MODIFIED"}, rows); err != nil {
					return err
				}
				if remove {
					fmt.Fprintf(out, "%s Removed %d orphan files\n", successMark, len(orphans))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Delete the orphan bytes")
	cmd.Flags().DurationVar(&minAge, "min-age", core.DefaultOrphanMinAge, "Skip bytes modified more recently than this")
	return cmd
}

func newFilesDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a result file and its stored bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.svc.DeleteResultFile(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted file %s\n", successMark, args[0])
				return nil
			})
		},
	}
}
