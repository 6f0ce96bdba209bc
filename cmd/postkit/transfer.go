package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eringen/postkit"
	"github.com/eringen/postkit/archive"
)

func exportCmd() *cobra.Command {
	var out string
	var noAssets bool
	cmd := &cobra.Command{
		Use:   "export <identifier>...",
		Short: "Export posts into a zip archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			arc, err := app.ExportArchive(ctx, args, !noAssets)
			if err != nil {
				return err
			}
			if out == "" {
				out = "posts-export.zip"
				if len(args) == 1 {
					out = args[0] + "-export.zip"
				}
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			n, err := arc.WriteTo(f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger().WithField("file", out).WithField("entries", arc.Len()).WithField("bytes", n).Info("exported")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().BoolVar(&noAssets, "no-assets", false, "leave media out of the archive")
	return cmd
}

func importCmd() *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "import <file.zip|file.json>",
		Short: "Import posts from an archive or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.ImportFile(ctx, owner, data, func(p archive.Progress) {
				logger().WithField("post", p.Name).WithField("step", p.Step).Debugf("%d/%d", p.Index+1, p.Total)
			})
			if res != nil {
				for _, imp := range res.Posts {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d assets\n", imp.Row.ID, imp.Row.Slug, len(imp.Assets))
				}
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", postkit.AdminUserID, "user id that owns the imported posts")
	return cmd
}
