package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/export"
	"github.com/joseph-ayodele/claims-review/internal/review"
	"github.com/joseph-ayodele/claims-review/internal/validate"
)

func newListCmd(a *app) *cobra.Command {
	var committed bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records awaiting review (or committed records with --committed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := a.store.ListPending
			if committed {
				list = a.store.ListCommitted
			}
			ids, err := list(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				marker := " "
				if !committed && a.store.HasPDF(id) {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, id)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d record(s)\n", len(ids))
			return nil
		},
	}
	cmd.Flags().BoolVar(&committed, "committed", false, "list the output directory instead of fails")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a pending record in its canonical form, or one field with --field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if field != "" {
				session := review.NewSession(a.store, a.logger)
				if err := session.Open(cmd.Context(), args[0]); err != nil {
					return err
				}
				v, ok := session.Value(field)
				if !ok {
					return fmt.Errorf("%w: %s has no field %q", review.ErrInvalidField, args[0], field)
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}
			rec, err := a.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := rec.Encode()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&field, "field", "f", "", "print only this field path (e.g. line_items.0.cleaned_charge)")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Validate a pending record without committing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := validate.PrepareForCommit(*rec)
			out := cmd.OutOrStdout()
			var mismatch *validate.TotalMismatchError
			switch {
			case errors.As(err, &mismatch):
				fmt.Fprintf(out, "FAIL %s: total %s, line items %s (off by %s, tolerance %s)\n",
					args[0], validate.FormatAmount(mismatch.Expected), validate.FormatAmount(mismatch.Actual),
					validate.FormatAmount(mismatch.Difference()), validate.FormatAmount(validate.Tolerance))
				return err
			case err != nil:
				fmt.Fprintf(out, "FAIL %s: %v\n", args[0], err)
				return err
			}
			fmt.Fprintf(out, "OK   %s: total %s, line items %s (%d)\n",
				args[0], validate.FormatAmount(res.Total), validate.FormatAmount(res.LineTotal), len(res.Record.LineItems))
			if len(res.ClearedDates) > 0 {
				fmt.Fprintf(out, "     unparseable dates will be cleared: %s\n", strings.Join(res.ClearedDates, ", "))
			}
			return nil
		},
	}
}

func newCommitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "commit <id>",
		Short: "Validate and commit a pending record as-is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session := review.NewSession(a.store, a.logger, review.WithPublisher(a.publisher))
			if err := session.Open(ctx, args[0]); err != nil {
				return err
			}
			if err := session.Save(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.Snapshot().Notice.Message)
			return nil
		},
	}
}

func newRenderCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:       "render <id> <region>",
		Short:     "Render a region of a record's source PDF to PNG",
		Args:      cobra.ExactArgs(2),
		ValidArgs: constants.RegionsAsStringSlice(),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, region := args[0], args[1]
			if !a.store.HasPDF(id) {
				return fmt.Errorf("no source document for %s in %s", id, a.store.Dirs().PDFs)
			}
			img, err := a.extractor().RenderRegion(cmd.Context(), a.store.PDFPath(id), region)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("%s_%s.png", id, region)
			}
			if err := os.WriteFile(out, img, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(img))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output PNG path (default <id>_<region>.png)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Package every committed record into a zip archive, then clear the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				out = filepath.Join(a.cfg.Queue.DataDir, "export.zip")
			}
			tmp, err := os.CreateTemp(filepath.Dir(out), ".export-*.zip")
			if err != nil {
				return err
			}
			keep := false
			defer func() {
				if !keep {
					_ = os.Remove(tmp.Name())
				}
			}()

			ctx := cmd.Context()
			svc := export.NewService(a.store, a.publisher, a.logger)
			batch, err := svc.Build(ctx)
			if err != nil {
				_ = tmp.Close()
				return err
			}
			_, err = tmp.Write(batch.Archive)
			if cerr := tmp.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if err := os.Rename(tmp.Name(), out); err != nil {
				keep = true
				return fmt.Errorf("could not move archive into place (kept at %s, output directory not cleared): %w", tmp.Name(), err)
			}

			sum, err := svc.Clear(ctx, batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d record(s) to %s (batch %s)\n", len(batch.RecordIDs), out, batch.ID)
			if len(sum.Leftover) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "not cleared: %s\n", strings.Join(sum.Leftover, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "archive path (default <data-dir>/export.zip)")
	return cmd
}
