package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datamakelaar/internal/core"
)

type exportOptions struct {
	filters []string
	output  string
}

func newExportCmd(c *cli) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export <dataset>",
		Short: "Download a dataset into an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			dataset := args[0]
			var buf bytes.Buffer
			result, err := app.Service.Export(cmd.Context(), dataset, opts.filters, &buf, logProgress(c.logger))
			if err != nil {
				return describe(err)
			}

			output := opts.output
			if output == "" {
				output = result.FileName
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows of %s to %s\n", result.Rows, dataset, output)
			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.filters, "filter", nil, "filter values (e.g. cluster codes); repeat or comma-separate")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file, - for stdout (default <dataset>.xlsx)")
	return cmd
}

// logProgress reports service progress through the logger.
func logProgress(logger *slog.Logger) core.ProgressFunc {
	return func(e core.ProgressEvent) {
		args := []any{"phase", e.Phase}
		if e.Total > 0 {
			args = append(args, "current", e.Current, "total", e.Total)
		}
		if e.Objects > 0 {
			args = append(args, "objects", e.Objects)
		}
		if e.Attempt > 0 {
			args = append(args, "attempt", e.Attempt)
		}
		if e.Error != "" {
			args = append(args, "error", e.Error)
		}
		logger.Info("progress", args...)
	}
}

// describe prefixes err with its user message and code.
func describe(err error) error {
	msg := core.MapError(err)
	return fmt.Errorf("%s [%s]: %w", msg.Message, msg.Code, err)
}
