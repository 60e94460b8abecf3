package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datamakelaar/internal/core"
)

var errObjectsFailed = errors.New("some objects were not saved")

func newImportCmd(c *cli) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "import <dataset> <file.xlsx>",
		Short: "Validate a workbook and write its rows to the object API",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch mode {
			case "":
			case string(core.WriteUpdate), string(core.WriteUpsert):
				c.cfg.API.WriteMode = mode
			default:
				return fmt.Errorf("invalid --mode %q: must be update or upsert", mode)
			}
			app, err := c.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := app.Service.Import(cmd.Context(), args[0], f, logProgress(c.logger))
			if err != nil {
				var valErr *core.ValidationFailedError
				if errors.As(err, &valErr) {
					printValidationErrors(cmd.OutOrStdout(), valErr.Errors)
				}
				return describe(err)
			}

			out := cmd.OutOrStdout()
			report := result.Report
			for _, res := range report.Failures() {
				fmt.Fprintf(out, "%s: %s\n", res.Identifier, res.Message)
			}
			fmt.Fprintf(out, "%d objects: %d saved, %d failed\n", report.Total, report.Succeeded, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%w: %d of %d", errObjectsFailed, report.Failed, report.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "write mode: update (PUT) or upsert (POST); overrides VIP_WRITE_MODE")
	return cmd
}
