package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datamakelaar/internal/core"
)

var errInvalidWorkbook = errors.New("workbook has validation errors")

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dataset> <file.xlsx>",
		Short: "Check a workbook against the dataset metadata without writing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			result, err := app.Service.Validate(cmd.Context(), args[0], f)
			if err != nil {
				return describe(err)
			}

			printValidationErrors(cmd.OutOrStdout(), result.Errors)
			if !result.Valid {
				return fmt.Errorf("%w: %d errors in %d rows", errInvalidWorkbook, len(result.Errors), result.Rows)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows OK\n", result.Rows)
			return nil
		},
	}
}

func printValidationErrors(w io.Writer, errs []core.ValidationError) {
	for _, e := range errs {
		fmt.Fprintln(w, e.String())
	}
}
