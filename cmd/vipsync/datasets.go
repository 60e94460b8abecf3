package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newDatasetsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List configured datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATASET\tOBJECT TYPE\tATTRIBUTES")
			for _, name := range app.Datasets.List() {
				ds, err := app.Datasets.Get(name)
				if err != nil {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", ds.Dataset, ds.ObjectType, len(ds.Attributes))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			problems := app.Datasets.Problems()
			files := lo.Keys(problems)
			sort.Strings(files)
			for _, file := range files {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", file, problems[file])
			}
			return nil
		},
	}
}

func newColumnsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <dataset>",
		Short: "Show the expected columns of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			cols, err := app.Service.ExpectedColumns(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tTYPE\tREQUIRED\tFORMAT")
			for _, col := range cols {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", col.Column, col.Type, col.Required, col.Format)
			}
			return tw.Flush()
		},
	}
}
