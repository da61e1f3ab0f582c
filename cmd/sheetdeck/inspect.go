package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/report"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "show the formula, table, columns and filters found for every summary cell",
		Flags:  sourceFlags(),
		Before: before,
		Action: func(cctx *cli.Context) error {
			cfg, err := loadConfig(cctx)
			if err != nil {
				return err
			}
			ctx, stop := interruptible(cctx)
			defer stop()

			reports, err := report.NewService().Inspect(ctx, cfg)
			if err != nil {
				return err
			}
			w := cctx.App.Writer
			for _, r := range reports {
				fmt.Fprintf(w, "%s  %s / %s = %s\n", r.Address, r.Key, r.Metric, r.Value)
				if r.Skipped {
					fmt.Fprintln(w, "    skipped")
					continue
				}
				switch {
				case r.Formula == "":
					fmt.Fprintln(w, "    formula:  (none)")
				case r.Spilled:
					fmt.Fprintf(w, "    formula:  %s (spilled from %s)\n", r.Formula, r.Source)
				default:
					fmt.Fprintf(w, "    formula:  %s\n", r.Formula)
				}
				fmt.Fprintf(w, "    table:    %s\n", r.Table)
				fmt.Fprintf(w, "    columns:  %s\n", strings.Join(r.Columns, ", "))
				for _, c := range r.Criteria {
					fmt.Fprintf(w, "    criteria: %s\n", c)
				}
				for _, f := range r.Filters {
					fmt.Fprintf(w, "    filter:   %s\n", f)
				}
				fmt.Fprintf(w, "    rows:     %d\n", r.Rows)
			}
			return nil
		},
	}
}
