package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/config"
	"github.com/AnandVetcha/excel-to-ppt-explainer/logger"
	"github.com/AnandVetcha/excel-to-ppt-explainer/report"
)

// sourceFlags select the workbook and the summary block.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "settings file (.json or .toml)",
		},
		&cli.StringFlag{
			Name:  "xlsx",
			Usage: "Excel workbook to read",
		},
		&cli.StringFlag{
			Name:  "sheet",
			Usage: "worksheet holding the summary table (default: the active sheet)",
		},
		&cli.StringFlag{
			Name:    "summary-start",
			Aliases: []string{"summary_start"},
			Usage:   "top-left data cell of the summary, e.g. A12",
		},
		&cli.StringFlag{
			Name:    "raw-table",
			Aliases: []string{"raw_table"},
			Usage:   "default Excel table when a formula names none (default: the first table)",
		},
		&cli.StringFlag{
			Name:    "key-header",
			Aliases: []string{"key_header"},
			Usage:   "table column shown first in detail tables and used as the fallback filter",
		},
		&cli.IntSliceFlag{
			Name:    "skip-cols",
			Aliases: []string{"skip_cols"},
			Usage:   "1-based metric columns (key column excluded) that get no detail slides; repeat, comma-separate or list them (--skip-cols 2 4)",
		},
		&cli.IntFlag{
			Name:    "max-columns",
			Aliases: []string{"max_columns"},
			Usage:   "widest summary block to read",
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Aliases: []string{"log_dir"},
			Usage:   "also write a run log to this directory",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "debug logging",
		},
	}
}

func buildFlags() []cli.Flag {
	return append(sourceFlags(),
		&cli.StringFlag{
			Name:    "pptx-in",
			Aliases: []string{"pptx_in"},
			Usage:   "existing deck to append slides to",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "output deck (default: --pptx-in, else deck.pptx)",
		},
		&cli.StringFlag{
			Name:    "link-mode",
			Aliases: []string{"link_mode"},
			Usage:   "text links the numbers, overlay links the whole cell",
		},
		&cli.IntFlag{
			Name:    "table-font-pt",
			Aliases: []string{"table_font_pt", "header-font-pt", "header_font_pt"},
			Usage:   "font size of table text",
		},
		&cli.IntFlag{
			Name:    "round-digits",
			Aliases: []string{"round_digits"},
			Usage:   "decimal places for numbers",
		},
		&cli.IntFlag{
			Name:    "max-detail-rows",
			Aliases: []string{"max_detail_rows"},
			Usage:   "data rows per detail slide",
		},
		&cli.StringFlag{
			Name:    "detail-xlsx",
			Aliases: []string{"detail_xlsx"},
			Usage:   "also write the rows behind every detail slide to this workbook",
		},
	)
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:   "build",
		Usage:  "build the deck (the default command)",
		Flags:  buildFlags(),
		Before: before,
		Action: build,
	}
}

func build(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	closeLog, err := startLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := interruptible(cctx)
	defer stop()

	res, err := report.NewService().Build(ctx, cfg)
	if err != nil {
		return err
	}
	if res.DetailWorkbook != "" {
		log.Infof("detail workbook written to %s", res.DetailWorkbook)
	}
	fmt.Fprintf(cctx.App.Writer, "PPT created: %s\n", res.Output)
	return nil
}

// loadConfig reads the settings file and environment, then applies the
// flags that were given.
func loadConfig(cctx *cli.Context) (config.Config, error) {
	if cctx.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(cctx.Args().Slice(), " "))
	}
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return cfg, err
	}

	strs := map[string]*string{
		"xlsx":          &cfg.Workbook,
		"sheet":         &cfg.Sheet,
		"summary-start": &cfg.SummaryStart,
		"raw-table":     &cfg.RawTable,
		"key-header":    &cfg.KeyHeader,
		"log-dir":       &cfg.LogDir,
		"pptx-in":       &cfg.Template,
		"out":           &cfg.Output,
		"link-mode":     &cfg.LinkMode,
		"detail-xlsx":   &cfg.DetailWorkbook,
	}
	for name, dst := range strs {
		if cctx.IsSet(name) {
			*dst = cctx.String(name)
		}
	}
	ints := map[string]*int{
		"max-columns":     &cfg.MaxColumns,
		"table-font-pt":   &cfg.TableFontPt,
		"round-digits":    &cfg.RoundDigits,
		"max-detail-rows": &cfg.MaxDetailRows,
	}
	for name, dst := range ints {
		if cctx.IsSet(name) {
			*dst = cctx.Int(name)
		}
	}
	if cctx.IsSet("skip-cols") {
		cfg.SkipCols = cctx.IntSlice("skip-cols")
	}
	if cctx.IsSet("verbose") {
		cfg.Verbose = cctx.Bool("verbose")
	}
	logger.SetVerbose(cfg.Verbose)

	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func startLog(cfg config.Config) (func(), error) {
	if cfg.LogDir == "" {
		return func() {}, nil
	}
	l := logger.NewLogger()
	if err := l.Init(cfg.LogDir); err != nil {
		return nil, err
	}
	l.Debugf("run log: %s", l.Path())
	return l.Close, nil
}

// interruptible is the command context cancelled by Ctrl-C.
func interruptible(cctx *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cctx.Context, os.Interrupt)
}

// expandSkipCols rewrites "--skip-cols 2 4" as "--skip-cols 2 --skip-cols 4"
// so a list of bare numbers after the flag is not left as arguments.
func expandSkipCols(args []string) []string {
	out := make([]string, 0, len(args))
	flag := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return append(out, args[i:]...)
		}
		if flag != "" {
			if _, err := strconv.Atoi(a); err == nil {
				out = append(out, flag, a)
				continue
			}
			flag = ""
		}
		out = append(out, a)
		if !strings.HasPrefix(a, "-") {
			continue
		}
		name, _, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if name != "skip-cols" && name != "skip_cols" {
			continue
		}
		flag = "--" + name
		if !hasValue && i+1 < len(args) {
			i++
			out = append(out, args[i])
		}
	}
	return out
}
