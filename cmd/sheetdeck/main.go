package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/logger"
)

var log = logger.Get().WithField("prefix", "sheetdeck")

func before(cctx *cli.Context) error {
	logger.SetVerbose(cctx.Bool("verbose"))
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "sheetdeck",
		Usage:                "turn an Excel summary table into a linked PowerPoint deck",
		EnableBashCompletion: true,
		Before:               before,
		Flags:                buildFlags(),
		Action:               build,
		Commands: []*cli.Command{
			buildCommand(),
			inspectCommand(),
			verifyCommand(),
		},
	}
}

func main() {
	app := newApp()
	app.Setup()

	if err := app.Run(expandSkipCols(os.Args)); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
