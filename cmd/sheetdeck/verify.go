package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/export"
	"github.com/AnandVetcha/excel-to-ppt-explainer/pptxpkg"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "check a built deck's slide count and first slide title",
		ArgsUsage: "<deck.pptx>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "slides",
				Usage: "expected number of slides",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "text the first slide must contain",
				Value: export.SummaryTitle,
			},
		},
		Action: func(cctx *cli.Context) error {
			if cctx.NArg() != 1 {
				return fmt.Errorf("expected one deck path, got %d", cctx.NArg())
			}
			path := cctx.Args().First()
			deck, err := pptxpkg.OpenFile(path)
			if err != nil {
				return err
			}
			slides, err := deck.Slides()
			if err != nil {
				return err
			}
			if cctx.IsSet("slides") && len(slides) != cctx.Int("slides") {
				return fmt.Errorf("expected %d slides, got %d", cctx.Int("slides"), len(slides))
			}
			if len(slides) == 0 {
				return fmt.Errorf("%s has no slides", path)
			}
			texts, err := deck.SlideTexts(0)
			if err != nil {
				return err
			}
			title := cctx.String("title")
			found := false
			for _, t := range texts {
				if strings.Contains(t, title) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("first slide does not contain %q", title)
			}
			fmt.Fprintf(cctx.App.Writer, "%s: %d slides, first slide contains %q\n", path, len(slides), title)
			return nil
		},
	}
}
