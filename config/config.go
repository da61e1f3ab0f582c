package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"github.com/xuri/excelize/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/logger"
	"github.com/AnandVetcha/excel-to-ppt-explainer/pptxpkg"
)

var log = logger.Get().WithField("prefix", "config")

// EnvPrefix prefixes the environment variables that override file settings,
// e.g. SHEETDECK_SUMMARY_START.
const EnvPrefix = "SHEETDECK"

const DefaultOutput = "deck.pptx"

// Config holds every setting of a run. Sheet empty selects the active sheet;
// Output defaults to Template, then deck.pptx. SkipCols are 1-based metric
// columns that get no detail slides.
type Config struct {
	Workbook       string `json:"workbook" toml:"workbook" envconfig:"XLSX"`
	Sheet          string `json:"sheet" toml:"sheet"`
	SummaryStart   string `json:"summaryStart" toml:"summary_start" split_words:"true"`
	Template       string `json:"template" toml:"template" envconfig:"PPTX_IN"`
	Output         string `json:"output" toml:"output" envconfig:"OUT"`
	RawTable       string `json:"rawTable" toml:"raw_table" split_words:"true"`
	KeyHeader      string `json:"keyHeader" toml:"key_header" split_words:"true"`
	LinkMode       string `json:"linkMode" toml:"link_mode" split_words:"true"`
	TableFontPt    int    `json:"tableFontPt" toml:"table_font_pt" split_words:"true"`
	RoundDigits    int    `json:"roundDigits" toml:"round_digits" split_words:"true"`
	SkipCols       []int  `json:"skipCols" toml:"skip_cols" split_words:"true"`
	MaxColumns     int    `json:"maxColumns" toml:"max_columns" split_words:"true"`
	MaxDetailRows  int    `json:"maxDetailRows" toml:"max_detail_rows" split_words:"true"`
	DetailWorkbook string `json:"detailWorkbook" toml:"detail_workbook" envconfig:"DETAIL_XLSX"`
	LogDir         string `json:"logDir" toml:"log_dir" split_words:"true"`
	Verbose        bool   `json:"verbose" toml:"verbose"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		LinkMode:      string(pptxpkg.LinkText),
		TableFontPt:   12,
		RoundDigits:   2,
		MaxColumns:    60,
		MaxDetailRows: 14,
	}
}

// Load reads the defaults, then the optional file at path (.toml, otherwise
// JSON), then SHEETDECK_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return cfg, fmt.Errorf("invalid config path %s: %w", path, err)
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(expanded), ".toml") {
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", expanded, err)
			}
		} else if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", expanded, err)
		}
		log.Debugf("loaded config file %s", expanded)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process config env vars: %w", err)
	}
	return cfg, nil
}

// ExpandPaths replaces a leading ~ in every path setting.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Workbook, &c.Template, &c.Output, &c.DetailWorkbook, &c.LogDir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("invalid path %s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// OutputPath is where the deck is written.
func (c Config) OutputPath() string {
	switch {
	case c.Output != "":
		return c.Output
	case c.Template != "":
		return c.Template
	}
	return DefaultOutput
}

// Skipped reports whether the 1-based metric column idx has no detail slides.
func (c Config) Skipped(idx int) bool {
	for _, s := range c.SkipCols {
		if s == idx {
			return true
		}
	}
	return false
}

// Validate checks required settings and ranges, reporting every problem.
func (c Config) Validate() error {
	var errs []error
	if c.Workbook == "" {
		errs = append(errs, errors.New("workbook is required"))
	}
	if c.SummaryStart == "" {
		errs = append(errs, errors.New("summary start cell is required"))
	} else if _, row, err := excelize.CellNameToCoordinates(strings.ReplaceAll(c.SummaryStart, "$", "")); err != nil {
		errs = append(errs, fmt.Errorf("invalid summary start %q", c.SummaryStart))
	} else if row < 2 {
		errs = append(errs, fmt.Errorf("summary start %q leaves no room for a header row", c.SummaryStart))
	}
	if _, err := pptxpkg.ParseLinkMode(c.LinkMode); err != nil {
		errs = append(errs, err)
	}
	if c.TableFontPt < 6 || c.TableFontPt > 72 {
		errs = append(errs, fmt.Errorf("table font size %d out of range 6-72", c.TableFontPt))
	}
	if c.RoundDigits < 0 || c.RoundDigits > 10 {
		errs = append(errs, fmt.Errorf("round digits %d out of range 0-10", c.RoundDigits))
	}
	for _, s := range c.SkipCols {
		if s < 1 {
			errs = append(errs, fmt.Errorf("skip column %d must be 1 or more", s))
		}
	}
	if c.MaxColumns < 1 {
		errs = append(errs, errors.New("max columns must be positive"))
	}
	if c.MaxDetailRows < 1 {
		errs = append(errs, errors.New("max detail rows must be positive"))
	}
	for _, p := range []string{c.Template, c.Output} {
		if p != "" && !strings.EqualFold(filepath.Ext(p), ".pptx") {
			errs = append(errs, fmt.Errorf("%s is not a .pptx file", p))
		}
	}
	if c.DetailWorkbook != "" && !strings.EqualFold(filepath.Ext(c.DetailWorkbook), ".xlsx") {
		errs = append(errs, fmt.Errorf("detail workbook %s is not an .xlsx file", c.DetailWorkbook))
	}
	return errors.Join(errs...)
}
