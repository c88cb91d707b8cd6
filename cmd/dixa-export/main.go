// Command dixa-export pulls Dixa conversations for a date range and writes
// them to CSV files for Power BI ingestion.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	dixa "github.com/mkrogh/dixa-export"
	"github.com/mkrogh/dixa-export/internal/config"
	"github.com/mkrogh/dixa-export/internal/daterange"
	"github.com/mkrogh/dixa-export/internal/export"
)

var (
	flagEnvFile string
	flagDebug   bool

	flagRangeStart string
	flagLast7      bool
	flagYTD        bool
	flagDaily      bool
	flagSingle     bool
	flagChannel    string
	flagOut        string
	flagOutDir     string
	flagFilter     string

	flagEnrich       bool
	flagPrevMonthOut string
)

func main() {
	root := &cobra.Command{
		Use:   "dixa-export [END]",
		Short: "Export Dixa conversations to CSV",
		Long: `Export Dixa conversations to CSV for Power BI.

The export window is resolved in precedence order: --range START END,
the DIXA_START_ISO/DIXA_END_ISO environment pair, then year to date.
Start is inclusive and end is exclusive.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runExport,
	}

	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging and HTTP call dumps")

	root.Flags().StringVar(&flagRangeStart, "range", "", "start date of the export window; the end date follows as a positional argument")
	root.Flags().BoolVar(&flagLast7, "last7", false, "export the last 7 days")
	root.Flags().BoolVar(&flagYTD, "ytd", false, "export year to date")
	root.Flags().BoolVar(&flagDaily, "daily-files", false, "write one CSV per calendar day")
	root.Flags().BoolVar(&flagSingle, "single-file", false, "write the whole range to one CSV (the default)")
	root.Flags().StringVar(&flagChannel, "channel", dixa.NoChannelFilter, "restrict the export to one channel, e.g. pstnPhone; empty exports all channels")
	root.Flags().StringVar(&flagOut, "out", "", "single-file output path (default "+export.SingleFileName+")")
	root.Flags().StringVar(&flagOutDir, "out-dir", "", "daily-files output directory (default "+export.DailyDir+")")
	root.Flags().StringVar(&flagFilter, "filter", "", "path to a JSON Logic rule; rows it rejects are dropped")

	prevMonth := &cobra.Command{
		Use:   "prev-month [AFTER BEFORE]",
		Short: "Export last month's telephone conversations from the exports API",
		Long: `Export telephone conversations from the Dixa exports API.

Without arguments the window is the previous calendar month. An explicit
inclusive AFTER BEFORE day pair overrides it.`,
		Args:          rangePairArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPrevMonth,
	}
	prevMonth.Flags().BoolVar(&flagEnrich, "enrich", true, "enrich rows from the conversation detail endpoint")
	prevMonth.Flags().StringVar(&flagPrevMonthOut, "out", "", "output path (default "+export.PrevMonthFileName+")")
	prevMonth.Flags().StringVar(&flagFilter, "filter", "", "path to a JSON Logic rule; rows it rejects are dropped")
	root.AddCommand(prevMonth)

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("export failed")
		os.Exit(1)
	}
}

// rangePairArgs accepts either no dates or an explicit AFTER BEFORE pair.
func rangePairArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("expected no arguments or an AFTER BEFORE pair, got %d arguments", len(args))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, e, err := setup()
	if err != nil {
		return err
	}

	sel := daterange.Selection{Start: flagRangeStart, Last7: flagLast7, YTD: flagYTD}
	switch {
	case flagRangeStart != "" && len(args) == 1:
		sel.End = args[0]
	case flagRangeStart != "":
		return fmt.Errorf("%w: --range needs both a start and an end date", daterange.ErrInvalidRange)
	case len(args) == 1:
		return fmt.Errorf("%w: an end date needs --range START", daterange.ErrInvalidRange)
	}

	rng, source, err := daterange.Resolve(sel, cfg.StartISO, cfg.EndISO, time.Now())
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"range": rng.String(), "source": source}).Info("resolved export window")

	if flagDaily && flagSingle {
		return fmt.Errorf("--daily-files and --single-file are mutually exclusive")
	}
	mode := export.SingleFile
	if flagDaily {
		mode = export.DailyFiles
	}

	return e.Run(cmd.Context(), rng, mode, flagChannel)
}

func runPrevMonth(cmd *cobra.Command, args []string) error {
	_, e, err := setup()
	if err != nil {
		return err
	}
	e.OutFile = flagPrevMonthOut

	after, before := export.PrevMonthRange(time.Now())
	if len(args) == 2 {
		if after, err = daterange.ParseISOUTC(args[0]); err != nil {
			return err
		}
		if before, err = daterange.ParseISOUTC(args[1]); err != nil {
			return err
		}
		if before.Before(after) {
			return fmt.Errorf("%w: end %s is before start %s", daterange.ErrInvalidRange, args[1], args[0])
		}
	}
	logrus.WithFields(logrus.Fields{
		"after":  after.Format("2006-01-02"),
		"before": before.Format("2006-01-02"),
	}).Info("resolved export window")

	return e.RunPrevMonth(cmd.Context(), after, before, flagEnrich)
}

// setup loads the dotenv file, reads the environment, and builds the client
// and exporter shared by both commands.
func setup() (config.Config, *export.Exporter, error) {
	if flagDebug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// Missing dotenv files are fine; the environment may carry everything.
	if err := godotenv.Load(flagEnvFile); err != nil && !os.IsNotExist(err) {
		return config.Config{}, nil, fmt.Errorf("failed to load %s: %w", flagEnvFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	var options []dixa.Options
	if cfg.UseBearer {
		options = append(options, dixa.UseBearer())
	}
	if cfg.BaseURL != "" {
		options = append(options, dixa.BaseURL(cfg.BaseURL))
	}
	if cfg.ExportsBase != "" {
		options = append(options, dixa.ExportsBaseURL(cfg.ExportsBase))
	}
	if flagDebug {
		options = append(options, dixa.DebugHttpCalls(os.Stderr))
	}

	e := &export.Exporter{
		Client:  dixa.NewClient(cfg.Token, options...),
		Log:     logrus.StandardLogger(),
		OutFile: flagOut,
		OutDir:  flagOutDir,
	}
	if flagFilter != "" {
		filter, err := export.LoadFilter(flagFilter)
		if err != nil {
			return config.Config{}, nil, err
		}
		e.Filter = filter
	}
	return cfg, e, nil
}
