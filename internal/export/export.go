// Package export drives the conversation export: fetch pages from the Dixa
// api, map records to CSV rows, and write one file per run or per day.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	dixa "github.com/mkrogh/dixa-export"
	"github.com/mkrogh/dixa-export/internal/daterange"
)

// Mode selects the output layout.
type Mode int

const (
	// SingleFile writes every record in the range to one CSV.
	SingleFile Mode = iota
	// DailyFiles writes one CSV per calendar day.
	DailyFiles
)

const (
	// SingleFileName is the fixed single-file output path.
	SingleFileName = "conversations_ytd.csv"
	// PrevMonthFileName is the prev-month subcommand's output path.
	PrevMonthFileName = "conversations_prev_month.csv"
	// DailyDir is the default directory for per-day files.
	DailyDir = "data/dixa_daily"

	dailyFilePrefix = "conversations_"
)

// Exporter fetches conversations and writes them to CSV files. Zero-value
// fields fall back to the package defaults.
type Exporter struct {
	Client *dixa.Client
	Log    *logrus.Logger

	// OutFile is the single-file output path; defaults to SingleFileName.
	OutFile string
	// OutDir is the daily-files output directory; defaults to DailyDir.
	OutDir string
	// Filter, when set, drops rows its rule rejects.
	Filter *Filter
	// PageLimit overrides the search page size. Tests shrink it to
	// exercise pagination.
	PageLimit int
}

func (e *Exporter) log() *logrus.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

// Run exports the resolved range in the given mode. channel restricts
// results to one channel; dixa.NoChannelFilter exports all channels.
func (e *Exporter) Run(ctx context.Context, rng daterange.Range, mode Mode, channel string) error {
	if mode == DailyFiles {
		return e.runDaily(ctx, rng, channel)
	}
	return e.runSingle(ctx, rng, channel)
}

func (e *Exporter) runSingle(ctx context.Context, rng daterange.Range, channel string) error {
	// The between condition is inclusive; back off one second to keep the
	// range end exclusive.
	rows, err := e.fetchWindow(ctx, rng.Start, rng.End.Add(-time.Second), channel)
	if err != nil {
		return err
	}

	rows = e.dedupe(rows)

	path := e.OutFile
	if path == "" {
		path = SingleFileName
	}
	if err := writeCSV(path, rows); err != nil {
		return err
	}
	e.log().WithFields(logrus.Fields{"file": path, "rows": len(rows)}).Info("wrote export")
	e.logSummary(rows, rng)
	return nil
}

func (e *Exporter) runDaily(ctx context.Context, rng daterange.Range, channel string) error {
	dir := e.OutDir
	if dir == "" {
		dir = DailyDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	days := rng.Days()
	var all []Row
	for i, day := range days {
		e.log().WithFields(logrus.Fields{
			"day": day.Format("2006-01-02"),
			"n":   i + 1, "total": len(days),
		}).Info("fetching day")

		rows, err := e.fetchWindow(ctx, day, day.Add(24*time.Hour-time.Second), channel)
		if err != nil {
			return err
		}

		path := filepath.Join(dir, dailyFilePrefix+day.Format("2006-01-02")+".csv")
		if err := writeCSV(path, rows); err != nil {
			return err
		}
		e.log().WithFields(logrus.Fields{"file": path, "rows": len(rows)}).Info("wrote export")
		all = append(all, rows...)
	}
	e.logSummary(all, rng)
	return nil
}

// fetchWindow pages through the search api over the inclusive [from, to]
// createdAt window, advancing the createdAt cursor until a page comes back
// empty or short.
func (e *Exporter) fetchWindow(ctx context.Context, from, to time.Time, channel string) ([]Row, error) {
	limit := e.PageLimit
	if limit == 0 {
		limit = dixa.SearchPageLimit
	}

	var rows []Row
	cursor := ""
	for {
		page, err := e.Client.SearchConversations(ctx, dixa.SearchQuery{
			From:    from,
			To:      to,
			Channel: channel,
			Cursor:  cursor,
			Limit:   limit,
		})
		if err != nil {
			return nil, err
		}
		e.log().WithFields(logrus.Fields{"status": http.StatusOK, "records": len(page)}).Info("search page")

		if len(page) == 0 {
			e.log().Info("Empty results")
			break
		}

		for _, c := range page {
			row := newRow(c)
			if e.Filter != nil {
				keep, err := e.Filter.Keep(row)
				if err != nil {
					return nil, err
				}
				if !keep {
					continue
				}
			}
			rows = append(rows, row)
		}

		if len(page) < limit {
			break
		}
		last := page[len(page)-1].CreatedAt
		if last == "" || last == cursor {
			break
		}
		cursor = last
	}
	return rows, nil
}

// dedupe drops repeated conversation ids, keeping the first occurrence.
func (e *Exporter) dedupe(rows []Row) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	if removed := len(rows) - len(out); removed > 0 {
		e.log().WithField("removed", removed).Info("dropped duplicate conversation ids")
	}
	return out
}

// writeCSV writes the header and rows to path, overwriting any existing
// file. Zero rows still produce a header-only file.
func writeCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(r.record()); err != nil {
			f.Close()
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

// logSummary mirrors the summary block the BI team reads after a run.
func (e *Exporter) logSummary(rows []Row, rng daterange.Range) {
	var within1m, rejected, fromQueue, fromForward int
	for _, r := range rows {
		if r.AnsweredWithin1Min {
			within1m++
		}
		if r.RejectedOrForwarded {
			rejected++
		}
		if r.TakenFromQueue {
			fromQueue++
		}
		if r.TakenFromForward {
			fromForward++
		}
	}
	e.log().WithFields(logrus.Fields{
		"rows":                len(rows),
		"answeredWithin1Min":  within1m,
		"rejectedOrForwarded": rejected,
		"takenFromQueue":      fromQueue,
		"takenFromForward":    fromForward,
		"range":               rng.String(),
	}).Info("export summary")
}
