package export

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mkrogh/dixa-export/internal/daterange"
)

// PrevMonthRange returns the first and last day of the calendar month
// before now, in UTC.
func PrevMonthRange(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	firstOfCurrent := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastOfPrev := firstOfCurrent.AddDate(0, 0, -1)
	firstOfPrev := time.Date(lastOfPrev.Year(), lastOfPrev.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfPrev, lastOfPrev
}

// RunPrevMonth exports the inclusive [after, before] window from the
// exports api: telephone conversations only, optionally enriched from the
// conversation detail endpoint. Enrichment failures are counted, not fatal.
func (e *Exporter) RunPrevMonth(ctx context.Context, after, before time.Time, enrich bool) error {
	records, err := e.Client.ConversationExport(ctx, after, before)
	if err != nil {
		return err
	}
	e.log().WithFields(logrus.Fields{"status": http.StatusOK, "records": len(records)}).Info("exports response")
	if len(records) == 0 {
		e.log().Info("Empty results")
	}

	var rows []Row
	var detailOK, detailFailed int
	for _, rec := range records {
		if !strings.EqualFold(rec.InitialChannel, "pstnphone") {
			continue
		}

		row := newRowFromExport(rec)
		if enrich && rec.ID.String() != "" {
			detail, err := e.Client.GetConversation(ctx, rec.ID.String())
			if err != nil || detail == nil {
				detailFailed++
			} else {
				detailOK++
				row.enrich(detail)
			}
		}

		if e.Filter != nil {
			keep, err := e.Filter.Keep(row)
			if err != nil {
				return err
			}
			if !keep {
				continue
			}
		}
		rows = append(rows, row)
	}
	if enrich {
		e.log().WithFields(logrus.Fields{"ok": detailOK, "failed": detailFailed}).Info("detail enrichment")
	}

	path := e.OutFile
	if path == "" {
		path = PrevMonthFileName
	}
	if err := writeCSV(path, rows); err != nil {
		return err
	}
	e.log().WithFields(logrus.Fields{"file": path, "rows": len(rows)}).Info("wrote export")

	e.logSummary(rows, daterange.Range{Start: after, End: before.AddDate(0, 0, 1)})
	return nil
}
