package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	dixa "github.com/mkrogh/dixa-export"
	"github.com/mkrogh/dixa-export/internal/daterange"
)

const searchURL = "https://dev.dixa.io/v1/search/conversations"

func newTestExporter(t *testing.T) *Exporter {
	log := logrus.New()
	log.SetOutput(io.Discard)

	dir := t.TempDir()
	return &Exporter{
		Client:  dixa.NewClient("token"),
		Log:     log,
		OutFile: filepath.Join(dir, SingleFileName),
		OutDir:  filepath.Join(dir, "daily"),
	}
}

func testRange(t *testing.T, start, end string) daterange.Range {
	rng, _, err := daterange.Resolve(daterange.Selection{Start: start, End: end}, "", "", time.Now())
	require.NoError(t, err)
	return rng
}

// searchRequest mirrors the fields of the search payload the driver sends.
type searchRequest struct {
	Limit   int `json:"limit"`
	Filters struct {
		Conditions []struct {
			Field struct {
				Type string `json:"_type"`
			} `json:"field"`
			Operator string `json:"operator"`
			Value    any    `json:"value"`
		} `json:"conditions"`
	} `json:"filters"`
}

func decodeSearchRequest(t *testing.T, req *http.Request) searchRequest {
	var payload searchRequest
	require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
	return payload
}

// betweenWindow returns the from/to values of the between condition.
func (r searchRequest) betweenWindow(t *testing.T) (string, string) {
	for _, cond := range r.Filters.Conditions {
		if cond.Operator != "between" {
			continue
		}
		window, ok := cond.Value.([]any)
		require.True(t, ok)
		require.Len(t, window, 2)
		return window[0].(string), window[1].(string)
	}
	t.Fatal("no between condition in search request")
	return "", ""
}

func (r searchRequest) cursor() string {
	for _, cond := range r.Filters.Conditions {
		if cond.Operator == "gt" {
			return cond.Value.(string)
		}
	}
	return ""
}

func conversationsJSON(items ...string) string {
	return fmt.Sprintf(`{"data": {"items": [%s]}}`, strings.Join(items, ","))
}

func conversationJSON(id int, createdAt, channel string) string {
	return fmt.Sprintf(`{"id": %d, "createdAt": %q, "channel": %q}`, id, createdAt, channel)
}

func readCSV(t *testing.T, path string) [][]string {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

// registerWindowResponder serves fixed pages keyed by the day of the
// requested between window, and everything for a multi-day window.
func registerWindowResponder(t *testing.T) {
	day1 := []string{
		conversationJSON(1, "2025-01-01T08:00:00Z", "pstnPhone"),
		conversationJSON(2, "2025-01-01T09:00:00Z", "email"),
	}
	day2 := []string{
		conversationJSON(3, "2025-01-02T08:00:00Z", "pstnPhone"),
	}

	httpmock.RegisterResponder(http.MethodPost, searchURL, func(req *http.Request) (*http.Response, error) {
		from, to := decodeSearchRequest(t, req).betweenWindow(t)
		switch {
		case strings.HasPrefix(from, "2025-01-01") && strings.HasPrefix(to, "2025-01-01"):
			return httpmock.NewStringResponse(http.StatusOK, conversationsJSON(day1...)), nil
		case strings.HasPrefix(from, "2025-01-02") && strings.HasPrefix(to, "2025-01-02"):
			return httpmock.NewStringResponse(http.StatusOK, conversationsJSON(day2...)), nil
		case strings.HasPrefix(from, "2025-01-01") && strings.HasPrefix(to, "2025-01-02"):
			return httpmock.NewStringResponse(http.StatusOK, conversationsJSON(append(day1, day2...)...)), nil
		default:
			return httpmock.NewStringResponse(http.StatusOK, `{"data": {"items": []}}`), nil
		}
	})
}

func TestRunDailyFiles(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerWindowResponder(t)

	e := newTestExporter(t)
	rng := testRange(t, "2025-01-01", "2025-01-03")

	require.NoError(t, e.Run(context.Background(), rng, DailyFiles, dixa.NoChannelFilter))

	// End-exclusive: two days, two files, no file for the end date.
	day1 := readCSV(t, filepath.Join(e.OutDir, "conversations_2025-01-01.csv"))
	require.Len(t, day1, 3)
	require.Equal(t, csvHeader, day1[0])
	require.Equal(t, "1", day1[1][0])
	require.Equal(t, "pstnPhone", day1[1][6])

	day2 := readCSV(t, filepath.Join(e.OutDir, "conversations_2025-01-02.csv"))
	require.Len(t, day2, 2)

	_, err := os.Stat(filepath.Join(e.OutDir, "conversations_2025-01-03.csv"))
	require.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(e.OutDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRunSingleFileMatchesDailyCounts(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerWindowResponder(t)

	e := newTestExporter(t)
	rng := testRange(t, "2025-01-01", "2025-01-03")

	require.NoError(t, e.Run(context.Background(), rng, SingleFile, dixa.NoChannelFilter))

	records := readCSV(t, e.OutFile)
	require.Equal(t, csvHeader, records[0])
	require.Len(t, records, 4) // header + the three rows the daily files held
}

func TestRunEmptyResults(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, searchURL,
		httpmock.NewStringResponder(http.StatusOK, `{"data": {"items": []}}`))

	e := newTestExporter(t)
	rng := testRange(t, "2025-01-01", "2025-01-02")

	require.NoError(t, e.Run(context.Background(), rng, SingleFile, dixa.NoChannelFilter))

	records := readCSV(t, e.OutFile)
	require.Len(t, records, 1) // header only
	require.Equal(t, csvHeader, records[0])
}

func TestRunSurfacesHttpError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, searchURL,
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	e := newTestExporter(t)
	rng := testRange(t, "2025-01-01", "2025-01-02")

	err := e.Run(context.Background(), rng, SingleFile, dixa.NoChannelFilter)

	httpErr := &dixa.HttpError{}
	require.ErrorAs(t, err, httpErr)
	require.Equal(t, http.StatusBadGateway, httpErr.Status)
}

func TestFetchWindowPagination(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	full := conversationsJSON(
		conversationJSON(1, "2025-01-01T08:00:00Z", "pstnPhone"),
		conversationJSON(2, "2025-01-01T09:00:00Z", "pstnPhone"),
	)
	short := conversationsJSON(conversationJSON(3, "2025-01-01T10:00:00Z", "pstnPhone"))

	httpmock.RegisterResponder(http.MethodPost, searchURL, func(req *http.Request) (*http.Response, error) {
		payload := decodeSearchRequest(t, req)
		require.Equal(t, 2, payload.Limit)

		switch payload.cursor() {
		case "":
			return httpmock.NewStringResponse(http.StatusOK, full), nil
		case "2025-01-01T09:00:00Z":
			return httpmock.NewStringResponse(http.StatusOK, short), nil
		default:
			t.Fatalf("unexpected cursor %q", payload.cursor())
			return nil, nil
		}
	})

	e := newTestExporter(t)
	e.PageLimit = 2
	rng := testRange(t, "2025-01-01", "2025-01-02")

	require.NoError(t, e.Run(context.Background(), rng, SingleFile, dixa.NoChannelFilter))

	records := readCSV(t, e.OutFile)
	require.Len(t, records, 4) // header + both pages
	require.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestRunChannelFilterIsForwarded(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, searchURL, func(req *http.Request) (*http.Response, error) {
		payload := decodeSearchRequest(t, req)

		var channel any
		for _, cond := range payload.Filters.Conditions {
			if cond.Operator == "eq" && cond.Field.Type == "ChannelTypeField" {
				channel = cond.Value
			}
		}
		require.Equal(t, "pstnPhone", channel)

		return httpmock.NewStringResponse(http.StatusOK, `{"data": {"items": []}}`), nil
	})

	e := newTestExporter(t)
	rng := testRange(t, "2025-01-01", "2025-01-02")

	require.NoError(t, e.Run(context.Background(), rng, SingleFile, "pstnPhone"))
}

func TestRunRowFilter(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerWindowResponder(t)

	filter, err := LoadFilter(writeFilterFile(t, `{"==": [{"var": "channel"}, "pstnPhone"]}`))
	require.NoError(t, err)

	e := newTestExporter(t)
	e.Filter = filter
	rng := testRange(t, "2025-01-01", "2025-01-02")

	require.NoError(t, e.Run(context.Background(), rng, SingleFile, dixa.NoChannelFilter))

	records := readCSV(t, e.OutFile)
	require.Len(t, records, 2) // header + the single pstnPhone row of day 1
	require.Equal(t, "pstnPhone", records[1][6])
}

func TestDedupe(t *testing.T) {
	e := newTestExporter(t)

	rows := e.dedupe([]Row{{ID: "1"}, {ID: "2"}, {ID: "1"}, {ID: "3"}, {ID: "2"}})
	require.Len(t, rows, 3)
	require.Equal(t, "1", rows[0].ID)
	require.Equal(t, "2", rows[1].ID)
	require.Equal(t, "3", rows[2].ID)
}
