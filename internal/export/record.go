package export

import (
	"strconv"
	"time"

	dixa "github.com/mkrogh/dixa-export"
)

// csvHeader defines the column names written as the first row of every CSV.
var csvHeader = []string{
	"id", "createdAt", "answeredAt", "closedAt",
	"state", "direction", "channel",
	"assigneeId", "assigneeName", "queueId", "queueName", "assignmentReason",
	"AnsweredWithin1Min", "TakenFromQueue", "TakenFromForward", "RejectedOrForwarded",
}

// Row is one CSV line: the conversation fields the BI model consumes plus
// the computed call-handling columns.
type Row struct {
	ID               string
	CreatedAt        string
	AnsweredAt       string
	ClosedAt         string
	State            string
	Direction        string
	Channel          string
	AssigneeID       string
	AssigneeName     string
	QueueID          string
	QueueName        string
	AssignmentReason string

	AnsweredWithin1Min  bool
	TakenFromQueue      bool
	TakenFromForward    bool
	RejectedOrForwarded bool
}

// newRow maps a search api conversation and derives the computed columns.
func newRow(c dixa.Conversation) Row {
	assigneeID, assigneeName := c.ResolvedAssignee()
	queueID, queueName := c.ResolvedQueue()

	r := Row{
		ID:               c.ID.String(),
		CreatedAt:        c.CreatedAt,
		AnsweredAt:       c.AnsweredAt,
		ClosedAt:         c.ClosedAt,
		State:            c.State,
		Direction:        c.Direction,
		Channel:          c.ResolvedChannel(),
		AssigneeID:       assigneeID,
		AssigneeName:     assigneeName,
		QueueID:          queueID,
		QueueName:        queueName,
		AssignmentReason: c.ResolvedAssignmentReason(),
	}
	r.computeColumns()
	return r
}

// newRowFromExport maps an exports api record. Metrics come from the
// millisecond timestamps: assigned_at stands in for answeredAt, and the
// queue/forward split is inferred from whether queued_at is present.
func newRowFromExport(rec dixa.ExportRecord) Row {
	r := Row{
		ID:           rec.ID.String(),
		CreatedAt:    msToISO(rec.CreatedAt),
		AnsweredAt:   msToISO(rec.AssignedAt),
		ClosedAt:     msToISO(rec.ClosedAt),
		Direction:    rec.Direction,
		Channel:      "PstnPhone",
		AssigneeID:   rec.AssigneeID,
		AssigneeName: rec.AssigneeName,
		QueueID:      rec.QueueID,
		QueueName:    rec.QueueName,
	}

	answered := rec.AssignedAt != nil
	if rec.CreatedAt != nil && answered {
		r.AnsweredWithin1Min = *rec.AssignedAt-*rec.CreatedAt <= 60_000
	}
	r.TakenFromQueue = answered && rec.QueuedAt != nil
	r.TakenFromForward = answered && rec.QueuedAt == nil
	r.RejectedOrForwarded = !answered
	switch {
	case r.TakenFromQueue:
		r.AssignmentReason = "queue"
	case r.TakenFromForward:
		r.AssignmentReason = "forward"
	}
	return r
}

// computeColumns fills the derived booleans from the timestamp and
// assignment fields. An unanswered conversation counts as rejected or
// forwarded.
func (r *Row) computeColumns() {
	created, createdOK := parseAPITime(r.CreatedAt)
	answered, answeredOK := parseAPITime(r.AnsweredAt)

	r.AnsweredWithin1Min = createdOK && answeredOK && answered.Sub(created) <= time.Minute
	r.TakenFromQueue = r.AssignmentReason == "queue"
	r.TakenFromForward = r.AssignmentReason == "forward"
	r.RejectedOrForwarded = !answeredOK ||
		r.AssignmentReason == "forward" || r.AssignmentReason == "rejected"
}

// enrich overlays fields from the conversation detail endpoint. Metrics
// stay as computed from the export timestamps.
func (r *Row) enrich(d *dixa.ConversationDetail) {
	if d == nil {
		return
	}
	if d.State != "" {
		r.State = d.State
	}
	if d.AnsweredAt != "" {
		r.AnsweredAt = d.AnsweredAt
	}
	if d.Assignment != nil && d.Assignment.Reason != "" {
		r.AssignmentReason = d.Assignment.Reason
	}
	if d.Queue != nil {
		if d.Queue.ID != "" {
			r.QueueID = d.Queue.ID
		}
		if d.Queue.Name != "" {
			r.QueueName = d.Queue.Name
		}
	}
}

func (r Row) record() []string {
	return []string{
		r.ID, r.CreatedAt, r.AnsweredAt, r.ClosedAt,
		r.State, r.Direction, r.Channel,
		r.AssigneeID, r.AssigneeName, r.QueueID, r.QueueName, r.AssignmentReason,
		strconv.FormatBool(r.AnsweredWithin1Min),
		strconv.FormatBool(r.TakenFromQueue),
		strconv.FormatBool(r.TakenFromForward),
		strconv.FormatBool(r.RejectedOrForwarded),
	}
}

// values exposes the row as a plain map for filter rule evaluation. Keys
// match the CSV header.
func (r Row) values() map[string]any {
	return map[string]any{
		"id":                  r.ID,
		"createdAt":           r.CreatedAt,
		"answeredAt":          r.AnsweredAt,
		"closedAt":            r.ClosedAt,
		"state":               r.State,
		"direction":           r.Direction,
		"channel":             r.Channel,
		"assigneeId":          r.AssigneeID,
		"assigneeName":        r.AssigneeName,
		"queueId":             r.QueueID,
		"queueName":           r.QueueName,
		"assignmentReason":    r.AssignmentReason,
		"AnsweredWithin1Min":  r.AnsweredWithin1Min,
		"TakenFromQueue":      r.TakenFromQueue,
		"TakenFromForward":    r.TakenFromForward,
		"RejectedOrForwarded": r.RejectedOrForwarded,
	}
}

// parseAPITime parses the RFC 3339 timestamps the api returns, with or
// without fractional seconds.
func parseAPITime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// msToISO converts a unix-millisecond timestamp to a second-precision
// ISO-8601 Z string, or "" when absent.
func msToISO(ms *int64) string {
	if ms == nil {
		return ""
	}
	return time.UnixMilli(*ms).UTC().Format("2006-01-02T15:04:05Z")
}
