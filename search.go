package dixa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	searchUrl = "/search/conversations"

	// SearchPageLimit is the page size requested from the search api. A
	// page shorter than this ends pagination.
	SearchPageLimit int = 200

	// NoChannelFilter matches conversations on every channel.
	NoChannelFilter string = ""
)

// Conversation is a single record from the search api. Timestamps are the
// ISO-8601 strings the api returns; they are passed through unchanged.
//
// Deployments disagree on whether assignment and queue data is flattened
// onto the record or nested; both shapes are decoded, and the Resolved*
// accessors pick whichever is populated.
type Conversation struct {
	ID         json.Number `json:"id"`
	CreatedAt  string      `json:"createdAt"`
	AnsweredAt string      `json:"answeredAt"`
	ClosedAt   string      `json:"closedAt"`
	State      string      `json:"state"`
	Direction  string      `json:"direction"`

	Channel        string `json:"channel"`
	InitialChannel string `json:"initialChannel"`

	AssigneeID       string      `json:"assigneeId"`
	AssigneeName     string      `json:"assigneeName"`
	AssignmentReason string      `json:"assignmentReason"`
	Assignment       *Assignment `json:"assignment"`

	QueueID   string    `json:"queueId"`
	QueueName string    `json:"queueName"`
	Queue     *QueueRef `json:"queue"`
}

type Assignment struct {
	Reason   string    `json:"reason"`
	Assignee *Assignee `json:"assignee"`
}

type Assignee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type QueueRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResolvedChannel returns the channel, falling back to the initial channel.
func (c Conversation) ResolvedChannel() string {
	if c.Channel != "" {
		return c.Channel
	}
	return c.InitialChannel
}

// ResolvedAssignee returns the assignee id and name from the flat fields or
// the nested assignment object.
func (c Conversation) ResolvedAssignee() (string, string) {
	id, name := c.AssigneeID, c.AssigneeName
	if id == "" && c.Assignment != nil && c.Assignment.Assignee != nil {
		if c.Assignment.Assignee.ID != "" {
			id = c.Assignment.Assignee.ID
		}
		if c.Assignment.Assignee.Name != "" {
			name = c.Assignment.Assignee.Name
		}
	}
	return id, name
}

// ResolvedAssignmentReason returns the assignment reason from the flat
// field or the nested assignment object.
func (c Conversation) ResolvedAssignmentReason() string {
	if c.AssignmentReason != "" {
		return c.AssignmentReason
	}
	if c.Assignment != nil {
		return c.Assignment.Reason
	}
	return ""
}

// ResolvedQueue returns the queue id and name from the flat fields or the
// nested queue object.
func (c Conversation) ResolvedQueue() (string, string) {
	id, name := c.QueueID, c.QueueName
	if c.Queue != nil {
		if id == "" {
			id = c.Queue.ID
		}
		if name == "" {
			name = c.Queue.Name
		}
	}
	return id, name
}

// SearchQuery scopes one page of a conversation search. From and To are the
// inclusive bounds of the createdAt window. Cursor, when set, restricts the
// page to records created strictly after it; pages are always sorted by
// createdAt ascending so the last record of a page is the next cursor.
type SearchQuery struct {
	From    time.Time
	To      time.Time
	Channel string
	Cursor  string
	Limit   int
}

type searchField struct {
	Type string `json:"_type"`
}

type searchCondition struct {
	Field    searchField `json:"field"`
	Operator string      `json:"operator"`
	Value    any         `json:"value"`
}

type searchSort struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

type searchFilters struct {
	Strategy   string            `json:"strategy"`
	Conditions []searchCondition `json:"conditions"`
}

type searchPayload struct {
	Limit   int           `json:"limit"`
	Sort    searchSort    `json:"sort"`
	Filters searchFilters `json:"filters"`
}

func (q SearchQuery) payload() searchPayload {
	limit := q.Limit
	if limit == 0 {
		limit = SearchPageLimit
	}

	var conditions []searchCondition
	if q.Channel != NoChannelFilter {
		conditions = append(conditions, searchCondition{
			Field:    searchField{Type: "ChannelTypeField"},
			Operator: "eq",
			Value:    q.Channel,
		})
	}
	conditions = append(conditions, searchCondition{
		Field:    searchField{Type: "CreatedAtField"},
		Operator: "between",
		Value:    []string{FormatISOZ(q.From), FormatISOZ(q.To)},
	})
	if q.Cursor != "" {
		conditions = append(conditions, searchCondition{
			Field:    searchField{Type: "CreatedAtField"},
			Operator: "gt",
			Value:    q.Cursor,
		})
	}

	return searchPayload{
		Limit: limit,
		Sort:  searchSort{Field: "createdAt", Order: "asc"},
		Filters: searchFilters{
			Strategy:   "and",
			Conditions: conditions,
		},
	}
}

// FormatISOZ renders t as a second-precision UTC ISO-8601 string.
func FormatISOZ(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// SearchConversations calls the search api and returns one page of results.
// https://docs.dixa.io/openapi/dixa-api/v1/tag/Search/
func (c *Client) SearchConversations(ctx context.Context, query SearchQuery) ([]Conversation, error) {
	httpResponse, err := c.doRequest(
		ctx,
		http.MethodPost,
		c.baseEndpoint+searchUrl,
		query.payload(),
		tokenAuth,
		nil,
	)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, newHttpError(httpResponse.StatusCode, httpResponse.Body)
	}

	var envelope json.RawMessage
	if err := json.NewDecoder(httpResponse.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return extractConversations(envelope)
}

// extractConversations pulls the record list out of the search response.
// Deployments differ in envelope shape: a bare array, {"data": [...]}, or
// {"data": {"items"|"matches"|"results"|"conversations": [...]}}.
func extractConversations(envelope json.RawMessage) ([]Conversation, error) {
	var list []Conversation
	if err := json.Unmarshal(envelope, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(envelope, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected search response shape: %w", err)
	}
	if len(wrapped.Data) == 0 {
		return nil, nil
	}

	if err := json.Unmarshal(wrapped.Data, &list); err == nil {
		return list, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(wrapped.Data, &keyed); err != nil {
		return nil, fmt.Errorf("unexpected search response shape: %w", err)
	}
	for _, key := range []string{"items", "matches", "results", "conversations"} {
		raw, ok := keyed[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to decode %q list: %w", key, err)
		}
		return list, nil
	}
	return nil, nil
}
