package dixa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	conversationExportUrl = "/conversation_export"
	conversationsUrl      = "/conversations/"
)

// ExportRecord is one row from the exports api. Timestamps are unix
// milliseconds; pointers distinguish "never happened" from zero.
type ExportRecord struct {
	ID             json.Number `json:"id"`
	CreatedAt      *int64      `json:"created_at"`
	QueuedAt       *int64      `json:"queued_at"`
	AssignedAt     *int64      `json:"assigned_at"`
	ClosedAt       *int64      `json:"closed_at"`
	Direction      string      `json:"direction"`
	InitialChannel string      `json:"initial_channel"`
	AssigneeID     string      `json:"assignee_id"`
	AssigneeName   string      `json:"assignee_name"`
	QueueID        string      `json:"queue_id"`
	QueueName      string      `json:"queue_name"`
}

// ConversationExport lists every conversation created inside the
// [createdAfter, createdBefore] window from the exports api. Dates are sent
// at day granularity; this host always uses the bearer auth scheme.
// https://docs.dixa.io/openapi/dixa-export/v1/tag/Conversation-Export/
func (c *Client) ConversationExport(ctx context.Context, createdAfter, createdBefore time.Time) ([]ExportRecord, error) {
	query := url.Values{}
	query.Add("created_after", createdAfter.UTC().Format("2006-01-02"))
	query.Add("created_before", createdBefore.UTC().Format("2006-01-02"))

	httpResponse, err := c.doRequest(
		ctx,
		http.MethodGet,
		c.exportsEndpoint+conversationExportUrl,
		nil,
		bearerAuth,
		query,
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
		return nil, fmt.Errorf("failed to decode exports response: %w", err)
	}

	// Some deployments return a bare array, others wrap it in "data".
	var records []ExportRecord
	if err := json.Unmarshal(envelope, &records); err == nil {
		return records, nil
	}
	var wrapped struct {
		Data []ExportRecord `json:"data"`
	}
	if err := json.Unmarshal(envelope, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected exports response shape: %w", err)
	}
	return wrapped.Data, nil
}

// ConversationDetail is the subset of the conversation detail payload used
// to enrich export records.
type ConversationDetail struct {
	State      string      `json:"state"`
	AnsweredAt string      `json:"answeredAt"`
	Assignment *Assignment `json:"assignment"`
	Queue      *QueueRef   `json:"queue"`
}

// GetConversation fetches one conversation's details from the v1 api.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	httpResponse, err := c.doRequest(
		ctx,
		http.MethodGet,
		c.baseEndpoint+conversationsUrl+id,
		nil,
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

	var wrapped struct {
		Data *ConversationDetail `json:"data"`
	}
	if err := json.NewDecoder(httpResponse.Body).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode conversation detail: %w", err)
	}
	return wrapped.Data, nil
}
