package models

import "fmt"

// QueryRequest is a similarity query with a result limit.
type QueryRequest struct {
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
	Highlights bool   `json:"highlights,omitempty"`
}

// Validate ensures the query has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes the limit.
func (q *QueryRequest) Validate(defaultLimit, maxLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}

// QueryResult is a single similarity-search hit, in ranking order.
type QueryResult struct {
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// HighlightRegion is a rectangle on a rendered page where a retrieved
// excerpt was located. Derived per query, never persisted.
type HighlightRegion struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DispatchResult reports how many URLs were sent to the work queue and how
// many failed. Partial dispatch is an expected, reportable outcome.
type DispatchResult struct {
	Sent   int `json:"sent_to_queue"`
	Failed int `json:"failed_to_send"`
}
