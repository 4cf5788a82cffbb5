// Package search mirrors alerts into Meilisearch for full-text lookup.
package search

import (
	"context"
	"strings"
	"time"

	"competitor-radar/internal/models"

	"github.com/meilisearch/meilisearch-go"
)

// AlertDocument is the flattened alert stored in the index
type AlertDocument struct {
	ID              string   `json:"id"`
	SubscriptionID  string   `json:"subscription_id"`
	CompetitorID    string   `json:"competitor_id"`
	CompetitorName  string   `json:"competitor_name"`
	Severity        string   `json:"severity"`
	Type            string   `json:"type"`
	Status          string   `json:"status"`
	Title           string   `json:"title"`
	Message         string   `json:"message"`
	Recommendations []string `json:"recommendations"`
	ScoreDelta      float64  `json:"score_delta"`
	ReviewDelta     int      `json:"review_delta"`
	CreatedAt       int64    `json:"created_at"`
}

// NewAlertDocument flattens an alert for indexing
func NewAlertDocument(a models.Alert) AlertDocument {
	return AlertDocument{
		ID:              a.ID,
		SubscriptionID:  a.SubscriptionID,
		CompetitorID:    a.CompetitorID,
		CompetitorName:  a.CompetitorName,
		Severity:        string(a.Severity),
		Type:            string(a.Type),
		Status:          string(a.Status),
		Title:           a.Title,
		Message:         a.Message,
		Recommendations: a.Recommendations,
		ScoreDelta:      a.Trigger.Deltas.Score,
		ReviewDelta:     a.Trigger.Deltas.Reviews,
		CreatedAt:       a.CreatedAt.Unix(),
	}
}

// AlertIndex is the Meilisearch alert index
type AlertIndex struct {
	client *meilisearch.Client
	index  string
}

// NewAlertIndex creates an index client
func NewAlertIndex(host, apiKey, index string) *AlertIndex {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "alerts"
	}
	return &AlertIndex{client: client, index: index}
}

// InitIndex creates the index and configures its attributes
func (s *AlertIndex) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	idx := s.client.Index(s.index)
	if _, err := idx.UpdateSearchableAttributes(&[]string{
		"title",
		"competitor_name",
		"message",
		"recommendations",
	}); err != nil {
		return err
	}
	if _, err := idx.UpdateFilterableAttributes(&[]string{
		"subscription_id",
		"competitor_id",
		"severity",
		"type",
		"status",
		"created_at",
	}); err != nil {
		return err
	}
	_, err = idx.UpdateSortableAttributes(&[]string{
		"created_at",
		"score_delta",
		"review_delta",
	})
	return err
}

// IndexAlerts upserts alerts. The Meilisearch task runs asynchronously.
func (s *AlertIndex) IndexAlerts(_ context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	docs := make([]AlertDocument, 0, len(alerts))
	for _, a := range alerts {
		docs = append(docs, NewAlertDocument(a))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs)
	return err
}

// DeleteSubscription removes every indexed alert of a subscription
func (s *AlertIndex) DeleteSubscription(_ context.Context, subscriptionID string) error {
	_, err := s.client.Index(s.index).DeleteDocumentsByFilter(
		(AlertFilter{SubscriptionID: subscriptionID}).String())
	return err
}

// SearchResult holds one page of matching alerts
type SearchResult struct {
	Hits           []AlertDocument        `json:"hits"`
	TotalHits      int64                  `json:"total_hits"`
	Facets         map[string]interface{} `json:"facets,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

// Search runs a full-text query narrowed by filter
func (s *AlertIndex) Search(_ context.Context, query string, filter AlertFilter) (*SearchResult, error) {
	if filter.Limit == 0 {
		filter.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Sort:   []string{"created_at:desc"},
		Facets: []string{"severity", "status"},
	}
	if f := filter.String(); f != "" {
		searchReq.Filter = f
	}

	searchRes, err := s.client.Index(s.index).Search(query, searchReq)
	if err != nil {
		return nil, err
	}

	hits := make([]AlertDocument, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		if m, ok := hit.(map[string]interface{}); ok {
			hits = append(hits, documentFromHit(m))
		}
	}

	var facets map[string]interface{}
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	return &SearchResult{
		Hits:           hits,
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

// documentFromHit converts a search hit to an AlertDocument
func documentFromHit(m map[string]interface{}) AlertDocument {
	doc := AlertDocument{
		ID:             getString(m, "id"),
		SubscriptionID: getString(m, "subscription_id"),
		CompetitorID:   getString(m, "competitor_id"),
		CompetitorName: getString(m, "competitor_name"),
		Severity:       getString(m, "severity"),
		Type:           getString(m, "type"),
		Status:         getString(m, "status"),
		Title:          getString(m, "title"),
		Message:        getString(m, "message"),
	}
	if v, ok := m["score_delta"].(float64); ok {
		doc.ScoreDelta = v
	}
	if v, ok := m["review_delta"].(float64); ok {
		doc.ReviewDelta = int(v)
	}
	if v, ok := m["created_at"].(float64); ok {
		doc.CreatedAt = int64(v)
	}
	if recs, ok := m["recommendations"].([]interface{}); ok {
		for _, r := range recs {
			if s, ok := r.(string); ok {
				doc.Recommendations = append(doc.Recommendations, s)
			}
		}
	}
	return doc
}

// CreatedTime returns the document creation time in UTC
func (d AlertDocument) CreatedTime() time.Time {
	return time.Unix(d.CreatedAt, 0).UTC()
}

// getString safely extracts a string from map
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}
