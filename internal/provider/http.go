package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"competitor-radar/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// businessSchema is the contract of GET {base}/businesses/{id}
const businessSchema = `{
  "type": "object",
  "required": ["id", "rating", "review_count"],
  "properties": {
    "id":            {"type": "string", "minLength": 1},
    "name":          {"type": "string"},
    "rating":        {"type": "number", "minimum": 0, "maximum": 5},
    "review_count":  {"type": "integer", "minimum": 0},
    "photo_count":   {"type": "integer", "minimum": 0},
    "website":       {"type": ["string", "null"]},
    "phone":         {"type": ["string", "null"]},
    "address":       {"type": ["string", "null"]},
    "location": {
      "type": ["object", "null"],
      "required": ["lat", "lng"],
      "properties": {
        "lat": {"type": "number", "minimum": -90,  "maximum": 90},
        "lng": {"type": "number", "minimum": -180, "maximum": 180}
      }
    },
    "categories":    {"type": "array", "items": {"type": "string"}},
    "opening_hours": {"type": "array", "items": {"type": "string"}},
    "updated_at":    {"type": ["string", "null"]}
  }
}`

type businessPayload struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	PhotoCount   int      `json:"photo_count"`
	Website      *string  `json:"website"`
	Phone        *string  `json:"phone"`
	Address      *string  `json:"address"`
	Location     *latLng  `json:"location"`
	Categories   []string `json:"categories"`
	OpeningHours []string `json:"opening_hours"`
	UpdatedAt    *string  `json:"updated_at"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HTTPConfig configures the JSON API provider
type HTTPConfig struct {
	BaseURL   string
	APIKey    string
	UserAgent string
}

// HTTPProvider reads businesses from a JSON API
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	schema *gojsonschema.Schema
}

// NewHTTPProvider creates an API provider
func NewHTTPProvider(cfg HTTPConfig, client *http.Client) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base_url is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(businessSchema))
	if err != nil {
		return nil, fmt.Errorf("compile business schema: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPProvider{cfg: cfg, client: client, schema: schema}, nil
}

// Fetch implements BusinessDataProvider
func (p *HTTPProvider) Fetch(ctx context.Context, businessID string) (*models.CompetitorData, error) {
	endpoint := p.cfg.BaseURL + "/businesses/" + url.PathEscape(businessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, businessID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return p.decode(body)
}

func (p *HTTPProvider) decode(body []byte) (*models.CompetitorData, error) {
	result, err := p.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("provider payload failed validation: %v", errs)
	}

	var payload businessPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	data := &models.CompetitorData{
		ID:          payload.ID,
		Name:        payload.Name,
		Rating:      payload.Rating,
		ReviewCount: payload.ReviewCount,
		PhotoCount:  payload.PhotoCount,
		Website:     deref(payload.Website),
		Phone:       deref(payload.Phone),
		Address:     deref(payload.Address),
		Categories:  payload.Categories,
		Hours:       payload.OpeningHours,
		Raw:         body,
	}
	data.HasWebsite = data.Website != ""
	if payload.Location != nil {
		data.Coordinates = &models.Coordinates{Lat: payload.Location.Lat, Lng: payload.Location.Lng}
	}
	if payload.UpdatedAt != nil {
		if ts, err := time.Parse(time.RFC3339, *payload.UpdatedAt); err == nil {
			ts = ts.UTC()
			data.LastUpdated = &ts
		}
	}
	return data, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
