package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"competitor-radar/internal/models"
	"competitor-radar/internal/ratelimit"

	"github.com/PuerkitoBio/goquery"
)

// PageFetcher returns the HTML of a public business page
type PageFetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

// HTTPPageFetcher downloads pages with a plain HTTP client
type HTTPPageFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPPageFetcher creates a fetcher
func NewHTTPPageFetcher(client *http.Client, userAgent string) *HTTPPageFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPPageFetcher{client: client, userAgent: userAgent}
}

// FetchHTML implements PageFetcher
func (f *HTTPPageFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, pageURL)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// PageProvider extracts business metrics from the schema.org JSON-LD of a public page
type PageProvider struct {
	urlTemplate string
	fetcher     PageFetcher
	pacer       *ratelimit.Pacer
}

// NewPageProvider creates a page provider. urlTemplate contains one %s for the business id.
func NewPageProvider(urlTemplate string, fetcher PageFetcher) *PageProvider {
	return &PageProvider{urlTemplate: urlTemplate, fetcher: fetcher}
}

// WithPacer caps concurrent page loads
func (p *PageProvider) WithPacer(pacer *ratelimit.Pacer) *PageProvider {
	p.pacer = pacer
	return p
}

// Fetch implements BusinessDataProvider
func (p *PageProvider) Fetch(ctx context.Context, businessID string) (*models.CompetitorData, error) {
	pageURL := fmt.Sprintf(p.urlTemplate, url.PathEscape(businessID))
	if p.pacer != nil {
		if err := p.pacer.Acquire(ctx); err != nil {
			return nil, err
		}
		defer p.pacer.Release()
	}
	html, err := p.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	data, err := ParseBusinessPage(html)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pageURL, err)
	}
	if data.ID == "" {
		data.ID = businessID
	}
	return data, nil
}

// ParseBusinessPage reads the first LocalBusiness-like JSON-LD block of a page
func ParseBusinessPage(html string) (*models.CompetitorData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var business map[string]interface{}
	var raw string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		var decoded interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return true
		}
		if b := findBusiness(decoded); b != nil {
			business = b
			raw = text
			return false
		}
		return true
	})
	if business == nil {
		return nil, fmt.Errorf("no business JSON-LD found")
	}

	data := &models.CompetitorData{
		ID:         str(business["@id"]),
		Name:       str(business["name"]),
		Phone:      str(business["telephone"]),
		Website:    str(business["url"]),
		Address:    address(business["address"]),
		Categories: strList(business["servesCuisine"]),
		Hours:      strList(business["openingHours"]),
		PhotoCount: len(strList(business["image"])),
		Raw:        []byte(raw),
	}
	data.HasWebsite = data.Website != ""
	if t := str(business["@type"]); t != "" && len(data.Categories) == 0 {
		data.Categories = []string{t}
	}

	if agg, ok := business["aggregateRating"].(map[string]interface{}); ok {
		data.Rating = num(agg["ratingValue"])
		data.ReviewCount = int(num(agg["reviewCount"]))
		if data.ReviewCount == 0 {
			data.ReviewCount = int(num(agg["ratingCount"]))
		}
	}
	if geo, ok := business["geo"].(map[string]interface{}); ok {
		data.Coordinates = &models.Coordinates{Lat: num(geo["latitude"]), Lng: num(geo["longitude"])}
	}
	if ts, err := time.Parse(time.RFC3339, str(business["dateModified"])); err == nil {
		ts = ts.UTC()
		data.LastUpdated = &ts
	}

	// fall back to og:title when the JSON-LD carries no name
	if data.Name == "" {
		data.Name, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	}
	return data, nil
}

// findBusiness walks arrays and @graph containers for an object with aggregateRating
func findBusiness(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			if b := findBusiness(item); b != nil {
				return b
			}
		}
	case map[string]interface{}:
		if _, ok := t["aggregateRating"]; ok {
			return t
		}
		if graph, ok := t["@graph"]; ok {
			return findBusiness(graph)
		}
	}
	return nil
}

func str(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		if len(t) > 0 {
			return str(t[0])
		}
	}
	return ""
}

func num(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func strList(v interface{}) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := str(item); s != "" {
				out = append(out, s)
			} else if m, ok := item.(map[string]interface{}); ok && str(m["url"]) != "" {
				out = append(out, str(m["url"]))
			}
		}
		return out
	}
	return nil
}

func address(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		parts := make([]string, 0, 4)
		for _, key := range []string{"streetAddress", "addressLocality", "postalCode", "addressCountry"} {
			if s := str(t[key]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
