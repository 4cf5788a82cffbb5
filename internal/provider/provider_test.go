package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"
	"competitor-radar/internal/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBusiness = `{
  "id": "comp-1",
  "name": "Blue Bottle",
  "rating": 4.6,
  "review_count": 230,
  "photo_count": 18,
  "website": "https://bluebottle.example",
  "phone": "+1 555 0100",
  "address": "1 Main St",
  "location": {"lat": 40.01, "lng": -75.02},
  "categories": ["cafe"],
  "opening_hours": ["Mo-Fr 07:00-18:00"],
  "updated_at": "2026-09-30T10:00:00Z"
}`

// ==========================
// HTTP provider
// ==========================

func TestHTTPProvider_Fetch(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		checkErr   func(t *testing.T, err error)
		checkValue func(t *testing.T, d *models.CompetitorData)
	}{
		{
			name:   "valid payload",
			status: http.StatusOK,
			body:   validBusiness,
			checkValue: func(t *testing.T, d *models.CompetitorData) {
				assert.Equal(t, "comp-1", d.ID)
				assert.Equal(t, "Blue Bottle", d.Name)
				assert.Equal(t, 4.6, d.Rating)
				assert.Equal(t, 230, d.ReviewCount)
				assert.Equal(t, 18, d.PhotoCount)
				assert.True(t, d.HasWebsite)
				require.NotNil(t, d.Coordinates)
				assert.Equal(t, 40.01, d.Coordinates.Lat)
				require.NotNil(t, d.LastUpdated)
				assert.Equal(t, []string{"Mo-Fr 07:00-18:00"}, d.Hours)
				assert.JSONEq(t, validBusiness, string(d.Raw))
			},
		},
		{
			name:    "rating out of range fails schema",
			status:  http.StatusOK,
			body:    `{"id": "comp-1", "rating": 7, "review_count": 3}`,
			wantErr: true,
		},
		{
			name:    "missing review_count fails schema",
			status:  http.StatusOK,
			body:    `{"id": "comp-1", "rating": 4}`,
			wantErr: true,
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				assert.Equal(t, http.StatusInternalServerError, statusCodeOf(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/businesses/comp-1", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret"}, srv.Client())
			require.NoError(t, err)

			d, err := p.Fetch(context.Background(), "comp-1")
			if tt.wantErr {
				require.Error(t, err)
				if tt.checkErr != nil {
					tt.checkErr(t, err)
				}
				return
			}
			require.NoError(t, err)
			tt.checkValue(t, d)
		})
	}
}

func TestNewHTTPProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPProvider(HTTPConfig{}, nil)
	assert.Error(t, err)
}

// ==========================
// Page provider
// ==========================

const businessPage = `<!doctype html>
<html><head>
<meta property="og:title" content="Corner Bakery">
<script type="application/ld+json">{"@context":"https://schema.org","@type":"BreadcrumbList"}</script>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebSite","name":"ignored"},
  {"@type":"Bakery",
   "telephone":"+1 555 0199",
   "url":"https://corner.example",
   "address":{"streetAddress":"5 Elm St","addressLocality":"Springfield"},
   "geo":{"latitude":"40.005","longitude":"-75.001"},
   "image":["a.jpg","b.jpg",{"url":"c.jpg"}],
   "openingHours":"Tu-Su 06:00-14:00",
   "aggregateRating":{"ratingValue":"4.2","reviewCount":"87"}}
]}
</script>
</head><body></body></html>`

func TestParseBusinessPage(t *testing.T) {
	d, err := ParseBusinessPage(businessPage)
	require.NoError(t, err)

	assert.Equal(t, "Corner Bakery", d.Name)
	assert.Equal(t, 4.2, d.Rating)
	assert.Equal(t, 87, d.ReviewCount)
	assert.Equal(t, 3, d.PhotoCount)
	assert.Equal(t, "+1 555 0199", d.Phone)
	assert.True(t, d.HasWebsite)
	assert.Equal(t, "5 Elm St, Springfield", d.Address)
	assert.Equal(t, []string{"Bakery"}, d.Categories)
	assert.Equal(t, []string{"Tu-Su 06:00-14:00"}, d.Hours)
	require.NotNil(t, d.Coordinates)
	assert.Equal(t, 40.005, d.Coordinates.Lat)
	assert.Equal(t, -75.001, d.Coordinates.Lng)
}

func TestParseBusinessPage_NoJSONLD(t *testing.T) {
	_, err := ParseBusinessPage(`<html><body>nothing</body></html>`)
	assert.Error(t, err)
}

type fakeFetcher struct {
	html string
	url  string
}

func (f *fakeFetcher) FetchHTML(_ context.Context, pageURL string) (string, error) {
	f.url = pageURL
	return f.html, nil
}

func TestPageProvider_Fetch(t *testing.T) {
	fetcher := &fakeFetcher{html: businessPage}
	p := NewPageProvider("https://maps.example/place/%s", fetcher)

	d, err := p.Fetch(context.Background(), "place 1")
	require.NoError(t, err)
	assert.Equal(t, "https://maps.example/place/place%201", fetcher.url)
	assert.Equal(t, "place 1", d.ID)
}

type slowFetcher struct {
	pacer   *ratelimit.Pacer
	maxSeen int32
	mu      sync.Mutex
}

func (f *slowFetcher) FetchHTML(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	if n := int32(f.pacer.InFlight()); n > f.maxSeen {
		f.maxSeen = n
	}
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return businessPage, nil
}

func TestPageProvider_PacerLimitsConcurrentLoads(t *testing.T) {
	pacer := ratelimit.NewPacer(1, 0, 0)
	fetcher := &slowFetcher{pacer: pacer}
	p := NewPageProvider("https://maps.example/place/%s", fetcher).WithPacer(pacer)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Fetch(context.Background(), "place-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.maxSeen)
	assert.Equal(t, 0, pacer.InFlight())
}

func TestHTTPPageFetcher_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			_, _ = w.Write([]byte(businessPage))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTPPageFetcher(srv.Client(), "radar-test")
	html, err := f.FetchHTML(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, html, "aggregateRating")

	_, err = f.FetchHTML(context.Background(), srv.URL+"/blocked")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, statusCodeOf(err))
}

// ==========================
// Guard and circuit breaker
// ==========================

func TestCircuitBreaker_OpensOnConsecutiveBlockingErrors(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute, logger.NewTestLogger(t))
	cb.now = func() time.Time { return now }

	cb.RecordFailure(500)
	assert.True(t, cb.CanProceed())
	cb.RecordFailure(429)
	assert.False(t, cb.CanProceed())
	assert.True(t, cb.GetStatus().Open)

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.CanProceed(), "half-open after reset timeout")
	assert.False(t, cb.GetStatus().Open)
}

func TestCircuitBreaker_FailureRate(t *testing.T) {
	cb := NewCircuitBreaker(100, time.Hour, nil)
	for i := 0; i < 12; i++ {
		cb.RecordSuccess()
	}
	for i := 0; i < 8; i++ {
		cb.RecordFailure(404)
	}
	assert.False(t, cb.CanProceed())
}

func TestGuard_StopsCallingAfterBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	g := NewGuard(p, ratelimit.NewRateLimiter(100, 0, 0, true), NewCircuitBreaker(2, time.Hour, nil), nil)

	for i := 0; i < 2; i++ {
		_, err := g.Fetch(context.Background(), "x")
		require.Error(t, err)
	}
	_, err = g.Fetch(context.Background(), "x")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	status := g.Status()
	assert.Contains(t, status, "circuit_breaker")
	assert.Contains(t, status, "rate_limit")
}

func TestGuard_NotFoundDoesNotTrip(t *testing.T) {
	static := NewStatic()
	g := NewGuard(static, nil, NewCircuitBreaker(1, time.Hour, nil), nil)

	for i := 0; i < 3; i++ {
		_, err := g.Fetch(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 3, static.CallCount("missing"))
}

// ==========================
// Redis cache
// ==========================

func TestCache_CacheAside(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	static := NewStatic().Set("comp-1", models.CompetitorData{
		Name:        "Cafe",
		Rating:      4.1,
		ReviewCount: 40,
		Raw:         []byte(`{"id":"comp-1"}`),
	})
	c := NewCache(static, rdb, time.Hour, logger.NewTestLogger(t))

	first, err := c.Fetch(context.Background(), "comp-1")
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), "comp-1")
	require.NoError(t, err)

	assert.Equal(t, 1, static.CallCount("comp-1"))
	assert.Equal(t, first.ReviewCount, second.ReviewCount)
	assert.JSONEq(t, `{"id":"comp-1"}`, string(second.Raw))
	assert.True(t, mr.Exists(cacheKeyPrefix+"comp-1"))
	assert.Equal(t, time.Hour, mr.TTL(cacheKeyPrefix+"comp-1"))

	require.NoError(t, c.Invalidate(context.Background(), "comp-1"))
	_, err = c.Fetch(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, static.CallCount("comp-1"))
}

func TestCache_RedisErrorFallsThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	static := NewStatic().Set("comp-2", models.CompetitorData{Name: "Deli", Rating: 3.9})

	data, _ := json.Marshal(cachedBusiness{Data: models.CompetitorData{ID: "comp-2", Name: "Deli", Rating: 3.9}})
	mock.ExpectGet(cacheKeyPrefix + "comp-2").SetErr(errors.New("connection refused"))
	mock.ExpectSet(cacheKeyPrefix+"comp-2", data, time.Minute).SetErr(errors.New("connection refused"))

	c := NewCache(static, rdb, time.Minute, nil)
	d, err := c.Fetch(context.Background(), "comp-2")
	require.NoError(t, err)
	assert.Equal(t, "Deli", d.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_ProviderErrorNotCached(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	static := NewStatic().Fail("comp-3", errors.New("boom"))
	c := NewCache(static, rdb, time.Hour, nil)

	_, err = c.Fetch(context.Background(), "comp-3")
	assert.Error(t, err)
	assert.False(t, mr.Exists(cacheKeyPrefix+"comp-3"))
}
