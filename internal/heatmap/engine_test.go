package heatmap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/geo"
	"competitor-radar/internal/heatmap"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/memstore"
	"competitor-radar/internal/models"
	"competitor-radar/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var home = models.Coordinates{Lat: 40, Lng: -75}

type engineFixture struct {
	now       time.Time
	provider  *provider.Static
	snapshots *memstore.Snapshots
	heatmaps  *memstore.Heatmaps
	subs      *memstore.Subscriptions
	engine    *heatmap.Engine
}

func newEngineFixture(t *testing.T, sub models.Subscription) *engineFixture {
	t.Helper()
	f := &engineFixture{
		now:       time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC),
		provider:  provider.NewStatic(),
		snapshots: memstore.NewSnapshots(),
		heatmaps:  memstore.NewHeatmaps(),
		subs:      memstore.NewSubscriptions(sub),
	}
	f.engine = heatmap.NewEngine(heatmap.DefaultParams(), f.snapshots, f.heatmaps, f.subs, f.provider, logger.NewTestLogger(t)).
		WithClock(func() time.Time { return f.now })
	return f
}

func locatedSub(competitors ...string) models.Subscription {
	lat, lng := home.Lat, home.Lng
	return models.Subscription{
		ID:            "sub-1",
		BusinessID:    "biz-1",
		BusinessName:  "Corner Bakery",
		Latitude:      &lat,
		Longitude:     &lng,
		Rating:        3,
		ReviewCount:   5,
		Status:        models.SubscriptionStatusActive,
		CompetitorIDs: competitors,
	}
}

// strongBusiness scores exactly 80: 30 rating, 25 reviews, 5 photos, 20 completeness
func strongBusiness() models.CompetitorData {
	return models.CompetitorData{
		ID:          "biz-1",
		Name:        "Corner Bakery",
		Rating:      5,
		ReviewCount: 1000,
		PhotoCount:  10,
		Phone:       "+15550100",
		Website:     "https://corner.example.com",
		Address:     "1 Main St",
		Categories:  []string{"bakery"},
		Hours:       []string{"Mo-Fr 07:00-18:00"},
	}
}

func (f *engineFixture) seedSnapshot(t *testing.T, competitorID string, loc *models.Coordinates, score float64, capturedAt time.Time) {
	t.Helper()
	err := f.snapshots.Append(context.Background(), &models.CompetitorSnapshot{
		SubscriptionID:  "sub-1",
		CompetitorID:    competitorID,
		CompetitorName:  "Rival " + competitorID,
		Rating:          4.1,
		ReviewCount:     120,
		VisibilityScore: score,
		Metrics:         models.CompetitorData{ID: competitorID, Coordinates: loc},
		CapturedAt:      capturedAt,
	})
	require.NoError(t, err)
}

func at(c models.Coordinates) *models.Coordinates {
	return &c
}

// ============================================================================
// GenerateForSubscription
// ============================================================================

func TestGenerate_FarCompetitorIsOutOfRange(t *testing.T) {
	f := newEngineFixture(t, locatedSub("c1"))
	f.provider.Set("biz-1", strongBusiness())
	f.seedSnapshot(t, "c1", at(geo.DestinationMeters(home, 90, 1800)), 70, f.now.Add(-time.Hour))

	h, err := f.engine.Generate(context.Background(), "sub-1")
	require.NoError(t, err)

	assert.NotEmpty(t, h.ID)
	assert.Equal(t, 80.0, h.BusinessScore)
	assert.InDelta(t, 1700, h.RadiusMeters, 1e-9)
	assert.Empty(t, h.Competitors)
	assert.Equal(t, 100.0, h.DominanceScore)
	assert.Len(t, h.Grid, 9)
	assert.Nil(t, h.PreviousHeatmapID)
	assert.Nil(t, h.AreaGrowthPercent)
	assert.Equal(t, f.now, h.SnapshotsAsOf)

	// the gravitational index still sees the far competitor
	require.Len(t, h.DominanceIndex.Threats, 1)
	assert.Equal(t, "km", h.DominanceIndex.Unit)

	sub, err := f.subs.Get(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, sub.LastHeatmapAt)
	assert.Equal(t, f.now, *sub.LastHeatmapAt)
}

func TestGenerate_NearCompetitorLowersDominance(t *testing.T) {
	f := newEngineFixture(t, locatedSub("c1"))
	f.provider.Set("biz-1", strongBusiness())
	f.seedSnapshot(t, "c1", at(geo.DestinationMeters(home, 0, 400)), 80, f.now.Add(-time.Hour))

	h, err := f.engine.Generate(context.Background(), "sub-1")
	require.NoError(t, err)

	require.Len(t, h.Competitors, 1)
	assert.Equal(t, "c1", h.Competitors[0].CompetitorID)
	assert.InDelta(t, 400, h.Competitors[0].DistanceMeters, 0.5)
	assert.Equal(t, 95.0, h.DominanceScore)
}

func TestGenerate_ChainsPreviousHeatmap(t *testing.T) {
	f := newEngineFixture(t, locatedSub("c1"))
	f.provider.Set("biz-1", strongBusiness())
	f.seedSnapshot(t, "c1", at(geo.DestinationMeters(home, 90, 1800)), 70, f.now.Add(-time.Hour))
	ctx := context.Background()

	first, err := f.engine.Generate(ctx, "sub-1")
	require.NoError(t, err)

	f.now = f.now.Add(30 * 24 * time.Hour)
	second, err := f.engine.Generate(ctx, "sub-1")
	require.NoError(t, err)

	require.NotNil(t, second.PreviousHeatmapID)
	assert.Equal(t, first.ID, *second.PreviousHeatmapID)
	require.NotNil(t, second.AreaGrowthPercent)
	require.NotNil(t, second.DominanceChange)
	assert.Equal(t, 0.0, *second.AreaGrowthPercent)
	assert.Equal(t, 0.0, *second.DominanceChange)

	history, err := f.heatmaps.History(ctx, "sub-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestGenerate_SkipsCompetitorsWithoutCoordinates(t *testing.T) {
	f := newEngineFixture(t, locatedSub("c1", "c2", "c3"))
	f.provider.Set("biz-1", strongBusiness())
	f.seedSnapshot(t, "c1", nil, 90, f.now.Add(-time.Hour))
	f.seedSnapshot(t, "c2", at(geo.DestinationMeters(home, 180, 300)), 60, f.now.Add(-time.Hour))
	// c3 was never scanned

	h, err := f.engine.Generate(context.Background(), "sub-1")
	require.NoError(t, err)

	require.Len(t, h.Competitors, 1)
	assert.Equal(t, "c2", h.Competitors[0].CompetitorID)
	assert.Len(t, h.DominanceIndex.Threats, 1)
}

func TestGenerate_IgnoresSnapshotsAfterAsOf(t *testing.T) {
	f := newEngineFixture(t, locatedSub("c1"))
	f.provider.Set("biz-1", strongBusiness())
	f.seedSnapshot(t, "c1", at(geo.DestinationMeters(home, 90, 1800)), 70, f.now.Add(-time.Hour))
	f.seedSnapshot(t, "c1", at(geo.DestinationMeters(home, 0, 100)), 95, f.now.Add(time.Hour))

	h, err := f.engine.Generate(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Empty(t, h.Competitors)
	assert.Equal(t, 100.0, h.DominanceScore)
}

func TestGenerate_ProviderFailureUsesStoredMetrics(t *testing.T) {
	f := newEngineFixture(t, locatedSub())
	f.provider.Fail("biz-1", errors.New("quota exceeded"))

	h, err := f.engine.Generate(context.Background(), "sub-1")
	require.NoError(t, err)

	// rating 3 and five reviews from the subscription row
	assert.InDelta(t, 18+8.96, h.BusinessScore, 0.01)
	assert.Equal(t, 1, f.provider.CallCount("biz-1"))
}

type hangingProvider struct{}

func (hangingProvider) Fetch(ctx context.Context, _ string) (*models.CompetitorData, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerate_HungProviderTimesOut(t *testing.T) {
	sub := locatedSub()
	params := heatmap.DefaultParams()
	params.FetchTimeout = 50 * time.Millisecond
	engine := heatmap.NewEngine(params, memstore.NewSnapshots(), memstore.NewHeatmaps(),
		memstore.NewSubscriptions(sub), hangingProvider{}, logger.NewTestLogger(t))

	start := time.Now()
	h, err := engine.Generate(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.InDelta(t, 26.96, h.BusinessScore, 0.01)

	start = time.Now()
	idx, err := engine.DominanceIndexFor(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, float64(15), idx.ClientPower)
}

func TestGenerate_WithoutProviderUsesStoredMetrics(t *testing.T) {
	sub := locatedSub()
	snaps, maps, subs := memstore.NewSnapshots(), memstore.NewHeatmaps(), memstore.NewSubscriptions(sub)
	engine := heatmap.NewEngine(heatmap.DefaultParams(), snaps, maps, subs, nil, logger.NewNoOpLogger())

	h, err := engine.Generate(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.InDelta(t, 26.96, h.BusinessScore, 0.01)
}

func TestGenerate_RequiresLocation(t *testing.T) {
	sub := locatedSub("c1")
	sub.Latitude = nil
	f := newEngineFixture(t, sub)

	_, err := f.engine.Generate(context.Background(), "sub-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 0, f.provider.CallCount("biz-1"))
}

func TestGenerate_UnknownSubscription(t *testing.T) {
	f := newEngineFixture(t, locatedSub())

	_, err := f.engine.Generate(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

// ============================================================================
// IsDue
// ============================================================================

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name     string
		located  bool
		lastHeat *time.Time
		want     bool
	}{
		{"no location", false, nil, false},
		{"never generated", true, nil, true},
		{"fresh", true, ago(29 * 24 * time.Hour), false},
		{"exactly stale", true, ago(30 * 24 * time.Hour), true},
		{"long stale", true, ago(90 * 24 * time.Hour), true},
	}

	engine := heatmap.NewEngine(heatmap.DefaultParams(), nil, nil, nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := locatedSub()
			if !tt.located {
				sub.Longitude = nil
			}
			sub.LastHeatmapAt = tt.lastHeat
			assert.Equal(t, tt.want, engine.IsDue(&sub, now))
		})
	}
}

// ============================================================================
// DominanceIndexFor
// ============================================================================

func TestDominanceIndexFor_DoesNotStore(t *testing.T) {
	sub := locatedSub("c1")
	sub.Locale = "en-US"
	f := newEngineFixture(t, sub)
	f.provider.Set("biz-1", strongBusiness())
	f.seedSnapshot(t, "c1", at(geo.DestinationMeters(home, 0, 1609.344)), 70, f.now.Add(-time.Hour))

	idx, err := f.engine.DominanceIndexFor(context.Background(), "sub-1")
	require.NoError(t, err)

	assert.Equal(t, "mi", idx.Unit)
	assert.Equal(t, 5000.0, idx.ClientPower)
	require.NotNil(t, idx.PrincipalThreat)
	assert.Equal(t, "c1", idx.PrincipalThreat.CompetitorID)
	assert.InDelta(t, 1.0, idx.PrincipalThreat.Distance, 0.01)

	latest, err := f.heatmaps.Latest(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Nil(t, latest)
}
