package heatmap

import (
	"sort"

	"competitor-radar/internal/geo"
	"competitor-radar/internal/models"
)

// attractionEpsilon keeps co-located competitors finite
const attractionEpsilon = 1e-6

// Business is the client business as seen by the gravitational model
type Business struct {
	Location    models.Coordinates
	Rating      float64
	ReviewCount int
}

// DominanceIndex estimates the share of local demand the business attracts, Reilly's-law
// style: every competitor pulls with rating*reviews/distance^2.
func DominanceIndex(b Business, competitors []Competitor, unit geo.Unit) models.DominanceIndex {
	result := models.DominanceIndex{
		Unit:        string(unit),
		ClientPower: b.Rating * float64(b.ReviewCount),
		Threats:     make([]models.CompetitorThreat, 0, len(competitors)),
	}

	for _, c := range competitors {
		d := geo.Distance(b.Location, c.Location, unit)
		attraction := c.Rating * float64(c.ReviewCount) / (d*d + attractionEpsilon)
		result.TotalAttraction += attraction
		result.Threats = append(result.Threats, models.CompetitorThreat{
			CompetitorID: c.ID,
			Name:         c.Name,
			Distance:     d,
			Attraction:   attraction,
		})
	}

	sort.SliceStable(result.Threats, func(i, j int) bool {
		return result.Threats[i].Attraction > result.Threats[j].Attraction
	})
	if len(result.Threats) > 0 {
		top := result.Threats[0]
		result.PrincipalThreat = &top
	}

	if denom := result.ClientPower + result.TotalAttraction; denom > 0 {
		result.Index = result.ClientPower / denom
	}
	return result
}
