package service

import (
	"context"
	"errors"
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapOracle answers per-origin distances keyed by latitude.
type mapOracle struct {
	byLat map[float64]float64
	err   error
}

func (o *mapOracle) RouteDistance(ctx context.Context, origin, dest models.Coordinates) (float64, error) {
	if o.err != nil {
		return 0, o.err
	}
	return o.byLat[origin.Lat], nil
}

func TestHaversineKnownPair(t *testing.T) {
	paris := models.Coordinates{Lat: 48.8566, Lng: 2.3522}
	london := models.Coordinates{Lat: 51.5074, Lng: -0.1278}

	km := Haversine(paris, london)
	assert.InDelta(t, 343.5, km, 2.0)

	assert.Zero(t, Haversine(paris, paris))
}

func TestRoundKm(t *testing.T) {
	assert.Equal(t, 30.0, RoundKm(30.04))
	assert.Equal(t, 30.1, RoundKm(30.06))
	assert.Equal(t, 0.0, RoundKm(0.04))
	assert.Equal(t, 12.3, RoundKm(12.25))
}

func TestMaxLegDistance(t *testing.T) {
	oracle := &mapOracle{byLat: map[float64]float64{
		1.0: 4.2,
		2.0: 18.7,
		3.0: 9.1,
	}}
	origins := []models.Coordinates{
		{Lat: 1.0, Lng: 0},
		{Lat: 2.0, Lng: 0},
		{Lat: 3.0, Lng: 0},
	}

	km, idx, known, err := MaxLegDistance(context.Background(), oracle, origins, models.Coordinates{})
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 18.7, km)
	assert.Equal(t, 1, idx, "the farthest origin wins, not the sum of legs")
}

func TestMaxLegDistanceNoOrigins(t *testing.T) {
	_, idx, known, err := MaxLegDistance(context.Background(), &fixedOracle{}, nil, models.Coordinates{})
	require.NoError(t, err)
	assert.False(t, known)
	assert.Equal(t, -1, idx)
}

func TestMaxLegDistanceOracleError(t *testing.T) {
	oracle := &mapOracle{err: errors.New("routing down")}
	origins := []models.Coordinates{{Lat: 1.0}}

	_, _, known, err := MaxLegDistance(context.Background(), oracle, origins, models.Coordinates{})
	assert.Error(t, err)
	assert.False(t, known)
}
