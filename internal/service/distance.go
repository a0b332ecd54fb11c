package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// distance lookups fan out with at most this many in flight
const maxDistanceLookups = 4

const distanceCacheTTL = 24 * time.Hour

// DistanceOracle answers driving distance between two coordinates in km.
type DistanceOracle interface {
	RouteDistance(ctx context.Context, origin, dest models.Coordinates) (float64, error)
}

type distanceCache interface {
	GetCachedDistance(ctx context.Context, oLat, oLng, dLat, dLng float64) (float64, bool, error)
	SetCachedDistance(ctx context.Context, oLat, oLng, dLat, dLng, km float64, ttl time.Duration) error
}

// RoutingOracle resolves driving distance through an OSRM-compatible routing
// service, with a straight-line estimate as fallback when the lookup fails.
// Results are cached in Redis keyed by the coordinate pair.
type RoutingOracle struct {
	baseURL string
	client  *http.Client
	cache   distanceCache
	logger  *zap.Logger
}

// NewRoutingOracle creates a routing-backed distance oracle. The cache may
// be nil, in which case every call hits the routing service.
func NewRoutingOracle(baseURL string, cache distanceCache) *RoutingOracle {
	return &RoutingOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   cache,
		logger:  util.GetLogger(),
	}
}

type routingResponse struct {
	Routes []struct {
		Distance float64 `json:"distance"` // meters
	} `json:"routes"`
}

// RouteDistance returns the driving distance in km. The routing service is
// consulted first; on any failure the haversine estimate (with a road
// winding factor) is returned instead, so a distance lookup never fails the
// checkout that asked for it.
func (o *RoutingOracle) RouteDistance(ctx context.Context, origin, dest models.Coordinates) (float64, error) {
	if o.cache != nil {
		km, hit, err := o.cache.GetCachedDistance(ctx, origin.Lat, origin.Lng, dest.Lat, dest.Lng)
		if err != nil {
			o.logger.Warn("Distance cache read failed", zap.Error(err))
		} else if hit {
			return km, nil
		}
	}

	start := time.Now()
	km, err := o.routeDistance(ctx, origin, dest)
	util.DistanceLookupLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.DistanceLookupFallbacks.Inc()
		o.logger.Warn("Routing lookup failed, using straight-line estimate",
			zap.Float64("origin_lat", origin.Lat),
			zap.Float64("dest_lat", dest.Lat),
			zap.Error(err))
		km = Haversine(origin, dest) * roadWindingFactor
	}

	if o.cache != nil {
		if err := o.cache.SetCachedDistance(ctx, origin.Lat, origin.Lng, dest.Lat, dest.Lng, km, distanceCacheTTL); err != nil {
			o.logger.Warn("Distance cache write failed", zap.Error(err))
		}
	}
	return km, nil
}

func (o *RoutingOracle) routeDistance(ctx context.Context, origin, dest models.Coordinates) (float64, error) {
	url := fmt.Sprintf("%s/%f,%f;%f,%f?overview=false",
		o.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("routing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("routing service returned status %d", resp.StatusCode)
	}

	var parsed routingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode routing response: %w", err)
	}
	if len(parsed.Routes) == 0 {
		return 0, fmt.Errorf("routing service returned no routes")
	}

	return parsed.Routes[0].Distance / 1000.0, nil
}

// roadWindingFactor scales the great-circle distance up to approximate a
// driving route.
const roadWindingFactor = 1.3

const earthRadiusKm = 6371.0

// Haversine computes the great-circle distance between two points in km.
func Haversine(a, b models.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// MaxLegDistance resolves the seller→buyer distance for every origin and
// returns the maximum single leg. Lookups are independent and run with
// bounded concurrency. Returns false when no origin is known.
func MaxLegDistance(ctx context.Context, oracle DistanceOracle, origins []models.Coordinates, dest models.Coordinates) (float64, int, bool, error) {
	if len(origins) == 0 {
		return 0, -1, false, nil
	}

	var mu sync.Mutex
	maxKm := -1.0
	maxIdx := -1

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDistanceLookups)

	for i, origin := range origins {
		i, origin := i, origin
		g.Go(func() error {
			km, err := oracle.RouteDistance(ctx, origin, dest)
			if err != nil {
				return err
			}
			mu.Lock()
			if km > maxKm {
				maxKm = km
				maxIdx = i
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, -1, false, err
	}
	return maxKm, maxIdx, true, nil
}
