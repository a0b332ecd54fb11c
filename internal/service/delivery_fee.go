package service

import (
	"math"

	"checkout-service/config"
	"checkout-service/internal/models"
)

// shortTierMaxKm is the inclusive upper bound of the short-distance tier:
// a rounded distance of exactly 30.0 km still prices as short-distance.
const shortTierMaxKm = 30.0

// FeePolicy holds the delivery pricing constants. All amounts in cents.
type FeePolicy struct {
	ShortBaseCents        int64
	ShortPerKmCents       int64
	LongBaseCents         int64
	LongPerKmCents        int64
	InternationalFeeCents int64
	FallbackFeeCents      int64
	ShippingFeeCents      int64
	CourierShareRate      float64
}

// FeePolicyFromConfig builds a policy from the business configuration.
func FeePolicyFromConfig(b config.BusinessConfig) FeePolicy {
	return FeePolicy{
		ShortBaseCents:        b.ShortBaseFeeCents,
		ShortPerKmCents:       b.ShortPerKmCents,
		LongBaseCents:         b.LongBaseFeeCents,
		LongPerKmCents:        b.LongPerKmCents,
		InternationalFeeCents: b.InternationalFeeCents,
		FallbackFeeCents:      b.FallbackFeeCents,
		ShippingFeeCents:      b.ShippingFeeCents,
		CourierShareRate:      b.CourierShareRate,
	}
}

// DeliveryFeeCalculator converts distance and the cross-border flag into an
// auditable fee breakdown. Pure, no I/O.
type DeliveryFeeCalculator struct {
	policy FeePolicy
}

// NewDeliveryFeeCalculator creates a calculator with the given policy.
func NewDeliveryFeeCalculator(policy FeePolicy) *DeliveryFeeCalculator {
	return &DeliveryFeeCalculator{policy: policy}
}

// RoundKm rounds a distance to one decimal place. Tier comparison always
// happens on the rounded value.
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

// Compute prices a distance-based delivery leg.
func (c *DeliveryFeeCalculator) Compute(distanceKm float64, isInternational bool) models.DeliveryFeeBreakdown {
	km := RoundKm(distanceKm)

	var base, distanceFee int64
	if km > shortTierMaxKm || isInternational {
		base = c.policy.LongBaseCents
		distanceFee = int64(math.Round(km * float64(c.policy.LongPerKmCents)))
	} else {
		base = c.policy.ShortBaseCents
		distanceFee = int64(math.Round(km * float64(c.policy.ShortPerKmCents)))
	}

	total := base + distanceFee
	if isInternational {
		total += c.policy.InternationalFeeCents
		distanceFee += c.policy.InternationalFeeCents
	}

	b := models.DeliveryFeeBreakdown{
		BaseFeeCents:     base,
		DistanceFeeCents: distanceFee,
		TotalFeeCents:    total,
		DistanceKm:       km,
		IsInternational:  isInternational,
	}
	c.split(&b)
	return b
}

// Fallback prices a delivery leg whose distance could not be determined.
// A missing distance lookup must never block checkout for modes that need
// one, so the breakdown carries a flat fee and zero distance component.
func (c *DeliveryFeeCalculator) Fallback() models.DeliveryFeeBreakdown {
	b := models.DeliveryFeeBreakdown{
		BaseFeeCents:  c.policy.FallbackFeeCents,
		TotalFeeCents: c.policy.FallbackFeeCents,
	}
	c.split(&b)
	return b
}

// Shipping prices a parcel shipment: flat fee, no distance component.
func (c *DeliveryFeeCalculator) Shipping() models.DeliveryFeeBreakdown {
	b := models.DeliveryFeeBreakdown{
		BaseFeeCents:  c.policy.ShippingFeeCents,
		TotalFeeCents: c.policy.ShippingFeeCents,
	}
	c.split(&b)
	return b
}

// split derives the courier/platform shares from the final total. The split
// is always re-derived from the total, never accumulated incrementally, so
// the sum invariant holds after any surcharge.
func (c *DeliveryFeeCalculator) split(b *models.DeliveryFeeBreakdown) {
	b.CourierShareCents = int64(math.Round(float64(b.TotalFeeCents) * c.policy.CourierShareRate))
	b.PlatformShareCents = b.TotalFeeCents - b.CourierShareCents
}
