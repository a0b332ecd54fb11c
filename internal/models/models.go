package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Delivery modes accepted on a checkout request
const (
	DeliveryModePickup        = "PICKUP"
	DeliveryModeDelivery      = "DELIVERY"
	DeliveryModeLocalDelivery = "LOCAL_DELIVERY"
	DeliveryModeTeenDelivery  = "TEEN_DELIVERY"
	DeliveryModeShipping      = "SHIPPING"
)

// Product delivery capabilities (what a product supports)
const (
	DeliverySupportPickup   = "PICKUP"
	DeliverySupportDelivery = "DELIVERY"
	DeliverySupportShipping = "SHIPPING"
)

// DeliveryCapability maps a requested delivery mode to the generic product
// capability it requires. Returns false for unknown modes.
func DeliveryCapability(mode string) (string, bool) {
	switch mode {
	case DeliveryModePickup:
		return DeliverySupportPickup, true
	case DeliveryModeDelivery, DeliveryModeLocalDelivery, DeliveryModeTeenDelivery:
		return DeliverySupportDelivery, true
	case DeliveryModeShipping:
		return DeliverySupportShipping, true
	}
	return "", false
}

// RequiresDistance reports whether the delivery mode prices by distance.
func RequiresDistance(mode string) bool {
	switch mode {
	case DeliveryModeDelivery, DeliveryModeLocalDelivery, DeliveryModeTeenDelivery:
		return true
	}
	return false
}

// Product is the catalog view this core reads. Stock and MaxStock are both
// NULL for unmanaged (unlimited) products.
type Product struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	PriceCents      int64          `db:"price_cents" json:"price_cents"`
	Stock           sql.NullInt64  `db:"stock" json:"stock"`
	MaxStock        sql.NullInt64  `db:"max_stock" json:"max_stock"`
	DeliverySupport pq.StringArray `db:"delivery_support" json:"delivery_support"`
	SellerID        string         `db:"seller_id" json:"seller_id"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// ManagedStock reports whether the product's stock is tracked at all.
func (p *Product) ManagedStock() bool {
	return p.Stock.Valid || p.MaxStock.Valid
}

// StockCeiling returns the tracked ceiling, preferring stock over max_stock.
// Only meaningful when ManagedStock is true.
func (p *Product) StockCeiling() int64 {
	if p.Stock.Valid {
		return p.Stock.Int64
	}
	return p.MaxStock.Int64
}

// Supports reports whether the product carries the given delivery capability.
func (p *Product) Supports(capability string) bool {
	for _, s := range p.DeliverySupport {
		if s == capability {
			return true
		}
	}
	return false
}

// Seller holds the payout and location fields the checkout core needs.
type Seller struct {
	ID                       string          `db:"id" json:"id"`
	Name                     string          `db:"name" json:"name"`
	Email                    string          `db:"email" json:"email"`
	PayoutAccountID          sql.NullString  `db:"payout_account_id" json:"payout_account_id"`
	PayoutOnboardingComplete bool            `db:"payout_onboarding_complete" json:"payout_onboarding_complete"`
	Lat                      sql.NullFloat64 `db:"lat" json:"lat"`
	Lng                      sql.NullFloat64 `db:"lng" json:"lng"`
	CountryCode              string          `db:"country_code" json:"country_code"`
}

// PayoutReady reports whether the seller can receive payouts.
func (s *Seller) PayoutReady() bool {
	return s.PayoutAccountID.Valid && s.PayoutAccountID.String != "" && s.PayoutOnboardingComplete
}

// Coordinates returns the seller's geocoded location, if known.
func (s *Seller) Coordinates() (Coordinates, bool) {
	if !s.Lat.Valid || !s.Lng.Valid {
		return Coordinates{}, false
	}
	return Coordinates{Lat: s.Lat.Float64, Lng: s.Lng.Float64}, true
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CartLine is one item of a checkout request, already resolved to a product.
type CartLine struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SellerID       string `json:"seller_id"`
	Title          string `json:"title"`
	SellerName     string `json:"seller_name"`
}

// Reservation statuses
const (
	ReservationStatusPending   = "PENDING"
	ReservationStatusConfirmed = "CONFIRMED"
	ReservationStatusExpired   = "EXPIRED"
	ReservationStatusCancelled = "CANCELLED"
)

// StockReservation is a time-bounded hold on inventory units, keyed to the
// external payment session once one exists.
type StockReservation struct {
	ID                string    `db:"id" json:"id"`
	ProductID         string    `db:"product_id" json:"product_id"`
	CheckoutSessionID string    `db:"checkout_session_id" json:"checkout_session_id"`
	Quantity          int       `db:"quantity" json:"quantity"`
	Status            string    `db:"status" json:"status"`
	ExpiresAt         time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Availability is the answer of the stock ledger for one product.
// Unbounded products (no tracked stock) are always available.
type Availability struct {
	Unbounded bool `json:"unbounded"`
	Units     int  `json:"units"`
}

// Allows reports whether the availability covers the requested quantity.
func (a Availability) Allows(quantity int) bool {
	return a.Unbounded || a.Units >= quantity
}

// DeliveryFeeBreakdown is the auditable result of a delivery fee computation.
// CourierShareCents + PlatformShareCents always equals TotalFeeCents.
type DeliveryFeeBreakdown struct {
	BaseFeeCents       int64   `json:"base_fee_cents"`
	DistanceFeeCents   int64   `json:"distance_fee_cents"`
	TotalFeeCents      int64   `json:"total_fee_cents"`
	CourierShareCents  int64   `json:"courier_share_cents"`
	PlatformShareCents int64   `json:"platform_share_cents"`
	DistanceKm         float64 `json:"distance_km"`
	IsInternational    bool    `json:"is_international"`
	OriginCountry      string  `json:"origin_country"`
	DestinationCountry string  `json:"destination_country"`
}

// Checkout attempt states
const (
	AttemptStateValidatingCart         = "VALIDATING_CART"
	AttemptStateCheckingStock          = "CHECKING_STOCK"
	AttemptStateCheckingDeliveryMode   = "CHECKING_DELIVERY_MODE"
	AttemptStateComputingFees          = "COMPUTING_FEES"
	AttemptStateGatingPayouts          = "GATING_PAYOUTS"
	AttemptStateCreatingPaymentSession = "CREATING_PAYMENT_SESSION"
	AttemptStateReservingStock         = "RESERVING_STOCK"
	AttemptStateReady                  = "READY"
	AttemptStateRejected               = "REJECTED"
)

// CheckoutAttempt is the ephemeral aggregate of one checkout request. It is
// owned by the orchestrator for the duration of the request and never
// persisted beyond the reservations and payment session it produces.
type CheckoutAttempt struct {
	State                 string                `json:"state"`
	Lines                 []CartLine            `json:"lines"`
	DeliveryMode          string                `json:"delivery_mode"`
	SubtotalCents         int64                 `json:"subtotal_cents"`
	DeliveryFee           *DeliveryFeeBreakdown `json:"delivery_fee,omitempty"`
	PlatformFeeCents      int64                 `json:"platform_fee_cents"`
	SmsFeeCents           int64                 `json:"sms_fee_cents"`
	TotalCents            int64                 `json:"total_cents"`
	SessionID             string                `json:"session_id,omitempty"`
	PaymentURL            string                `json:"payment_url,omitempty"`
	DeliveryDegraded      bool                  `json:"delivery_degraded,omitempty"`
	EstimatedDeliveryTime string                `json:"estimated_delivery_time,omitempty"`
}
