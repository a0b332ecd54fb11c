package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"checkout-service/internal/models"
)

// DeliveryAvailabilityResult is the advisory answer of the delivery planner.
type DeliveryAvailabilityResult struct {
	IsAvailable           bool   `json:"is_available"`
	AvailableCount        int    `json:"available_count"`
	EstimatedDeliveryTime string `json:"estimated_delivery_time"`
}

// DeliveryAvailability checks whether a courier can serve the buyer's area
// and slot. Advisory only: a failed or negative answer may annotate an
// attempt as degraded but must never fail one that already holds a payment
// session.
type DeliveryAvailability interface {
	Check(ctx context.Context, coords models.Coordinates, date, timeSlot string) (*DeliveryAvailabilityResult, error)
}

// HTTPDeliveryAvailability queries the delivery planner's HTTP API.
type HTTPDeliveryAvailability struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDeliveryAvailability creates a delivery availability client.
func NewHTTPDeliveryAvailability(baseURL string) *HTTPDeliveryAvailability {
	return &HTTPDeliveryAvailability{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Check queries availability for coordinates, a date and a time slot.
func (d *HTTPDeliveryAvailability) Check(ctx context.Context, coords models.Coordinates, date, timeSlot string) (*DeliveryAvailabilityResult, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", coords.Lat))
	q.Set("lng", fmt.Sprintf("%f", coords.Lng))
	q.Set("date", date)
	q.Set("time", timeSlot)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delivery availability request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("delivery availability returned status %d", resp.StatusCode)
	}

	var result DeliveryAvailabilityResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode availability response: %w", err)
	}
	return &result, nil
}
