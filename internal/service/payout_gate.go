package service

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
)

// SellerStore loads the sellers referenced by a cart.
type SellerStore interface {
	GetSellersByIDs(ctx context.Context, ids []string) (map[string]*models.Seller, error)
}

// PayoutGate blocks checkout until every seller in the cart has a completed
// payout-account onboarding. Read-only, no side effects; safe to run in
// parallel with the stock check.
type PayoutGate struct {
	store SellerStore
}

// NewPayoutGate creates a new payout gate
func NewPayoutGate(store SellerStore) *PayoutGate {
	return &PayoutGate{store: store}
}

// Validate requires a payout account id and completed onboarding for every
// distinct seller in the cart. All blocking sellers are aggregated into one
// error so the buyer learns exactly who must finish onboarding.
func (g *PayoutGate) Validate(ctx context.Context, lines []models.CartLine) error {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.SellerID] {
			seen[line.SellerID] = true
			ids = append(ids, line.SellerID)
		}
	}

	sellers, err := g.store.GetSellersByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load sellers: %w", err)
	}

	var blocked []BlockedSeller
	for _, id := range ids {
		seller, ok := sellers[id]
		if !ok || !seller.PayoutReady() {
			b := BlockedSeller{ID: id}
			if ok {
				b.Name = seller.Name
				b.Email = seller.Email
			}
			blocked = append(blocked, b)
		}
	}

	if len(blocked) > 0 {
		return &PayoutNotConfiguredError{Sellers: blocked}
	}
	return nil
}
