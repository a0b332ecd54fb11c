package service

import (
	"context"
	"database/sql"
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readySeller(id, name string) models.Seller {
	return models.Seller{
		ID:                       id,
		Name:                     name,
		Email:                    name + "@example.com",
		PayoutAccountID:          sql.NullString{String: "acct_" + id, Valid: true},
		PayoutOnboardingComplete: true,
	}
}

func TestPayoutGateAllReady(t *testing.T) {
	ms := newMemStore()
	ms.addSeller(readySeller("s1", "alice"))
	ms.addSeller(readySeller("s2", "bob"))
	gate := NewPayoutGate(ms)

	err := gate.Validate(context.Background(), []models.CartLine{
		{ProductID: "p1", SellerID: "s1"},
		{ProductID: "p2", SellerID: "s2"},
	})
	assert.NoError(t, err)
}

func TestPayoutGateAggregatesBlockedSellers(t *testing.T) {
	ms := newMemStore()
	ms.addSeller(readySeller("s1", "alice"))

	// Onboarding started but never completed
	incomplete := readySeller("s2", "bob")
	incomplete.PayoutOnboardingComplete = false
	ms.addSeller(incomplete)

	// No payout account at all
	ms.addSeller(models.Seller{ID: "s3", Name: "carol", Email: "carol@example.com"})

	gate := NewPayoutGate(ms)
	err := gate.Validate(context.Background(), []models.CartLine{
		{ProductID: "p1", SellerID: "s1"},
		{ProductID: "p2", SellerID: "s2"},
		{ProductID: "p3", SellerID: "s3"},
	})

	var payout *PayoutNotConfiguredError
	require.ErrorAs(t, err, &payout)
	require.Len(t, payout.Sellers, 2, "every blocked seller must be reported")

	ids := []string{payout.Sellers[0].ID, payout.Sellers[1].ID}
	assert.ElementsMatch(t, []string{"s2", "s3"}, ids)
}

func TestPayoutGateEmptyAccountID(t *testing.T) {
	ms := newMemStore()
	s := readySeller("s1", "alice")
	s.PayoutAccountID = sql.NullString{String: "", Valid: true}
	ms.addSeller(s)

	gate := NewPayoutGate(ms)
	err := gate.Validate(context.Background(), []models.CartLine{{ProductID: "p1", SellerID: "s1"}})

	var payout *PayoutNotConfiguredError
	assert.ErrorAs(t, err, &payout)
}

func TestPayoutGateUnknownSeller(t *testing.T) {
	gate := NewPayoutGate(newMemStore())
	err := gate.Validate(context.Background(), []models.CartLine{{ProductID: "p1", SellerID: "ghost"}})

	var payout *PayoutNotConfiguredError
	require.ErrorAs(t, err, &payout)
	require.Len(t, payout.Sellers, 1)
	assert.Equal(t, "ghost", payout.Sellers[0].ID)
}
