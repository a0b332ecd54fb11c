package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableUnits(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Tomatoes", "s1", 5))
	ledger := NewStockLedger(ms)

	ctx := context.Background()

	avail, err := ledger.AvailableUnits(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, avail.Unbounded)
	assert.Equal(t, 5, avail.Units)

	// A pending reservation reduces what is free
	manager := NewReservationManager(ms, 15*time.Minute)
	_, err = manager.Reserve(ctx, "cs_1", []models.CartLine{
		{ProductID: "p1", Quantity: 2, SellerID: "s1"},
	})
	require.NoError(t, err)

	avail, err = ledger.AvailableUnits(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, avail.Units)
}

func TestAvailableUnitsUnknownProduct(t *testing.T) {
	ledger := NewStockLedger(newMemStore())

	_, err := ledger.AvailableUnits(context.Background(), "missing")
	assert.Error(t, err)
}

func TestUnmanagedStockAlwaysAvailable(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(models.Product{
		ID:              "p1",
		Title:           "Herbs",
		SellerID:        "s1",
		DeliverySupport: []string{models.DeliverySupportDelivery},
	})
	ledger := NewStockLedger(ms)

	avail, err := ledger.AvailableUnits(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, avail.Unbounded)
	assert.True(t, avail.Allows(1_000_000))
}

func TestCheckAvailabilityReportsAllShortLines(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 1))
	ms.addProduct(managedProduct("p2", "Bread", "s1", 0))
	ms.addProduct(managedProduct("p3", "Jam", "s1", 2))
	ms.addProduct(managedProduct("p4", "Eggs", "s1", 10))
	ms.addProduct(managedProduct("p5", "Milk", "s1", 10))
	ledger := NewStockLedger(ms)

	lines := []models.CartLine{
		{ProductID: "p1", Quantity: 3, Title: "Soup"},
		{ProductID: "p2", Quantity: 1, Title: "Bread"},
		{ProductID: "p3", Quantity: 5, Title: "Jam"},
		{ProductID: "p4", Quantity: 2, Title: "Eggs"},
		{ProductID: "p5", Quantity: 1, Title: "Milk"},
	}

	ctx := context.Background()
	products, err := ledger.ResolveProducts(ctx, lines)
	require.NoError(t, err)

	err = ledger.CheckAvailability(ctx, lines, products)
	require.Error(t, err)

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Lines, 3, "every short line must be reported, not just the first")

	byID := make(map[string]InsufficientLine)
	for _, l := range short.Lines {
		byID[l.ProductID] = l
	}
	assert.Equal(t, InsufficientLine{ProductID: "p1", Requested: 3, Available: 1, Title: "Soup"}, byID["p1"])
	assert.Equal(t, InsufficientLine{ProductID: "p2", Requested: 1, Available: 0, Title: "Bread"}, byID["p2"])
	assert.Equal(t, InsufficientLine{ProductID: "p3", Requested: 5, Available: 2, Title: "Jam"}, byID["p3"])
}

func TestCheckAvailabilitySumsDuplicateLines(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 3))
	ledger := NewStockLedger(ms)

	lines := []models.CartLine{
		{ProductID: "p1", Quantity: 2, Title: "Soup"},
		{ProductID: "p1", Quantity: 2, Title: "Soup"},
	}

	ctx := context.Background()
	products, err := ledger.ResolveProducts(ctx, lines)
	require.NoError(t, err)

	err = ledger.CheckAvailability(ctx, lines, products)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Lines, 1)
	assert.Equal(t, 4, short.Lines[0].Requested)
}

func TestResolveProductsAggregatesMissing(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 5))
	ledger := NewStockLedger(ms)

	_, err := ledger.ResolveProducts(context.Background(), []models.CartLine{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "ghost-1", Quantity: 1},
		{ProductID: "ghost-2", Quantity: 1},
	})

	var notFound *ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.ElementsMatch(t, []string{"ghost-1", "ghost-2"}, notFound.ProductIDs)
}

func TestCheckDeliverySupportAggregates(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 5, models.DeliverySupportPickup))
	ms.addProduct(managedProduct("p2", "Bread", "s1", 5, models.DeliverySupportPickup))
	ms.addProduct(managedProduct("p3", "Jam", "s1", 5, models.DeliverySupportPickup, models.DeliverySupportDelivery))
	ledger := NewStockLedger(ms)

	lines := []models.CartLine{
		{ProductID: "p1", Quantity: 1, Title: "Soup"},
		{ProductID: "p2", Quantity: 1, Title: "Bread"},
		{ProductID: "p3", Quantity: 1, Title: "Jam"},
	}

	ctx := context.Background()
	products, err := ledger.ResolveProducts(ctx, lines)
	require.NoError(t, err)

	// TEEN_DELIVERY maps to the generic delivery capability
	err = ledger.CheckDeliverySupport(lines, products, models.DeliveryModeTeenDelivery)
	var modeErr *DeliveryModeError
	require.ErrorAs(t, err, &modeErr)
	assert.ElementsMatch(t, []string{"Soup", "Bread"}, modeErr.Titles)

	// Everything supports pickup
	assert.NoError(t, ledger.CheckDeliverySupport(lines, products, models.DeliveryModePickup))
}

func TestCheckDeliverySupportUnknownMode(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 5))
	ledger := NewStockLedger(ms)

	lines := []models.CartLine{{ProductID: "p1", Quantity: 1}}
	products, err := ledger.ResolveProducts(context.Background(), lines)
	require.NoError(t, err)

	err = ledger.CheckDeliverySupport(lines, products, "DRONE")
	var invalid *CartInvalidError
	assert.ErrorAs(t, err, &invalid)
}
