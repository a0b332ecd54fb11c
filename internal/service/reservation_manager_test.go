package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveCreatesPendingHolds(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 10))
	ms.addProduct(managedProduct("p2", "Bread", "s1", 10))
	manager := NewReservationManager(ms, 15*time.Minute)

	created, err := manager.Reserve(context.Background(), "cs_1", []models.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, r := range created {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "cs_1", r.CheckoutSessionID)
		assert.Equal(t, models.ReservationStatusPending, r.Status)
		assert.True(t, r.ExpiresAt.After(time.Now().Add(14*time.Minute)))
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 10))
	ms.addProduct(managedProduct("p2", "Bread", "s1", 1))
	manager := NewReservationManager(ms, 15*time.Minute)

	_, err := manager.Reserve(context.Background(), "cs_1", []models.CartLine{
		{ProductID: "p1", Quantity: 2, Title: "Soup"},
		{ProductID: "p2", Quantity: 5, Title: "Bread"},
	})

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Lines, 1)
	assert.Equal(t, "p2", short.Lines[0].ProductID)
	assert.Equal(t, "Bread", short.Lines[0].Title)

	// The coverable line must not leave a partial hold behind
	assert.Equal(t, 0, ms.reservationCount("cs_1"))
}

func TestReserveSkipsUnmanagedStock(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(models.Product{
		ID:              "p1",
		Title:           "Herbs",
		SellerID:        "s1",
		DeliverySupport: []string{models.DeliverySupportDelivery},
	})
	ms.addProduct(managedProduct("p2", "Bread", "s1", 10))
	manager := NewReservationManager(ms, 15*time.Minute)

	created, err := manager.Reserve(context.Background(), "cs_1", []models.CartLine{
		{ProductID: "p1", Quantity: 100},
		{ProductID: "p2", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "p2", created[0].ProductID)
}

func TestReserveNoOversellUnderContention(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 5))
	manager := NewReservationManager(ms, 15*time.Minute)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := manager.Reserve(context.Background(), fmt.Sprintf("cs_%d", n), []models.CartLine{
				{ProductID: "p1", Quantity: 1},
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var short *InsufficientStockError
		require.ErrorAs(t, err, &short)
		rejected++
	}

	assert.Equal(t, 5, succeeded, "exactly the tracked stock may be held")
	assert.Equal(t, attempts-5, rejected)

	pending, err := ms.PendingReservedUnits(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, pending)
}

func TestExpiryFreesStock(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 3))
	manager := NewReservationManager(ms, 30*time.Millisecond)

	ctx := context.Background()
	_, err := manager.Reserve(ctx, "cs_1", []models.CartLine{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, err)

	// Fully held: a second attempt bounces
	_, err = manager.Reserve(ctx, "cs_2", []models.CartLine{{ProductID: "p1", Quantity: 1}})
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)

	time.Sleep(50 * time.Millisecond)

	released, err := manager.Expire(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	// Idempotent: nothing left to flip
	released, err = manager.Expire(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)

	// Units are free again
	_, err = manager.Reserve(ctx, "cs_3", []models.CartLine{{ProductID: "p1", Quantity: 3}})
	assert.NoError(t, err)
}

func TestConfirmFlipsPendingHolds(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 5))
	manager := NewReservationManager(ms, 15*time.Minute)

	ctx := context.Background()
	_, err := manager.Reserve(ctx, "cs_1", []models.CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	confirmed, err := manager.Confirm(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), confirmed)

	held, err := manager.ReservationsForSession(ctx, "cs_1")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, models.ReservationStatusConfirmed, held[0].Status)
}

func TestConfirmAfterExpiryReportsLapse(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 5))
	manager := NewReservationManager(ms, 20*time.Millisecond)

	ctx := context.Background()
	_, err := manager.Reserve(ctx, "cs_1", []models.CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	confirmed, err := manager.Confirm(ctx, "cs_1")
	assert.Equal(t, int64(0), confirmed)

	var lapsed *ReservationLapsedError
	require.ErrorAs(t, err, &lapsed)
	assert.Equal(t, "cs_1", lapsed.SessionID)
	assert.Equal(t, int64(1), lapsed.Lapsed)
}

func TestCancelReleasesHolds(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(managedProduct("p1", "Soup", "s1", 2))
	manager := NewReservationManager(ms, 15*time.Minute)

	ctx := context.Background()
	_, err := manager.Reserve(ctx, "cs_1", []models.CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	cancelled, err := manager.Cancel(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	_, err = manager.Reserve(ctx, "cs_2", []models.CartLine{{ProductID: "p1", Quantity: 2}})
	assert.NoError(t, err)
}
