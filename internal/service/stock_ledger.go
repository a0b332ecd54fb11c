package service

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CatalogStore is the read side of the stock ledger.
type CatalogStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error)
	PendingReservedUnits(ctx context.Context, productID string) (int, error)
}

// StockLedger is the authoritative view of free stock: the tracked ceiling of
// a product minus every live PENDING reservation against it. It only reads;
// all mutation goes through the ReservationManager.
type StockLedger struct {
	store  CatalogStore
	logger *zap.Logger
}

// NewStockLedger creates a new stock ledger
func NewStockLedger(store CatalogStore) *StockLedger {
	return &StockLedger{
		store:  store,
		logger: util.GetLogger(),
	}
}

// AvailableUnits answers how many units of a product are free right now.
// Products with neither stock nor max_stock are unbounded.
func (l *StockLedger) AvailableUnits(ctx context.Context, productID string) (models.Availability, error) {
	product, err := l.store.GetProductByID(ctx, productID)
	if err != nil {
		return models.Availability{}, fmt.Errorf("failed to load product: %w", err)
	}
	return l.availability(ctx, product)
}

func (l *StockLedger) availability(ctx context.Context, product *models.Product) (models.Availability, error) {
	if !product.ManagedStock() {
		return models.Availability{Unbounded: true}, nil
	}

	reserved, err := l.store.PendingReservedUnits(ctx, product.ID)
	if err != nil {
		return models.Availability{}, err
	}

	units := int(product.StockCeiling()) - reserved
	if units < 0 {
		units = 0
	}
	return models.Availability{Units: units}, nil
}

// ResolveProducts loads every product referenced by the cart. Lines that do
// not resolve are aggregated into one ProductNotFoundError.
func (l *StockLedger) ResolveProducts(ctx context.Context, lines []models.CartLine) (map[string]*models.Product, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}

	products, err := l.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &ProductNotFoundError{ProductIDs: missing}
	}
	return products, nil
}

// CheckAvailability evaluates every cart line against the ledger and reports
// all short lines in one pass, never just the first, so the buyer gets a
// complete remediation list. Quantities are summed per product first: two
// lines of the same product compete for the same units.
func (l *StockLedger) CheckAvailability(ctx context.Context, lines []models.CartLine, products map[string]*models.Product) error {
	requested := make(map[string]int, len(lines))
	titles := make(map[string]string, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := requested[line.ProductID]; !ok {
			order = append(order, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
		titles[line.ProductID] = line.Title
	}

	var short []InsufficientLine
	for _, id := range order {
		product := products[id]
		avail, err := l.availability(ctx, product)
		if err != nil {
			return err
		}
		if !avail.Allows(requested[id]) {
			title := titles[id]
			if title == "" {
				title = product.Title
			}
			short = append(short, InsufficientLine{
				ProductID: id,
				Requested: requested[id],
				Available: avail.Units,
				Title:     title,
			})
		}
	}

	if len(short) > 0 {
		l.logger.Info("Stock check failed", zap.Int("short_lines", len(short)))
		return &InsufficientStockError{Lines: short}
	}
	return nil
}

// CheckDeliverySupport verifies every product in the cart supports the
// requested delivery mode. Unsupported products are reported by title in a
// single aggregated error.
func (l *StockLedger) CheckDeliverySupport(lines []models.CartLine, products map[string]*models.Product, mode string) error {
	capability, ok := models.DeliveryCapability(mode)
	if !ok {
		return &CartInvalidError{Reason: fmt.Sprintf("unknown delivery mode %q", mode)}
	}

	var blocked []string
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true

		product := products[line.ProductID]
		if !product.Supports(capability) {
			title := line.Title
			if title == "" {
				title = product.Title
			}
			blocked = append(blocked, title)
		}
	}

	if len(blocked) > 0 {
		return &DeliveryModeError{Mode: mode, Titles: blocked}
	}
	return nil
}
