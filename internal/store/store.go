package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs, keyed by ID.
// Missing products are simply absent from the map; the caller decides
// whether that is an error.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	result := make(map[string]*models.Product)
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}

	for i := range products {
		result[products[i].ID] = &products[i]
	}
	return result, nil
}

// GetSellersByIDs retrieves multiple sellers by IDs, keyed by ID.
func (s *Store) GetSellersByIDs(ctx context.Context, ids []string) (map[string]*models.Seller, error) {
	result := make(map[string]*models.Seller)
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In("SELECT * FROM sellers WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var sellers []models.Seller
	if err := s.db.SelectContext(ctx, &sellers, query, args...); err != nil {
		return nil, err
	}

	for i := range sellers {
		result[sellers[i].ID] = &sellers[i]
	}
	return result, nil
}

// PendingReservedUnits sums the quantities of live PENDING reservations for a
// product. Rows past their expiry are excluded here even before the sweeper
// flips them, so availability never counts a lapsed hold.
func (s *Store) PendingReservedUnits(ctx context.Context, productID string) (int, error) {
	var reserved int
	err := s.db.GetContext(ctx, &reserved, `
		SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
		WHERE product_id = $1 AND status = $2 AND expires_at > NOW()`,
		productID, models.ReservationStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to sum pending reservations: %w", err)
	}
	return reserved, nil
}
