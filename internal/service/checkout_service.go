package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"checkout-service/config"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EventPublisher is the outbound event feed of the checkout flow.
// Publishing is best-effort: a failed publish is logged, never fatal.
type EventPublisher interface {
	PublishCheckoutReady(ctx context.Context, event *models.CheckoutReadyEvent) error
	PublishCheckoutRejected(ctx context.Context, event *models.CheckoutRejectedEvent) error
	PublishReservationsCreated(ctx context.Context, event *models.ReservationsCreatedEvent) error
}

// IdempotencyStore remembers the session a request key already produced, so
// a retried request returns the existing session instead of a second one.
type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CheckoutService orchestrates one checkout attempt: cart validation, stock
// and delivery-mode checks, fee computation and payout gating (concurrent),
// payment session creation, then the best-effort reservation commit.
type CheckoutService struct {
	ledger       *StockLedger
	reservations *ReservationManager
	fees         *DeliveryFeeCalculator
	payoutGate   *PayoutGate
	sellers      SellerStore
	oracle       DistanceOracle
	provider     PaymentProvider
	availability DeliveryAvailability
	publisher    EventPublisher
	idempotency  IdempotencyStore
	business     config.BusinessConfig
	logger       *zap.Logger
}

// NewCheckoutService creates a new checkout orchestrator
func NewCheckoutService(
	ledger *StockLedger,
	reservations *ReservationManager,
	fees *DeliveryFeeCalculator,
	payoutGate *PayoutGate,
	sellers SellerStore,
	oracle DistanceOracle,
	provider PaymentProvider,
	availability DeliveryAvailability,
	publisher EventPublisher,
	business config.BusinessConfig,
) *CheckoutService {
	return &CheckoutService{
		ledger:       ledger,
		reservations: reservations,
		fees:         fees,
		payoutGate:   payoutGate,
		sellers:      sellers,
		oracle:       oracle,
		provider:     provider,
		availability: availability,
		publisher:    publisher,
		business:     business,
		logger:       util.GetLogger(),
	}
}

// WithIdempotency attaches the request idempotency store. Optional: without
// one, every request creates a fresh session.
func (s *CheckoutService) WithIdempotency(store IdempotencyStore) *CheckoutService {
	s.idempotency = store
	return s
}

// CheckoutItem is one requested line of a checkout.
type CheckoutItem struct {
	ProductID  string `json:"productId" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	PriceCents int64  `json:"priceCents"`
	SellerID   string `json:"sellerId" binding:"required"`
	Title      string `json:"title"`
	SellerName string `json:"sellerName"`
}

// CheckoutRequest is the body of one checkout attempt.
type CheckoutRequest struct {
	BuyerID               string              `json:"buyerId"`
	Items                 []CheckoutItem      `json:"items" binding:"required"`
	DeliveryMode          string              `json:"deliveryMode" binding:"required"`
	Address               string              `json:"address"`
	Notes                 string              `json:"notes"`
	PickupDate            string              `json:"pickupDate"`
	DeliveryDate          string              `json:"deliveryDate"`
	DeliveryTime          string              `json:"deliveryTime"`
	Coordinates           *models.Coordinates `json:"coordinates"`
	Country               string              `json:"country"`
	EnableSmsNotification bool                `json:"enableSmsNotification"`
	IdempotencyKey        string              `json:"idempotencyKey,omitempty"`
}

// Checkout runs the full attempt. A returned error means the attempt
// terminated REJECTED; the attempt carries the last state reached.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*models.CheckoutAttempt, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	util.CheckoutAttemptsTotal.Inc()

	if cached := s.replayIdempotent(ctx, req); cached != nil {
		return cached, nil
	}

	attempt := &models.CheckoutAttempt{
		State:        models.AttemptStateValidatingCart,
		DeliveryMode: req.DeliveryMode,
	}

	lines, err := s.validateCart(req)
	if err != nil {
		return s.reject(ctx, attempt, req, err)
	}
	attempt.Lines = lines
	attempt.SubtotalCents = subtotal(lines)

	products, err := s.ledger.ResolveProducts(ctx, lines)
	if err != nil {
		return s.reject(ctx, attempt, req, err)
	}

	// Stock check, fee computation and payout gate are independent and run
	// concurrently. Either validation failing rejects the attempt.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		attempt.State = models.AttemptStateCheckingDeliveryMode
		if err := s.ledger.CheckDeliverySupport(lines, products, req.DeliveryMode); err != nil {
			return err
		}
		attempt.State = models.AttemptStateCheckingStock
		return s.ledger.CheckAvailability(gctx, lines, products)
	})

	var fee models.DeliveryFeeBreakdown
	g.Go(func() error {
		var ferr error
		fee, ferr = s.computeDeliveryFee(gctx, req, lines)
		return ferr
	})

	g.Go(func() error {
		return s.payoutGate.Validate(gctx, lines)
	})

	if err := g.Wait(); err != nil {
		return s.reject(ctx, attempt, req, err)
	}

	attempt.State = models.AttemptStateComputingFees
	attempt.DeliveryFee = &fee
	attempt.PlatformFeeCents = int64(math.Round(float64(attempt.SubtotalCents) * s.business.PlatformFeeRate))
	if req.EnableSmsNotification {
		attempt.SmsFeeCents = s.business.SmsFeeCents * int64(distinctSellers(lines))
	}
	attempt.TotalCents = attempt.SubtotalCents + fee.TotalFeeCents + attempt.PlatformFeeCents + attempt.SmsFeeCents

	attempt.State = models.AttemptStateGatingPayouts // gate already passed above

	attempt.State = models.AttemptStateCreatingPaymentSession
	session, err := s.provider.CreateSession(ctx, PaymentSessionParams{
		Lines:       lines,
		AmountCents: attempt.TotalCents,
		Currency:    "eur",
		BuyerID:     req.BuyerID,
		Metadata: map[string]string{
			"delivery_mode": req.DeliveryMode,
			"buyer_id":      req.BuyerID,
		},
	})
	if err != nil {
		// Provider detail is logged, never leaked to the caller.
		s.logger.Error("Payment session creation failed", zap.Error(err))
		return s.reject(ctx, attempt, req, ErrPaymentProvider)
	}
	attempt.SessionID = session.ID
	attempt.PaymentURL = session.URL

	// From here on a payment session exists: nothing below may undo it.
	attempt.State = models.AttemptStateReservingStock
	created, err := s.reservations.Reserve(ctx, session.ID, lines)
	if err != nil {
		// Best-effort hold: settlement re-validates stock, so a failed
		// reservation is logged and the attempt proceeds.
		s.logger.Error("Stock reservation failed after session creation",
			zap.String("session_id", session.ID),
			zap.Error(err))
	} else if len(created) > 0 {
		s.publishReservationsCreated(ctx, session.ID, created)
	}

	s.annotateDeliveryAvailability(ctx, attempt, req)

	attempt.State = models.AttemptStateReady
	util.CheckoutReadyTotal.Inc()
	s.rememberIdempotent(ctx, req, attempt)
	s.publishCheckoutReady(ctx, attempt, req)

	s.logger.Info("Checkout ready",
		zap.String("session_id", session.ID),
		zap.Int64("total_cents", attempt.TotalCents))
	return attempt, nil
}

// replayIdempotent returns the session a retried request already produced.
func (s *CheckoutService) replayIdempotent(ctx context.Context, req *CheckoutRequest) *models.CheckoutAttempt {
	if s.idempotency == nil || req.IdempotencyKey == "" {
		return nil
	}

	val, found, err := s.idempotency.GetIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	sessionID, paymentURL, ok := strings.Cut(val, " ")
	if !ok {
		return nil
	}
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("session_id", sessionID))
	return &models.CheckoutAttempt{
		State:        models.AttemptStateReady,
		DeliveryMode: req.DeliveryMode,
		SessionID:    sessionID,
		PaymentURL:   paymentURL,
	}
}

func (s *CheckoutService) rememberIdempotent(ctx context.Context, req *CheckoutRequest, attempt *models.CheckoutAttempt) {
	if s.idempotency == nil || req.IdempotencyKey == "" {
		return
	}
	value := attempt.SessionID + " " + attempt.PaymentURL
	if err := s.idempotency.SetIdempotencyKey(ctx, req.IdempotencyKey, value, 24*time.Hour); err != nil {
		s.logger.Warn("Failed to store idempotency key", zap.Error(err))
	}
}

// validateCart rejects empty and malformed carts before anything else runs.
func (s *CheckoutService) validateCart(req *CheckoutRequest) ([]models.CartLine, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]models.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &CartInvalidError{Reason: fmt.Sprintf("quantity must be positive for product %s", item.ProductID)}
		}
		if item.PriceCents < 0 {
			return nil, &CartInvalidError{Reason: fmt.Sprintf("negative price for product %s", item.ProductID)}
		}
		lines = append(lines, models.CartLine{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.PriceCents,
			SellerID:       item.SellerID,
			Title:          item.Title,
			SellerName:     item.SellerName,
		})
	}
	return lines, nil
}

// computeDeliveryFee prices the delivery leg of the attempt. Distance is the
// maximum single seller→buyer leg across lines with known coordinates.
// Missing coordinates for a distance-priced mode fall back to the flat
// default fee; they never block checkout.
func (s *CheckoutService) computeDeliveryFee(ctx context.Context, req *CheckoutRequest, lines []models.CartLine) (models.DeliveryFeeBreakdown, error) {
	switch {
	case req.DeliveryMode == models.DeliveryModePickup:
		return models.DeliveryFeeBreakdown{}, nil
	case req.DeliveryMode == models.DeliveryModeShipping:
		fee := s.fees.Shipping()
		fee.DestinationCountry = normalizeCountry(req.Country)
		return fee, nil
	}

	sellerIDs := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.SellerID] {
			seen[line.SellerID] = true
			sellerIDs = append(sellerIDs, line.SellerID)
		}
	}

	sellers, err := s.sellers.GetSellersByIDs(ctx, sellerIDs)
	if err != nil {
		return models.DeliveryFeeBreakdown{}, fmt.Errorf("failed to load sellers: %w", err)
	}

	buyerCountry := normalizeCountry(req.Country)
	international := false
	for _, seller := range sellers {
		if buyerCountry != "" && seller.CountryCode != "" &&
			normalizeCountry(seller.CountryCode) != buyerCountry {
			international = true
			break
		}
	}

	if req.Coordinates == nil {
		s.logger.Warn("Buyer coordinates missing, applying fallback delivery fee",
			zap.String("delivery_mode", req.DeliveryMode),
			zap.String("buyer_id", req.BuyerID))
		fee := s.fees.Fallback()
		fee.IsInternational = international
		fee.DestinationCountry = buyerCountry
		return fee, nil
	}

	origins := make([]models.Coordinates, 0, len(sellerIDs))
	countries := make([]string, 0, len(sellerIDs))
	for _, id := range sellerIDs {
		seller, ok := sellers[id]
		if !ok {
			continue
		}
		if coords, known := seller.Coordinates(); known {
			origins = append(origins, coords)
			countries = append(countries, normalizeCountry(seller.CountryCode))
		}
	}

	maxKm, maxIdx, known, err := MaxLegDistance(ctx, s.oracle, origins, *req.Coordinates)
	if err != nil {
		return models.DeliveryFeeBreakdown{}, fmt.Errorf("distance lookup failed: %w", err)
	}
	if !known {
		s.logger.Warn("No seller coordinates known, applying fallback delivery fee",
			zap.String("delivery_mode", req.DeliveryMode),
			zap.Int("sellers", len(sellerIDs)))
		fee := s.fees.Fallback()
		fee.IsInternational = international
		fee.DestinationCountry = buyerCountry
		return fee, nil
	}

	fee := s.fees.Compute(maxKm, international)
	fee.OriginCountry = countries[maxIdx]
	fee.DestinationCountry = buyerCountry
	return fee, nil
}

// annotateDeliveryAvailability runs the advisory delivery-area check. It may
// only mark the attempt degraded; an attempt holding a valid payment session
// is never failed by this step.
func (s *CheckoutService) annotateDeliveryAvailability(ctx context.Context, attempt *models.CheckoutAttempt, req *CheckoutRequest) {
	if s.availability == nil || !models.RequiresDistance(req.DeliveryMode) ||
		req.Coordinates == nil || req.DeliveryDate == "" {
		return
	}

	result, err := s.availability.Check(ctx, *req.Coordinates, req.DeliveryDate, req.DeliveryTime)
	if err != nil {
		s.logger.Warn("Delivery availability unknown",
			zap.String("session_id", attempt.SessionID),
			zap.Error(err))
		attempt.DeliveryDegraded = true
		return
	}

	if !result.IsAvailable {
		attempt.DeliveryDegraded = true
	}
	attempt.EstimatedDeliveryTime = result.EstimatedDeliveryTime
}

// reject terminates the attempt and records the rejection reason.
func (s *CheckoutService) reject(ctx context.Context, attempt *models.CheckoutAttempt, req *CheckoutRequest, err error) (*models.CheckoutAttempt, error) {
	attempt.State = models.AttemptStateRejected
	reason := rejectionReason(err)
	util.CheckoutRejectedTotal.WithLabelValues(reason).Inc()

	if s.publisher != nil {
		event := &models.CheckoutRejectedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCheckoutRejected,
				Timestamp: time.Now(),
			},
			BuyerID: req.BuyerID,
			Reason:  reason,
		}
		if perr := s.publisher.PublishCheckoutRejected(ctx, event); perr != nil {
			s.logger.Error("Failed to publish CheckoutRejected event", zap.Error(perr))
		}
	}
	return attempt, err
}

func (s *CheckoutService) publishCheckoutReady(ctx context.Context, attempt *models.CheckoutAttempt, req *CheckoutRequest) {
	if s.publisher == nil {
		return
	}
	event := &models.CheckoutReadyEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCheckoutReady,
			Timestamp: time.Now(),
		},
		SessionID:     attempt.SessionID,
		BuyerID:       req.BuyerID,
		SubtotalCents: attempt.SubtotalCents,
		TotalCents:    attempt.TotalCents,
		Lines:         attempt.Lines,
	}
	if err := s.publisher.PublishCheckoutReady(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutReady event", zap.Error(err))
	}
}

func (s *CheckoutService) publishReservationsCreated(ctx context.Context, sessionID string, created []models.StockReservation) {
	if s.publisher == nil {
		return
	}
	ids := make([]string, len(created))
	for i, r := range created {
		ids[i] = r.ID
	}
	event := &models.ReservationsCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReservationsCreated,
			Timestamp: time.Now(),
		},
		SessionID:    sessionID,
		Reservations: ids,
	}
	if err := s.publisher.PublishReservationsCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReservationsCreated event", zap.Error(err))
	}
}

func rejectionReason(err error) string {
	var (
		notFound *ProductNotFoundError
		invalid  *CartInvalidError
		mode     *DeliveryModeError
		stock    *InsufficientStockError
		payout   *PayoutNotConfiguredError
	)
	switch {
	case errors.Is(err, ErrEmptyCart), errors.As(err, &invalid):
		return "cart_invalid"
	case errors.As(err, &notFound):
		return "product_not_found"
	case errors.As(err, &mode):
		return "delivery_mode_incompatible"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &payout):
		return "payout_not_configured"
	case errors.Is(err, ErrPaymentProvider):
		return "payment_provider"
	}
	return "internal"
}

func subtotal(lines []models.CartLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.UnitPriceCents * int64(line.Quantity)
	}
	return total
}

func distinctSellers(lines []models.CartLine) int {
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		seen[line.SellerID] = true
	}
	return len(seen)
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
