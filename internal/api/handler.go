package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	checkoutService *service.CheckoutService
	reservations    *service.ReservationManager
}

// NewHandler creates a new HTTP handler
func NewHandler(checkoutService *service.CheckoutService, reservations *service.ReservationManager) *Handler {
	return &Handler{
		checkoutService: checkoutService,
		reservations:    reservations,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.checkout)
		v1.GET("/reservations/:sessionId", h.getReservations)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// checkout runs one checkout attempt
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	attempt, err := h.checkoutService.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.renderCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":             attempt.SessionID,
		"paymentUrl":            attempt.PaymentURL,
		"subtotalCents":         attempt.SubtotalCents,
		"totalCents":            attempt.TotalCents,
		"deliveryFee":           attempt.DeliveryFee,
		"platformFee":           attempt.PlatformFeeCents,
		"smsFee":                attempt.SmsFeeCents,
		"deliveryDegraded":      attempt.DeliveryDegraded,
		"estimatedDeliveryTime": attempt.EstimatedDeliveryTime,
	})
}

// renderCheckoutError maps the error taxonomy to HTTP responses. Validation
// failures always identify which items or sellers are the problem.
func (h *Handler) renderCheckoutError(c *gin.Context, err error) {
	var (
		notFound *service.ProductNotFoundError
		invalid  *service.CartInvalidError
		mode     *service.DeliveryModeError
		stock    *service.InsufficientStockError
		payout   *service.PayoutNotConfiguredError
	)

	switch {
	case errors.Is(err, service.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})

	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})

	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "Some products no longer exist",
			"productIds": notFound.ProductIDs,
		})

	case errors.As(err, &mode):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Some products do not support the chosen delivery mode",
			"mode":     mode.Mode,
			"products": mode.Titles,
		})

	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "Insufficient stock",
			"insufficientStock": stock.Lines,
		})

	case errors.As(err, &payout):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              "Some sellers have not completed payout onboarding",
			"sellersNeedConnect": true,
			"sellers":            payout.Sellers,
		})

	case errors.Is(err, service.ErrPaymentProvider):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Payment session failed",
		})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Checkout failed",
		})
	}
}

// getReservations exposes the persisted holds for a payment session, read by
// downstream settlement tooling.
func (h *Handler) getReservations(c *gin.Context) {
	sessionID := c.Param("sessionId")

	reservations, err := h.reservations.ReservationsForSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load reservations",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":    sessionID,
		"reservations": reservations,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
