package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// PaymentSession is the provider's handle for an in-flight payment.
type PaymentSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentSessionParams describes one session creation request.
type PaymentSessionParams struct {
	Lines       []models.CartLine
	AmountCents int64
	Currency    string
	BuyerID     string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

// PaymentProvider creates payment sessions with the external provider.
// The provider's settlement protocol is out of scope; settlement arrives
// asynchronously through the payment events topic.
type PaymentProvider interface {
	CreateSession(ctx context.Context, params PaymentSessionParams) (*PaymentSession, error)
}

// providers cap metadata values; item summaries are packed into numbered
// buckets under this budget before the session request is built
var sessionMetadataBudget = MetadataBudget{
	KeyPrefix:  "items_",
	MaxBuckets: 10,
	BucketSize: 450,
	Separator:  "|",
}

// HTTPPaymentProvider talks to the payment provider over its HTTP API.
type HTTPPaymentProvider struct {
	url        string
	successURL string
	cancelURL  string
	client     *http.Client
	logger     *zap.Logger
}

// NewHTTPPaymentProvider creates a provider client.
func NewHTTPPaymentProvider(url, successURL, cancelURL string) *HTTPPaymentProvider {
	return &HTTPPaymentProvider{
		url:        url,
		successURL: successURL,
		cancelURL:  cancelURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     util.GetLogger(),
	}
}

type sessionRequest struct {
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	BuyerID     string            `json:"buyer_id"`
	Metadata    map[string]string `json:"metadata"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
}

// CreateSession creates a payment session. Cart line summaries are packed
// into the provider's metadata budget; overflow drops the remainder rather
// than failing the session, since metadata is informational.
func (p *HTTPPaymentProvider) CreateSession(ctx context.Context, params PaymentSessionParams) (*PaymentSession, error) {
	start := time.Now()
	defer func() {
		util.PaymentSessionLatency.Observe(time.Since(start).Seconds())
	}()

	records := make([]string, len(params.Lines))
	for i, line := range params.Lines {
		records[i] = fmt.Sprintf("%s:%d:%d", line.ProductID, line.Quantity, line.UnitPriceCents)
	}

	metadata, err := PackMetadataBuckets(records, sessionMetadataBudget)
	if err != nil {
		p.logger.Warn("Session metadata truncated", zap.Error(err))
	}
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = p.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = p.cancelURL
	}

	body, err := json.Marshal(sessionRequest{
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		BuyerID:     params.BuyerID,
		Metadata:    metadata,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		util.PaymentSessionFailures.Inc()
		return nil, fmt.Errorf("payment provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		util.PaymentSessionFailures.Inc()
		return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	var session PaymentSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		util.PaymentSessionFailures.Inc()
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}

	p.logger.Info("Payment session created", zap.String("session_id", session.ID))
	return &session, nil
}
