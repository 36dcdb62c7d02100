package provider

import (
	"context"
	"fmt"

	"payouts-controlplane/pkg/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -source=client.go -destination=mock/client.go -package=mock

// Client is the batch-payment surface of the external payment provider.
type Client interface {
	OpenBatch(ctx context.Context, description string) (string, error)
	AddPayment(ctx context.Context, batchID, recipientID string, amount decimal.Decimal, currency, externalID string) (string, error)
	GenerateQuote(ctx context.Context, batchID string) error
	StartProcessing(ctx context.Context, batchID string) error
}

var Module = fx.Module("provider",
	fx.Provide(
		NewHTTPClient,
		NewVerifier,
	),
)

type HTTPClient struct {
	rc *resty.Client
}

type apiError struct {
	Ok     bool `json:"ok"`
	Errors []struct {
		Code    string `json:"code"`
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *apiError) String() string {
	if e == nil || len(e.Errors) == 0 {
		return "unknown provider error"
	}
	return fmt.Sprintf("%s: %s", e.Errors[0].Code, e.Errors[0].Message)
}

func NewHTTPClient(cfg *config.Config) Client {
	rc := resty.New().
		SetBaseURL(cfg.Provider.BaseURL).
		SetAuthToken(cfg.Provider.APIKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2)

	if cfg.Provider.Timeout > 0 {
		rc.SetTimeout(cfg.Provider.Timeout)
	}

	return &HTTPClient{rc: rc}
}

// post sends a JSON request with a fresh idempotency key so resty retries never double-apply.
func (c *HTTPClient) post(ctx context.Context, path string, body, result any) error {
	var apiErr apiError

	req := c.rc.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("provider %s: %w", path, err)
	}

	if resp.IsError() {
		zap.L().Warn("provider request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.String("error", apiErr.String()),
		)
		return fmt.Errorf("provider %s: status %d: %s", path, resp.StatusCode(), apiErr.String())
	}

	return nil
}

func (c *HTTPClient) OpenBatch(ctx context.Context, description string) (string, error) {
	var out struct {
		Batch struct {
			ID string `json:"id"`
		} `json:"batch"`
	}

	if err := c.post(ctx, "/v1/batches", map[string]any{"description": description}, &out); err != nil {
		return "", err
	}
	if out.Batch.ID == "" {
		return "", fmt.Errorf("provider returned an empty batch id")
	}

	return out.Batch.ID, nil
}

func (c *HTTPClient) AddPayment(ctx context.Context, batchID, recipientID string, amount decimal.Decimal, currency, externalID string) (string, error) {
	var out struct {
		Payment struct {
			ID string `json:"id"`
		} `json:"payment"`
	}

	body := map[string]any{
		"recipient":  map[string]string{"id": recipientID},
		"amount":     amount.StringFixed(2),
		"currency":   currency,
		"externalId": externalID,
	}

	if err := c.post(ctx, fmt.Sprintf("/v1/batches/%s/payments", batchID), body, &out); err != nil {
		return "", err
	}

	return out.Payment.ID, nil
}

func (c *HTTPClient) GenerateQuote(ctx context.Context, batchID string) error {
	return c.post(ctx, fmt.Sprintf("/v1/batches/%s/generate-quote", batchID), nil, nil)
}

func (c *HTTPClient) StartProcessing(ctx context.Context, batchID string) error {
	return c.post(ctx, fmt.Sprintf("/v1/batches/%s/start-processing", batchID), nil, nil)
}
