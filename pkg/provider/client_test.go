package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"payouts-controlplane/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Provider.BaseURL = srv.URL
	cfg.Provider.APIKey = "sk_test"
	return NewHTTPClient(cfg)
}

func TestHTTPClientBatchFlow(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		paths = append(paths, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/batches":
			_, _ = w.Write([]byte(`{"batch":{"id":"B1"}}`))
		case "/v1/batches/B1/payments":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "110.00", body["amount"])
			require.Equal(t, "USD", body["currency"])
			require.Equal(t, "rel:w1,w2", body["externalId"])
			require.Equal(t, map[string]any{"id": "R1"}, body["recipient"])
			_, _ = w.Write([]byte(`{"payment":{"id":"P1"}}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	})

	ctx := context.Background()
	batchID, err := client.OpenBatch(ctx, "withdrawal")
	require.NoError(t, err)
	require.Equal(t, "B1", batchID)

	paymentID, err := client.AddPayment(ctx, batchID, "R1", decimal.NewFromInt(110), "USD", "rel:w1,w2")
	require.NoError(t, err)
	require.Equal(t, "P1", paymentID)

	require.NoError(t, client.GenerateQuote(ctx, batchID))
	require.NoError(t, client.StartProcessing(ctx, batchID))

	require.Equal(t, []string{
		"/v1/batches",
		"/v1/batches/B1/payments",
		"/v1/batches/B1/generate-quote",
		"/v1/batches/B1/start-processing",
	}, paths)
}

func TestHTTPClientErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/batches" {
			_, _ = w.Write([]byte(`{"batch":{}}`))
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"ok":false,"errors":[{"code":"recipient_not_found","message":"no such recipient"}]}`))
	})

	ctx := context.Background()
	_, err := client.OpenBatch(ctx, "withdrawal")
	require.ErrorContains(t, err, "empty batch id")

	_, err = client.AddPayment(ctx, "B1", "R1", decimal.NewFromInt(10), "USD", "x")
	require.ErrorContains(t, err, "recipient_not_found")
	require.ErrorContains(t, err, "422")
}
