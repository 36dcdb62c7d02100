package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMinPayout(t *testing.T) {
	cfg := &Config{}
	cfg.Payments.MinPayoutAmount = "25.50"
	require.True(t, decimal.RequireFromString("25.5").Equal(cfg.MinPayout()))

	cfg.Payments.MinPayoutAmount = "not-a-number"
	require.True(t, decimal.NewFromInt(50).Equal(cfg.MinPayout()))
}

func TestRevertThreshold(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, 12*time.Hour, cfg.RevertThreshold())

	cfg.Payments.RevertProcessingAfter = time.Hour
	require.Equal(t, time.Hour, cfg.RevertThreshold())
}
