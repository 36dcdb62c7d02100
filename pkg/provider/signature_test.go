package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"model":"payment","action":"processed"}`)
	v := NewVerifierWithSecret("whsec", 5*time.Minute, func() time.Time { return now })

	require.NoError(t, v.Verify(Sign("whsec", now, body), body))
	require.ErrorIs(t, v.Verify(Sign("other", now, body), body), ErrSignatureMismatch)
	require.ErrorIs(t, v.Verify(Sign("whsec", now, body), []byte(`{}`)), ErrSignatureMismatch)
	require.ErrorIs(t, v.Verify(Sign("whsec", now.Add(-time.Hour), body), body), ErrSignatureExpired)
}

func TestVerifySignatureMalformed(t *testing.T) {
	v := NewVerifierWithSecret("whsec", 0, nil)
	body := []byte(`{}`)

	for _, header := range []string{
		"",
		"garbage",
		"t=abc,v1=00",
		"t=1700000000",
		"v1=deadbeef",
		"t=1700000000,v1=not-hex",
	} {
		require.ErrorIs(t, v.Verify(header, body), ErrMalformedSignature, header)
	}
}

func TestVerifySignatureAcceptsAnyListedSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"ok":true}`)
	v := NewVerifierWithSecret("whsec", 0, nil)

	valid := Sign("whsec", now, body)
	header := "t=1700000000,v1=00ff," + valid[len("t=1700000000,"):]
	require.NoError(t, v.Verify(header, body))
}
