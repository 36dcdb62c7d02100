package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"payouts-controlplane/pkg/config"
)

const (
	SignatureHeader = "x-provider-signature"
	DeliveryHeader  = "x-provider-delivery"
)

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
)

// Verifier checks "t=<unix>,v1=<hex hmac-sha256 of t+body>" headers.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{
		secret:    []byte(cfg.Provider.WebhookSecret),
		tolerance: cfg.Provider.WebhookTolerance,
		now:       time.Now,
	}
}

func NewVerifierWithSecret(secret string, tolerance time.Duration, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: now}
}

func (v *Verifier) Verify(header string, body []byte) error {
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > v.tolerance {
			return ErrSignatureExpired
		}
	}

	expected := computeMAC(v.secret, strconv.FormatInt(ts, 10), body)
	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}

	return ErrSignatureMismatch
}

// Sign builds a signature header value for body at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, hex.EncodeToString(computeMAC([]byte(secret), t, body)))
}

func computeMAC(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, ErrMalformedSignature
	}

	var (
		ts    int64
		hasTS bool
		sigs  [][]byte
	)

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrMalformedSignature
		}

		switch key {
		case "t":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			ts, hasTS = n, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			sigs = append(sigs, sig)
		}
	}

	if !hasTS || len(sigs) == 0 {
		return 0, nil, ErrMalformedSignature
	}

	return ts, sigs, nil
}
