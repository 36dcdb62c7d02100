package sequence

import (
	"regexp"
	"testing"

	"payouts-controlplane/pkg/rediskey"

	"github.com/stretchr/testify/require"
)

func TestFormatCode(t *testing.T) {
	require.Equal(t, "REL-240301-001AB", formatCode("REL", "240301", 1, "AB"))
	require.Equal(t, "REL-240301-0ZZXY", formatCode("REL", "240301", 36*36-1, "XY"))
	require.Equal(t, "REL-240301-1000Q2", formatCode("REL", "240301", 36*36*36, "Q2"))
}

func TestRandomAlphaNumeric(t *testing.T) {
	s, err := randomAlphaNumeric(8)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[A-HJ-NP-Z2-9]{8}$`), s)
}

func TestDailySequenceKey(t *testing.T) {
	require.Equal(t, "seq:REL:240301", rediskey.BuildDailySequenceKey("REL", "240301"))
}
