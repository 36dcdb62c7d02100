package gen

import (
	"testing"

	"payouts-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeNode(t *testing.T) {
	node, err := NewSnowflakeNode(&config.Config{NodeID: 7})
	require.NoError(t, err)
	require.EqualValues(t, 7, node.Generate().Node())

	_, err = NewSnowflakeNode(&config.Config{NodeID: 5000})
	require.Error(t, err)
}
