package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "API key")
}

func TestCloseWithoutClient(t *testing.T) {
	t.Parallel()

	var c Client
	require.NoError(t, c.Close())
}
