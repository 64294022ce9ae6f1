package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePortals(t *testing.T) {
	t.Parallel()

	targets, err := resolvePortals(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, targets, "empty flags mean every portal")

	targets, err = resolvePortals([]string{" Remotive ", "wellfound"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"remotive", "wellfound"}, targets)

	targets, err = resolvePortals(nil, []string{"wellfound"})
	require.NoError(t, err)
	assert.NotContains(t, targets, "wellfound")
	assert.Len(t, targets, 5)

	_, err = resolvePortals([]string{"monster"}, nil)
	assert.Error(t, err)

	_, err = resolvePortals(nil, []string{"monster"})
	assert.Error(t, err)
}
