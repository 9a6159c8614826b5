package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	opts := ApplyOptions()
	require.Equal(t, 0, opts.Limit)
	require.Equal(t, Asc, opts.Order)

	opts = ApplyOptions(WithLimit(10), WithDescending())
	require.Equal(t, 10, opts.Limit)
	require.Equal(t, Desc, opts.Order)

	// Non-positive limits are ignored.
	opts = ApplyOptions(WithLimit(-1))
	require.Equal(t, 0, opts.Limit)

	opts = ApplyOptions(WithDescending(), WithAscending())
	require.Equal(t, Asc, opts.Order)
}
