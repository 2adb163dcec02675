//go:build linux

package jitmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapAndClose(t *testing.T) {
	r, err := Map([]byte{0xC3})
	require.NoError(t, err)
	require.NotZero(t, r.Addr())
	require.Equal(t, 1, r.Size())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestMapEmpty(t *testing.T) {
	_, err := Map(nil)
	require.Error(t, err)
}
