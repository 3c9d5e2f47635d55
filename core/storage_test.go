package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	idx, err := NewIndex()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Put("aaa", 0))
	require.NoError(t, idx.Put("bbb", 7))

	h, ok, err := idx.Height("bbb")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, h)

	_, ok, err = idx.Height("ccc")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := idx.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestChainIndexesEveryBlock(t *testing.T) {
	c := buildChain(t, 3)
	n, err := c.index.Len()
	require.NoError(t, err)
	require.Equal(t, c.Len(), n)
}
