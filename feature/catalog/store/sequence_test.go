package store

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateSequential(t *testing.T) {
	s := newTestStore(t)
	alloc := NewAllocator(s.DB(), nil)
	ctx := context.Background()

	first, err := alloc.Allocate(ctx, "INV/25/")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := alloc.Allocate(ctx, "INV/25/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)

	last, err := alloc.Peek(ctx, "INV/25/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}

func TestPeekUnknownPrefix(t *testing.T) {
	s := newTestStore(t)
	alloc := NewAllocator(s.DB(), nil)

	last, err := alloc.Peek(context.Background(), "NOPE/")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestPrefixesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	alloc := NewAllocator(s.DB(), nil)
	ctx := context.Background()

	a, err := alloc.Allocate(ctx, "INV/25/")
	require.NoError(t, err)
	b, err := alloc.Allocate(ctx, "CRN/25/")
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), b)
}

func TestAllocateRange(t *testing.T) {
	s := newTestStore(t)
	alloc := NewAllocator(s.DB(), nil)
	ctx := context.Background()

	first, last, err := alloc.AllocateRange(ctx, "INV/25/", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(5), last)

	first, last, err = alloc.AllocateRange(ctx, "INV/25/", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(6), first)
	assert.Equal(t, int64(8), last)
}

func TestAllocateRejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	alloc := NewAllocator(s.DB(), nil)
	ctx := context.Background()

	_, _, err := alloc.AllocateRange(ctx, "", 1)
	assert.Error(t, err)

	_, _, err = alloc.AllocateRange(ctx, "INV/25/", 0)
	assert.Error(t, err)
}

func TestAllocateConcurrent(t *testing.T) {
	s := newSharedTestStore(t)
	alloc := NewAllocator(s.DB(), nil)
	ctx := context.Background()

	const n = 20
	results := make([]int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			num, err := alloc.Allocate(ctx, "INV/25/")
			assert.NoError(t, err)
			results[i] = num
		}(i)
	}
	wg.Wait()

	// N concurrent allocations form a contiguous ascending run with no
	// duplicates and no gaps.
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, num := range results {
		assert.Equal(t, int64(i+1), num)
	}
}
