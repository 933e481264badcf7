// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatches(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	var (
		chunks   [][]int
		progress []int
	)

	result, err := RunBatches(context.Background(), items, BatchOptions{
		Size:     3,
		Progress: func(done, total int) { progress = append(progress, done); assert.Equal(t, 10, total) },
	}, func(_ context.Context, chunk []int) error {
		chunks = append(chunks, chunk)

		if chunk[0] == 3 {
			return errors.New("boom")
		}

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, {9}}, chunks)
	assert.Equal(t, []int{3, 6, 9, 10}, progress)
	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 7, result.Processed)
	assert.Equal(t, 3, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.ErrorContains(t, result.Err(), "chunk 3-6: boom")
}

func TestRunBatchesDefaultSize(t *testing.T) {
	items := make([]int, DefaultBatchSize+1)

	calls := 0
	result, err := RunBatches(context.Background(), items, BatchOptions{}, func(_ context.Context, _ []int) error {
		calls++

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, DefaultBatchSize+1, result.Processed)
	assert.NoError(t, result.Err())
}

func TestRunBatchesEmpty(t *testing.T) {
	result, err := RunBatches(context.Background(), []string(nil), BatchOptions{}, func(_ context.Context, _ []string) error {
		t.Fatal("fn must not be called")

		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Total)
}

func TestRunBatchesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var progress []int

	result, err := RunBatches(ctx, []int{1, 2, 3, 4, 5, 6}, BatchOptions{
		Size:     2,
		Progress: func(done, _ int) { progress = append(progress, done) },
	}, func(_ context.Context, _ []int) error {
		// the first chunk completes, nothing after it starts
		cancel()

		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 6, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []int{2}, progress)
}

func TestRunBatchesCancelledChunkIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := RunBatches(ctx, []int{1, 2, 3}, BatchOptions{Size: 1}, func(ctx context.Context, chunk []int) error {
		if chunk[0] == 2 {
			cancel()

			return ctx.Err()
		}

		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)
}

func TestBatchResultMerge(t *testing.T) {
	a := &BatchResult{Total: 3, Processed: 2, Failed: 1, Errors: []error{errors.New("a")}}
	b := &BatchResult{Total: 2, Processed: 2}

	a.Merge(b).Merge(nil)

	assert.Equal(t, 5, a.Total)
	assert.Equal(t, 4, a.Processed)
	assert.Equal(t, 1, a.Failed)
	assert.Len(t, a.Errors, 1)
}
