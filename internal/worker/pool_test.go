// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	pool := New(2)
	var current, max int32

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			n := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&max)
				if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
					break
				}
			}
			atomic.AddInt32(&current, -1)
			return nil
		}
	}

	require.NoError(t, pool.Run(context.Background(), tasks))
	assert.LessOrEqual(t, int(max), 2)
}

func TestRun_PropagatesFirstError(t *testing.T) {
	pool := New(4)
	boom := errors.New("boom")
	tasks := []Task{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { return nil },
	}
	err := pool.Run(context.Background(), tasks)
	assert.ErrorIs(t, err, boom)
}

func TestRunIndexed_WritesEachResult(t *testing.T) {
	pool := New(3)
	results := make([]int, 5)
	err := pool.RunIndexed(context.Background(), len(results), func(ctx context.Context, i int) error {
		results[i] = i * i
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4, 9, 16}, results)
}
