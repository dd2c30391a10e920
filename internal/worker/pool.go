// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package worker implements the bounded worker pool spec.md §5 names
// for CPU-bound work. Its one caller is internal/api, whose
// RetrieveMessages loads and decodes chat messages through it; session
// crypto and store hashing do not go through the pool.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs tasks with a capped number running concurrently, modeled
// on the teacher's errgroup-based enricher fan-out.
type Pool struct {
	limit int
}

// New builds a Pool that never runs more than limit tasks at once.
// limit <= 0 means unbounded.
func New(limit int) *Pool {
	return &Pool{limit: limit}
}

// Task is one unit of bounded work.
type Task func(ctx context.Context) error

// Run executes tasks with at most p.limit running concurrently,
// returning the first error encountered. The remaining queued tasks
// are cancelled via ctx (errgroup.WithContext) once a task fails.
func (p *Pool) Run(ctx context.Context, tasks []Task) error {
	g, gCtx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task(gCtx)
		})
	}
	return g.Wait()
}

// RunIndexed runs count tasks identified by index, useful when each
// task needs to write its result into a pre-sized slice at its own
// index rather than returning it through a channel.
func (p *Pool) RunIndexed(ctx context.Context, count int, fn func(ctx context.Context, i int) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			return fn(gCtx, i)
		})
	}
	return g.Wait()
}
