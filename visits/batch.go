// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// DefaultBatchSize bounds how many rows a single write transaction touches.
const DefaultBatchSize = 500

// ProgressFunc observes a long running operation. done never decreases.
type ProgressFunc func(done, total int)

// BatchOptions controls chunked bulk operations.
type BatchOptions struct {
	// Size is the number of items per chunk. Zero means DefaultBatchSize.
	Size int

	// Progress, when set, is called after every chunk.
	Progress ProgressFunc
}

func (o BatchOptions) size() int {
	if o.Size <= 0 {
		return DefaultBatchSize
	}

	return o.Size
}

func (o BatchOptions) report(done, total int) {
	if o.Progress != nil {
		o.Progress(done, total)
	}
}

// BatchResult is the outcome of a chunked operation. Failed chunks don't stop
// the run; their items are counted in Failed and their errors kept.
type BatchResult struct {
	Total     int     `json:"total"`
	Processed int     `json:"processed"`
	Failed    int     `json:"failed"`
	Errors    []error `json:"-"`
}

// Merge combines two results.
func (r *BatchResult) Merge(o *BatchResult) *BatchResult {
	if o == nil {
		return r
	}

	r.Total += o.Total
	r.Processed += o.Processed
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)

	return r
}

// Err joins the chunk errors, nil when every chunk succeeded.
func (r *BatchResult) Err() error {
	return errors.Join(r.Errors...)
}

// RunBatches calls fn for consecutive chunks of items. Cancellation is checked
// between chunks; completed chunks stay applied and the partial result is
// returned together with ctx.Err().
func RunBatches[T any](ctx context.Context, items []T, opts BatchOptions, fn func(ctx context.Context, chunk []T) error) (*BatchResult, error) {
	result := &BatchResult{Total: len(items)}
	size := opts.size()

	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+size, len(items))
		chunk := items[start:end]

		if err := fn(ctx, chunk); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}

			log.Printf("⚠️  chunk %d-%d failed: %v", start, end, err)

			result.Failed += len(chunk)
			result.Errors = append(result.Errors, fmt.Errorf("chunk %d-%d: %w", start, end, err))
		} else {
			result.Processed += len(chunk)
		}

		opts.report(end, len(items))
	}

	return result, nil
}

// TerminalProgress returns a ProgressFunc that draws a progress bar when
// stderr is a terminal and logs otherwise.
func TerminalProgress(description string) ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)

	tty := isatty.IsTerminal(os.Stderr.Fd())

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if !tty {
			log.Printf("%s: %d/%d", description, done, total)

			return
		}

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		if err := bar.Set(done); err != nil {
			log.Printf("updating progress bar: %v", err)
		}

		if done >= total {
			_ = bar.Finish()
		}
	}
}
