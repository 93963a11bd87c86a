// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract pulls subject-action-object triplets out of source text.
package extract

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

const (
	defaultMaxContentChars = 8000
	defaultMaxRetries      = 3
)

// Backend abstracts the Generative AI API so tests can supply a mock.
// Implementations receive the source title and (possibly truncated) text
// and return the raw triplets the model found.
type Backend interface {
	ExtractTriplets(ctx context.Context, title, text string) ([]types.RawTriplet, error)
}

// Extractor drives a Backend, applying the content cap and retrying
// failed calls with exponential backoff.
type Extractor struct {
	backend Backend
	cfg     types.ExtractionConfig
}

// New returns an Extractor using the given backend and configuration.
func New(backend Backend, cfg types.ExtractionConfig) *Extractor {
	return &Extractor{backend: backend, cfg: cfg}
}

// Run extracts raw triplets from one source. Source text beyond the
// configured cap is truncated before prompting; triplet fields are
// whitespace-trimmed on the way out. Incomplete triplets are returned
// as-is so classification can count them rather than the whole batch
// failing.
func (e *Extractor) Run(ctx context.Context, src *types.Source) ([]types.RawTriplet, error) {
	if src == nil || strings.TrimSpace(src.Content) == "" {
		return nil, fmt.Errorf("source %q has no text to extract from", title(src))
	}

	text := src.Content
	if limit := e.maxContentChars(); len(text) > limit {
		text = text[:limit]
	}

	raws, err := callWithRetry(ctx, e.backend, title(src), text, e.maxRetries())
	if err != nil {
		return nil, fmt.Errorf("extracting triplets from %s: %w", src.SourceID, err)
	}

	for i := range raws {
		raws[i].Subject = strings.TrimSpace(raws[i].Subject)
		raws[i].Action = strings.TrimSpace(raws[i].Action)
		raws[i].Object = strings.TrimSpace(raws[i].Object)
		raws[i].Relation = strings.TrimSpace(raws[i].Relation)
	}

	return raws, nil
}

func (e *Extractor) maxContentChars() int {
	if e.cfg.MaxContentChars > 0 {
		return e.cfg.MaxContentChars
	}
	return defaultMaxContentChars
}

func (e *Extractor) maxRetries() int {
	if e.cfg.MaxRetries > 0 {
		return e.cfg.MaxRetries
	}
	return defaultMaxRetries
}

func title(src *types.Source) string {
	if src == nil {
		return ""
	}
	if src.Title != "" {
		return src.Title
	}
	return src.SourceID
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the backend with exponential backoff.
func callWithRetry(ctx context.Context, backend Backend, title, text string, maxRetries int) ([]types.RawTriplet, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		raws, err := backend.ExtractTriplets(ctx, title, text)
		if err == nil {
			return raws, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
