// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generate produces multiple-choice questions from source text
// and stored facts.
package generate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

const (
	defaultMaxRetries = 3

	// Content caps sent per call. Refinement sends a shorter snippet
	// because the prior payload rides along in the prompt.
	generateContentChars = 8000
	refineContentChars   = 6000
)

// Generator abstracts the MCQ generation API so tests can supply a mock.
// A nil triplet asks for a whole-source proposal; a non-nil triplet
// targets that specific fact.
type Generator interface {
	Generate(ctx context.Context, src *types.Source, triplet *types.Triplet, sentences []string) (types.GenerationPayload, error)
	Refine(ctx context.Context, src *types.Source, prior types.GenerationPayload, feedback string) (types.GenerationPayload, error)
}

// ImageBackend abstracts the image generation API.
type ImageBackend interface {
	GenerateImage(ctx context.Context, prompt, size string) ([]byte, error)
}

// Service drives a Generator with retry and content truncation.
type Service struct {
	backend Generator
	cfg     types.GenerationConfig
}

// NewService returns a Service using the given backend and configuration.
func NewService(backend Generator, cfg types.GenerationConfig) *Service {
	return &Service{backend: backend, cfg: cfg}
}

// Generate produces a question proposal for the source. When triplet is
// non-nil the question targets that fact and sentences carry its evidence.
func (s *Service) Generate(ctx context.Context, src *types.Source, triplet *types.Triplet, sentences []string) (types.GenerationPayload, error) {
	if src == nil {
		return types.GenerationPayload{}, fmt.Errorf("no source to generate from")
	}

	clipped := clipSource(src, generateContentChars)
	payload, err := callWithRetry(ctx, s.maxRetries(), func(ctx context.Context) (types.GenerationPayload, error) {
		return s.backend.Generate(ctx, clipped, triplet, sentences)
	})
	if err != nil {
		return types.GenerationPayload{}, fmt.Errorf("generating question for %s: %w", src.SourceID, err)
	}
	return payload, nil
}

// Refine reworks a prior proposal using reviewer feedback.
func (s *Service) Refine(ctx context.Context, src *types.Source, prior types.GenerationPayload, feedback string) (types.GenerationPayload, error) {
	if src == nil {
		return types.GenerationPayload{}, fmt.Errorf("no source to refine against")
	}

	clipped := clipSource(src, refineContentChars)
	payload, err := callWithRetry(ctx, s.maxRetries(), func(ctx context.Context) (types.GenerationPayload, error) {
		return s.backend.Refine(ctx, clipped, prior, feedback)
	})
	if err != nil {
		return types.GenerationPayload{}, fmt.Errorf("refining question for %s: %w", src.SourceID, err)
	}
	return payload, nil
}

func (s *Service) maxRetries() int {
	if s.cfg.MaxRetries > 0 {
		return s.cfg.MaxRetries
	}
	return defaultMaxRetries
}

// clipSource returns a shallow copy of src with content truncated to limit.
func clipSource(src *types.Source, limit int) *types.Source {
	if len(src.Content) <= limit {
		return src
	}
	clipped := *src
	clipped.Content = src.Content[:limit]
	return &clipped
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

func callWithRetry(ctx context.Context, maxRetries int, call func(context.Context) (types.GenerationPayload, error)) (types.GenerationPayload, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return types.GenerationPayload{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		payload, err := call(ctx)
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return types.GenerationPayload{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
