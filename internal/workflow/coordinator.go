// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow drives sources through extraction, classification,
// question generation, and human draft review.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/mcq-engine/internal/kb"
	"github.com/pdiddy/mcq-engine/pkg/types"
)

const defaultConcurrency = 2

// Extractor yields raw triplets for one source.
type Extractor interface {
	Run(ctx context.Context, src *types.Source) ([]types.RawTriplet, error)
}

// Generator produces and refines question proposals.
type Generator interface {
	Generate(ctx context.Context, src *types.Source, triplet *types.Triplet, sentences []string) (types.GenerationPayload, error)
	Refine(ctx context.Context, src *types.Source, prior types.GenerationPayload, feedback string) (types.GenerationPayload, error)
}

// Coordinator ties the store, the AI stages, and the draft cache
// together. No database transaction is held across an AI call; state is
// read, the call awaited, and results persisted in fresh short
// transactions.
type Coordinator struct {
	store     *kb.Store
	extractor Extractor
	generator Generator
	drafts    *DraftCache
	cfg       types.WorkflowConfig
}

// NewCoordinator wires a Coordinator from its collaborators.
func NewCoordinator(store *kb.Store, extractor Extractor, generator Generator, drafts *DraftCache, cfg types.WorkflowConfig) *Coordinator {
	return &Coordinator{
		store:     store,
		extractor: extractor,
		generator: generator,
		drafts:    drafts,
		cfg:       cfg,
	}
}

// Drafts exposes the draft cache for read-side CLI display.
func (c *Coordinator) Drafts() *DraftCache {
	return c.drafts
}

// ProcessResult reports what one pipeline pass did for a source.
type ProcessResult struct {
	SourceID string
	Classify kb.ClassifySummary

	// Generated counts newly persisted question records; Skipped counts
	// triplets that already had one; FailedGeneration counts generation
	// calls that errored.
	Generated        int
	Skipped          int
	FailedGeneration int

	// ExtractErr is set when the extraction call failed. The pipeline
	// reports it here instead of aborting batch processing.
	ExtractErr error
}

// Summary renders the result as a one-line report.
func (r ProcessResult) Summary() string {
	if r.ExtractErr != nil {
		return fmt.Sprintf("%s: extraction failed: %v", r.SourceID, r.ExtractErr)
	}
	line := fmt.Sprintf("%s: %s; %d MCQs generated, %d skipped", r.SourceID, r.Classify.Summary(), r.Generated, r.Skipped)
	if r.FailedGeneration > 0 {
		line += fmt.Sprintf(", %d failed", r.FailedGeneration)
	}
	return line
}

// HasFailures reports whether extraction or any generation call failed.
func (r ProcessResult) HasFailures() bool {
	return r.ExtractErr != nil || r.FailedGeneration > 0
}

// ProcessSource runs the single-pass pipeline for one source: extract,
// classify every returned triplet, then generate a question for each
// accepted triplet that does not have one yet. Extraction and generation
// failures land in the result; only store errors are returned.
func (c *Coordinator) ProcessSource(ctx context.Context, src *types.Source, w io.Writer) (ProcessResult, error) {
	result := ProcessResult{SourceID: src.SourceID}

	raws, err := c.extractor.Run(ctx, src)
	if err != nil {
		result.ExtractErr = err
		fmt.Fprintln(w, result.Summary())
		return result, nil
	}

	accepted, summary, err := c.store.ClassifyAll(ctx, raws, src.ID, w)
	if err != nil {
		return result, fmt.Errorf("classifying triplets for %s: %w", src.SourceID, err)
	}
	result.Classify = summary

	for _, triplet := range accepted {
		rec, skipped, err := c.GenerateForTriplet(ctx, src, triplet)
		switch {
		case err != nil:
			result.FailedGeneration++
			fmt.Fprintf(w, "generation failed for triplet %d: %v\n", triplet.ID, err)
		case skipped:
			result.Skipped++
		default:
			result.Generated++
			fmt.Fprintf(w, "generated MCQ %d for triplet %d\n", rec.ID, triplet.ID)
		}
	}

	fmt.Fprintln(w, result.Summary())
	return result, nil
}

// ProcessSources runs ProcessSource over many sources with bounded
// concurrency. Per-source output is buffered and flushed in input order
// so interleaved runs stay readable.
func (c *Coordinator) ProcessSources(ctx context.Context, sources []*types.Source, w io.Writer) ([]ProcessResult, error) {
	results := make([]ProcessResult, len(sources))
	outputs := make([]bytes.Buffer, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			result, err := c.ProcessSource(ctx, src, &outputs[i])
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	err := g.Wait()
	for i := range outputs {
		io.Copy(w, &outputs[i])
	}
	if err != nil {
		return results, err
	}
	return results, nil
}

// GenerateForTriplet persists one question for the (source, triplet)
// pair. When a record for the pair already exists generation is skipped
// and the existing record returned.
func (c *Coordinator) GenerateForTriplet(ctx context.Context, src *types.Source, triplet *types.Triplet) (*types.MCQRecord, bool, error) {
	existing, err := c.store.MCQBySourceTriplet(ctx, src.ID, triplet.ID)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, kb.ErrNotFound) {
		return nil, false, err
	}

	payload, err := c.generator.Generate(ctx, src, triplet, triplet.ContextSentences)
	if err != nil {
		return nil, false, err
	}
	if len(payload.Options) != types.OptionCount {
		return nil, false, fmt.Errorf("%w: generation returned %d options, want %d", kb.ErrValidation, len(payload.Options), types.OptionCount)
	}

	rec, err := c.store.CreateMCQ(ctx, &types.MCQRecord{
		Stem:          payload.Stem,
		Question:      payload.Question,
		Options:       payload.Options,
		CorrectOption: payload.CorrectOption,
		SourceID:      src.ID,
		TripletID:     triplet.ID,
		VisualPrompt:  payload.VisualPrompt,
		VisualTriplet: payload.VisualTriplet,
		Status:        types.MCQPending,
	})
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// GenerateDraft stages a fresh whole-source proposal for review.
func (c *Coordinator) GenerateDraft(ctx context.Context, sourceID int64) (*Draft, error) {
	src, err := c.store.Source(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	payload, err := c.generator.Generate(ctx, src, nil, nil)
	if err != nil {
		return nil, err
	}

	return c.drafts.Stage(src.ID, payload), nil
}

// RefineDraft reworks the live draft using reviewer feedback. The prior
// proposal rides along as context and the returned payload replaces the
// draft wholesale.
func (c *Coordinator) RefineDraft(ctx context.Context, sourceID int64, feedback string) (*Draft, error) {
	prior, ok := c.drafts.Get(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: no draft staged for source %d", kb.ErrNotFound, sourceID)
	}

	src, err := c.store.Source(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	payload, err := c.generator.Refine(ctx, src, prior.Payload, feedback)
	if err != nil {
		return nil, err
	}

	return c.drafts.Stage(src.ID, payload), nil
}

// AcceptDraft commits the live draft: its triplets become accepted facts,
// a pending question record is persisted with the first triplet as the
// primary link, the draft is discarded, and the source leaves the
// pending queue. Nothing is written when the option-count gate fails.
func (c *Coordinator) AcceptDraft(ctx context.Context, sourceID int64, overrideVisualPrompt string) (*types.MCQRecord, error) {
	draft, ok := c.drafts.Get(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: no draft staged for source %d", kb.ErrNotFound, sourceID)
	}

	payload := draft.Payload
	if len(payload.Options) != types.OptionCount {
		return nil, fmt.Errorf("%w: draft has %d options, want %d", kb.ErrValidation, len(payload.Options), types.OptionCount)
	}
	for _, raw := range payload.Triplets {
		if !raw.Complete() {
			return nil, fmt.Errorf("%w: draft triplet is missing subject, action, or object", kb.ErrValidation)
		}
	}

	src, err := c.store.Source(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	// Human acceptance is authoritative: draft triplets land accepted
	// and schema-valid regardless of what extraction thought.
	var primaryTripletID int64
	for i, raw := range payload.Triplets {
		triplet, err := c.store.UpsertTriplet(ctx, &types.Triplet{
			Subject:          raw.Subject,
			Action:           raw.Action,
			Object:           raw.Object,
			Relation:         raw.Relation,
			SourceID:         src.ID,
			ContextSentences: raw.ContextSentences,
			SchemaValid:      true,
			Status:           types.TripletAccepted,
		})
		if err != nil {
			return nil, fmt.Errorf("upserting draft triplet: %w", err)
		}
		if triplet.Status != types.TripletAccepted {
			if _, err := c.store.SetTripletStatus(ctx, triplet.ID, types.TripletAccepted); err != nil {
				return nil, err
			}
		}
		if i == 0 {
			primaryTripletID = triplet.ID
		}
	}

	rec, err := c.store.CreateMCQ(ctx, &types.MCQRecord{
		Stem:          payload.Stem,
		Question:      payload.Question,
		Options:       payload.Options,
		CorrectOption: payload.CorrectOption,
		SourceID:      src.ID,
		TripletID:     primaryTripletID,
		VisualPrompt:  payload.VisualPrompt,
		VisualTriplet: payload.VisualTriplet,
		Status:        types.MCQPending,
	})
	if err != nil {
		return nil, err
	}

	if overrideVisualPrompt != "" {
		if err := c.store.AttachVisual(ctx, rec.ID, overrideVisualPrompt, ""); err != nil {
			return nil, err
		}
		rec.VisualPrompt = overrideVisualPrompt
	}

	c.drafts.Discard(sourceID)

	if err := c.store.Dequeue(ctx, src.ID); err != nil {
		return nil, err
	}

	return rec, nil
}

// Regenerate re-invokes generation for an existing record using its
// original triplet and source, then overwrites only the fields present
// in the new payload.
func (c *Coordinator) Regenerate(ctx context.Context, mcqID int64) (*types.MCQRecord, error) {
	rec, err := c.store.MCQ(ctx, mcqID)
	if err != nil {
		return nil, err
	}

	src, err := c.store.Source(ctx, rec.SourceID)
	if err != nil {
		return nil, err
	}

	var triplet *types.Triplet
	var sentences []string
	if rec.TripletID != 0 {
		triplet, err = c.store.Triplet(ctx, rec.TripletID)
		if err != nil {
			return nil, err
		}
		sentences = triplet.ContextSentences
	}

	payload, err := c.generator.Generate(ctx, src, triplet, sentences)
	if err != nil {
		return nil, err
	}

	return c.store.UpdateMCQFromPayload(ctx, rec.ID, payload)
}

func (c *Coordinator) concurrency() int {
	if c.cfg.Concurrency > 0 {
		return c.cfg.Concurrency
	}
	return defaultConcurrency
}
