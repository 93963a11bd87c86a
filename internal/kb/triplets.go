// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

// distractorLimit caps distractor query results.
const distractorLimit = 10

// UpsertTriplet stores or updates a triplet. The tuple (subject, action,
// object, source ID) is the identity: on a hit the existing row's
// context sentences are overwritten (only when the new list is
// non-empty) along with the validity flag, the review status is left
// untouched, and the existing row is returned. On a miss a new row is
// inserted with status pending.
func (s *Store) UpsertTriplet(ctx context.Context, t *types.Triplet) (*types.Triplet, error) {
	existing, err := s.tripletByTuple(ctx, t.Subject, t.Action, t.Object, t.SourceID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	if existing != nil {
		if len(t.ContextSentences) > 0 {
			existing.ContextSentences = t.ContextSentences
		}
		existing.SchemaValid = t.SchemaValid

		sentencesJSON, _ := json.Marshal(existing.ContextSentences)
		_, err := s.db.ExecContext(ctx,
			`UPDATE triplets SET context_sentences = ?, schema_valid = ? WHERE id = ?`,
			string(sentencesJSON), existing.SchemaValid, existing.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("updating triplet %d: %w", existing.ID, err)
		}
		return existing, nil
	}

	t.Status = types.TripletPending
	if err := s.insertTriplet(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ClassifyOutcome is the result of classifying one extracted triplet.
type ClassifyOutcome string

const (
	OutcomeAccepted  ClassifyOutcome = "accepted"
	OutcomePending   ClassifyOutcome = "pending"
	OutcomeDuplicate ClassifyOutcome = "duplicate"
	OutcomeMalformed ClassifyOutcome = "malformed"
)

// AutoClassify stores a freshly extracted triplet, deciding its initial
// review status. The triplet is accepted when it is schema-valid, or
// when an already-accepted triplet with the same subject, action,
// object, and relation exists anywhere in the store, since acceptance of
// a fact propagates across sources. A duplicate tuple within the same
// source is skipped, not reinserted. Incomplete triplets are reported
// malformed and not stored.
func (s *Store) AutoClassify(ctx context.Context, raw types.RawTriplet, sourceID int64) (*types.Triplet, ClassifyOutcome, error) {
	if !raw.Complete() {
		return nil, OutcomeMalformed, nil
	}

	existing, err := s.tripletByTuple(ctx, raw.Subject, raw.Action, raw.Object, sourceID)
	if err != nil && err != ErrNotFound {
		return nil, "", err
	}
	if existing != nil {
		return existing, OutcomeDuplicate, nil
	}

	status := types.TripletPending
	if raw.SchemaValid {
		status = types.TripletAccepted
	} else {
		accepted, err := s.acceptedFactExists(ctx, raw.Subject, raw.Action, raw.Object, raw.Relation)
		if err != nil {
			return nil, "", err
		}
		if accepted {
			status = types.TripletAccepted
		}
	}

	t := &types.Triplet{
		Subject:          raw.Subject,
		Action:           raw.Action,
		Object:           raw.Object,
		Relation:         raw.Relation,
		SourceID:         sourceID,
		ContextSentences: raw.ContextSentences,
		SchemaValid:      raw.SchemaValid,
		Status:           status,
	}
	if err := s.insertTriplet(ctx, t); err != nil {
		return nil, "", err
	}

	if status == types.TripletAccepted {
		return t, OutcomeAccepted, nil
	}
	return t, OutcomePending, nil
}

// ClassifySummary holds counts from a bulk triplet classification run.
type ClassifySummary struct {
	Accepted   int
	Pending    int
	Duplicates int
	Malformed  int
}

// Total returns the number of extracted triplets processed.
func (c ClassifySummary) Total() int {
	return c.Accepted + c.Pending + c.Duplicates + c.Malformed
}

// Summary returns a one-line human-readable report.
func (c ClassifySummary) Summary() string {
	return fmt.Sprintf("%d accepted, %d pending, %d duplicates skipped, %d malformed",
		c.Accepted, c.Pending, c.Duplicates, c.Malformed)
}

// ClassifyAll runs AutoClassify over a batch of extracted triplets and
// returns the accepted rows along with the aggregate counts. Duplicates
// whose stored status is accepted are included in the returned slice, so
// a re-run of a source feeds them back to generation and its
// existence check decides whether an MCQ is still owed. Per-triplet
// outcomes are written to w.
func (s *Store) ClassifyAll(ctx context.Context, raws []types.RawTriplet, sourceID int64, w io.Writer) ([]*types.Triplet, ClassifySummary, error) {
	var (
		summary  ClassifySummary
		accepted []*types.Triplet
	)

	for _, raw := range raws {
		t, outcome, err := s.AutoClassify(ctx, raw, sourceID)
		if err != nil {
			return nil, summary, fmt.Errorf("classifying %s/%s/%s: %w", raw.Subject, raw.Action, raw.Object, err)
		}

		switch outcome {
		case OutcomeAccepted:
			summary.Accepted++
			accepted = append(accepted, t)
		case OutcomePending:
			summary.Pending++
		case OutcomeDuplicate:
			summary.Duplicates++
			if t.Status == types.TripletAccepted {
				accepted = append(accepted, t)
			}
		case OutcomeMalformed:
			summary.Malformed++
		}

		if outcome == OutcomeMalformed {
			fmt.Fprintf(w, "%-9s (incomplete triplet)\n", outcome)
		} else {
			fmt.Fprintf(w, "%-9s %s → %s → %s\n", outcome, raw.Subject, raw.Action, raw.Object)
		}
	}

	return accepted, summary, nil
}

// SetTripletStatus transitions a triplet to a new review status. There
// is no guard beyond existence: any status may move to any other.
// Returns false when the triplet does not exist.
func (s *Store) SetTripletStatus(ctx context.Context, id int64, status types.TripletStatus) (bool, error) {
	if !types.ValidTripletStatus(status) {
		return false, fmt.Errorf("%w: unknown triplet status %q", ErrValidation, status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE triplets SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("updating triplet status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// Triplet returns the triplet with the given internal ID.
func (s *Store) Triplet(ctx context.Context, id int64) (*types.Triplet, error) {
	rows, err := s.queryTriplets(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// QueryDistractors returns up to 10 accepted triplets for distractor
// authoring. A subject filter finds same-subject facts with different
// predicates; supplying both action and object finds same-predicate
// facts with different subjects.
func (s *Store) QueryDistractors(ctx context.Context, subject, action, object string) ([]*types.Triplet, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`WHERE status = 'accepted'`)

	if subject != "" {
		qb.WriteString(` AND subject = ?`)
		args = append(args, subject)
	}
	if action != "" && object != "" {
		qb.WriteString(` AND action = ? AND object = ?`)
		args = append(args, action, object)
	}

	qb.WriteString(` ORDER BY id LIMIT ?`)
	args = append(args, distractorLimit)

	return s.queryTriplets(ctx, qb.String(), args...)
}

// ListAccepted returns all accepted triplets, optionally scoped to one
// source (sourceID 0 means all sources). Accepted triplets serve as the
// distractor corpus and the knowledge export payload.
func (s *Store) ListAccepted(ctx context.Context, sourceID int64) ([]*types.Triplet, error) {
	if sourceID > 0 {
		return s.queryTriplets(ctx, `WHERE status = 'accepted' AND source_id = ? ORDER BY id`, sourceID)
	}
	return s.queryTriplets(ctx, `WHERE status = 'accepted' ORDER BY id`)
}

// ListTriplets returns triplets filtered by status and/or source; empty
// status and sourceID 0 list everything.
func (s *Store) ListTriplets(ctx context.Context, status types.TripletStatus, sourceID int64) ([]*types.Triplet, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`WHERE 1=1`)
	if status != "" {
		qb.WriteString(` AND status = ?`)
		args = append(args, string(status))
	}
	if sourceID > 0 {
		qb.WriteString(` AND source_id = ?`)
		args = append(args, sourceID)
	}
	qb.WriteString(` ORDER BY id`)
	return s.queryTriplets(ctx, qb.String(), args...)
}

func (s *Store) insertTriplet(ctx context.Context, t *types.Triplet) error {
	sentencesJSON, _ := json.Marshal(t.ContextSentences)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO triplets (subject, action, object, relation, source_id, context_sentences, schema_valid, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Subject, t.Action, t.Object, t.Relation, t.SourceID,
		string(sentencesJSON), t.SchemaValid, string(t.Status),
	)
	if err != nil {
		return fmt.Errorf("inserting triplet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading triplet ID: %w", err)
	}
	t.ID = id
	return nil
}

func (s *Store) tripletByTuple(ctx context.Context, subject, action, object string, sourceID int64) (*types.Triplet, error) {
	rows, err := s.queryTriplets(ctx,
		`WHERE subject = ? AND action = ? AND object = ? AND source_id = ?`,
		subject, action, object, sourceID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) acceptedFactExists(ctx context.Context, subject, action, object, relation string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM triplets
		 WHERE subject = ? AND action = ? AND object = ? AND relation = ? AND status = 'accepted'`,
		subject, action, object, relation,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking accepted facts: %w", err)
	}
	return n > 0, nil
}

func (s *Store) queryTriplets(ctx context.Context, where string, args ...any) ([]*types.Triplet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject, action, object, relation, source_id, context_sentences, schema_valid, status
		 FROM triplets `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying triplets: %w", err)
	}
	defer rows.Close()

	var results []*types.Triplet
	for rows.Next() {
		var (
			t             types.Triplet
			relation      sql.NullString
			sentencesJSON sql.NullString
			status        string
		)
		if err := rows.Scan(&t.ID, &t.Subject, &t.Action, &t.Object,
			&relation, &t.SourceID, &sentencesJSON, &t.SchemaValid, &status); err != nil {
			return nil, fmt.Errorf("scanning triplet row: %w", err)
		}
		if relation.Valid {
			t.Relation = relation.String
		}
		if sentencesJSON.Valid {
			json.Unmarshal([]byte(sentencesJSON.String), &t.ContextSentences)
		}
		t.Status = types.TripletStatus(status)
		results = append(results, &t)
	}

	return results, rows.Err()
}
