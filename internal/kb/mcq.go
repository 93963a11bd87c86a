// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

// searchLimit caps MCQ search results.
const searchLimit = 10

// CreateMCQ persists a new MCQ record. The record must carry exactly
// types.OptionCount options and a correct-option index within range;
// anything else fails with ErrValidation before any write.
func (s *Store) CreateMCQ(ctx context.Context, rec *types.MCQRecord) (*types.MCQRecord, error) {
	if len(rec.Options) != types.OptionCount {
		return nil, fmt.Errorf("%w: expected %d options, got %d", ErrValidation, types.OptionCount, len(rec.Options))
	}
	if rec.CorrectOption < 0 || rec.CorrectOption >= types.OptionCount {
		return nil, fmt.Errorf("%w: correct option index %d out of range", ErrValidation, rec.CorrectOption)
	}
	if rec.Question == "" {
		return nil, fmt.Errorf("%w: empty question", ErrValidation)
	}

	if rec.Status == "" {
		rec.Status = types.MCQPending
	}
	rec.CreatedAt = time.Now().UTC()

	optionsJSON, _ := json.Marshal(rec.Options)

	var tripletID any
	if rec.TripletID > 0 {
		tripletID = rec.TripletID
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO mcq_records (stem, question, options, correct_option, source_id, triplet_id, visual_prompt, visual_triplet, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Stem, rec.Question, string(optionsJSON), rec.CorrectOption,
		rec.SourceID, tripletID, rec.VisualPrompt, rec.VisualTriplet,
		string(rec.Status), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting MCQ record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading MCQ record ID: %w", err)
	}
	rec.ID = id

	return rec, nil
}

// MCQ returns the MCQ record with the given internal ID.
func (s *Store) MCQ(ctx context.Context, id int64) (*types.MCQRecord, error) {
	recs, err := s.queryMCQs(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// MCQBySourceTriplet returns the MCQ record generated for a (source,
// triplet) pair, or ErrNotFound. At most one record is auto-generated
// per pair; generation checks here before calling the model.
func (s *Store) MCQBySourceTriplet(ctx context.Context, sourceID, tripletID int64) (*types.MCQRecord, error) {
	recs, err := s.queryMCQs(ctx, `WHERE source_id = ? AND triplet_id = ?`, sourceID, tripletID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// UpdateMCQFromPayload overwrites a record's generated fields with those
// present in a regeneration payload. Absent fields (empty strings, nil
// options) retain their prior values; a present option list must still
// carry exactly types.OptionCount entries.
func (s *Store) UpdateMCQFromPayload(ctx context.Context, id int64, payload types.GenerationPayload) (*types.MCQRecord, error) {
	rec, err := s.MCQ(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload.Stem != "" {
		rec.Stem = payload.Stem
	}
	if payload.Question != "" {
		rec.Question = payload.Question
	}
	if payload.Options != nil {
		if len(payload.Options) != types.OptionCount {
			return nil, fmt.Errorf("%w: expected %d options, got %d", ErrValidation, types.OptionCount, len(payload.Options))
		}
		if payload.CorrectOption < 0 || payload.CorrectOption >= types.OptionCount {
			return nil, fmt.Errorf("%w: correct option index %d out of range", ErrValidation, payload.CorrectOption)
		}
		rec.Options = payload.Options
		rec.CorrectOption = payload.CorrectOption
	}
	if payload.VisualPrompt != "" {
		rec.VisualPrompt = payload.VisualPrompt
	}
	if payload.VisualTriplet != "" {
		rec.VisualTriplet = payload.VisualTriplet
	}

	optionsJSON, _ := json.Marshal(rec.Options)
	_, err = s.db.ExecContext(ctx,
		`UPDATE mcq_records
		 SET stem = ?, question = ?, options = ?, correct_option = ?, visual_prompt = ?, visual_triplet = ?
		 WHERE id = ?`,
		rec.Stem, rec.Question, string(optionsJSON), rec.CorrectOption,
		rec.VisualPrompt, rec.VisualTriplet, rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating MCQ record %d: %w", id, err)
	}

	return rec, nil
}

// SetMCQStatus transitions an MCQ record's review status. Returns false
// when the record does not exist.
func (s *Store) SetMCQStatus(ctx context.Context, id int64, status types.MCQStatus) (bool, error) {
	if !types.ValidMCQStatus(status) {
		return false, fmt.Errorf("%w: unknown MCQ status %q", ErrValidation, status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE mcq_records SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("updating MCQ status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// AttachVisual overwrites the visual prompt (and optionally the visual
// triplet note) on an existing record.
func (s *Store) AttachVisual(ctx context.Context, id int64, prompt, visualTriplet string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcq_records SET visual_prompt = ?,
		 visual_triplet = CASE WHEN ? != '' THEN ? ELSE visual_triplet END
		 WHERE id = ?`,
		prompt, visualTriplet, visualTriplet, id)
	if err != nil {
		return fmt.Errorf("attaching visual prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("MCQ record %d: %w", id, ErrNotFound)
	}
	return nil
}

// SearchHit is an MCQ record joined with its source metadata.
type SearchHit struct {
	types.MCQRecord
	SourceExternalID string `json:"source_external_id" yaml:"source_external_id"`
	SourceTitle      string `json:"source_title" yaml:"source_title"`
	SourceAuthors    string `json:"source_authors,omitempty" yaml:"source_authors,omitempty"`
}

// SearchMCQs matches the query case-insensitively as a substring of the
// source external ID, source title, or MCQ question text. An empty
// query returns the most recent records unfiltered. Results are newest
// first, capped at 10.
func (s *Store) SearchMCQs(ctx context.Context, query string) ([]SearchHit, error) {
	var (
		qb   strings.Builder
		args []any
	)

	qb.WriteString(
		`SELECT m.id, m.stem, m.question, m.options, m.correct_option,
			m.source_id, m.triplet_id, m.visual_prompt, m.visual_triplet,
			m.status, m.created_at,
			s.source_id, s.title, s.authors
		 FROM mcq_records m
		 JOIN sources s ON s.id = m.source_id`)

	query = strings.TrimSpace(query)
	if query != "" {
		pattern := "%" + strings.ToLower(query) + "%"
		qb.WriteString(
			` WHERE lower(s.source_id) LIKE ? OR lower(s.title) LIKE ? OR lower(m.question) LIKE ?`)
		args = append(args, pattern, pattern, pattern)
	}

	qb.WriteString(` ORDER BY m.created_at DESC, m.id DESC LIMIT ?`)
	args = append(args, searchLimit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching MCQ records: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		hit, err := scanSearchHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

func scanSearchHit(rows *sql.Rows) (SearchHit, error) {
	var (
		hit           SearchHit
		stem          sql.NullString
		optionsJSON   string
		tripletID     sql.NullInt64
		visualPrompt  sql.NullString
		visualTriplet sql.NullString
		status        string
		createdAt     string
		authors       sql.NullString
	)
	err := rows.Scan(&hit.ID, &stem, &hit.Question, &optionsJSON, &hit.CorrectOption,
		&hit.SourceID, &tripletID, &visualPrompt, &visualTriplet,
		&status, &createdAt,
		&hit.SourceExternalID, &hit.SourceTitle, &authors)
	if err != nil {
		return SearchHit{}, fmt.Errorf("scanning MCQ search row: %w", err)
	}

	if stem.Valid {
		hit.Stem = stem.String
	}
	json.Unmarshal([]byte(optionsJSON), &hit.Options)
	if tripletID.Valid {
		hit.TripletID = tripletID.Int64
	}
	if visualPrompt.Valid {
		hit.VisualPrompt = visualPrompt.String
	}
	if visualTriplet.Valid {
		hit.VisualTriplet = visualTriplet.String
	}
	hit.Status = types.MCQStatus(status)
	if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		hit.CreatedAt = t
	}
	if authors.Valid {
		hit.SourceAuthors = authors.String
	}

	return hit, nil
}

func (s *Store) queryMCQs(ctx context.Context, where string, args ...any) ([]*types.MCQRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stem, question, options, correct_option, source_id, triplet_id,
			visual_prompt, visual_triplet, status, created_at
		 FROM mcq_records `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying MCQ records: %w", err)
	}
	defer rows.Close()

	var results []*types.MCQRecord
	for rows.Next() {
		var (
			rec           types.MCQRecord
			stem          sql.NullString
			optionsJSON   string
			tripletID     sql.NullInt64
			visualPrompt  sql.NullString
			visualTriplet sql.NullString
			status        string
			createdAt     string
		)
		if err := rows.Scan(&rec.ID, &stem, &rec.Question, &optionsJSON, &rec.CorrectOption,
			&rec.SourceID, &tripletID, &visualPrompt, &visualTriplet, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning MCQ row: %w", err)
		}
		if stem.Valid {
			rec.Stem = stem.String
		}
		json.Unmarshal([]byte(optionsJSON), &rec.Options)
		if tripletID.Valid {
			rec.TripletID = tripletID.Int64
		}
		if visualPrompt.Valid {
			rec.VisualPrompt = visualPrompt.String
		}
		if visualTriplet.Valid {
			rec.VisualTriplet = visualTriplet.String
		}
		rec.Status = types.MCQStatus(status)
		if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			rec.CreatedAt = t
		}
		results = append(results, &rec)
	}

	return results, rows.Err()
}
