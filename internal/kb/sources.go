// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

// PDFSourceID derives the stable external identifier for an uploaded
// PDF from its filename: "pdf_" plus the first 8 hex characters of the
// filename's MD5. Re-uploads of the same file map to the same source.
func PDFSourceID(filename string) string {
	sum := md5.Sum([]byte(filename))
	return fmt.Sprintf("pdf_%x", sum)[:12]
}

// PubMedSourceID derives the stable external identifier for a PubMed
// article: "PMID:" plus the bare ID.
func PubMedSourceID(pmid string) string {
	return "PMID:" + strings.TrimPrefix(strings.TrimSpace(pmid), "PMID:")
}

// RegisterPDF stores an uploaded PDF as a source. If a source with the
// same derived identifier already exists, the existing record is
// returned unchanged and created is false. Text extraction happens
// before registration; content must be non-empty.
func (s *Store) RegisterPDF(ctx context.Context, filename, content string) (*types.Source, bool, error) {
	if strings.TrimSpace(content) == "" {
		return nil, false, fmt.Errorf("%w: empty content for %s", ErrValidation, filename)
	}
	src := &types.Source{
		SourceID: PDFSourceID(filename),
		Type:     types.SourcePDF,
		Title:    filename,
		Content:  content,
	}
	return s.registerSource(ctx, src)
}

// RegisterArticle stores a PubMed article as a source. The identifier is
// "PMID:<id>"; an existing source is returned unchanged. The publication
// year is taken from a 4-digit prefix of the article's year string;
// non-numeric years store NULL.
func (s *Store) RegisterArticle(ctx context.Context, article types.Article) (*types.Source, bool, error) {
	if article.PMID == "" {
		return nil, false, fmt.Errorf("%w: article has no PMID", ErrValidation)
	}
	src := &types.Source{
		SourceID: PubMedSourceID(article.PMID),
		Type:     types.SourcePubMed,
		Title:    article.Title,
		Authors:  article.Authors,
		Year:     ParseYear(article.Year),
		Content:  article.Abstract,
	}
	return s.registerSource(ctx, src)
}

// ParseYear extracts a publication year from the first four characters
// of a PubMed year string ("2023", "2023 Jan-Feb"). Returns 0 when the
// prefix is not a 4-digit number.
func ParseYear(year string) int {
	year = strings.TrimSpace(year)
	if len(year) < 4 {
		return 0
	}
	var y int
	if _, err := fmt.Sscanf(year[:4], "%4d", &y); err != nil {
		return 0
	}
	if y < 1000 {
		return 0
	}
	return y
}

func (s *Store) registerSource(ctx context.Context, src *types.Source) (*types.Source, bool, error) {
	if existing, err := s.SourceByExternalID(ctx, src.SourceID); err == nil {
		return existing, false, nil
	} else if err != ErrNotFound {
		return nil, false, err
	}

	src.CreatedAt = time.Now().UTC()

	var year any
	if src.Year > 0 {
		year = src.Year
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (source_id, type, title, authors, year, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.SourceID, string(src.Type), src.Title, src.Authors, year,
		src.Content, src.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("reading source ID: %w", err)
	}
	src.ID = id

	return src, true, nil
}

// Source returns the source with the given internal ID.
func (s *Store) Source(ctx context.Context, id int64) (*types.Source, error) {
	return s.querySource(ctx, `WHERE id = ?`, id)
}

// SourceByExternalID returns the source with the given stable external
// identifier ("pdf_..." or "PMID:...").
func (s *Store) SourceByExternalID(ctx context.Context, sourceID string) (*types.Source, error) {
	return s.querySource(ctx, `WHERE source_id = ?`, sourceID)
}

func (s *Store) querySource(ctx context.Context, where string, arg any) (*types.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, type, title, authors, year, content, created_at
		 FROM sources `+where, arg)

	var (
		src       types.Source
		srcType   string
		authors   sql.NullString
		year      sql.NullInt64
		createdAt string
	)
	err := row.Scan(&src.ID, &src.SourceID, &srcType, &src.Title,
		&authors, &year, &src.Content, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying source: %w", err)
	}

	src.Type = types.SourceType(srcType)
	if authors.Valid {
		src.Authors = authors.String
	}
	if year.Valid {
		src.Year = int(year.Int64)
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		src.CreatedAt = t
	}

	return &src, nil
}
