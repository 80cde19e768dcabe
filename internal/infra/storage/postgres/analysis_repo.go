package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/storage"
)

// AnalysisRepo implements storage.AnalysisRepository on PostgreSQL.
type AnalysisRepo struct {
	db *DB
}

// NewAnalysisRepo creates a new PostgreSQL-backed analysis repository.
func NewAnalysisRepo(db *DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

type analysisRow struct {
	ID           string    `db:"id"`
	CreatedAt    time.Time `db:"created_at"`
	Style        string    `db:"style"`
	Goal         string    `db:"goal"`
	FocusAreas   []byte    `db:"focus_areas"`
	OriginalText string    `db:"original_text"`
	ImprovedText string    `db:"improved_text"`
	Error        string    `db:"error"`
	Result       []byte    `db:"result"`
}

const upsertAnalysis = `
INSERT INTO analyses (id, created_at, style, goal, focus_areas, original_text, improved_text, error, result)
VALUES (:id, :created_at, :style, :goal, :focus_areas, :original_text, :improved_text, :error, :result)
ON CONFLICT (id) DO UPDATE SET
    improved_text = EXCLUDED.improved_text,
    error         = EXCLUDED.error,
    result        = EXCLUDED.result`

const selectAnalysis = `
SELECT id, created_at, style, goal, focus_areas, original_text, improved_text, error, result
FROM analyses`

// Save stores a record, replacing any with the same ID.
func (r *AnalysisRepo) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, upsertAnalysis, row); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (r *AnalysisRepo) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	var row analysisRow
	err := r.db.GetContext(ctx, &row, selectAnalysis+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return fromRow(row)
}

// List returns the newest records first.
func (r *AnalysisRepo) List(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	var rows []analysisRow
	if err := r.db.SelectContext(ctx, &rows, selectAnalysis+` ORDER BY created_at DESC LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	out := make([]*domain.AnalysisRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteOlderThan removes records created before the given time.
func (r *AnalysisRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analyses: %w", err)
	}
	return res.RowsAffected()
}

func toRow(rec *domain.AnalysisRecord) (analysisRow, error) {
	focus := rec.FocusAreas
	if focus == nil {
		focus = []domain.StageName{}
	}
	focusJSON, err := json.Marshal(focus)
	if err != nil {
		return analysisRow{}, fmt.Errorf("failed to marshal focus areas: %w", err)
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return analysisRow{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return analysisRow{
		ID:           rec.ID,
		CreatedAt:    rec.CreatedAt,
		Style:        rec.Style,
		Goal:         rec.Goal,
		FocusAreas:   focusJSON,
		OriginalText: rec.OriginalText,
		ImprovedText: rec.ImprovedText,
		Error:        rec.Error,
		Result:       resultJSON,
	}, nil
}

func fromRow(row analysisRow) (*domain.AnalysisRecord, error) {
	rec := &domain.AnalysisRecord{
		ID:           row.ID,
		CreatedAt:    row.CreatedAt,
		Style:        row.Style,
		Goal:         row.Goal,
		OriginalText: row.OriginalText,
		ImprovedText: row.ImprovedText,
		Error:        row.Error,
	}
	if err := json.Unmarshal(row.FocusAreas, &rec.FocusAreas); err != nil {
		return nil, fmt.Errorf("failed to unmarshal focus areas: %w", err)
	}
	if err := json.Unmarshal(row.Result, &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return rec, nil
}
