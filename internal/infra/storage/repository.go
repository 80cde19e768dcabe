package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/gramo/internal/core/domain"
)

var (
	// ErrAnalysisNotFound is returned when an analysis record doesn't exist
	ErrAnalysisNotFound = errors.New("analysis not found")
)

// AnalysisRepository stores completed pipeline runs
type AnalysisRepository interface {
	// Save stores a record; saving an existing ID replaces it
	Save(ctx context.Context, rec *domain.AnalysisRecord) error

	// Get retrieves a record by ID
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, error)

	// List returns the most recent records, newest first
	List(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error)

	// DeleteOlderThan removes records created before the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// ResultCache keeps successful pipeline results for identical requests
type ResultCache interface {
	// Get returns the cached result, or false on a miss
	Get(ctx context.Context, key string) (*domain.PipelineResult, bool, error)

	// Set stores a result under key
	Set(ctx context.Context, key string, res *domain.PipelineResult) error
}

// NewRecord builds the stored form of a pipeline result.
func NewRecord(res *domain.PipelineResult) *domain.AnalysisRecord {
	rec := &domain.AnalysisRecord{
		ID:           res.ID,
		Style:        res.Style,
		Goal:         res.Goal,
		FocusAreas:   res.FocusAreas,
		OriginalText: res.OriginalText,
		ImprovedText: res.ImprovedText,
		Result:       res,
	}
	if res.Error != nil {
		rec.Error = *res.Error
	}
	return rec
}
