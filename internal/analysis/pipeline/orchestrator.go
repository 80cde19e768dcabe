// Package pipeline runs the grammar, style and structure stages in order,
// threading the improved text from one stage to the next.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vietddude/gramo/internal/analysis/metrics"
	"github.com/vietddude/gramo/internal/analysis/stage"
	"github.com/vietddude/gramo/internal/analysis/textstats"
	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/storage"
)

// StageRunner executes one stage.
type StageRunner interface {
	Run(ctx context.Context, spec stage.Spec, text, style, goal string) domain.StageOutcome
}

// Config holds orchestrator settings.
type Config struct {
	MaxInputLength int
	DefaultStyle   string
	RequestTimeout time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxInputLength: 2000,
		DefaultStyle:   "professional",
	}
}

// Orchestrator sequences stages for one request at a time. It holds no
// per-request state, so one instance serves concurrent requests.
type Orchestrator struct {
	runner  StageRunner
	cfg     Config
	cache   storage.ResultCache
	history storage.AnalysisRepository
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache serves repeated identical requests from c.
func WithCache(c storage.ResultCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithHistory records every completed run in r.
func WithHistory(r storage.AnalysisRepository) Option {
	return func(o *Orchestrator) { o.history = r }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New creates an orchestrator.
func New(runner StageRunner, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = DefaultConfig().MaxInputLength
	}
	o := &Orchestrator{
		runner: runner,
		cfg:    cfg,
		log:    slog.Default().With("component", "pipeline"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze runs the requested stages over req.Text.
//
// It fails only for invalid input, or when the first stage is refused by the
// rate limiter. Every other stage failure leaves that stage's analysis nil,
// keeps the text unchanged and is summarized in the result's Error field.
func (o *Orchestrator) Analyze(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error) {
	start := o.now()

	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", domain.ErrInvalidInput)
	}
	for _, s := range req.FocusAreas {
		if _, err := domain.ParseStageName(string(s)); err != nil {
			return nil, err
		}
	}

	text, truncated := truncate(req.Text, o.cfg.MaxInputLength)
	style := req.Style
	if style == "" {
		style = o.cfg.DefaultStyle
	}
	stages := domain.OrderStages(req.FocusAreas)

	key := cacheKey(text, style, req.Goal, stages)
	if hit, ok := o.cached(ctx, key); ok {
		res := hit.Clone()
		res.ID = o.newID()
		res.Duration = o.now().Sub(start)
		o.log.Info("Served cached analysis", "id", res.ID, "stages", len(stages))
		o.record(ctx, res)
		return res, nil
	}

	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	result := domain.NewPipelineResult(text)
	result.ID = o.newID()
	result.Style = style
	result.Goal = req.Goal
	result.FocusAreas = stages
	result.TextStats = textstats.Calculate(text)
	result.ToneAnalysis = textstats.Tone(text)
	result.Language, result.LanguageScore = textstats.DetectLanguage(text)
	if truncated {
		result.Truncated = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("input truncated to %d characters", o.cfg.MaxInputLength))
		o.log.Warn("Input truncated", "id", result.ID, "limit", o.cfg.MaxInputLength)
	}

	current := text
	var failures []string
	for i, name := range stages {
		spec, _ := stage.ForName(name)
		out := o.runner.Run(ctx, spec, current, style, req.Goal)

		if !out.Succeeded {
			if i == 0 && errors.Is(out.Err, domain.ErrRateLimitExceeded) {
				return nil, out.Err
			}
			if result.StageErrors == nil {
				result.StageErrors = make(map[domain.StageName]domain.ErrorKind)
			}
			result.StageErrors[name] = out.Error
			failures = append(failures, fmt.Sprintf("%s stage failed: %v", name, out.Err))
			o.log.Warn("Stage failed", "id", result.ID, "stage", name, "kind", out.Error, "error", out.Err)
			continue
		}

		result.PerStageAnalysis[name] = out.Analysis
		if out.ImprovedText != "" {
			current = out.ImprovedText
		}
		result.Improvements = append(result.Improvements, out.Improvements...)
	}

	result.ImprovedText = current
	if len(failures) > 0 {
		summary := strings.Join(failures, "; ")
		result.Error = &summary
	}
	result.Duration = o.now().Sub(start)
	metrics.PipelineDuration.Observe(result.Duration.Seconds())

	o.log.Info("Text analysis completed",
		"id", result.ID,
		"stages", len(stages),
		"failed", len(failures),
		"duration", result.Duration,
	)

	if len(failures) == 0 && len(stages) > 0 {
		o.store(ctx, key, result.Clone())
	}
	o.record(ctx, result)

	return result, nil
}

func (o *Orchestrator) cached(ctx context.Context, key string) (*domain.PipelineResult, bool) {
	if o.cache == nil {
		return nil, false
	}
	res, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.log.Warn("Result cache lookup failed", "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return res, true
}

func (o *Orchestrator) store(ctx context.Context, key string, res *domain.PipelineResult) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, key, res); err != nil {
		o.log.Warn("Failed to cache result", "id", res.ID, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, res *domain.PipelineResult) {
	if o.history == nil {
		return
	}
	rec := storage.NewRecord(res)
	rec.CreatedAt = o.now()
	// History is best effort and must outlive a request deadline that just fired.
	if err := o.history.Save(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Warn("Failed to record analysis", "id", res.ID, "error", err)
	}
}

// truncate cuts text to limit runes and appends "..." when it was longer.
func truncate(text string, limit int) (string, bool) {
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]) + "...", true
}

func cacheKey(text, style, goal string, stages []domain.StageName) string {
	h := sha256.New()
	for _, part := range []string{text, style, goal} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	for _, s := range stages {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
