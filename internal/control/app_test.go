package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/gramo/internal/core/config"
	"github.com/vietddude/gramo/internal/core/domain"
)

func mockConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.Upstream.Provider = "mock"
	cfg.Server.Port = 0
	cfg.Redis.URL = ""
	cfg.Database.URL = ""
	return cfg
}

func TestApp_AnalyzeInMemory(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, mockConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = app.Stop(ctx) }()

	res, err := app.Orchestrator().Analyze(ctx, domain.PipelineRequest{
		Text:       "The system is fine.",
		FocusAreas: []domain.StageName{domain.StageGrammar},
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Error != nil {
		t.Errorf("unexpected error summary: %s", *res.Error)
	}
	if res.PerStageAnalysis[domain.StageGrammar] == nil {
		t.Error("grammar analysis missing")
	}

	snap, err := app.Limiter().Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.AvailableTokens >= float64(snap.Capacity) {
		t.Errorf("limiter was not charged: %+v", snap)
	}
}

func TestApp_HTTPRoundTrip(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, mockConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = app.Stop(ctx) }()

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/text/analyze", "application/json",
		strings.NewReader(`{"text": "hello there", "focus_areas": ["style"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body domain.PipelineResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ID == "" {
		t.Fatal("expected a result id")
	}

	got, err := http.Get(srv.URL + "/api/v1/text/analyses/" + body.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Errorf("analysis %s not in history (status %d)", body.ID, got.StatusCode)
	}
}

func TestApp_UnknownProvider(t *testing.T) {
	cfg := mockConfig()
	cfg.Upstream.Provider = "nope"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
