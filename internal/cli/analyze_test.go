package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vietddude/gramo/internal/core/domain"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteResults(t *testing.T) {
	ok := domain.NewPipelineResult("text")
	ok.ID = "id-1"

	tests := []struct {
		name    string
		results []fileResult
		failed  int
	}{
		{"all succeeded", []fileResult{{File: "a.txt", Result: ok}, {File: "b.txt", Result: ok}}, 0},
		{"one failed", []fileResult{{File: "a.txt", Result: ok}, {File: "missing.txt", Error: "failed to read missing.txt"}}, 1},
		{"empty batch", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			failed, err := writeResults(&buf, tt.results)
			if err != nil {
				t.Fatalf("writeResults() error = %v", err)
			}
			if failed != tt.failed {
				t.Errorf("failed = %d, want %d", failed, tt.failed)
			}

			dec := json.NewDecoder(&buf)
			for i, want := range tt.results {
				var got fileResult
				if err := dec.Decode(&got); err != nil {
					t.Fatalf("document %d: %v", i, err)
				}
				if got.File != want.File || got.Error != want.Error {
					t.Errorf("document %d = %+v, want file %q error %q", i, got, want.File, want.Error)
				}
			}
			if err := dec.Decode(&fileResult{}); !errors.Is(err, io.EOF) {
				t.Errorf("expected %d documents, trailing decode = %v", len(tt.results), err)
			}
		})
	}
}

func TestWriteResults_WriterError(t *testing.T) {
	_, err := writeResults(failingWriter{}, []fileResult{{File: "a.txt", Error: "boom"}})
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("error = %v, want broken pipe", err)
	}
}
