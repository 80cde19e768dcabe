package recovery

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vietddude/gramo/internal/core/domain"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		method Method
		want   map[string]any
	}{
		{
			name:   "clean json",
			raw:    `{"analysis": {"issues": []}, "improved_text": "He goes to school every day."}`,
			method: MethodStrict,
			want:   map[string]any{"analysis": map[string]any{"issues": []any{}}, "improved_text": "He goes to school every day."},
		},
		{
			name:   "fenced json",
			raw:    "```json\n{\"analysis\": {\"x\": 1}}\n```",
			method: MethodStrict,
			want:   map[string]any{"analysis": map[string]any{"x": float64(1)}},
		},
		{
			name:   "bare fence",
			raw:    "```\n{\"a\": \"b\"}\n```",
			method: MethodStrict,
			want:   map[string]any{"a": "b"},
		},
		{
			name:   "wrapped in prose",
			raw:    "Here is the analysis you asked for:\n{\"a\": \"b\"}\nLet me know if you need more.",
			method: MethodStrict,
			want:   map[string]any{"a": "b"},
		},
		{
			name:   "prose after json mentions braces",
			raw:    "Sure! Here is the result: {\"analysis\": {\"improved_text\": \"x\"}} Let me know if you need {more} help.",
			method: MethodStrict,
			want:   map[string]any{"analysis": map[string]any{"improved_text": "x"}},
		},
		{
			name:   "second example object after json",
			raw:    `{"improved_text": "a } b", "n": 2} and an example {"a": 1}`,
			method: MethodStrict,
			want:   map[string]any{"improved_text": "a } b", "n": float64(2)},
		},
		{
			name:   "json string payload",
			raw:    `"{\"a\": 1}"`,
			method: MethodStrict,
			want:   map[string]any{"a": float64(1)},
		},
		{
			name:   "escaped body",
			raw:    `{\"analysis\": {\"tone\": \"formal\"}}`,
			method: MethodUnescaped,
			want:   map[string]any{"analysis": map[string]any{"tone": "formal"}},
		},
		{
			name:   "invalid escape",
			raw:    `{"improved_text": "it\'s fine"}`,
			method: MethodUnescaped,
			want:   map[string]any{"improved_text": "it's fine"},
		},
		{
			name:   "raw newline in string",
			raw:    "{\"improved_text\": \"line one\nline two\"}",
			method: MethodUnescaped,
			want:   map[string]any{"improved_text": "line one\nline two"},
		},
		{
			name:   "python literal",
			raw:    `{'analysis': {'ok': True, 'missing': None, 'bad': False,}, 'improved_text': 'He said "hi"',}`,
			method: MethodLiteral,
			want: map[string]any{
				"analysis":      map[string]any{"ok": true, "missing": nil, "bad": false},
				"improved_text": `He said "hi"`,
			},
		},
		{
			name:   "python literal in prose with escaped quote",
			raw:    `Result: {'improved_text': 'it\'s done'} (end)`,
			method: MethodLiteral,
			want:   map[string]any{"improved_text": "it's done"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, method, err := Recover(tt.raw)
			if err != nil {
				t.Fatalf("Recover() error = %v", err)
			}
			if method != tt.method {
				t.Errorf("Recover() method = %s, want %s", method, tt.method)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Recover() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRecoverIsIdempotent(t *testing.T) {
	inputs := []string{
		`{"a": "b", "n": 1.5, "list": [1, "two", null, true]}`,
		"```json\n{\"a\": \"x\\ny\"}\n```",
		`{\"analysis\": {\"tone\": \"formal\"}}`,
		`{'ok': True, 'path': 'C:\\dir',}`,
		`{"quote": "she said \"no\"", "slash": "a\/b", "tab": "a\tb"}`,
	}
	for _, raw := range inputs {
		first, _, err := Recover(raw)
		if err != nil {
			t.Fatalf("Recover(%q) error = %v", raw, err)
		}
		enc, err := json.Marshal(first)
		if err != nil {
			t.Fatal(err)
		}
		second, method, err := Recover(string(enc))
		if err != nil {
			t.Fatalf("Recover(re-encoded %q) error = %v", enc, err)
		}
		if method != MethodStrict {
			t.Errorf("re-encoded %q took method %s, want strict", enc, method)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Recover not idempotent for %q: %#v != %#v", raw, first, second)
		}
	}
}

func TestDecodeKeepsCleanJSON(t *testing.T) {
	tests := []struct {
		raw  string
		json string
	}{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{`Result: {"a": 1} and {"b": 2}`, `{"a": 1}`},
		{`{'a': True}`, `{"a": true}`},
	}
	for _, tt := range tests {
		p, err := Decode(tt.raw)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", tt.raw, err)
		}
		if string(p.JSON) != tt.json {
			t.Errorf("Decode(%q).JSON = %s, want %s", tt.raw, p.JSON, tt.json)
		}
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 119) + "é" + strings.Repeat("b", 10)
	got := snippet(s)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a rune: %q", got)
	}
	if got != strings.Repeat("a", 119)+"..." {
		t.Errorf("snippet = %q", got)
	}
}

func TestRecoverFailure(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"I could not analyze this text, sorry.",
		"[1, 2, 3]",
		"{not even close",
	}
	for _, raw := range tests {
		got, method, err := Recover(raw)
		if !errors.Is(err, domain.ErrParseFailure) {
			t.Errorf("Recover(%q) error = %v, want ErrParseFailure", raw, err)
		}
		if got != nil || method != MethodNone {
			t.Errorf("Recover(%q) = %v, %s; want nil, none", raw, got, method)
		}
	}
}

func TestNormalizeEscapesLeavesValidJSON(t *testing.T) {
	valid := `{"a": "x\"y\\z\/\b\f\n\r\t\u00e9"}`
	if got := NormalizeEscapes(valid); got != valid {
		t.Errorf("NormalizeEscapes changed valid JSON: %s", got)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}\n"},
		{"prefix ```{}``` suffix", "{}"},
		{"```json\n{\"a\": 1}", "{\"a\": 1}"},
		{"{}", "{}"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
