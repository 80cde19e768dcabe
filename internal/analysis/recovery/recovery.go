// Package recovery extracts a JSON object from free-form model output.
//
// Models wrap JSON in code fences or prose, double-escape payloads and
// sometimes answer with Python literals. Recover tries progressively looser
// readings and reports which one worked. Already clean JSON always takes the
// strict path, so recovering the re-encoded output of Recover yields the same
// value.
package recovery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/vietddude/gramo/internal/core/domain"
)

// Method names the step that produced the data.
type Method string

const (
	MethodStrict    Method = "strict"
	MethodUnescaped Method = "unescaped"
	MethodLiteral   Method = "literal"
	MethodNone      Method = "none"
)

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\\r?\\n?(.*?)```")

// Payload is a recovered object together with the clean JSON it was read from.
type Payload struct {
	Data   map[string]any
	JSON   []byte
	Method Method
}

// Recover returns the first JSON object it can read from raw.
// On failure the error wraps domain.ErrParseFailure and the method is MethodNone.
func Recover(raw string) (map[string]any, Method, error) {
	p, err := Decode(raw)
	return p.Data, p.Method, err
}

// Decode is Recover that also keeps the JSON text the object was parsed from.
func Decode(raw string) (Payload, error) {
	s := strings.TrimSpace(StripFences(raw))
	if s == "" {
		return Payload{Method: MethodNone}, fmt.Errorf("%w: empty response", domain.ErrParseFailure)
	}

	candidates := []string{s}
	for _, obj := range []string{firstObject(s), outerSpan(s)} {
		if obj != "" && !slices.Contains(candidates, obj) {
			candidates = append(candidates, obj)
		}
	}

	for _, c := range candidates {
		if p, ok := strict(c); ok {
			p.Method = MethodStrict
			return p, nil
		}
		if n := NormalizeEscapes(c); n != c {
			if p, ok := strict(n); ok {
				p.Method = MethodUnescaped
				return p, nil
			}
		}
	}
	for _, c := range candidates {
		if p, ok := strict(literalToJSON(c)); ok {
			p.Method = MethodLiteral
			return p, nil
		}
		if n := NormalizeEscapes(c); n != c {
			if p, ok := strict(literalToJSON(n)); ok {
				p.Method = MethodLiteral
				return p, nil
			}
		}
	}

	return Payload{Method: MethodNone}, fmt.Errorf("%w: %s", domain.ErrParseFailure, snippet(s))
}

// StripFences returns the content of the first fenced block, or s unchanged.
func StripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	// Unterminated fence: drop the opening line.
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		if i := strings.IndexByte(t, '\n'); i >= 0 {
			return t[i+1:]
		}
	}
	return s
}

func strict(s string) (Payload, bool) {
	b := []byte(s)
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Payload{}, false
	}
	switch t := v.(type) {
	case map[string]any:
		return Payload{Data: t, JSON: b}, true
	case string:
		// Payload encoded as a JSON string.
		inner := []byte(strings.TrimSpace(t))
		var m map[string]any
		if err := json.Unmarshal(inner, &m); err == nil && m != nil {
			return Payload{Data: m, JSON: inner}, true
		}
	}
	return Payload{}, false
}

// NormalizeEscapes repairs escaping that strict JSON rejects: a wholly
// escaped object body, invalid escape sequences and raw control characters
// inside strings. Valid JSON is returned unchanged.
func NormalizeEscapes(s string) string {
	if unq, ok := unescapeBody(s); ok {
		s = unq
	}

	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = false
			b.WriteByte(c)
		case '\\':
			if i+1 >= len(s) {
				b.WriteString(`\\`)
				continue
			}
			next := s[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
				b.WriteByte(c)
				b.WriteByte(next)
				i++
			case 'u':
				if i+5 < len(s) && isHex(s[i+2:i+6]) {
					b.WriteString(s[i : i+6])
					i += 5
				} else {
					b.WriteString(`\\`)
				}
			default:
				// \' and friends: keep the character, drop the backslash.
				b.WriteByte(next)
				i++
			}
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// unescapeBody decodes {\"a\": \"b\"} into {"a": "b"}.
func unescapeBody(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{") {
		return "", false
	}
	body := strings.TrimSpace(t[1:])
	if !strings.HasPrefix(body, `\"`) {
		return "", false
	}
	if strings.Contains(strings.ReplaceAll(t, `\"`, ""), `"`) {
		return "", false
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+t+`"`), &out); err != nil {
		return "", false
	}
	return out, true
}

// literalToJSON rewrites Python style literals into JSON: single quoted
// strings, True/False/None and trailing commas.
func literalToJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			str, n := readQuoted(s[i:])
			enc, _ := json.Marshal(str)
			b.Write(enc)
			i += n
		case c == ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				i = j
				continue
			}
			b.WriteByte(c)
			i++
		case isLetter(c):
			j := i
			for j < len(s) && (isLetter(s[j]) || s[j] == '_') {
				j++
			}
			switch word := s[i:j]; word {
			case "True", "true":
				b.WriteString("true")
			case "False", "false":
				b.WriteString("false")
			case "None", "null", "nil":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// readQuoted decodes a quoted string at the start of s and returns it with
// the number of bytes consumed.
func readQuoted(s string) (string, int) {
	quote := s[0]
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == quote {
			return b.String(), i + 1
		}
		if c == '\\' && i+1 < len(s) {
			switch n := s[i+1]; n {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				if i+5 < len(s) && isHex(s[i+2:i+6]) {
					var r string
					if err := json.Unmarshal([]byte(`"`+s[i:i+6]+`"`), &r); err == nil {
						b.WriteString(r)
						i += 6
						continue
					}
				}
				b.WriteByte(n)
			default:
				b.WriteByte(n)
			}
			i += 2
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), len(s)
}

// firstObject returns the first balanced {...} in s. Braces inside single or
// double quoted strings are ignored.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// outerSpan cuts from the first { to the last }.
func outerSpan(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func snippet(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool { return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' }

func isSpace(c byte) bool { return c == ' ' || c == '\n' || c == '\t' || c == '\r' }
