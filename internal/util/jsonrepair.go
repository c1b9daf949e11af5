package util

import (
	"encoding/json"
	"strings"

	"github.com/lizzyg/llmbridge/internal/core"
)

// RepairJSON coerces a model answer into JSON shaped like root.
//   - Strips markdown code fences, including ones surrounded by prose
//   - Drops trailing commas before a closing brace or bracket
//   - Cuts the first complete object or array out of surrounding text
//   - Quotes bare answers for string and enum roots, as returned for text/x.enum
//
// A nil root means the expected shape is unknown. Returns the possibly
// repaired string and true if modified.
func RepairJSON(s string, root core.JSONSchemaElement) (string, bool) {
	original := s
	s = stripFence(strings.TrimSpace(s))

	switch el := unwrapNullable(root).(type) {
	case *core.JSONEnumSchema:
		s = quoteEnum(s, el.Values)
	case *core.JSONStringSchema:
		s = quoteString(s)
	default:
		s = dropTrailingCommas(s)
		if v, ok := firstValue(s, openers(el)); ok {
			s = v
		}
	}
	return s, s != original
}

func unwrapNullable(el core.JSONSchemaElement) core.JSONSchemaElement {
	alts, ok := el.(*core.JSONAnyOfSchema)
	if !ok || len(alts.AnyOf) != 2 {
		return el
	}
	for i, alt := range alts.AnyOf {
		if _, null := alt.(*core.JSONNullSchema); null {
			return alts.AnyOf[1-i]
		}
	}
	return el
}

func openers(el core.JSONSchemaElement) string {
	switch el.(type) {
	case *core.JSONObjectSchema:
		return "{"
	case *core.JSONArraySchema:
		return "["
	}
	return "{["
}

// stripFence returns the body of the first fenced block, without its
// language tag. Text without a fence is returned unchanged.
func stripFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[\"") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstValue decodes from each opening character in turn and returns the
// first complete JSON value found.
func firstValue(s, open string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(open, s[i]) < 0 {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&raw); err == nil {
			return string(raw), true
		}
	}
	return "", false
}

func dropTrailingCommas(s string) string {
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		case c == '"':
			inString = true
		case c == ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// bareAnswer trims quotes, backticks and a closing period from a one-word answer.
func bareAnswer(s string) string {
	var str string
	if json.Unmarshal([]byte(s), &str) == nil {
		return str
	}
	s = strings.Trim(s, " \t\r\n`'\"")
	return strings.TrimSuffix(s, ".")
}

func quoteEnum(s string, values []string) string {
	answer := bareAnswer(s)
	for _, v := range values {
		if strings.EqualFold(v, answer) {
			answer = v
			break
		}
	}
	b, _ := json.Marshal(answer)
	return string(b)
}

func quoteString(s string) string {
	var str string
	if json.Unmarshal([]byte(s), &str) == nil {
		return s
	}
	b, _ := json.Marshal(s)
	return string(b)
}
