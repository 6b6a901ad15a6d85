package service

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// ErrUnparseableVerdict is returned when no JSON verdict can be recovered
// from the oracle response
var ErrUnparseableVerdict = errors.New("no JSON verdict found in oracle response")

// Verdict is the parsed oracle response for one control evaluation
type Verdict struct {
	Status     string            `json:"status"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
	Evidence   []VerdictCitation `json:"evidence"`
}

// VerdictCitation is one evidence snippet the oracle cited in support of its
// verdict. Document and page hints are the model's own claims and are only
// trusted after attribution resolves the text to a real source location.
type VerdictCitation struct {
	Text         string  `json:"text"`
	DocumentHint string  `json:"documentHint"`
	PageHint     int     `json:"pageHint"`
	Confidence   float64 `json:"confidence"`
	Relevance    float64 `json:"relevance"`
}

// ParseVerdict recovers a structured verdict from raw oracle output. Models
// wrap JSON in fenced code blocks, prepend prose, leave trailing commas and
// drop closing brackets when truncated, so each candidate extraction is tried
// strictly first and then once more after repair. Returns
// ErrUnparseableVerdict only when every stage fails; the caller degrades the
// control to missing/0 in that case.
func ParseVerdict(raw string) (*Verdict, error) {
	for _, candidate := range verdictCandidates(raw) {
		if v, ok := decodeVerdict(candidate); ok {
			return v, nil
		}
		if v, ok := decodeVerdict(repairJSON(candidate)); ok {
			return v, nil
		}
	}
	return nil, ErrUnparseableVerdict
}

func verdictCandidates(raw string) []string {
	candidates := []string{strings.TrimSpace(raw)}
	if s, ok := extractFenced(raw); ok {
		candidates = append(candidates, s)
	}
	if s, ok := extractObject(raw); ok {
		candidates = append(candidates, s)
	}
	return candidates
}

func decodeVerdict(s string) (*Verdict, bool) {
	if s == "" {
		return nil, false
	}
	var v Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	// An empty object parses but carries no verdict; let later stages try.
	if v.Status == "" && v.Reasoning == "" && len(v.Evidence) == 0 {
		return nil, false
	}
	normalizeVerdict(&v)
	return &v, true
}

func normalizeVerdict(v *Verdict) {
	v.Status = strings.ToLower(strings.TrimSpace(v.Status))
	switch v.Status {
	case "compliant", "partial", "missing":
	default:
		v.Status = "missing"
		v.Confidence = 0
	}
	v.Confidence = float64(clampScore(v.Confidence))
	for i := range v.Evidence {
		v.Evidence[i].Confidence = float64(clampScore(v.Evidence[i].Confidence))
		v.Evidence[i].Relevance = float64(clampScore(v.Evidence[i].Relevance))
	}
}

// extractFenced returns the body of the first fenced code block, with any
// language tag line removed.
func extractFenced(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", false
	}
	body := raw[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

// extractObject returns the first brace-to-matching-brace span, ignoring
// braces inside JSON strings. If the object never closes, the span runs to the
// end of the input and repair balances it.
func extractObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return raw[start:], true
}

// repairJSON balances a truncated JSON fragment by closing any open string
// and appending the missing closers in nesting order, then strips trailing
// commas before closers.
func repairJSON(s string) string {
	return stripTrailingCommas(balanceBrackets(s))
}

func balanceBrackets(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	var open []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte(c)
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			open = append(open, '}')
		case '[':
			open = append(open, ']')
		case '}', ']':
			if len(open) > 0 && open[len(open)-1] == c {
				open = open[:len(open)-1]
			}
		}
	}

	if inString {
		b.WriteByte('"')
	}
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteByte(open[i])
	}
	return b.String()
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
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

// clampScore rounds a model-reported score to an int and clamps it to 0-100
func clampScore(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
