package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// ErrNoJSONFound means a model reply held no parseable object or array
var ErrNoJSONFound = errors.New("no valid JSON object or array found in response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// ExtractJSON recovers the JSON payload from a model reply. Replies are
// tried as-is, then with a markdown fence removed, then as the first
// balanced object or array, then as the widest brace span, and finally
// with control characters stripped.
func ExtractJSON(reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrNoJSONFound
	}

	body := unfence(reply)
	candidates := []func() string{
		func() string { return reply },
		func() string { return body },
		func() string { return firstBalanced(body) },
		func() string { return widestSpan(reply, '{', '}') },
		func() string { return widestSpan(reply, '[', ']') },
		func() string { return stripControl(widestSpan(body, '{', '}')) },
	}
	for i, next := range candidates {
		if s := next(); s != "" && json.Valid([]byte(s)) {
			if i > 0 {
				log.Debugf("Generation: recovered %d chars of JSON from a %d char reply (pass %d)", len(s), len(reply), i)
			}
			return s, nil
		}
	}

	return "", fmt.Errorf("%w: response length=%d", ErrNoJSONFound, len(reply))
}

// ExtractJSONTo recovers the payload and decodes it into target
func ExtractJSONTo(reply string, target interface{}) error {
	payload, err := ExtractJSON(reply)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), target); err != nil {
		log.Warnf("Generation: reply is JSON but does not match %T: %v", target, err)
		return err
	}
	return nil
}

func unfence(s string) string {
	if m := fencedBlock.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstBalanced returns the first complete object or array, honouring
// string literals and escapes
func firstBalanced(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}
	opening, closing := s[start], byte('}')
	if opening == '[' {
		closing = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opening:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func widestSpan(s string, opening, closing byte) string {
	first := strings.IndexByte(s, opening)
	last := strings.LastIndexByte(s, closing)
	if first == -1 || last <= first {
		return ""
	}
	return s[first : last+1]
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
