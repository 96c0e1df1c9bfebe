package http

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize bounds a single string value of an inbound event (4KB).
	DefaultMaxInputSize = 4096
	// DefaultMaxEventBytes bounds the whole inbound event body (64KB).
	DefaultMaxEventBytes int64 = 64 * 1024
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput cleans a string value by enforcing the size limit,
// validating UTF-8, and stripping dangerous control characters.
func SanitizeInput(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(input) > limit {
		// Rejected rather than truncated so the run sees exactly what was sent.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}

	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// Newline, tab and carriage return survive. ANSI escapes, NUL, BEL and
	// friends are removed to prevent log poisoning and terminal corruption.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// SanitizePayload applies SanitizeInput to every key and string value of a decoded
// JSON object, descending into nested objects and arrays.
func SanitizePayload(payload map[string]any, limit int) (map[string]any, error) {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		key, err := SanitizeInput(k, limit)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", truncateKey(k), err)
		}
		val, err := sanitizeValue(v, limit)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

func sanitizeValue(v any, limit int) (any, error) {
	switch t := v.(type) {
	case string:
		return SanitizeInput(t, limit)
	case map[string]any:
		return SanitizePayload(t, limit)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			clean, err := sanitizeValue(item, limit)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	default:
		return v, nil
	}
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func truncateKey(k string) string {
	if len(k) > 32 {
		return k[:32] + "..."
	}
	return k
}
