package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
)

// DefaultPIIPatterns match the run input keys masked in the run log.
var DefaultPIIPatterns = []string{`(?i)email`, `(?i)phone`, `(?i)identity`, `(?i)password`}

type piiMiddleware struct {
	next     ports.RunLog
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a run log middleware that masks input values whose key
// matches one of the patterns before the record is stored.
func NewPIIMiddleware(patternStrings []string) RunLogMiddleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.RunLog) ports.RunLog {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Append(ctx context.Context, rec domain.RunRecord) error {
	// Deep Clone so the caller's record keeps the original values.
	rec.Input = deepCopyMap(rec.Input)
	maskMap(rec.Input, m.patterns)
	return m.next.Append(ctx, rec)
}

func (m *piiMiddleware) List(ctx context.Context, workflowID string, limit int) ([]domain.RunRecord, error) {
	return m.next.List(ctx, workflowID, limit)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				masked = true
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
