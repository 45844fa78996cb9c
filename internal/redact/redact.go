// Package redact transforms nested ATS data into role-appropriate views.
// Admin viewers see everything; everyone else gets sensitive fields and
// currency-like strings replaced by the redaction marker.
package redact

import (
	"encoding/json"

	"github.com/dativo-io/warden/internal/access"
)

// DefaultMarker is the replacement written over sensitive values.
const DefaultMarker = "[REDACTED]"

// Engine applies a redaction policy to arbitrary decoded JSON values.
// Redaction never fails: values the engine does not understand pass
// through unchanged.
type Engine struct {
	policy *Policy
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy overrides the embedded default policy.
func WithPolicy(p *Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// NewEngine creates an Engine with the embedded default policy unless
// overridden by options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		p, err := DefaultPolicy()
		if err != nil {
			return nil, err
		}
		e.policy = p
	}
	return e, nil
}

// MustNewEngine is NewEngine that panics on error. The embedded policy is
// compiled at build time, so failure here is a programming error.
func MustNewEngine(opts ...Option) *Engine {
	e, err := NewEngine(opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Redact returns a role-appropriate view of value. For RoleAdmin and above
// the input is returned unchanged. Below that, the result is a deep copy
// with sensitive field values replaced by the marker and currency-like
// substrings in free text substituted. The input is never mutated, and
// redacting an already-redacted value is a no-op.
func (e *Engine) Redact(value any, role access.Role) any {
	if role >= access.RoleAdmin {
		return value
	}
	return e.redactValue(value)
}

func (e *Engine) redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if e.policy.IsSensitiveField(k) {
				out[k] = e.policy.Marker
				continue
			}
			out[k] = e.redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = e.redactValue(item)
		}
		return out
	case string:
		return e.redactString(t)
	default:
		return v
	}
}

func (e *Engine) redactString(s string) string {
	for _, re := range e.policy.patterns {
		s = re.ReplaceAllString(s, e.policy.Marker)
	}
	return s
}

// RedactJSON redacts a JSON document in string form. Text that does not
// parse as JSON is returned unchanged rather than failing the caller's
// turn; the data is degraded, never the control flow.
func (e *Engine) RedactJSON(doc string, role access.Role) string {
	if role >= access.RoleAdmin {
		return doc
	}
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return doc
	}
	redacted := e.redactValue(v)
	out, err := json.Marshal(redacted)
	if err != nil {
		return doc
	}
	return string(out)
}
