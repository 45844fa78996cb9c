package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/warden/internal/access"
)

func TestAdminSeesEverything(t *testing.T) {
	e := MustNewEngine()
	in := map[string]any{
		"name":   "Ada Lovelace",
		"email":  "ada@example.com",
		"salary": 185000,
		"nested": map[string]any{"phone": "+44 20 7946 0958"},
	}
	out := e.Redact(in, access.RoleAdmin)
	assert.Equal(t, in, out)
}

func TestSensitiveFieldsMaskedAtEveryDepth(t *testing.T) {
	e := MustNewEngine()
	in := map[string]any{
		"name":                "Ada Lovelace",
		"email":               "ada@example.com",
		"primaryEmailAddress": "ada@example.com",
		"compensation": map[string]any{
			"baseSalary": 185000,
			"currency":   "GBP",
		},
		"applications": []any{
			map[string]any{
				"jobTitle": "Staff Engineer",
				"salary":   "185k",
				"stage":    "Offer",
			},
		},
	}

	out, ok := e.Redact(in, access.RoleUser).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "Ada Lovelace", out["name"])
	assert.Equal(t, DefaultMarker, out["email"])
	assert.Equal(t, DefaultMarker, out["primaryEmailAddress"])
	assert.Equal(t, DefaultMarker, out["compensation"], "whole compensation subtree masked")

	apps, ok := out["applications"].([]any)
	require.True(t, ok)
	app, ok := apps[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Staff Engineer", app["jobTitle"])
	assert.Equal(t, DefaultMarker, app["salary"])
	assert.Equal(t, "Offer", app["stage"])
}

func TestCurrencyPatternsInFreeText(t *testing.T) {
	e := MustNewEngine()

	tests := []struct {
		name string
		in   string
		want bool // true when the output must differ from the input
	}{
		{"dollar amount", "offered $120,000 to start", true},
		{"euro with k suffix", "budget is €85k for this role", true},
		{"amount then USD", "approved 95000 USD last week", true},
		{"amount then salary word", "bumped to 140000 salary band", true},
		{"no money talk", "moved to onsite interview on Tuesday", false},
		{"bare number", "reviewed 12 candidates today", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Redact(tt.in, access.RoleUser).(string)
			if tt.want {
				assert.Contains(t, got, DefaultMarker)
				assert.NotEqual(t, tt.in, got)
			} else {
				assert.Equal(t, tt.in, got)
			}
		})
	}
}

func TestRedactionIsIdempotent(t *testing.T) {
	e := MustNewEngine()
	in := map[string]any{
		"email": "ada@example.com",
		"note":  "counter at $95k, pushing for $100k",
		"tags":  []any{"senior", "backend"},
	}
	once := e.Redact(in, access.RoleUser)
	twice := e.Redact(once, access.RoleUser)
	assert.Equal(t, once, twice)
}

func TestNonContainerValuesPassThrough(t *testing.T) {
	e := MustNewEngine()
	assert.Equal(t, 42, e.Redact(42, access.RoleUser))
	assert.Equal(t, true, e.Redact(true, access.RoleUser))
	assert.Nil(t, e.Redact(nil, access.RoleUser))
}

func TestInputNotMutated(t *testing.T) {
	e := MustNewEngine()
	in := map[string]any{"email": "ada@example.com"}
	_ = e.Redact(in, access.RoleUser)
	assert.Equal(t, "ada@example.com", in["email"])
}

func TestRedactJSON(t *testing.T) {
	e := MustNewEngine()

	t.Run("valid document", func(t *testing.T) {
		got := e.RedactJSON(`{"name":"Ada","phone":"+1-555-0100"}`, access.RoleUser)
		assert.Contains(t, got, `"phone":"[REDACTED]"`)
		assert.Contains(t, got, `"name":"Ada"`)
	})

	t.Run("admin passthrough", func(t *testing.T) {
		doc := `{"phone":"+1-555-0100"}`
		assert.Equal(t, doc, e.RedactJSON(doc, access.RoleAdmin))
	})

	t.Run("malformed passes through", func(t *testing.T) {
		doc := `{"phone": not json`
		assert.Equal(t, doc, e.RedactJSON(doc, access.RoleUser))
	})
}

func TestCustomPolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(`
marker: "[HIDDEN]"
sensitive_fields: [ssn]
value_patterns: []
`))
	require.NoError(t, err)

	e := MustNewEngine(WithPolicy(p))
	out := e.Redact(map[string]any{"ssn": "000-00-0000", "email": "x@y.z"}, access.RoleUser).(map[string]any)
	assert.Equal(t, "[HIDDEN]", out["ssn"])
	assert.Equal(t, "x@y.z", out["email"], "custom policy does not mask email")
}

func TestParsePolicyBadRegex(t *testing.T) {
	_, err := ParsePolicy([]byte(`
value_patterns:
  - name: broken
    regex: "(["
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
