package redact

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/warden/patterns"
)

// policyFile is the YAML structure of a redaction policy file.
type policyFile struct {
	Marker          string          `yaml:"marker"`
	SensitiveFields []string        `yaml:"sensitive_fields"`
	ValuePatterns   []patternConfig `yaml:"value_patterns"`
}

type patternConfig struct {
	Name  string  `yaml:"name"`
	Regex string  `yaml:"regex"`
	Score float64 `yaml:"score"`
}

// Policy holds a compiled redaction policy: the set of field names whose
// values are always masked and the regexes applied to free-text values.
type Policy struct {
	Marker   string
	fields   map[string]bool
	patterns []*regexp.Regexp
}

// ParsePolicy parses and compiles a redaction policy from YAML bytes.
func ParsePolicy(data []byte) (*Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing redaction policy YAML: %w", err)
	}
	if pf.Marker == "" {
		pf.Marker = DefaultMarker
	}

	fields := make(map[string]bool, len(pf.SensitiveFields))
	for _, f := range pf.SensitiveFields {
		fields[f] = true
	}

	compiled := make([]*regexp.Regexp, 0, len(pf.ValuePatterns))
	for _, p := range pf.ValuePatterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling value pattern %q: %w", p.Name, err)
		}
		compiled = append(compiled, re)
	}

	return &Policy{Marker: pf.Marker, fields: fields, patterns: compiled}, nil
}

// DefaultPolicy returns the policy compiled from the embedded defaults.
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(patterns.RedactionYAML())
}

// IsSensitiveField reports whether a field name is masked unconditionally.
func (p *Policy) IsSensitiveField(name string) bool {
	return p.fields[name]
}
