// Package patterns provides embedded default policy definitions.
// YAML files in this directory use the Presidio-compatible recognizer format
// with Warden extensions (severity, replacement).
package patterns

import _ "embed"

//go:embed redaction.yaml
var redactionYAML []byte

//go:embed injection.yaml
var injectionYAML []byte

//go:embed scrub.yaml
var scrubYAML []byte

// RedactionYAML returns the embedded default redaction policy.
func RedactionYAML() []byte { return redactionYAML }

// InjectionYAML returns the embedded default injection recognizer definitions.
func InjectionYAML() []byte { return injectionYAML }

// ScrubYAML returns the embedded default secret-scrubbing definitions.
func ScrubYAML() []byte { return scrubYAML }
