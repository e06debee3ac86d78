// Package callstack implements the per-agent execution context: CallFrame
// and CallStack (spec §4.7, C7), plus the Variable/Artifact value model
// (spec §3, §9). Grounded on the teacher's nested-state patterns in
// internal/session/types.go (structured per-turn state) adapted to a
// frame-stack shape, since the teacher has no direct analogue.
package callstack

import (
	"fmt"
	"unicode/utf8"
)

// DefaultArtifactThreshold is the serialized-length cutoff above which a
// SetVariable promotes its value to an Artifact (spec §3, invariant 10).
const DefaultArtifactThreshold = 2000

// ArtifactSummaryRunes bounds how much of an oversized value survives into
// the Artifact's summary, matching original_source's variables.py
// truncate-with-marker behavior (SPEC_FULL.md "Supplemented features").
const ArtifactSummaryRunes = 200

// Variable is a named value in an agent's local scope.
type Variable struct {
	Name  string
	Value any
}

// Artifact is a Variable promoted because its string representation exceeds
// the configured threshold; Value still holds the real value (nothing is
// lost), but Summary is what gets inlined into prompts/logs.
type Artifact struct {
	Name    string
	Summary string
	Value   any
}

// LastResultName is the well-known variable name that every effect result
// is mirrored into, reproducing the "$_" last-result variable from
// original_source (SPEC_FULL.md).
const LastResultName = "_"

// Promote converts name/value into either a plain Variable or, if the
// value's string form exceeds threshold runes, an Artifact with a truncated
// summary. threshold <= 0 uses DefaultArtifactThreshold.
func Promote(name string, value any, threshold int) any {
	if threshold <= 0 {
		threshold = DefaultArtifactThreshold
	}
	s := stringify(value)
	if utf8.RuneCountInString(s) <= threshold {
		return Variable{Name: name, Value: value}
	}
	return Artifact{
		Name:    name,
		Summary: summarize(s),
		Value:   value,
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func summarize(s string) string {
	runes := []rune(s)
	if len(runes) <= ArtifactSummaryRunes {
		return s
	}
	return string(runes[:ArtifactSummaryRunes]) + fmt.Sprintf("... (truncated, %d bytes)", len(s))
}

// IsArtifact reports whether v is an Artifact value.
func IsArtifact(v any) bool {
	_, ok := v.(Artifact)
	return ok
}
