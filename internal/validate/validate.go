// Package validate performs boundary validation (spec §7: "Boundary
// (external input): malformed receiver spec, invalid variable name") on the
// data crossing the AgentExecutor boundary: the RunResult/Effect payloads an
// external executor hands back to the runtime, before agentruntime ever acts
// on them.
//
// Grounded on the teacher's cmd/oubliette-client's use of
// google/jsonschema-go to describe and validate tool input/output shapes at
// the MCP boundary; generalized here from MCP tool I/O to the
// AgentExecutor I/O boundary. internal/router already owns receiver-spec
// *grammar* (ParseSpec); this package only validates the surrounding
// payload shape (variable names, checkpoint IDs, message content) before it
// reaches the router.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/jsonschema-go/jsonschema"
)

// variableNameRegex matches a legal variable identifier (spec §4.7:
// namespace variables are looked up by name; names come from untrusted
// executor output, so this bounds what's accepted).
var variableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EffectPayload is the wire shape validated before an Effect is built from
// it: a generic envelope, since the concrete Effect union (agentruntime.Effect)
// has per-kind required fields this schema enforces structurally.
type EffectPayload struct {
	Kind    string `json:"kind" jsonschema:"one of: say,send_message,start_stream,stream_chunk,complete_stream,yield,create_meeting,join_meeting,end_meeting,set_variable,checkpoint"`
	Target  string `json:"target,omitempty" jsonschema:"receiver-spec string, validated separately by internal/router.ParseSpec"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty" jsonschema:"variable name for set_variable effects"`
}

var effectSchema = mustEffectSchema()

func mustEffectSchema() *jsonschema.Resolved {
	schema, err := jsonschema.For[EffectPayload](nil)
	if err != nil {
		panic(fmt.Sprintf("validate: building schema: %v", err))
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("validate: resolving schema: %v", err))
	}
	return resolved
}

// Effect validates a raw effect payload (e.g. decoded from an external
// executor's JSON response) against the structural schema before the caller
// attempts to build an agentruntime.Effect from it.
func Effect(raw json.RawMessage) (EffectPayload, error) {
	var payload EffectPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return EffectPayload{}, fmt.Errorf("validate: decoding effect: %w", err)
	}
	if err := effectSchema.Validate(payload); err != nil {
		return EffectPayload{}, fmt.Errorf("validate: effect schema: %w", err)
	}
	return payload, nil
}

// VariableName validates a namespace variable name before it's accepted
// into CallStack.SetVariable (spec §4.7, §7).
func VariableName(name string) error {
	if !variableNameRegex.MatchString(name) {
		return fmt.Errorf("validate: invalid variable name %q", name)
	}
	return nil
}

// NonEmpty validates that a required string field (message content, a
// checkpoint ID, a stream ID) isn't empty, which the router/checkpoint
// packages assume a caller already enforced.
func NonEmpty(field, value string) error {
	if value == "" {
		return fmt.Errorf("validate: %s must not be empty", field)
	}
	return nil
}
