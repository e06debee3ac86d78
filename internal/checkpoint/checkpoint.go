// Package checkpoint defines the checkpoint record shape and the Recover
// operation (spec §6.4). It intentionally does not implement a storage
// backend (spec §2 Non-goals: "Checkpoint storage backends (the core only
// defines the checkpoint record shape)") — persistence is left to the host.
package checkpoint

import (
	"github.com/playbooks-ai/playbooks-runtime/internal/callstack"
)

// FrameRecord is one restorable call-frame entry inside metadata.callStack.
type FrameRecord struct {
	Playbook         string
	LineNumber       int
	SourceLineNumber int
}

// Metadata carries resumption context alongside the raw state (spec §6.4).
type Metadata struct {
	Statement string
	Counter   int
	Timestamp int64
	CallStack []FrameRecord
}

// AgentSummary is the checkpointed view of one agent, enough to recreate
// its runtime-visible identity on recovery.
type AgentSummary struct {
	ID    string
	Klass string
}

// ExecutionState is the program-wide state captured in a checkpoint.
type ExecutionState struct {
	Variables map[string]any
	Agents    []AgentSummary
}

// Record is the full checkpoint record (spec §6.4).
type Record struct {
	CheckpointID   string
	ExecutionID    string
	ExecutionState ExecutionState
	Namespace      map[string]any
	Metadata       Metadata
}

// Recover replaces cs's frames with exactly the ones in rec.Metadata.CallStack
// (clearing existing frames first), then restores rec.Namespace and
// rec.ExecutionState.Variables via cs.SetVariable, so they land in the top
// restored frame, or in the top-level scope when the record has no frames,
// per spec §6.4: "Recovery replaces the call stack with
// exactly these frames ..., restores variables and namespace, and resumes
// from statement." The caller is responsible for acting on
// rec.Metadata.Statement to resume execution; this function only rebuilds
// state.
func Recover(cs *callstack.CallStack, rec *Record) {
	cs.ClearFrames()
	for _, fr := range rec.Metadata.CallStack {
		cs.RestoreFrame(fr.Playbook, fr.LineNumber, fr.SourceLineNumber)
	}
	for name, value := range rec.Namespace {
		cs.SetVariable(name, value)
	}
	for name, value := range rec.ExecutionState.Variables {
		cs.SetVariable(name, value)
	}
}
