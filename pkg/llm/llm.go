// Package llm defines the model-facing surface the orchestrator depends on:
// one-shot structured completions for triage and drafting, and assistant
// threads with tool-call handoff for the specialist agents.
package llm

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// RunStatus is the lifecycle state of an assistant run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunExpired        RunStatus = "expired"
)

// Terminal reports whether the run has stopped making progress on its own.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunRequiresAction, RunCompleted, RunFailed, RunExpired:
		return true
	}
	return false
}

// ToolCall is a tool invocation an assistant run is blocked on.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Run is the observable state of an assistant run.
type Run struct {
	ID        string
	Status    RunStatus
	ToolCalls []ToolCall
}

// ContentBlock is one part of a multimodal message. Exactly one field is set.
type ContentBlock struct {
	Text     string
	ImageURL string // data URL or https URL
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// ImageBlock returns an image content block.
func ImageBlock(url string) ContentBlock {
	return ContentBlock{ImageURL: url}
}

// Client is the model API used by the orchestrator. Respond covers structured
// single-shot calls; the remaining methods drive assistant threads.
type Client interface {
	// Respond runs a single chat completion constrained to the given JSON
	// schema and unmarshals the reply into out.
	Respond(ctx context.Context, system string, blocks []ContentBlock, schemaName string, schema *jsonschema.Schema, out any) error

	CreateThread(ctx context.Context) (string, error)
	PostUserMessage(ctx context.Context, threadID, content string) error
	StartRun(ctx context.Context, threadID, assistantID string) (Run, error)
	// WaitRun polls until the run reaches a terminal status or ctx expires.
	WaitRun(ctx context.Context, threadID, runID string) (Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs map[string]string) (Run, error)
	// LatestAssistantMessage returns the newest assistant text in the thread.
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// GenerateSchema reflects a strict JSON schema from a struct type.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
