// Package actions routes typed workflow actions to registered handlers.
package actions

import (
	"context"
	"log/slog"
)

// ExecutionContext carries the identity of the run an action belongs to.
// Handlers receive it alongside their configuration; they never see the
// execution record itself.
type ExecutionContext struct {
	ExecutionID    string         `json:"execution_id"`
	WorkflowID     string         `json:"workflow_id"`
	OrganizationID string         `json:"organization_id"`
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`
}

// Handler executes one action type. Implementations are external
// collaborators (delivery services, CRM writers, outbound HTTP); the
// dispatcher itself performs no network I/O.
type Handler interface {
	Execute(ctx context.Context, config map[string]any, execCtx ExecutionContext, logger *slog.Logger) error

	// Schema returns the JSON schema the action configuration must satisfy,
	// or nil to skip validation.
	Schema() map[string]any
}

// HandlerFunc adapts a function to the Handler interface with no config schema.
type HandlerFunc func(ctx context.Context, config map[string]any, execCtx ExecutionContext, logger *slog.Logger) error

func (f HandlerFunc) Execute(ctx context.Context, config map[string]any, execCtx ExecutionContext, logger *slog.Logger) error {
	return f(ctx, config, execCtx, logger)
}

func (f HandlerFunc) Schema() map[string]any { return nil }
