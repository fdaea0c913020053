package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"
)

type executionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowTrigger starts executions of a Cloud Workflow. The scan uses it to
// hand the next page to a fresh execution instead of recursing in-process.
type WorkflowTrigger struct {
	client executionCreator
	parent string
	log    *slog.Logger
}

// NewWorkflowTrigger returns nil, nil when workflowID is empty so callers can
// treat continuation as disabled.
func NewWorkflowTrigger(ctx context.Context, projectID, location, workflowID string, log *slog.Logger) (*WorkflowTrigger, error) {
	if workflowID == "" {
		return nil, nil
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to trigger workflow %s", workflowID)
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return newWorkflowTrigger(client, projectID, location, workflowID, log), nil
}

func newWorkflowTrigger(client executionCreator, projectID, location, workflowID string, log *slog.Logger) *WorkflowTrigger {
	if log == nil {
		log = slog.Default()
	}
	return &WorkflowTrigger{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
		log:    log,
	}
}

// Trigger starts one execution with payload marshalled as its argument and
// returns the execution name.
func (t *WorkflowTrigger) Trigger(ctx context.Context, payload any) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := t.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    t.parent,
		Execution: &executionspb.Execution{Argument: string(payloadBytes)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	t.log.Info("Triggered workflow execution.", "workflow", t.parent, "execution", exec.GetName())
	return exec.GetName(), nil
}
