package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/harun/turnstream/pkg/toolexecutor"
)

// PlanToolName is the built-in tool the model uses to report its plan
const PlanToolName = "update_plan"

// StepStatus is the progress of one plan step
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
)

// PlanStep is one item of the plan
type PlanStep struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
}

// Plan is the model's current plan
type Plan struct {
	Explanation string     `json:"explanation,omitempty"`
	Steps       []PlanStep `json:"plan"`
}

// PlanTracker keeps the latest plan reported through update_plan
type PlanTracker struct {
	mu   sync.RWMutex
	plan Plan
}

// NewPlanTracker creates an empty tracker
func NewPlanTracker() *PlanTracker {
	return &PlanTracker{}
}

// Update replaces the plan. At most one step may be in progress.
func (p *PlanTracker) Update(plan Plan) error {
	inProgress := 0
	for i, step := range plan.Steps {
		if strings.TrimSpace(step.Step) == "" {
			return fmt.Errorf("plan step %d is empty", i)
		}
		switch step.Status {
		case StepPending, StepCompleted:
		case StepInProgress:
			inProgress++
		default:
			return fmt.Errorf("plan step %d has unknown status %q", i, step.Status)
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("at most one step can be in_progress, got %d", inProgress)
	}

	steps := make([]PlanStep, len(plan.Steps))
	copy(steps, plan.Steps)

	p.mu.Lock()
	p.plan = Plan{Explanation: plan.Explanation, Steps: steps}
	p.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current plan
func (p *PlanTracker) Snapshot() Plan {
	p.mu.RLock()
	defer p.mu.RUnlock()

	steps := make([]PlanStep, len(p.plan.Steps))
	copy(steps, p.plan.Steps)
	return Plan{Explanation: p.plan.Explanation, Steps: steps}
}

var planSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"explanation": map[string]interface{}{"type": "string"},
		"plan": map[string]interface{}{
			"type":        "array",
			"description": "The list of steps",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"step": map[string]interface{}{"type": "string"},
					"status": map[string]interface{}{
						"type":        "string",
						"description": "One of: pending, in_progress, completed",
						"enum":        []interface{}{"pending", "in_progress", "completed"},
					},
				},
				"required":             []interface{}{"step", "status"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []interface{}{"plan"},
	"additionalProperties": false,
}

// planTool registers update_plan so its arguments go through the same schema validation as other tools
func planTool(tracker *PlanTracker) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name: PlanToolName,
		Description: "Updates the task plan.\n" +
			"Provide an optional explanation and a list of plan items, each with a step and status.\n" +
			"At most one step can be in_progress at a time.",
		Schema: planSchema,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			raw, err := json.Marshal(params)
			if err != nil {
				return nil, err
			}
			var plan Plan
			if err := json.Unmarshal(raw, &plan); err != nil {
				return nil, fmt.Errorf("failed to decode plan: %w", err)
			}
			if err := tracker.Update(plan); err != nil {
				return nil, err
			}
			return "Plan updated", nil
		},
	}
}
