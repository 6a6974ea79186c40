// Package recipe defines recipe and step models, the recipe store
// interface, and the authorized CRUD service.
package recipe

import (
	"fmt"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/id"
)

// StepType identifies what kind of work a step performs.
type StepType string

// Step types.
const (
	StepRunAgent      StepType = "run_agent"
	StepWait          StepType = "wait"
	StepBranch        StepType = "branch"
	StepNotify        StepType = "notify"
	StepHumanApproval StepType = "human_approval"
)

// KnownStepType reports whether t is one of the supported step types.
func KnownStepType(t StepType) bool {
	switch t {
	case StepRunAgent, StepWait, StepBranch, StepNotify, StepHumanApproval:
		return true
	default:
		return false
	}
}

// OnErrorPolicy governs what happens when a step fails.
type OnErrorPolicy string

// On-error policies.
const (
	// OnErrorFail terminates the execution with the step's error.
	OnErrorFail OnErrorPolicy = "fail"
	// OnErrorRetry re-invokes the step within the engine's retry budget.
	OnErrorRetry OnErrorPolicy = "retry"
	// OnErrorSkip advances to the next step without success output.
	OnErrorSkip OnErrorPolicy = "skip"
)

// KnownOnErrorPolicy reports whether p is a supported policy.
func KnownOnErrorPolicy(p OnErrorPolicy) bool {
	switch p {
	case OnErrorFail, OnErrorRetry, OnErrorSkip:
		return true
	default:
		return false
	}
}

// Step is one typed unit of work inside a recipe. Steps form a linked,
// possibly branching graph via NextStepID and BranchTargets.
type Step struct {
	ID     id.StepID      `json:"id"`
	Type   StepType       `json:"type"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`

	// NextStepID is the default successor. Nil means the execution
	// completes after this step.
	NextStepID *id.StepID `json:"next_step_id,omitempty"`

	// BranchTargets maps a branch step's outcome label to its
	// successor. Only meaningful for branch steps; the engine selects
	// the successor from the executor's reported label.
	BranchTargets map[string]id.StepID `json:"branch_targets,omitempty"`

	OnError OnErrorPolicy `json:"on_error"`
}

// Clone returns a deep copy of a single step.
func (s *Step) Clone() *Step {
	cp := CloneSteps([]Step{*s})
	return &cp[0]
}

// Recipe is a declarative, reusable definition of an ordered or
// branching sequence of steps. A recipe with zero steps is valid.
type Recipe struct {
	recipeflow.Entity

	ID          id.RecipeID `json:"id"`
	Scope       string      `json:"scope,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Steps       []Step      `json:"steps"`
}

// FirstStep returns the recipe's entry step, or nil for an empty recipe.
func (r *Recipe) FirstStep() *Step {
	if len(r.Steps) == 0 {
		return nil
	}
	return &r.Steps[0]
}

// StepByID returns the step with the given ID, or nil.
func (r *Recipe) StepByID(stepID id.StepID) *Step {
	for i := range r.Steps {
		if r.Steps[i].ID.String() == stepID.String() {
			return &r.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the recipe so callers can mutate it
// without racing against stored state.
func (r *Recipe) Clone() *Recipe {
	cp := *r
	cp.Steps = CloneSteps(r.Steps)
	return &cp
}

// CloneSteps deep-copies a step slice, including config maps and branch
// target maps.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.Config != nil {
			cfg := make(map[string]any, len(s.Config))
			for k, v := range s.Config {
				cfg[k] = v
			}
			out[i].Config = cfg
		}
		if s.NextStepID != nil {
			next := *s.NextStepID
			out[i].NextStepID = &next
		}
		if s.BranchTargets != nil {
			targets := make(map[string]id.StepID, len(s.BranchTargets))
			for k, v := range s.BranchTargets {
				targets[k] = v
			}
			out[i].BranchTargets = targets
		}
	}
	return out
}

// ValidateSteps rejects step graphs the engine cannot execute: unknown
// types or policies, duplicate step IDs, and successors that reference
// steps which do not exist. Steps with an empty OnError default to fail.
func ValidateSteps(steps []Step) error {
	known := make(map[string]struct{}, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.ID.IsNil() {
			s.ID = id.NewStepID()
		}
		key := s.ID.String()
		if _, dup := known[key]; dup {
			return fmt.Errorf("%w: duplicate step id %s", recipeflow.ErrValidation, key)
		}
		known[key] = struct{}{}
	}

	for i := range steps {
		s := &steps[i]
		if !KnownStepType(s.Type) {
			return fmt.Errorf("%w: step %s has unknown type %q", recipeflow.ErrValidation, s.ID, s.Type)
		}
		if s.OnError == "" {
			s.OnError = OnErrorFail
		}
		if !KnownOnErrorPolicy(s.OnError) {
			return fmt.Errorf("%w: step %s has unknown on_error policy %q", recipeflow.ErrValidation, s.ID, s.OnError)
		}
		if s.NextStepID != nil {
			if _, ok := known[s.NextStepID.String()]; !ok {
				return fmt.Errorf("%w: step %s references nonexistent next step %s",
					recipeflow.ErrValidation, s.ID, s.NextStepID)
			}
		}
		if len(s.BranchTargets) > 0 && s.Type != StepBranch {
			return fmt.Errorf("%w: step %s is %q but declares branch targets",
				recipeflow.ErrValidation, s.ID, s.Type)
		}
		for label, target := range s.BranchTargets {
			if _, ok := known[target.String()]; !ok {
				return fmt.Errorf("%w: step %s branch label %q references nonexistent step %s",
					recipeflow.ErrValidation, s.ID, label, target)
			}
		}
	}

	return nil
}
