package rbac

import (
	"context"

	"github.com/platinummonkey/membership/pkg/models"
)

// ConditionRequest describes the check a conditional grant is evaluated for
type ConditionRequest struct {
	UserID         string
	OrganizationID string
	Resource       models.Resource
	Action         models.Action
	ResourceID     string
	Conditions     []models.Condition
}

// ConditionEvaluator decides whether a conditional grant applies
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, req ConditionRequest) (bool, error)
}

// NoopConditionEvaluator treats every condition as satisfied
type NoopConditionEvaluator struct{}

func (NoopConditionEvaluator) Evaluate(context.Context, ConditionRequest) (bool, error) {
	return true, nil
}

// ConditionEvaluatorFunc adapts a function into a ConditionEvaluator
type ConditionEvaluatorFunc func(ctx context.Context, req ConditionRequest) (bool, error)

func (f ConditionEvaluatorFunc) Evaluate(ctx context.Context, req ConditionRequest) (bool, error) {
	return f(ctx, req)
}
