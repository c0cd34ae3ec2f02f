package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/tracker"
)

// ErrBudgetExceeded is returned when recorded usage reaches a budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// AnyModel in a policy applies its limit to each model separately.
const AnyModel = "*"

// Enforcer checks recorded token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
	now      func() time.Time
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t, now: time.Now}
}

// Policies returns the configured policies.
func (e *Enforcer) Policies() []models.BudgetPolicy {
	return e.policies
}

// Check returns an error wrapping ErrBudgetExceeded if model has reached any
// applicable policy.
func (e *Enforcer) Check(ctx context.Context, model string) error {
	for _, p := range e.applicablePolicies(model) {
		used, err := e.used(ctx, p, model)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return fmt.Errorf("%w: %s used %d of %d %s tokens", ErrBudgetExceeded, scope(p, model), used, p.MaxTokens, p.Period)
		}
	}
	return nil
}

// Status returns usage against every policy that applies to model. An empty
// model reports all policies, expanding "*" policies to each model with usage
// in the period.
func (e *Enforcer) Status(ctx context.Context, model string) ([]models.BudgetStatus, error) {
	var statuses []models.BudgetStatus

	for _, p := range e.policies {
		targets, err := e.targets(ctx, p, model)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		for _, m := range targets {
			used, err := e.used(ctx, p, m)
			if err != nil {
				return nil, fmt.Errorf("budget status: %w", err)
			}
			remaining := p.MaxTokens - used
			if remaining < 0 {
				remaining = 0
			}
			statuses = append(statuses, models.BudgetStatus{
				Policy:    p,
				Model:     m,
				Used:      used,
				Remaining: remaining,
			})
		}
	}
	return statuses, nil
}

// targets lists the models a policy is evaluated for. "" stands for all
// models combined.
func (e *Enforcer) targets(ctx context.Context, p models.BudgetPolicy, model string) ([]string, error) {
	switch {
	case p.Model == "":
		return []string{""}, nil
	case p.Model == AnyModel && model != "":
		return []string{model}, nil
	case p.Model == AnyModel:
		records, err := e.tracker.Summary(ctx, e.periodStart(p.Period))
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var out []string
		for _, r := range records {
			if !seen[r.Model] {
				seen[r.Model] = true
				out = append(out, r.Model)
			}
		}
		sort.Strings(out)
		return out, nil
	case model == "" || p.Model == model:
		return []string{p.Model}, nil
	default:
		return nil, nil
	}
}

func (e *Enforcer) used(ctx context.Context, p models.BudgetPolicy, model string) (int64, error) {
	since := e.periodStart(p.Period)
	if p.Model == "" {
		return e.tracker.TotalByModel(ctx, "", since)
	}
	return e.tracker.TotalByModel(ctx, model, since)
}

func (e *Enforcer) applicablePolicies(model string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if p.Model == "" || p.Model == model || (p.Model == AnyModel && model != "") {
			result = append(result, p)
		}
	}
	return result
}

func scope(p models.BudgetPolicy, model string) string {
	if p.Model == "" {
		return "all models"
	}
	return model
}

func (e *Enforcer) periodStart(period models.BudgetPeriod) time.Time {
	now := e.now().UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
