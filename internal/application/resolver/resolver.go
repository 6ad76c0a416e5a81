// Package resolver turns agent rules into the concrete people who must act at a step.
package resolver

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ResolutionContext is the request data a rule is resolved against
type ResolutionContext struct {
	RequesterID string
	Data        map[string]interface{}
}

// Strategy resolves one rule type
type Strategy interface {
	Type() entity.RuleType
	Resolve(ctx context.Context, rule entity.AgentRule, rc ResolutionContext) ([]entity.ResolvedAgent, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Resolver dispatches agent rules to their strategies
type Resolver struct {
	strategies map[entity.RuleType]Strategy
	logger     Logger
}

// Option configures the resolver
type Option func(*Resolver)

// WithLogger sets a logger for the resolver
func WithLogger(logger Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithStrategy registers an additional strategy, replacing any for the same rule type
func WithStrategy(s Strategy) Option {
	return func(r *Resolver) {
		r.strategies[s.Type()] = s
	}
}

// New creates a resolver with the hierarchy, role and responsibility strategies
func New(dir port.OrgDirectory, opts ...Option) *Resolver {
	r := &Resolver{
		strategies: make(map[entity.RuleType]Strategy),
	}
	for _, s := range []Strategy{
		NewHierarchyStrategy(dir),
		NewRoleStrategy(dir),
		NewResponsibilityStrategy(dir),
	} {
		r.strategies[s.Type()] = s
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ResolveStepAgents resolves every rule of a step in order and concatenates
// the results. The same person named by two rules appears twice. A rule that
// fails contributes no agents.
func (r *Resolver) ResolveStepAgents(ctx context.Context, step *entity.WorkflowStep, rc ResolutionContext) []entity.ResolvedAgent {
	agents := make([]entity.ResolvedAgent, 0)

	for _, rule := range step.AgentRules {
		resolved, err := r.ResolveRule(ctx, rule, rc)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("Agent rule resolution failed",
					"step_code", step.StepCode,
					"rule_code", rule.RuleCode,
					"rule_type", rule.RuleType,
					"error", err,
				)
			}
			continue
		}
		agents = append(agents, resolved...)
	}

	if r.logger != nil {
		r.logger.Info("Step agents resolved",
			"step_code", step.StepCode,
			"rule_count", len(step.AgentRules),
			"agent_count", len(agents),
		)
	}

	return agents
}

// ResolveRule resolves a single rule
func (r *Resolver) ResolveRule(ctx context.Context, rule entity.AgentRule, rc ResolutionContext) ([]entity.ResolvedAgent, error) {
	s, ok := r.strategies[rule.RuleType]
	if !ok {
		return nil, fmt.Errorf("unknown rule type %q", rule.RuleType)
	}
	return s.Resolve(ctx, rule, rc)
}
