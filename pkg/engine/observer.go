package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// facetLookupCount is the number of independent sub-resource lookups one
// observation performs: role, function, rule, targets, permission.
const facetLookupCount = 5

// StateObserver builds observed-state snapshots by querying the provider.
// The five facet lookups are independent and run concurrently on a bounded
// worker pool; each writes into a distinct field of the snapshot, so no
// shared mutable state exists between them.
type StateObserver struct {
	// provider issues the control-plane lookups
	provider CloudProvider

	// maxConcurrent bounds the number of in-flight lookups
	maxConcurrent int
}

// NewObserver creates a state observer. A non-positive maxConcurrent falls
// back to one worker per facet lookup.
func NewObserver(provider CloudProvider, maxConcurrent int) *StateObserver {
	if maxConcurrent <= 0 {
		maxConcurrent = facetLookupCount
	}
	return &StateObserver{
		provider:      provider,
		maxConcurrent: maxConcurrent,
	}
}

// Observe queries every sub-resource of the named deployment and aggregates
// the results. A not-found lookup marks the facet absent; any other
// classified failure aborts with an ObserveError, because the caller must be
// able to distinguish "nothing deployed yet" from "observation broken".
func (o *StateObserver) Observe(ctx context.Context, name string) (*ObservedDeployment, error) {
	names := DeriveNames(name)
	snapshot := &ObservedDeployment{Name: name}

	log.Debug().
		Str("deployment", name).
		Str("function", names.Function).
		Str("role", names.Role).
		Str("rule", names.Rule).
		Msg("Observing deployment state")

	type facetLookup struct {
		facet Facet
		run   func(context.Context) error
	}

	lookups := []facetLookup{
		{FacetRole, func(ctx context.Context) error {
			role, err := o.provider.GetRole(ctx, GetRoleRequest{
				RoleName:   names.Role,
				PolicyName: names.RolePolicy,
			})
			if err != nil {
				return absentOrError(err)
			}
			snapshot.Role = role
			return nil
		}},
		{FacetFunction, func(ctx context.Context) error {
			fn, err := o.provider.GetFunction(ctx, GetFunctionRequest{
				FunctionName: names.Function,
			})
			if err != nil {
				return absentOrError(err)
			}
			snapshot.Function = fn
			return nil
		}},
		{FacetSchedule, func(ctx context.Context) error {
			rule, err := o.provider.GetRule(ctx, GetRuleRequest{RuleName: names.Rule})
			if err != nil {
				return absentOrError(err)
			}
			snapshot.Rule = rule
			return nil
		}},
		{FacetPermission, func(ctx context.Context) error {
			statements, err := o.provider.GetFunctionPolicy(ctx, GetFunctionPolicyRequest{
				FunctionName: names.Function,
			})
			if err != nil {
				return absentOrError(err)
			}
			for i := range statements {
				if statements[i].StatementID == names.StatementID {
					snapshot.Permission = &statements[i]
					break
				}
			}
			return nil
		}},
		{FacetTarget, func(ctx context.Context) error {
			targets, err := o.provider.ListTargets(ctx, ListTargetsRequest{RuleName: names.Rule})
			if err != nil {
				return absentOrError(err)
			}
			snapshot.Targets = targets
			return nil
		}},
	}

	errs := make([]error, len(lookups))
	sem := make(chan struct{}, o.maxConcurrent)
	var wg sync.WaitGroup

	for i := range lookups {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[idx] = lookups[idx].run(ctx)
		}(i)
	}
	wg.Wait()

	// Surface the first failure in facet order so errors are deterministic.
	for i, err := range errs {
		if err != nil {
			return nil, NewObserveError(lookups[i].facet, err)
		}
	}

	snapshot.ObservedAt = time.Now()

	log.Info().
		Str("deployment", name).
		Bool("role", snapshot.Role != nil).
		Bool("function", snapshot.Function != nil).
		Bool("rule", snapshot.Rule != nil).
		Int("targets", len(snapshot.Targets)).
		Bool("permission", snapshot.Permission != nil).
		Msg("Observed deployment state")

	return snapshot, nil
}

// absentOrError maps a not-found lookup failure to absence (nil error) and
// passes every other failure through.
func absentOrError(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}
