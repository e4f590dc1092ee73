package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/cronverge/cronverge/pkg/engine"
)

// InstrumentedProvider wraps a CloudProvider and records a metric sample and
// an optional trace span for every provider call. The wrapped provider keeps
// the one-call-per-invocation contract; instrumentation never retries.
type InstrumentedProvider struct {
	inner   engine.CloudProvider
	name    string
	metrics *Metrics
	tracer  *Tracer
}

var _ engine.CloudProvider = (*InstrumentedProvider)(nil)

// NewInstrumentedProvider wraps inner with metrics and tracing. Both metrics
// and tracer may be nil; whatever is present gets recorded.
func NewInstrumentedProvider(inner engine.CloudProvider, name string, metrics *Metrics, tracer *Tracer) *InstrumentedProvider {
	return &InstrumentedProvider{
		inner:   inner,
		name:    name,
		metrics: metrics,
		tracer:  tracer,
	}
}

// instrument starts the timer and span for one provider call and returns the
// completion callback that records both.
func (p *InstrumentedProvider) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	timer := NewTimer()
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.StartProviderSpan(ctx, p.name, operation)
	}
	return ctx, func(err error) {
		if p.metrics != nil {
			p.metrics.RecordProviderCall(operation, err, timer.Duration())
		}
		if span != nil {
			if err != nil {
				RecordError(span, err)
			} else {
				RecordSuccess(span)
			}
			span.End()
		}
	}
}

func (p *InstrumentedProvider) GetRole(ctx context.Context, req engine.GetRoleRequest) (*engine.ObservedRole, error) {
	ctx, done := p.instrument(ctx, "GetRole")
	role, err := p.inner.GetRole(ctx, req)
	done(err)
	return role, err
}

func (p *InstrumentedProvider) CreateRole(ctx context.Context, req engine.CreateRoleRequest) (*engine.ObservedRole, error) {
	ctx, done := p.instrument(ctx, "CreateRole")
	role, err := p.inner.CreateRole(ctx, req)
	done(err)
	return role, err
}

func (p *InstrumentedProvider) PutRolePolicy(ctx context.Context, req engine.PutRolePolicyRequest) error {
	ctx, done := p.instrument(ctx, "PutRolePolicy")
	err := p.inner.PutRolePolicy(ctx, req)
	done(err)
	return err
}

func (p *InstrumentedProvider) GetFunction(ctx context.Context, req engine.GetFunctionRequest) (*engine.ObservedFunction, error) {
	ctx, done := p.instrument(ctx, "GetFunction")
	fn, err := p.inner.GetFunction(ctx, req)
	done(err)
	return fn, err
}

func (p *InstrumentedProvider) CreateFunction(ctx context.Context, req engine.CreateFunctionRequest) (*engine.ObservedFunction, error) {
	ctx, done := p.instrument(ctx, "CreateFunction")
	fn, err := p.inner.CreateFunction(ctx, req)
	done(err)
	return fn, err
}

func (p *InstrumentedProvider) UpdateFunctionCode(ctx context.Context, req engine.UpdateFunctionCodeRequest) (*engine.ObservedFunction, error) {
	ctx, done := p.instrument(ctx, "UpdateFunctionCode")
	fn, err := p.inner.UpdateFunctionCode(ctx, req)
	done(err)
	return fn, err
}

func (p *InstrumentedProvider) UpdateFunctionConfig(ctx context.Context, req engine.UpdateFunctionConfigRequest) (*engine.ObservedFunction, error) {
	ctx, done := p.instrument(ctx, "UpdateFunctionConfig")
	fn, err := p.inner.UpdateFunctionConfig(ctx, req)
	done(err)
	return fn, err
}

func (p *InstrumentedProvider) GetRule(ctx context.Context, req engine.GetRuleRequest) (*engine.ObservedRule, error) {
	ctx, done := p.instrument(ctx, "GetRule")
	rule, err := p.inner.GetRule(ctx, req)
	done(err)
	return rule, err
}

func (p *InstrumentedProvider) PutRule(ctx context.Context, req engine.PutRuleRequest) (*engine.ObservedRule, error) {
	ctx, done := p.instrument(ctx, "PutRule")
	rule, err := p.inner.PutRule(ctx, req)
	done(err)
	return rule, err
}

func (p *InstrumentedProvider) ListTargets(ctx context.Context, req engine.ListTargetsRequest) ([]engine.ObservedTarget, error) {
	ctx, done := p.instrument(ctx, "ListTargets")
	targets, err := p.inner.ListTargets(ctx, req)
	done(err)
	return targets, err
}

func (p *InstrumentedProvider) PutTargets(ctx context.Context, req engine.PutTargetsRequest) error {
	ctx, done := p.instrument(ctx, "PutTargets")
	err := p.inner.PutTargets(ctx, req)
	done(err)
	return err
}

func (p *InstrumentedProvider) GetFunctionPolicy(ctx context.Context, req engine.GetFunctionPolicyRequest) ([]engine.ObservedPermission, error) {
	ctx, done := p.instrument(ctx, "GetFunctionPolicy")
	statements, err := p.inner.GetFunctionPolicy(ctx, req)
	done(err)
	return statements, err
}

func (p *InstrumentedProvider) AddPermission(ctx context.Context, req engine.AddPermissionRequest) error {
	ctx, done := p.instrument(ctx, "AddPermission")
	err := p.inner.AddPermission(ctx, req)
	done(err)
	return err
}
