package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/cronverge/cronverge/pkg/engine"
)

// GetRule looks up the schedule rule.
func (p *Provider) GetRule(ctx context.Context, req engine.GetRuleRequest) (*engine.ObservedRule, error) {
	out, err := p.events.DescribeRule(ctx, &eventbridge.DescribeRuleInput{
		Name: aws.String(req.RuleName),
	})
	if err != nil {
		return nil, classify(err, "GetRule", req.RuleName)
	}

	return &engine.ObservedRule{
		Name:       aws.ToString(out.Name),
		ARN:        aws.ToString(out.Arn),
		Expression: aws.ToString(out.ScheduleExpression),
		Enabled:    out.State == types.RuleStateEnabled,
	}, nil
}

// PutRule creates or rewrites the schedule rule. The call is a full upsert:
// expression and enablement always reflect the request afterwards.
func (p *Provider) PutRule(ctx context.Context, req engine.PutRuleRequest) (*engine.ObservedRule, error) {
	state := types.RuleStateDisabled
	if req.Enabled {
		state = types.RuleStateEnabled
	}

	input := &eventbridge.PutRuleInput{
		Name:               aws.String(req.RuleName),
		ScheduleExpression: aws.String(req.Expression),
		State:              state,
	}
	if req.Description != "" {
		input.Description = aws.String(req.Description)
	}
	input.Tags = eventTags(req.Tags)

	out, err := p.events.PutRule(ctx, input)
	if err != nil {
		return nil, classify(err, "PutRule", req.RuleName)
	}

	return &engine.ObservedRule{
		Name:       req.RuleName,
		ARN:        aws.ToString(out.RuleArn),
		Expression: req.Expression,
		Enabled:    req.Enabled,
	}, nil
}

// ListTargets lists the targets bound to the schedule rule.
func (p *Provider) ListTargets(ctx context.Context, req engine.ListTargetsRequest) ([]engine.ObservedTarget, error) {
	out, err := p.events.ListTargetsByRule(ctx, &eventbridge.ListTargetsByRuleInput{
		Rule: aws.String(req.RuleName),
	})
	if err != nil {
		return nil, classify(err, "ListTargets", req.RuleName)
	}

	targets := make([]engine.ObservedTarget, 0, len(out.Targets))
	for _, t := range out.Targets {
		target := engine.ObservedTarget{
			ID:               aws.ToString(t.Id),
			ARN:              aws.ToString(t.Arn),
			MaxRetryAttempts: -1,
		}
		if t.RetryPolicy != nil && t.RetryPolicy.MaximumRetryAttempts != nil {
			target.MaxRetryAttempts = aws.ToInt32(t.RetryPolicy.MaximumRetryAttempts)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// PutTargets binds the function as the rule's invocation target. A retry
// budget of -1 leaves the provider default in place.
func (p *Provider) PutTargets(ctx context.Context, req engine.PutTargetsRequest) error {
	target := types.Target{
		Id:  aws.String(req.TargetID),
		Arn: aws.String(req.TargetARN),
	}
	if req.MaxRetryAttempts >= 0 {
		target.RetryPolicy = &types.RetryPolicy{
			MaximumRetryAttempts: aws.Int32(req.MaxRetryAttempts),
		}
	}

	out, err := p.events.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule:    aws.String(req.RuleName),
		Targets: []types.Target{target},
	})
	if err != nil {
		return classify(err, "PutTargets", req.RuleName)
	}

	if out.FailedEntryCount > 0 {
		reason := "target binding rejected"
		if len(out.FailedEntries) > 0 {
			entry := out.FailedEntries[0]
			reason = fmt.Sprintf("target binding rejected: %s (%s)",
				aws.ToString(entry.ErrorMessage), aws.ToString(entry.ErrorCode))
		}
		return engine.NewUnknownError(reason, nil).
			WithOperation("PutTargets").
			WithResource(req.RuleName)
	}
	return nil
}

// eventTags converts a tag map to the EventBridge wire form.
func eventTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}
