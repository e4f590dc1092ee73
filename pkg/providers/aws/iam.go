package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/cronverge/cronverge/pkg/engine"
)

// GetRole looks up the execution role and, when a policy name is given, the
// inline policy statements attached to it. A role without the inline policy
// yet is returned with no statements; only the role lookup itself can raise
// not-found.
func (p *Provider) GetRole(ctx context.Context, req engine.GetRoleRequest) (*engine.ObservedRole, error) {
	out, err := p.iam.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(req.RoleName),
	})
	if err != nil {
		return nil, classify(err, "GetRole", req.RoleName)
	}

	role := &engine.ObservedRole{
		Name: aws.ToString(out.Role.RoleName),
		ARN:  aws.ToString(out.Role.Arn),
	}

	if doc := aws.ToString(out.Role.AssumeRolePolicyDocument); doc != "" {
		services, err := parseTrustPolicy(doc)
		if err != nil {
			return nil, engine.NewUnknownError("malformed trust policy document", err).
				WithOperation("GetRole").
				WithResource(req.RoleName)
		}
		role.TrustedServices = services
	}

	if req.PolicyName == "" {
		return role, nil
	}

	policy, err := p.iam.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
		RoleName:   aws.String(req.RoleName),
		PolicyName: aws.String(req.PolicyName),
	})
	if err != nil {
		classified := classify(err, "GetRolePolicy", req.RoleName)
		if engine.IsNotFound(classified) {
			return role, nil
		}
		return nil, classified
	}

	statements, err := parsePolicyDocument(aws.ToString(policy.PolicyDocument))
	if err != nil {
		return nil, engine.NewUnknownError("malformed role policy document", err).
			WithOperation("GetRolePolicy").
			WithResource(req.RoleName)
	}
	role.Statements = statements

	return role, nil
}

// CreateRole creates the execution role with a trust policy for the given
// services.
func (p *Provider) CreateRole(ctx context.Context, req engine.CreateRoleRequest) (*engine.ObservedRole, error) {
	trustPolicy, err := renderTrustPolicy(req.TrustedServices)
	if err != nil {
		return nil, engine.NewUnknownError("failed to render trust policy", err).
			WithOperation("CreateRole").
			WithResource(req.RoleName)
	}

	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(req.RoleName),
		AssumeRolePolicyDocument: aws.String(trustPolicy),
	}
	if req.Description != "" {
		input.Description = aws.String(req.Description)
	}
	input.Tags = iamTags(req.Tags)

	out, err := p.iam.CreateRole(ctx, input)
	if err != nil {
		return nil, classify(err, "CreateRole", req.RoleName)
	}

	return &engine.ObservedRole{
		Name:            aws.ToString(out.Role.RoleName),
		ARN:             aws.ToString(out.Role.Arn),
		TrustedServices: req.TrustedServices,
	}, nil
}

// PutRolePolicy writes the role's inline policy statements.
func (p *Provider) PutRolePolicy(ctx context.Context, req engine.PutRolePolicyRequest) error {
	doc, err := renderPolicyDocument(req.Statements)
	if err != nil {
		return engine.NewUnknownError("failed to render policy document", err).
			WithOperation("PutRolePolicy").
			WithResource(req.RoleName)
	}

	_, err = p.iam.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(req.RoleName),
		PolicyName:     aws.String(req.PolicyName),
		PolicyDocument: aws.String(doc),
	})
	if err != nil {
		return classify(err, "PutRolePolicy", req.RoleName)
	}
	return nil
}

// iamTags converts a tag map to the IAM wire form.
func iamTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}
