package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/cronverge/cronverge/pkg/engine"
)

// lastModifiedLayout is the timestamp format Lambda uses for LastModified.
const lastModifiedLayout = "2006-01-02T15:04:05.000-0700"

// GetFunction looks up the function configuration and code digest.
func (p *Provider) GetFunction(ctx context.Context, req engine.GetFunctionRequest) (*engine.ObservedFunction, error) {
	out, err := p.lambda.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(req.FunctionName),
	})
	if err != nil {
		return nil, classify(err, "GetFunction", req.FunctionName)
	}

	cfg := out.Configuration
	return observedFunction(
		cfg.FunctionName, cfg.FunctionArn, cfg.CodeSha256,
		cfg.Runtime, cfg.Handler, cfg.Role,
		cfg.MemorySize, cfg.Timeout,
		cfg.Environment, cfg.VpcConfig, cfg.DeadLetterConfig,
		cfg.LastModified,
	), nil
}

// CreateFunction creates the function from the code artifact.
func (p *Provider) CreateFunction(ctx context.Context, req engine.CreateFunctionRequest) (*engine.ObservedFunction, error) {
	input := &lambda.CreateFunctionInput{
		FunctionName: aws.String(req.FunctionName),
		Runtime:      types.Runtime(req.Runtime),
		Handler:      aws.String(req.Handler),
		Role:         aws.String(req.RoleARN),
		Code: &types.FunctionCode{
			S3Bucket: aws.String(req.Code.S3Bucket),
			S3Key:    aws.String(req.Code.S3Key),
		},
		MemorySize: aws.Int32(req.MemoryMB),
		Timeout:    aws.Int32(req.TimeoutSeconds),
	}
	if req.Code.S3ObjectVersion != "" {
		input.Code.S3ObjectVersion = aws.String(req.Code.S3ObjectVersion)
	}
	if len(req.Environment) > 0 {
		input.Environment = &types.Environment{Variables: req.Environment}
	}
	if req.VPC != nil {
		input.VpcConfig = &types.VpcConfig{
			SubnetIds:        req.VPC.SubnetIDs,
			SecurityGroupIds: req.VPC.SecurityGroupIDs,
		}
	}
	if req.DeadLetterTarget != "" {
		input.DeadLetterConfig = &types.DeadLetterConfig{
			TargetArn: aws.String(req.DeadLetterTarget),
		}
	}
	if req.Description != "" {
		input.Description = aws.String(req.Description)
	}
	if len(req.Tags) > 0 {
		input.Tags = req.Tags
	}

	out, err := p.lambda.CreateFunction(ctx, input)
	if err != nil {
		return nil, classify(err, "CreateFunction", req.FunctionName)
	}

	return observedFunction(
		out.FunctionName, out.FunctionArn, out.CodeSha256,
		out.Runtime, out.Handler, out.Role,
		out.MemorySize, out.Timeout,
		out.Environment, out.VpcConfig, out.DeadLetterConfig,
		out.LastModified,
	), nil
}

// UpdateFunctionCode replaces the deployed artifact.
func (p *Provider) UpdateFunctionCode(ctx context.Context, req engine.UpdateFunctionCodeRequest) (*engine.ObservedFunction, error) {
	input := &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(req.FunctionName),
		S3Bucket:     aws.String(req.Code.S3Bucket),
		S3Key:        aws.String(req.Code.S3Key),
	}
	if req.Code.S3ObjectVersion != "" {
		input.S3ObjectVersion = aws.String(req.Code.S3ObjectVersion)
	}

	out, err := p.lambda.UpdateFunctionCode(ctx, input)
	if err != nil {
		return nil, classify(err, "UpdateFunctionCode", req.FunctionName)
	}

	return observedFunction(
		out.FunctionName, out.FunctionArn, out.CodeSha256,
		out.Runtime, out.Handler, out.Role,
		out.MemorySize, out.Timeout,
		out.Environment, out.VpcConfig, out.DeadLetterConfig,
		out.LastModified,
	), nil
}

// UpdateFunctionConfig updates the function's runtime configuration. The
// caller supplies the complete environment map; merging observed-only keys
// happens upstream.
func (p *Provider) UpdateFunctionConfig(ctx context.Context, req engine.UpdateFunctionConfigRequest) (*engine.ObservedFunction, error) {
	input := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(req.FunctionName),
		Runtime:      types.Runtime(req.Runtime),
		Handler:      aws.String(req.Handler),
		Role:         aws.String(req.RoleARN),
		MemorySize:   aws.Int32(req.MemoryMB),
		Timeout:      aws.Int32(req.TimeoutSeconds),
		Environment:  &types.Environment{Variables: req.Environment},
	}
	if req.VPC != nil {
		input.VpcConfig = &types.VpcConfig{
			SubnetIds:        req.VPC.SubnetIDs,
			SecurityGroupIds: req.VPC.SecurityGroupIDs,
		}
	}
	if req.DeadLetterTarget != "" {
		input.DeadLetterConfig = &types.DeadLetterConfig{
			TargetArn: aws.String(req.DeadLetterTarget),
		}
	}

	out, err := p.lambda.UpdateFunctionConfiguration(ctx, input)
	if err != nil {
		return nil, classify(err, "UpdateFunctionConfig", req.FunctionName)
	}

	return observedFunction(
		out.FunctionName, out.FunctionArn, out.CodeSha256,
		out.Runtime, out.Handler, out.Role,
		out.MemorySize, out.Timeout,
		out.Environment, out.VpcConfig, out.DeadLetterConfig,
		out.LastModified,
	), nil
}

// GetFunctionPolicy reads the function's resource policy statements.
func (p *Provider) GetFunctionPolicy(ctx context.Context, req engine.GetFunctionPolicyRequest) ([]engine.ObservedPermission, error) {
	out, err := p.lambda.GetPolicy(ctx, &lambda.GetPolicyInput{
		FunctionName: aws.String(req.FunctionName),
	})
	if err != nil {
		return nil, classify(err, "GetFunctionPolicy", req.FunctionName)
	}

	grants, err := parseResourcePolicy(aws.ToString(out.Policy))
	if err != nil {
		return nil, engine.NewUnknownError("malformed resource policy document", err).
			WithOperation("GetFunctionPolicy").
			WithResource(req.FunctionName)
	}
	return grants, nil
}

// AddPermission grants a principal the right to invoke the function.
func (p *Provider) AddPermission(ctx context.Context, req engine.AddPermissionRequest) error {
	input := &lambda.AddPermissionInput{
		FunctionName: aws.String(req.FunctionName),
		StatementId:  aws.String(req.StatementID),
		Principal:    aws.String(req.Principal),
		Action:       aws.String(req.Action),
	}
	if req.SourceARN != "" {
		input.SourceArn = aws.String(req.SourceARN)
	}

	_, err := p.lambda.AddPermission(ctx, input)
	if err != nil {
		return classify(err, "AddPermission", req.FunctionName)
	}
	return nil
}

// observedFunction maps the function configuration fields shared by the
// get/create/update outputs onto the engine's observed form.
func observedFunction(
	name, arn, sha *string,
	runtime types.Runtime,
	handler, role *string,
	memory, timeout *int32,
	env *types.EnvironmentResponse,
	vpc *types.VpcConfigResponse,
	dlq *types.DeadLetterConfig,
	lastModified *string,
) *engine.ObservedFunction {
	fn := &engine.ObservedFunction{
		Name:           aws.ToString(name),
		ARN:            aws.ToString(arn),
		CodeSHA256:     aws.ToString(sha),
		Runtime:        string(runtime),
		Handler:        aws.ToString(handler),
		RoleARN:        aws.ToString(role),
		MemoryMB:       aws.ToInt32(memory),
		TimeoutSeconds: aws.ToInt32(timeout),
	}

	if env != nil {
		fn.Environment = env.Variables
	}
	if vpc != nil && (len(vpc.SubnetIds) > 0 || len(vpc.SecurityGroupIds) > 0) {
		fn.VPC = &engine.VPCPlacement{
			SubnetIDs:        vpc.SubnetIds,
			SecurityGroupIDs: vpc.SecurityGroupIds,
		}
	}
	if dlq != nil {
		fn.DeadLetterTarget = aws.ToString(dlq.TargetArn)
	}
	if ts := aws.ToString(lastModified); ts != "" {
		if parsed, err := time.Parse(lastModifiedLayout, ts); err == nil {
			fn.LastModified = parsed
		}
	}
	return fn
}
