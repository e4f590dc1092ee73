package manifest

import (
	"github.com/cronverge/cronverge/pkg/engine"
)

// Manifest is the desired-state document for one scheduled function
// deployment. It mirrors engine.DesiredDeployment field for field but is
// shaped for authoring: optional blocks may be omitted and defaults are
// applied during conversion. The yaml and json tags carry one shared key
// vocabulary, so documents written in any supported format use the same
// field names.
type Manifest struct {
	// Name is the deployment name, the join key for every derived resource.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Description is an optional human-readable description.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Code locates the artifact and pins its content digest.
	Code Code `yaml:"code" json:"code"`

	// Runtime is the function runtime identifier, e.g. "python3.12".
	Runtime string `yaml:"runtime" json:"runtime" validate:"required"`

	// Handler is the entry point within the artifact.
	Handler string `yaml:"handler" json:"handler" validate:"required"`

	// Role declares the execution role.
	Role Role `yaml:"role" json:"role"`

	// VPC optionally pins the function into subnets and security groups.
	VPC *VPC `yaml:"vpc,omitempty" json:"vpc,omitempty"`

	// Resources sets the function resource limits.
	Resources Resources `yaml:"resources" json:"resources"`

	// Environment maps variable names to values or secret references.
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// Schedule is the invocation schedule.
	Schedule Schedule `yaml:"schedule" json:"schedule"`

	// FailurePolicy optionally configures invocation retry and dead-lettering.
	FailurePolicy *FailurePolicy `yaml:"failure_policy,omitempty" json:"failure_policy,omitempty"`

	// Tags are applied to every created resource.
	Tags map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Code locates a code bundle in object storage along with its digest.
type Code struct {
	// S3Bucket is the bucket holding the artifact.
	S3Bucket string `yaml:"s3_bucket" json:"s3_bucket" validate:"required"`

	// S3Key is the object key of the artifact.
	S3Key string `yaml:"s3_key" json:"s3_key" validate:"required"`

	// S3ObjectVersion optionally pins a specific object version.
	S3ObjectVersion string `yaml:"s3_object_version,omitempty" json:"s3_object_version,omitempty"`

	// SHA256 is the base64-encoded digest of the artifact. It drives code
	// drift detection, so it is mandatory.
	SHA256 string `yaml:"sha256" json:"sha256" validate:"required"`
}

// Role declares who may assume the execution role and what it may do.
type Role struct {
	// TrustedServices are the service principals allowed to assume the
	// role. Empty means the provider default for function execution.
	TrustedServices []string `yaml:"trusted_services,omitempty" json:"trusted_services,omitempty" validate:"omitempty,dive,required"`

	// Statements are the inline policy statements attached to the role.
	Statements []Statement `yaml:"statements" json:"statements" validate:"required,min=1,dive"`
}

// Statement is a single permission statement in the role policy.
type Statement struct {
	// Sid is the optional statement identifier.
	Sid string `yaml:"sid,omitempty" json:"sid,omitempty"`

	// Effect is "Allow" or "Deny".
	Effect string `yaml:"effect" json:"effect" validate:"required,oneof=Allow Deny"`

	// Actions are the permitted or denied operations.
	Actions []string `yaml:"actions" json:"actions" validate:"required,min=1,dive,required"`

	// Resources are the resource identifiers the statement applies to.
	Resources []string `yaml:"resources" json:"resources" validate:"required,min=1,dive,required"`
}

// VPC pins the function into subnets and security groups.
type VPC struct {
	// SubnetIDs are the subnet identifiers.
	SubnetIDs []string `yaml:"subnet_ids" json:"subnet_ids" validate:"required,min=1,dive,required"`

	// SecurityGroupIDs are the security group identifiers.
	SecurityGroupIDs []string `yaml:"security_group_ids" json:"security_group_ids" validate:"required,min=1,dive,required"`
}

// Resources sets the function resource limits.
type Resources struct {
	// MemoryMB is the memory limit in megabytes.
	MemoryMB int32 `yaml:"memory_mb" json:"memory_mb" validate:"gt=0"`

	// TimeoutSeconds is the execution timeout in seconds.
	TimeoutSeconds int32 `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gt=0"`
}

// Schedule is the desired invocation schedule.
type Schedule struct {
	// Expression is a rate or cron expression, e.g. "rate(1 day)".
	Expression string `yaml:"expression" json:"expression" validate:"required"`

	// Enabled controls whether the rule fires. Omitted means enabled.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// FailurePolicy configures retry and dead-letter behavior for invocations.
type FailurePolicy struct {
	// MaxRetryAttempts is the scheduler-side retry count for failed
	// invocations.
	MaxRetryAttempts int32 `yaml:"max_retry_attempts" json:"max_retry_attempts" validate:"gte=0"`

	// DeadLetterTarget is the optional ARN that receives invocations the
	// scheduler gives up on.
	DeadLetterTarget string `yaml:"dead_letter_target,omitempty" json:"dead_letter_target,omitempty"`
}

// ToDeployment converts the manifest into the engine's desired-state form.
// An omitted schedule.enabled converts to an enabled schedule.
func (m *Manifest) ToDeployment() *engine.DesiredDeployment {
	d := &engine.DesiredDeployment{
		Name:        m.Name,
		Description: m.Description,
		Code: engine.CodeArtifact{
			S3Bucket:        m.Code.S3Bucket,
			S3Key:           m.Code.S3Key,
			S3ObjectVersion: m.Code.S3ObjectVersion,
			SHA256:          m.Code.SHA256,
		},
		Runtime: m.Runtime,
		Handler: m.Handler,
		Role: engine.RoleSpec{
			TrustedServices: m.Role.TrustedServices,
		},
		Resources: engine.ResourceLimits{
			MemoryMB:       m.Resources.MemoryMB,
			TimeoutSeconds: m.Resources.TimeoutSeconds,
		},
		Environment: m.Environment,
		Schedule: engine.ScheduleSpec{
			Expression: m.Schedule.Expression,
			Enabled:    m.Schedule.Enabled == nil || *m.Schedule.Enabled,
		},
		Tags: m.Tags,
	}

	for _, s := range m.Role.Statements {
		d.Role.Statements = append(d.Role.Statements, engine.PolicyStatement{
			Sid:       s.Sid,
			Effect:    s.Effect,
			Actions:   s.Actions,
			Resources: s.Resources,
		})
	}

	if m.VPC != nil {
		d.VPC = &engine.VPCPlacement{
			SubnetIDs:        m.VPC.SubnetIDs,
			SecurityGroupIDs: m.VPC.SecurityGroupIDs,
		}
	}

	if m.FailurePolicy != nil {
		d.FailurePolicy = &engine.FailurePolicy{
			MaxRetryAttempts: m.FailurePolicy.MaxRetryAttempts,
			DeadLetterTarget: m.FailurePolicy.DeadLetterTarget,
		}
	}

	return d
}
