package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyApplyEvent       = "apply_event"
	ActivityPolicyRecordSignedCopy = "record_signed_copy"
	ActivityPolicySyncBlockers     = "sync_blockers"
	ActivityPolicyExpireEnvelope   = "expire_envelope"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var defaultRetry = temporal.RetryPolicy{
	InitialInterval:    1 * time.Second,
	BackoffCoefficient: 2,
	MaximumInterval:    10 * time.Second,
	MaximumAttempts:    3,
}

var activityPolicies = map[string]activityPolicy{
	ActivityPolicyApplyEvent: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         defaultRetry,
	},
	ActivityPolicyRecordSignedCopy: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         defaultRetry,
	},
	// sync is idempotent, so it may retry for longer
	ActivityPolicySyncBlockers: {
		StartToCloseTimeout: time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    10,
		},
	},
	ActivityPolicyExpireEnvelope: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         defaultRetry,
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	retry.NonRetryableErrorTypes = append([]string{ErrTypeNotFound, ErrTypeInvalidInput}, retry.NonRetryableErrorTypes...)
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}
