package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateScheduleExpression_RateExpressions(t *testing.T) {
	tests := []struct {
		name        string
		expression  string
		expectError bool
	}{
		{
			name:        "one minute singular",
			expression:  "rate(1 minute)",
			expectError: false,
		},
		{
			name:        "five minutes plural",
			expression:  "rate(5 minutes)",
			expectError: false,
		},
		{
			name:        "one hour",
			expression:  "rate(1 hour)",
			expectError: false,
		},
		{
			name:        "twelve hours",
			expression:  "rate(12 hours)",
			expectError: false,
		},
		{
			name:        "one day",
			expression:  "rate(1 day)",
			expectError: false,
		},
		{
			name:        "seven days",
			expression:  "rate(7 days)",
			expectError: false,
		},
		{
			name:        "plural unit with value one",
			expression:  "rate(1 minutes)",
			expectError: true,
		},
		{
			name:        "singular unit with value above one",
			expression:  "rate(2 minute)",
			expectError: true,
		},
		{
			name:        "zero value",
			expression:  "rate(0 minutes)",
			expectError: true,
		},
		{
			name:        "negative value",
			expression:  "rate(-1 hours)",
			expectError: true,
		},
		{
			name:        "unknown unit",
			expression:  "rate(3 fortnights)",
			expectError: true,
		},
		{
			name:        "missing unit",
			expression:  "rate(5)",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScheduleExpression(tt.expression)
			if tt.expectError && err == nil {
				t.Errorf("Expected error for %q, got nil", tt.expression)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected %q to be valid, got: %v", tt.expression, err)
			}
		})
	}
}

func TestValidateScheduleExpression_CronExpressions(t *testing.T) {
	tests := []struct {
		name        string
		expression  string
		expectError bool
	}{
		{
			name:        "daily at three",
			expression:  "cron(0 3 * * ? *)",
			expectError: false,
		},
		{
			name:        "weekday mornings",
			expression:  "cron(30 8 ? * MON-FRI *)",
			expectError: false,
		},
		{
			name:        "first of the month",
			expression:  "cron(0 0 1 * ? *)",
			expectError: false,
		},
		{
			name:        "five fields",
			expression:  "cron(0 3 * * *)",
			expectError: true,
		},
		{
			name:        "seven fields",
			expression:  "cron(0 0 3 * * ? *)",
			expectError: true,
		},
		{
			name:        "both day fields set",
			expression:  "cron(0 3 1 * MON *)",
			expectError: true,
		},
		{
			name:        "neither day field is a question mark",
			expression:  "cron(0 3 * * * *)",
			expectError: true,
		},
		{
			name:        "invalid characters",
			expression:  "cron(0 3 * * ? %)",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScheduleExpression(tt.expression)
			if tt.expectError && err == nil {
				t.Errorf("Expected error for %q, got nil", tt.expression)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected %q to be valid, got: %v", tt.expression, err)
			}
		})
	}
}

func TestValidateScheduleExpression_Empty(t *testing.T) {
	err := ValidateScheduleExpression("")
	if err == nil {
		t.Fatal("Expected error for empty expression, got nil")
	}

	var planErr *PlanError
	if !errors.As(err, &planErr) {
		t.Fatalf("Expected PlanError, got %T", err)
	}
	if planErr.Field != "schedule.expression" {
		t.Errorf("Expected field schedule.expression, got %s", planErr.Field)
	}
}

func TestValidateScheduleExpression_UnknownForm(t *testing.T) {
	for _, expr := range []string{"every 5 minutes", "RATE(1 hour)", "@daily", "rate (1 hour)"} {
		err := ValidateScheduleExpression(expr)
		if err == nil {
			t.Errorf("Expected error for %q, got nil", expr)
			continue
		}
		if !strings.Contains(err.Error(), "schedule.expression") {
			t.Errorf("Expected error to name the field, got: %v", err)
		}
	}
}
