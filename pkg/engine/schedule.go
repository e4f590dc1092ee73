package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	rateRe = regexp.MustCompile(`^rate\(\s*(\d+)\s+(minute|minutes|hour|hours|day|days)\s*\)$`)
	cronRe = regexp.MustCompile(`^cron\(([^)]+)\)$`)
)

// ValidateScheduleExpression checks that an expression is a well-formed
// rate() or cron() schedule. Malformed expressions are PlanErrors: the run
// aborts before any provider call is made.
//
// Accepted forms:
//
//	rate(1 minute)  rate(5 minutes)  rate(1 hour)  rate(7 days)
//	cron(0 3 * * ? *)
func ValidateScheduleExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return NewPlanError("schedule.expression", "schedule expression is required")
	}

	switch {
	case strings.HasPrefix(expr, "rate("):
		return validateRate(expr)
	case strings.HasPrefix(expr, "cron("):
		return validateCron(expr)
	default:
		return NewPlanError("schedule.expression",
			fmt.Sprintf("expression %q must use rate(...) or cron(...)", expr))
	}
}

// validateRate checks a rate(value unit) expression. The unit must agree in
// number with the value: rate(1 day) but rate(2 days).
func validateRate(expr string) error {
	m := rateRe.FindStringSubmatch(expr)
	if m == nil {
		return NewPlanError("schedule.expression",
			fmt.Sprintf("malformed rate expression %q", expr))
	}

	value, err := strconv.Atoi(m[1])
	if err != nil || value <= 0 {
		return NewPlanError("schedule.expression",
			fmt.Sprintf("rate value in %q must be a positive integer", expr))
	}

	unit := m[2]
	singular := !strings.HasSuffix(unit, "s")
	if value == 1 && !singular {
		return NewPlanError("schedule.expression",
			fmt.Sprintf("rate unit in %q must be singular for value 1", expr))
	}
	if value > 1 && singular {
		return NewPlanError("schedule.expression",
			fmt.Sprintf("rate unit in %q must be plural for value %d", expr, value))
	}

	return nil
}

// validateCron checks a cron(...) expression with the six-field scheduler
// syntax: minutes, hours, day-of-month, month, day-of-week, year. Exactly
// one of day-of-month and day-of-week must be "?".
func validateCron(expr string) error {
	m := cronRe.FindStringSubmatch(expr)
	if m == nil {
		return NewPlanError("schedule.expression",
			fmt.Sprintf("malformed cron expression %q", expr))
	}

	fields := strings.Fields(m[1])
	if len(fields) != 6 {
		return NewPlanError("schedule.expression",
			fmt.Sprintf("cron expression %q must have 6 fields, got %d", expr, len(fields)))
	}

	dayOfMonth, dayOfWeek := fields[2], fields[4]
	if (dayOfMonth == "?") == (dayOfWeek == "?") {
		return NewPlanError("schedule.expression",
			fmt.Sprintf("cron expression %q must use ? in exactly one of day-of-month and day-of-week", expr))
	}

	for i, f := range fields {
		if f == "" || !cronFieldRe.MatchString(f) {
			return NewPlanError("schedule.expression",
				fmt.Sprintf("cron expression %q has an invalid field %q at position %d", expr, f, i+1))
		}
	}

	return nil
}

var cronFieldRe = regexp.MustCompile(`^[A-Za-z0-9*,\-/?LW#]+$`)
