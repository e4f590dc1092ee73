package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/stores"
)

// actionSymbol marks an action line: + for creates, ~ for updates, = for
// sub-resources already in sync.
func actionSymbol(kind engine.ActionKind) string {
	switch {
	case kind.IsCreate():
		return "+"
	case kind == engine.ActionNoop:
		return "="
	default:
		return "~"
	}
}

// renderPlan prints a computed plan in human-readable form.
func renderPlan(plan *engine.Plan, observed *engine.ObservedDeployment) {
	header := fmt.Sprintf("Plan for %s", plan.Deployment)
	if observed != nil && observed.FullyAbsent() {
		header += " (new deployment)"
	}
	fmt.Println(header)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, action := range plan.Actions {
		fmt.Fprintf(w, "  %s %s\t%s\t%s\n",
			actionSymbol(action.Kind), action.Kind, action.Facet, action.Reason)
		for _, change := range action.Changes {
			fmt.Fprintf(w, "      %s\t%v -> %v\t\n", change.Path, change.Before, change.After)
		}
	}
	w.Flush()

	fmt.Println()
	if !plan.HasChanges() {
		fmt.Println("No changes. Live state matches the document.")
		return
	}
	fmt.Printf("Summary: %d to create, %d to update, %d in sync\n",
		plan.Summary.ToCreate, plan.Summary.ToUpdate, plan.Summary.Noop)
}

// renderReport prints the outcome of a convergence run.
func renderReport(report *engine.ConvergenceReport) {
	fmt.Printf("Run %s for %s: %s in %s\n",
		report.RunID, report.Deployment, report.Status,
		report.Duration.Round(time.Millisecond))

	if len(report.Results) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, result := range report.Results {
			line := fmt.Sprintf("  %s\t%s\t%s\t", result.Outcome, result.Action.Kind, result.Action.Facet)
			if result.Attempts > 1 {
				line += fmt.Sprintf("attempts=%d", result.Attempts)
			}
			if result.Error != nil && result.Outcome == engine.OutcomeFailed {
				line += fmt.Sprintf("\t%s", result.Error.Message)
			}
			fmt.Fprintln(w, line)
		}
		w.Flush()
	}

	fmt.Println()
	s := report.Summary
	fmt.Printf("Summary: %d applied (%d noop), %d failed, %d skipped\n",
		s.Applied, s.Noop, s.Failed, s.Skipped)
	if report.FailureReason != "" {
		fmt.Printf("Failure: %s\n", report.FailureReason)
	}
}

// renderObserved prints a live state snapshot, one line per sub-resource.
func renderObserved(observed *engine.ObservedDeployment) {
	fmt.Printf("Deployment %s (observed %s)\n\n",
		observed.Name, observed.ObservedAt.Format(time.RFC3339))

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)

	if observed.Role != nil {
		fmt.Fprintf(w, "  role\tpresent\t%s\n", observed.Role.ARN)
	} else {
		fmt.Fprintf(w, "  role\tabsent\t\n")
	}

	if f := observed.Function; f != nil {
		fmt.Fprintf(w, "  function\tpresent\truntime=%s memory=%dMB timeout=%ds\n",
			f.Runtime, f.MemoryMB, f.TimeoutSeconds)
		fmt.Fprintf(w, "  \t\tcode sha256=%s\n", f.CodeSHA256)
	} else {
		fmt.Fprintf(w, "  function\tabsent\t\n")
	}

	if r := observed.Rule; r != nil {
		state := "disabled"
		if r.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(w, "  schedule\tpresent\t%s (%s)\n", r.Expression, state)
	} else {
		fmt.Fprintf(w, "  schedule\tabsent\t\n")
	}

	if p := observed.Permission; p != nil {
		fmt.Fprintf(w, "  permission\tpresent\t%s may %s\n", p.Principal, p.Action)
	} else {
		fmt.Fprintf(w, "  permission\tabsent\t\n")
	}

	if len(observed.Targets) > 0 {
		for _, t := range observed.Targets {
			fmt.Fprintf(w, "  target\tpresent\t%s\n", t.ARN)
		}
	} else {
		fmt.Fprintf(w, "  target\tabsent\t\n")
	}

	w.Flush()

	if observed.FullyAbsent() {
		fmt.Println("\nNothing is deployed under this name.")
	}
}

// renderRuns prints the run history table.
func renderRuns(runs []*stores.RunRecord) {
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tDEPLOYMENT\tSTATUS\tSTARTED\tDURATION\tAPPLIED\tFAILED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			shortID(run.ID), run.Deployment, run.Status,
			run.StartedAt.Format(time.RFC3339),
			(time.Duration(run.DurationMS) * time.Millisecond).String(),
			run.Applied, run.Failed)
	}
	w.Flush()
}

// renderRunDetail prints one run with its actions and timeline.
func renderRunDetail(run *stores.RunRecord, actions []*stores.ActionRecord, events []*stores.EventRecord) {
	fmt.Printf("Run %s for %s: %s\n", run.ID, run.Deployment, run.Status)
	fmt.Printf("Started %s, took %s\n",
		run.StartedAt.Format(time.RFC3339),
		(time.Duration(run.DurationMS) * time.Millisecond).String())
	if run.FailureReason != nil && *run.FailureReason != "" {
		fmt.Printf("Failure: %s\n", *run.FailureReason)
	}

	if len(actions) > 0 {
		fmt.Println("\nActions:")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, a := range actions {
			line := fmt.Sprintf("  %d. %s\t%s\t%s\t", a.Position+1, a.Outcome, a.Kind, a.Facet)
			if a.Error != nil && *a.Error != "" {
				line += *a.Error
			}
			fmt.Fprintln(w, line)
		}
		w.Flush()
	}

	if len(events) > 0 {
		fmt.Println("\nTimeline:")
		for _, e := range events {
			fmt.Printf("  %s  %-16s %s\n",
				e.Timestamp.Format("15:04:05.000"), e.Type, e.Message)
		}
	}
}

// shortID truncates a UUID for table display.
func shortID(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return id[:i]
	}
	return id
}
