package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveReport demonstrates persisting a convergence report
// and reading it back for the history view.
func ExampleSQLiteStore_SaveReport() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	started := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	report := &engine.ConvergenceReport{
		RunID:       "run-001",
		Deployment:  "invoice-rollup",
		Status:      engine.StatusConverged,
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
		Duration:    2 * time.Second,
		Results: []engine.ActionResult{
			{
				Action:   engine.Action{Kind: engine.ActionCreateRole, Facet: engine.FacetRole, Reason: "role absent"},
				Outcome:  engine.OutcomeApplied,
				Attempts: 1,
			},
		},
		Summary: engine.ReportSummary{Total: 1, Applied: 1},
	}

	if err := store.SaveReport(ctx, report); err != nil {
		log.Fatal(err)
	}

	// Retrieve the run for history listing
	run, err := store.GetRun(ctx, "run-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Run: %s, Status: %s, Applied: %d\n", run.ID, run.Status, run.Applied)
	// Output: Run: run-001, Status: converged, Applied: 1
}

// ExampleSQLiteStore_Publish demonstrates recording run timeline events.
func ExampleSQLiteStore_Publish() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	event := &engine.Event{
		ID:         "evt-001",
		Type:       engine.EventTypeRunStarted,
		Timestamp:  time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC),
		RunID:      "run-001",
		Deployment: "invoice-rollup",
		Message:    "convergence run started",
		Level:      "info",
	}

	if err := store.Publish(ctx, event); err != nil {
		log.Fatal(err)
	}

	events, err := store.ListEventsByRun(ctx, "run-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Event count: %d, Message: %s\n", len(events), events[0].Message)
	// Output: Event count: 1, Message: convergence run started
}
