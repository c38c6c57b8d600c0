package stores

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testRun(id string, evaluatedAt time.Time) *EvaluationRun {
	return &EvaluationRun{
		ID:            id,
		ChangeSetPath: "/plans/test.json",
		Status:        RunStatusFailed,
		ResourceCount: 3,
		RuleCount:     6,
		Violations:    1,
		Duration:      42 * time.Millisecond,
		EvaluatedAt:   evaluatedAt,
		CreatedAt:     evaluatedAt,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"runs", "violations"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestRunCRUD tests run persistence operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	run := testRun("run-001", now)
	violations := []*StoredViolation{
		{RuleID: "bucket-versioning-enabled", Severity: "error", Address: "aws_s3_bucket.a", Message: "versioning disabled"},
	}

	if err := store.CreateRun(ctx, run, violations); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if violations[0].ID == 0 {
		t.Error("expected violation ID to be assigned")
	}
	if violations[0].RunID != run.ID {
		t.Errorf("expected violation RunID %s, got %s", run.ID, violations[0].RunID)
	}

	// Read
	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if retrieved.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, retrieved.ID)
	}
	if retrieved.ChangeSetPath != run.ChangeSetPath {
		t.Errorf("expected ChangeSetPath %s, got %s", run.ChangeSetPath, retrieved.ChangeSetPath)
	}
	if retrieved.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, retrieved.Status)
	}
	if retrieved.Duration != run.Duration {
		t.Errorf("expected Duration %v, got %v", run.Duration, retrieved.Duration)
	}

	// List
	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}

	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	// Delete
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	if _, err := store.GetRun(ctx, run.ID); err == nil {
		t.Error("expected error getting deleted run")
	}

	// Cascade removed the violations too
	vs, err := store.ListViolationsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list violations: %v", err)
	}
	if len(vs) != 0 {
		t.Errorf("expected 0 violations after cascade, got %d", len(vs))
	}
}

// TestRunNotFound tests operations on missing runs
func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); err == nil {
		t.Error("expected error getting missing run")
	}
	if err := store.DeleteRun(ctx, "missing"); err == nil {
		t.Error("expected error deleting missing run")
	}
}

// TestListRunsOrdering tests that runs are listed most recent first
func TestListRunsOrdering(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		run := testRun(fmt.Sprintf("run-%03d", i), base.Add(time.Duration(i)*time.Minute))
		if err := store.CreateRun(ctx, run, nil); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-002" || runs[1].ID != "run-001" {
		t.Errorf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}
}

// TestPruneRuns tests history pruning
func TestPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		run := testRun(fmt.Sprintf("run-%03d", i), base.Add(time.Duration(i)*time.Minute))
		if err := store.CreateRun(ctx, run, nil); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	removed, err := store.PruneRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 runs removed, got %d", removed)
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs after prune, got %d", len(runs))
	}
	if runs[0].ID != "run-004" || runs[1].ID != "run-003" {
		t.Errorf("pruned the wrong runs: %s, %s", runs[0].ID, runs[1].ID)
	}

	if _, err := store.PruneRuns(ctx, -1); err == nil {
		t.Error("expected error for negative keep")
	}
}

// TestViolationQueries tests violation listing by run and by rule
func TestViolationQueries(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	runA := testRun("run-a", now)
	if err := store.CreateRun(ctx, runA, []*StoredViolation{
		{RuleID: "bucket-versioning-enabled", Severity: "error", Address: "aws_s3_bucket.x", Message: "m1"},
		{RuleID: "bucket-logging-configured", Severity: "warning", Address: "aws_s3_bucket.x", Message: "m2"},
	}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	runB := testRun("run-b", now.Add(time.Minute))
	if err := store.CreateRun(ctx, runB, []*StoredViolation{
		{RuleID: "bucket-versioning-enabled", Severity: "error", Address: "aws_s3_bucket.y", Message: "m3"},
	}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	byRun, err := store.ListViolationsByRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("failed to list violations by run: %v", err)
	}
	if len(byRun) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(byRun))
	}
	if byRun[0].RuleID != "bucket-versioning-enabled" || byRun[1].RuleID != "bucket-logging-configured" {
		t.Errorf("unexpected order: %s, %s", byRun[0].RuleID, byRun[1].RuleID)
	}

	byRule, err := store.ListViolationsByRule(ctx, "bucket-versioning-enabled", 10, 0)
	if err != nil {
		t.Fatalf("failed to list violations by rule: %v", err)
	}
	if len(byRule) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(byRule))
	}
	for _, v := range byRule {
		if v.RuleID != "bucket-versioning-enabled" {
			t.Errorf("unexpected rule: %s", v.RuleID)
		}
	}
}
