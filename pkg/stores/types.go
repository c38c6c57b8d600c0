package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus represents the outcome of an evaluation run
type RunStatus string

const (
	RunStatusPassed RunStatus = "passed"
	RunStatusFailed RunStatus = "failed"
	RunStatusError  RunStatus = "error"
)

// EvaluationRun represents one persisted evaluation run
type EvaluationRun struct {
	ID            string        `json:"id"`
	ChangeSetPath string        `json:"change_set_path"`
	Status        RunStatus     `json:"status"`
	ResourceCount int           `json:"resource_count"`
	RuleCount     int           `json:"rule_count"`
	Violations    int           `json:"violations"`
	Duration      time.Duration `json:"duration_ns"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
	CreatedAt     time.Time     `json:"created_at"`
}

// StoredViolation represents one persisted violation belonging to a run
type StoredViolation struct {
	ID       int64  `json:"id"`
	RunID    string `json:"run_id"`
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Address  string `json:"address"`
	Message  string `json:"message"`
}

// Store defines the interface for the run history persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *EvaluationRun, violations []*StoredViolation) error
	GetRun(ctx context.Context, id string) (*EvaluationRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*EvaluationRun, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Violation operations
	ListViolationsByRun(ctx context.Context, runID string) ([]*StoredViolation, error)
	ListViolationsByRule(ctx context.Context, ruleID string, limit, offset int) ([]*StoredViolation, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
