// Package stores provides the run history persistence layer for ChangeGuard.
// It includes SQLite-based storage with WAL mode, connection pooling, and
// CRUD operations for evaluation runs and their violations.
package stores
