// Package stores provides the audit persistence layer for cronverge.
// It includes SQLite-based storage with WAL mode, embedded migrations,
// and read operations serving run history: convergence reports, per-action
// outcomes, and run timeline events. The engine only ever writes here;
// convergence decisions are always re-derived from observed provider state.
package stores
