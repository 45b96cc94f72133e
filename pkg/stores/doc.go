// Package stores provides the persistence layer for simulation runs.
// It includes a SQLite-based store with embedded migrations that records
// runs and the outcome of every command step.
package stores
