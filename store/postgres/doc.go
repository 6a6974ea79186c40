// Package postgres implements store.Store backed by PostgreSQL using
// pgx/v5. Schema migrations are embedded and applied by Migrate.
package postgres
