// Package store ties the per-concern Store interfaces (defined alongside
// their owning packages: internal/memory.Store, internal/sessions.Persistence,
// internal/providers.CostStore) to their concrete backends under
// internal/store/file (standalone mode) and internal/store/pg (managed
// mode), and embeds the schema migrations both backends' tests and the
// `aria migrate` command need access to.
package store

import "embed"

// MigrationsFS embeds the golang-migrate-compatible SQL files driving the
// managed-mode Postgres schema.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
