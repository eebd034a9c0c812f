// Package cmd wires shared infrastructure for the engine binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/beaconcrm/automation/pkg/persistence"
	"github.com/beaconcrm/automation/pkg/persistence/file"
	"github.com/beaconcrm/automation/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: postgres:// for PostgreSQL, anything else is treated as a file
// path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	}

	return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
}
