package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/beaconcrm/automation/pkg/checkpoint"
	"github.com/beaconcrm/automation/pkg/persistence"
	"github.com/beaconcrm/automation/pkg/persistence/postgresql"
)

// NewCheckpointStore selects the checkpoint backend matching the persistence
// backend, so checkpoints share the durability of the execution records: the
// PostgreSQL store reuses the persistence connection, the file store roots
// next to the workflow files.
func NewCheckpointStore(ctx context.Context, logger *slog.Logger, persist persistence.Persistence, databaseURL string) (checkpoint.Store, error) {
	if pg, ok := persist.(*postgresql.Persistence); ok {
		return checkpoint.NewPostgresStore(ctx, logger, pg.DB())
	}

	root := strings.TrimPrefix(databaseURL, "file://")

	return checkpoint.NewFileStore(filepath.Clean(root))
}
