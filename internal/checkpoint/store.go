package checkpoint

import (
	"context"

	"github.com/smilemakc/mbflow/pkg/models"
)

// Store persists and retrieves Checkpoint documents. Implementations:
// FileStore (local JSON files, the default/dev-mode backend) and BunStore
// (uptrace/bun over Postgres, for clustered deployments), per SPEC_FULL.md's
// domain-stack wiring of the teacher's existing bun/pgdriver stack.
type Store interface {
	Save(ctx context.Context, cp *models.Checkpoint) error
	Load(ctx context.Context, workflowInstanceID string) (*models.Checkpoint, error)
	// List returns checkpoint metadata for a workflow instance, most recent
	// first.
	List(ctx context.Context, workflowInstanceID string) ([]models.CheckpointMetadata, error)
	Delete(ctx context.Context, checkpointID string) error
}
