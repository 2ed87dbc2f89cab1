package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/mbflow/pkg/models"
)

func newCheckpointID() string { return uuid.NewString() }

// checkpointRow is the bun-mapped row backing BunStore, grounded on the
// teacher's internal/infrastructure/storage repositories (a dedicated model
// struct per table, document-shaped columns stored as jsonb).
type checkpointRow struct {
	bun.BaseModel `bun:"table:workflow_checkpoints,alias:cp"`

	CheckpointID       string    `bun:"checkpoint_id,pk"`
	WorkflowInstanceID string    `bun:"workflow_instance_id,notnull"`
	WorkflowID         string    `bun:"workflow_id,notnull"`
	CreatedAt          time.Time `bun:"created_at,notnull,default:current_timestamp"`
	SizeBytes          int64     `bun:"size_bytes,notnull"`
	TotalNodes         int       `bun:"total_nodes,notnull"`
	CompletedNodes     int       `bun:"completed_nodes,notnull"`
	PendingNodes       int       `bun:"pending_nodes,notnull"`
	Description        string    `bun:"description"`
	Document           []byte    `bun:"document,type:jsonb,notnull"`
}

// BunStore persists checkpoints to Postgres via uptrace/bun, for clustered
// deployments where a local FileStore per engine process would scatter
// checkpoints across machines.
type BunStore struct {
	db *bun.DB
}

// NewBunStore wraps an already-configured *bun.DB (pgdialect/pgdriver
// connection setup lives in internal/infrastructure/storage's NewDB, matching the teacher's
// convention of constructing the *bun.DB once at startup and threading it
// into every repository).
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// EnsureSchema creates the workflow_checkpoints table if it does not exist
// yet. Called once at startup, mirroring the teacher's migration-on-boot
// convenience path for local/dev environments; this repo has no separate
// migration tool.
func (s *BunStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*checkpointRow)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("creating workflow_checkpoints table: %w", err)
	}
	return nil
}

func (s *BunStore) Save(ctx context.Context, cp *models.Checkpoint) error {
	if cp.Metadata.CheckpointID == "" {
		cp.Metadata.CheckpointID = newCheckpointID()
	}

	doc, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	cp.Metadata.SizeBytes = int64(len(doc))

	row := &checkpointRow{
		CheckpointID:       cp.Metadata.CheckpointID,
		WorkflowInstanceID: cp.Metadata.WorkflowInstanceID,
		WorkflowID:         cp.Metadata.WorkflowID,
		CreatedAt:          cp.Metadata.Timestamp,
		SizeBytes:          cp.Metadata.SizeBytes,
		TotalNodes:         cp.Metadata.TotalNodes,
		CompletedNodes:     cp.Metadata.CompletedNodes,
		PendingNodes:       cp.Metadata.PendingNodes,
		Description:        cp.Metadata.Description,
		Document:           doc,
	}

	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (checkpoint_id) DO UPDATE").
		Set("document = EXCLUDED.document").
		Set("size_bytes = EXCLUDED.size_bytes").
		Set("completed_nodes = EXCLUDED.completed_nodes").
		Set("pending_nodes = EXCLUDED.pending_nodes").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

func (s *BunStore) Load(ctx context.Context, workflowInstanceID string) (*models.Checkpoint, error) {
	row := &checkpointRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("workflow_instance_id = ?", workflowInstanceID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(row.Document, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint document: %w", err)
	}
	return &cp, nil
}

func (s *BunStore) List(ctx context.Context, workflowInstanceID string) ([]models.CheckpointMetadata, error) {
	var rows []checkpointRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("workflow_instance_id = ?", workflowInstanceID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}

	out := make([]models.CheckpointMetadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CheckpointMetadata{
			CheckpointID:       r.CheckpointID,
			WorkflowInstanceID: r.WorkflowInstanceID,
			WorkflowID:         r.WorkflowID,
			Timestamp:          r.CreatedAt,
			TotalNodes:         r.TotalNodes,
			CompletedNodes:     r.CompletedNodes,
			PendingNodes:       r.PendingNodes,
			SizeBytes:          r.SizeBytes,
			Description:        r.Description,
		})
	}
	return out, nil
}

func (s *BunStore) Delete(ctx context.Context, checkpointID string) error {
	res, err := s.db.NewDelete().
		Model((*checkpointRow)(nil)).
		Where("checkpoint_id = ?", checkpointID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrCheckpointNotFound
	}
	return nil
}
