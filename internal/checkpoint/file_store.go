package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

// FileStore persists checkpoints as one JSON file per checkpoint under
// Dir/<workflowInstanceID>/<checkpointID>.json. Writes go through a
// temp-file-then-rename so a crash mid-write never leaves a corrupt
// checkpoint behind, the same durability shape the teacher applies to its
// other on-disk artifacts.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) instanceDir(workflowInstanceID string) string {
	return filepath.Join(s.Dir, workflowInstanceID)
}

// Save assigns cp a fresh CheckpointID (if unset) and writes it atomically.
func (s *FileStore) Save(ctx context.Context, cp *models.Checkpoint) error {
	if cp.Metadata.CheckpointID == "" {
		cp.Metadata.CheckpointID = uuid.NewString()
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	// SizeBytes describes the checkpoint body itself; it necessarily excludes
	// its own few bytes once folded back in, which is fine for the
	// informational purpose this field serves (spec.md §6 sizing/GC hints).
	cp.Metadata.SizeBytes = int64(len(data))

	dir := s.instanceDir(cp.Metadata.WorkflowInstanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}

	final := filepath.Join(dir, cp.Metadata.CheckpointID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("committing checkpoint: %w", err)
	}
	return nil
}

// Load returns the most recent checkpoint recorded for workflowInstanceID.
func (s *FileStore) Load(ctx context.Context, workflowInstanceID string) (*models.Checkpoint, error) {
	entries, err := s.listFiles(workflowInstanceID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, models.ErrCheckpointNotFound
	}

	data, err := os.ReadFile(entries[0].path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// List returns metadata for every checkpoint saved for workflowInstanceID,
// most recently modified first.
func (s *FileStore) List(ctx context.Context, workflowInstanceID string) ([]models.CheckpointMetadata, error) {
	entries, err := s.listFiles(workflowInstanceID)
	if err != nil {
		return nil, err
	}

	out := make([]models.CheckpointMetadata, 0, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(e.path)
		if err != nil {
			continue
		}
		var cp models.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		out = append(out, cp.Metadata)
	}
	return out, nil
}

// Delete removes a checkpoint file by id, searching every instance
// subdirectory (checkpoint ids are globally unique uuids).
func (s *FileStore) Delete(ctx context.Context, checkpointID string) error {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*", checkpointID+".json"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return models.ErrCheckpointNotFound
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	return nil
}

type fileEntry struct {
	path    string
	modTime int64
}

func (s *FileStore) listFiles(workflowInstanceID string) ([]fileEntry, error) {
	dir := s.instanceDir(workflowInstanceID)
	infos, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}

	entries := make([]fileEntry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		fi, err := info.Info()
		if err != nil {
			continue
		}
		entries = append(entries, fileEntry{path: filepath.Join(dir, info.Name()), modTime: fi.ModTime().UnixNano()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime > entries[j].modTime })
	return entries, nil
}
