package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/domain/ports/adapter"
	"neunovapdf-backend/internal/infra/logging"
	"neunovapdf-backend/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var _ adapter.WorkspaceManager = (*Manager)(nil)

// Manager hands out one directory per job under a fixed scratch root.
// Directory names are ULIDs, so they are unique, URL-safe and carry their
// creation time, which the sweeper uses to find leaked workspaces.
type Manager struct {
	root string
	log  *zerolog.Logger
	now  func() time.Time
}

func NewManager(root string, logger *zerolog.Logger) *Manager {
	l := logger.With().Str("component", "Workspace").Logger()
	return &Manager{root: root, log: &l, now: time.Now}
}

func (m *Manager) Root() string { return m.root }

// Allocate creates a fresh, exclusively owned directory. Any error is
// fatal to the request.
func (m *Manager) Allocate(ctx context.Context) (*model.Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create scratch root: %v", domain.ErrFilesystem, err)
	}
	now := m.now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	path := filepath.Join(m.root, id)
	// Mkdir, not MkdirAll: an existing directory must never be reused.
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create workspace: %v", domain.ErrFilesystem, err)
	}
	metrics.AddWorkspacesActive(1)
	logging.With(ctx, m.log).Debug().Str("workspace", id).Msg("workspace allocated")
	return &model.Workspace{ID: id, Path: path, CreatedAt: now}, nil
}

// Release removes the workspace tree. Errors are logged and counted, never
// returned: cleanup must not mask the job's own outcome.
func (m *Manager) Release(ctx context.Context, ws *model.Workspace) {
	if ws == nil {
		return
	}
	metrics.AddWorkspacesActive(-1)
	if err := m.remove(ws.Path); err != nil {
		metrics.IncWorkspaceCleanupFailure()
		logging.With(ctx, m.log).Warn().Err(err).
			Str("workspace", ws.ID).
			Str("path", ws.Path).
			Msg("workspace cleanup failed")
		return
	}
	logging.With(ctx, m.log).Debug().Str("workspace", ws.ID).Msg("workspace released")
}

func (m *Manager) remove(path string) error {
	// guard against a corrupted path escaping the scratch root
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %q outside scratch root", path)
	}
	return os.RemoveAll(path)
}

// Sweep deletes workspaces whose ULID timestamp is older than maxAge and
// returns how many were removed. Entries that are not ULIDs are left alone.
func (m *Manager) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := ulid.ParseStrict(e.Name())
		if err != nil {
			continue
		}
		if ulid.Time(id.Time()).After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		if err := m.remove(path); err != nil {
			metrics.IncWorkspaceCleanupFailure()
			m.log.Warn().Err(err).Str("path", path).Msg("stale workspace removal failed")
			continue
		}
		m.log.Warn().Str("workspace", e.Name()).Msg("removed leaked workspace")
		removed++
	}
	metrics.AddWorkspacesSwept(removed)
	return removed, nil
}
