package adapter

import (
	"context"

	"neunovapdf-backend/internal/domain/model"
)

// WorkspaceManager allocates and destroys per-job scratch directories.
// Release is best-effort: failures are reported through logs and metrics,
// never returned.
type WorkspaceManager interface {
	Allocate(ctx context.Context) (*model.Workspace, error)
	Release(ctx context.Context, ws *model.Workspace)
}
