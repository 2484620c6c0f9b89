package adapter

import (
	"context"

	"neunovapdf-backend/internal/domain/model"
)

// ToolRunner runs an external executable to completion. A non-zero exit is
// returned as *domain.ToolFailure together with the observed result.
type ToolRunner interface {
	Run(ctx context.Context, cmd model.ToolCommand) (*model.ExitResult, error)
}
