package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/domain/ports/adapter"
	"neunovapdf-backend/internal/infra/logging"
	"neunovapdf-backend/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Pipelines performs the operation-specific part of a job.
type Pipelines interface {
	// Check rejects bad parameters before any quota or disk is spent.
	Check(op model.Operation, params map[string]string) error
	// Transform produces the job's output inside its workspace. The returned
	// artifact needs only Path; DownloadName is optional.
	Transform(ctx context.Context, job *model.Job) (*model.Artifact, error)
}

// DeliverFunc streams a located artifact to the caller. It runs before the
// workspace is released.
type DeliverFunc func(ctx context.Context, a *model.Artifact) error

// JobRequest is everything the gateway extracted from one HTTP request.
type JobRequest struct {
	Op      model.OpName
	Client  string
	Uploads []model.Upload
	Params  map[string]string
}

const inputDir = "in"

// JobRunner drives one request through
// validate, admit, stage, transform, locate, deliver and release.
type JobRunner struct {
	quota      adapter.QuotaTracker
	workspaces adapter.WorkspaceManager
	pipelines  Pipelines
	limits     map[model.Family]int
	log        *zerolog.Logger
	now        func() time.Time
}

func NewJobRunner(quota adapter.QuotaTracker, workspaces adapter.WorkspaceManager, pipelines Pipelines, limits map[model.Family]int, logger *zerolog.Logger) *JobRunner {
	l := logger.With().Str("component", "JobRunner").Logger()
	return &JobRunner{
		quota:      quota,
		workspaces: workspaces,
		pipelines:  pipelines,
		limits:     limits,
		log:        &l,
		now:        time.Now,
	}
}

// Run executes the request and hands the artifact to deliver. Every
// allocated workspace is released exactly once before Run returns,
// whatever the outcome.
func (r *JobRunner) Run(ctx context.Context, req JobRequest, deliver DeliverFunc) (err error) {
	op, ok := model.Lookup(req.Op)
	if !ok {
		return fmt.Errorf("unknown operation %q", req.Op)
	}
	ctx = logging.WithOp(ctx, string(op.Name))
	start := r.now()
	defer func() {
		result := Outcome(err)
		metrics.ObserveJob(string(op.Name), result, r.now().Sub(start))
		l := logging.With(ctx, r.log)
		switch result {
		case "ok":
			l.Info().Dur("duration", r.now().Sub(start)).Msg("job finished")
		case "validation", "quota", "busy", "canceled":
			l.Info().Str("result", result).Err(err).Msg("job not completed")
		default:
			l.Error().Str("result", result).Err(err).Msg("job failed")
		}
	}()

	if err := r.validate(op, req); err != nil {
		return err
	}
	if err := r.admit(ctx, op, req.Client); err != nil {
		return err
	}

	ws, err := r.workspaces.Allocate(ctx)
	if err != nil {
		return err
	}
	ctx = logging.WithJobID(ctx, ws.ID)
	// release must run even when the caller already went away
	defer r.workspaces.Release(context.WithoutCancel(ctx), ws)

	job := &model.Job{
		ID:        ws.ID,
		Op:        op,
		Client:    req.Client,
		Workspace: ws,
		Params:    req.Params,
		StartedAt: start,
	}
	if job.Inputs, err = r.stage(ctx, ws, req.Uploads); err != nil {
		return err
	}

	art, err := r.transform(ctx, job)
	if err != nil {
		return err
	}
	if err := r.locate(job, art); err != nil {
		return err
	}
	// client is gone: skip streaming, cleanup still fires
	if err := ctx.Err(); err != nil {
		return err
	}
	return deliver(ctx, art)
}

func (r *JobRunner) validate(op model.Operation, req JobRequest) error {
	if len(req.Uploads) < op.MinInputs {
		return domain.NewValidationError("%s", op.MissingInput)
	}
	if op.MaxInputs > 0 && len(req.Uploads) > op.MaxInputs {
		return domain.NewValidationError("at most %d file(s) allowed", op.MaxInputs)
	}
	return r.pipelines.Check(op, req.Params)
}

func (r *JobRunner) admit(ctx context.Context, op model.Operation, client string) error {
	key := string(op.Family) + ":" + client
	ok, err := r.quota.Admit(ctx, key, r.limits[op.Family])
	if err != nil {
		metrics.IncQuotaDecision(string(op.Family), "error")
		return fmt.Errorf("quota: %w", err)
	}
	if !ok {
		metrics.IncQuotaDecision(string(op.Family), "rejected")
		return domain.ErrQuotaExceeded
	}
	metrics.IncQuotaDecision(string(op.Family), "admitted")
	return nil
}

// stage copies uploads into <workspace>/in. A lone upload keeps its
// sanitized name; several uploads are renamed input-<n><ext> so that
// duplicate client names cannot collide.
func (r *JobRunner) stage(ctx context.Context, ws *model.Workspace, uploads []model.Upload) ([]string, error) {
	defer logging.TraceDuration(logging.With(ctx, r.log), "JobRunner.stage")()

	dir := ws.File(inputDir)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	paths := make([]string, 0, len(uploads))
	for i, up := range uploads {
		name := model.SanitizeFilename(up.Name)
		if len(uploads) > 1 {
			name = fmt.Sprintf("input-%d%s", i+1, strings.ToLower(filepath.Ext(name)))
		}
		dst := filepath.Join(dir, name)
		if err := copyUpload(up, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func copyUpload(up model.Upload, dst string) error {
	src, err := up.Open()
	if err != nil {
		return fmt.Errorf("%w: open upload: %v", domain.ErrFilesystem, err)
	}
	defer src.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: stage upload: %v", domain.ErrFilesystem, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("%w: stage upload: %v", domain.ErrFilesystem, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: stage upload: %v", domain.ErrFilesystem, err)
	}
	return nil
}

func (r *JobRunner) transform(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	defer logging.TraceDuration(logging.With(ctx, r.log), "JobRunner.transform")()
	art, err := r.pipelines.Transform(ctx, job)
	if err != nil {
		// a process killed because the caller left is reported as the cancellation
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if art == nil {
		return nil, &domain.IntegrityError{}
	}
	return art, nil
}

// locate verifies the output exists as a regular file inside the workspace
// and fills in the delivery metadata.
func (r *JobRunner) locate(job *model.Job, art *model.Artifact) error {
	rel, err := filepath.Rel(job.Workspace.Path, art.Path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &domain.IntegrityError{Path: art.Path}
	}
	info, err := os.Stat(art.Path)
	if err != nil || !info.Mode().IsRegular() {
		return &domain.IntegrityError{Path: art.Path}
	}
	art.Size = info.Size()
	if art.DownloadName == "" {
		art.DownloadName = job.Op.DownloadName
	}
	if art.DownloadName == "" {
		art.DownloadName = filepath.Base(art.Path)
	}
	if art.ContentType == "" {
		art.ContentType = contentType(art.DownloadName)
	}
	return nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Outcome classifies a job error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrToolFailure):
		return "canceled"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrToolFailure):
		return "tool"
	case errors.Is(err, domain.ErrIntegrity):
		return "integrity"
	case errors.Is(err, domain.ErrFilesystem):
		return "filesystem"
	default:
		return "error"
	}
}
