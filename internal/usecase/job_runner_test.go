//go:build !integration

package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/infra/workspace"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type harness struct {
	runner  *JobRunner
	quota   *fakeQuota
	ws      *recordingWorkspaces
	tools   *fakeTools
	resizer *fakeResizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := zerolog.Nop()
	h := &harness{
		quota:   newFakeQuota(),
		ws:      &recordingWorkspaces{WorkspaceManager: workspace.NewManager(t.TempDir(), &l)},
		tools:   &fakeTools{},
		resizer: &fakeResizer{},
	}
	proc := NewProcessor(h.tools, fakePDF{}, h.resizer, fakeArchiver{},
		ToolPaths{Soffice: "soffice", Ghostscript: "gs", Pdftoppm: "pdftoppm", Qpdf: "qpdf"},
		ImageDefaults{Width: 800, Height: 600, MaxDimension: 8000}, &l)
	limits := map[model.Family]int{model.FamilyDocument: 10, model.FamilyPDF: 20, model.FamilyImage: 50}
	h.runner = NewJobRunner(h.quota, h.ws, proc, limits, &l)
	return h
}

// requireNoWorkspaces asserts every allocated directory is gone and was
// released exactly once.
func (h *harness) requireNoWorkspaces(t *testing.T) {
	t.Helper()
	h.ws.mu.Lock()
	defer h.ws.mu.Unlock()
	require.Equal(t, len(h.ws.paths), h.ws.released)
	for _, p := range h.ws.paths {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "workspace %s still exists", p)
	}
}

type delivered struct {
	art     *model.Artifact
	content string
	calls   int
}

func (d *delivered) fn() DeliverFunc {
	return func(_ context.Context, a *model.Artifact) error {
		d.calls++
		d.art = a
		b, err := os.ReadFile(a.Path)
		d.content = string(b)
		return err
	}
}

func TestRun_MergeConcatenatesInOrder(t *testing.T) {
	h := newHarness(t)
	var d delivered
	err := h.runner.Run(context.Background(), JobRequest{
		Op:      model.OpMerge,
		Client:  "1.2.3.4",
		Uploads: []model.Upload{upload("b.pdf", "b1\n"), upload("a.pdf", "a1\na2\n")},
	}, d.fn())
	require.NoError(t, err)
	require.Equal(t, 1, d.calls)
	require.Equal(t, "b1\na1\na2\n", d.content)
	require.Equal(t, "merged.pdf", d.art.DownloadName)
	require.Equal(t, "application/pdf", d.art.ContentType)
	require.Equal(t, int64(len(d.content)), d.art.Size)
	require.Equal(t, []string{"pdf:1.2.3.4"}, h.quota.keys)
	h.requireNoWorkspaces(t)
}

func TestRun_MergeNeedsTwoFiles(t *testing.T) {
	for _, n := range []int{0, 1} {
		h := newHarness(t)
		ups := make([]model.Upload, n)
		for i := range ups {
			ups[i] = upload("x.pdf", "p\n")
		}
		var d delivered
		err := h.runner.Run(context.Background(), JobRequest{Op: model.OpMerge, Client: "c", Uploads: ups}, d.fn())

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		require.Equal(t, "upload at least 2 pdf files", ve.Msg)
		require.Empty(t, h.quota.keys, "validation precedes admission")
		require.Empty(t, h.ws.paths, "no workspace before validation passes")
		require.Zero(t, d.calls)
	}
}

func TestRun_TooManyFiles(t *testing.T) {
	h := newHarness(t)
	err := h.runner.Run(context.Background(), JobRequest{
		Op: model.OpCompress, Client: "c",
		Uploads: []model.Upload{upload("a.pdf", "x"), upload("b.pdf", "y")},
	}, (&delivered{}).fn())
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestRun_QuotaRejectsWithoutWorkspace(t *testing.T) {
	h := newHarness(t)
	h.runner.limits[model.FamilyPDF] = 2
	req := JobRequest{Op: model.OpRotate, Client: "1.2.3.4", Uploads: []model.Upload{upload("a.pdf", "p\n")}}

	for i := 0; i < 2; i++ {
		require.NoError(t, h.runner.Run(context.Background(), req, (&delivered{}).fn()))
	}
	err := h.runner.Run(context.Background(), req, (&delivered{}).fn())
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	require.Len(t, h.ws.paths, 2)

	// a different family has its own budget
	img := JobRequest{Op: model.OpResize, Client: "1.2.3.4", Uploads: []model.Upload{upload("a.jpg", "img")}}
	require.NoError(t, h.runner.Run(context.Background(), img, (&delivered{}).fn()))
	require.Contains(t, h.quota.keys, "image:1.2.3.4")
	h.requireNoWorkspaces(t)
}

func TestRun_QuotaBackendError(t *testing.T) {
	h := newHarness(t)
	h.quota.err = errors.New("redis down")
	err := h.runner.Run(context.Background(), JobRequest{Op: model.OpCompress, Client: "c", Uploads: []model.Upload{upload("a.pdf", "x")}}, (&delivered{}).fn())
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrQuotaExceeded)
	require.Empty(t, h.ws.paths)
}

func TestRun_ToolFailureReleasesWorkspace(t *testing.T) {
	h := newHarness(t)
	h.tools.run = func(model.ToolCommand) error { return errBoom }
	var d delivered
	err := h.runner.Run(context.Background(), JobRequest{
		Op: model.OpUnlock, Client: "c",
		Uploads: []model.Upload{upload("a.pdf", "x")},
		Params:  map[string]string{"password": "nope"},
	}, d.fn())
	require.ErrorIs(t, err, domain.ErrToolFailure)
	require.Equal(t, "qpdf failed: invalid password", err.Error())
	require.Zero(t, d.calls)
	require.Len(t, h.ws.paths, 1)
	h.requireNoWorkspaces(t)
}

func TestRun_MissingOutputIsIntegrityError(t *testing.T) {
	h := newHarness(t)
	// gs "succeeds" without writing anything
	var d delivered
	err := h.runner.Run(context.Background(), JobRequest{Op: model.OpCompress, Client: "c", Uploads: []model.Upload{upload("a.pdf", "x")}}, d.fn())
	require.ErrorIs(t, err, domain.ErrIntegrity)
	require.Equal(t, "output not found", err.Error())
	require.Zero(t, d.calls)
	h.requireNoWorkspaces(t)
}

func TestRun_CancellationSkipsDelivery(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.tools.run = func(cmd model.ToolCommand) error {
		// output is produced, then the client disconnects
		require.NoError(t, os.WriteFile(cmd.Args[len(cmd.Args)-2][len("-sOutputFile="):], []byte("x"), 0o600))
		cancel()
		return nil
	}
	var d delivered
	err := h.runner.Run(ctx, JobRequest{Op: model.OpCompress, Client: "c", Uploads: []model.Upload{upload("a.pdf", "x")}}, d.fn())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "canceled", Outcome(err))
	require.Zero(t, d.calls)
	h.requireNoWorkspaces(t)
}

func TestRun_AllocationFailure(t *testing.T) {
	h := newHarness(t)
	h.ws.err = errors.Join(domain.ErrFilesystem, errors.New("disk full"))
	err := h.runner.Run(context.Background(), JobRequest{Op: model.OpCompress, Client: "c", Uploads: []model.Upload{upload("a.pdf", "x")}}, (&delivered{}).fn())
	require.ErrorIs(t, err, domain.ErrFilesystem)
	require.Zero(t, h.ws.released)
}

func TestRun_DeliveryErrorStillReleases(t *testing.T) {
	h := newHarness(t)
	broken := errors.New("broken pipe")
	err := h.runner.Run(context.Background(), JobRequest{Op: model.OpRotate, Client: "c", Uploads: []model.Upload{upload("a.pdf", "p\n")}},
		func(context.Context, *model.Artifact) error { return broken })
	require.ErrorIs(t, err, broken)
	h.requireNoWorkspaces(t)
}

func TestRun_StagingNames(t *testing.T) {
	h := newHarness(t)
	var single, multi []string
	h.runner.pipelines = pipelinesFunc(func(ctx context.Context, job *model.Job) (*model.Artifact, error) {
		if len(job.Inputs) == 1 {
			single = append(single, job.Inputs...)
		} else {
			multi = append(multi, job.Inputs...)
		}
		for _, in := range job.Inputs {
			rel, err := filepath.Rel(job.Workspace.Path, in)
			require.NoError(t, err)
			require.Equal(t, "in", filepath.Dir(rel))
		}
		return &model.Artifact{Path: job.Inputs[0]}, nil
	})

	require.NoError(t, h.runner.Run(context.Background(), JobRequest{Op: model.OpCompress, Client: "c",
		Uploads: []model.Upload{upload("../../etc/evil.pdf", "x")}}, (&delivered{}).fn()))
	require.Equal(t, "evil.pdf", filepath.Base(single[0]))

	require.NoError(t, h.runner.Run(context.Background(), JobRequest{Op: model.OpMerge, Client: "c",
		Uploads: []model.Upload{upload("same.PDF", "x"), upload("same.PDF", "y")}}, (&delivered{}).fn()))
	require.Equal(t, "input-1.pdf", filepath.Base(multi[0]))
	require.Equal(t, "input-2.pdf", filepath.Base(multi[1]))
	h.requireNoWorkspaces(t)
}

func TestRun_ArtifactOutsideWorkspaceIsRejected(t *testing.T) {
	h := newHarness(t)
	outside := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))
	h.runner.pipelines = pipelinesFunc(func(context.Context, *model.Job) (*model.Artifact, error) {
		return &model.Artifact{Path: outside}, nil
	})
	err := h.runner.Run(context.Background(), JobRequest{Op: model.OpCompress, Client: "c", Uploads: []model.Upload{upload("a.pdf", "x")}}, (&delivered{}).fn())
	require.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestOutcome(t *testing.T) {
	tests := map[string]error{
		"ok":         nil,
		"validation": domain.NewValidationError("x"),
		"quota":      domain.ErrQuotaExceeded,
		"busy":       domain.ErrBusy,
		"tool":       &domain.ToolFailure{Tool: "gs", TimedOut: true, Err: context.DeadlineExceeded},
		"integrity":  &domain.IntegrityError{},
		"filesystem": errors.Join(domain.ErrFilesystem),
		"canceled":   context.Canceled,
		"error":      errors.New("other"),
	}
	for want, err := range tests {
		require.Equal(t, want, Outcome(err), "error %v", err)
	}
}

// pipelinesFunc adapts a function into Pipelines with no parameter checks.
type pipelinesFunc func(ctx context.Context, job *model.Job) (*model.Artifact, error)

func (f pipelinesFunc) Check(model.Operation, map[string]string) error { return nil }

func (f pipelinesFunc) Transform(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	return f(ctx, job)
}

func TestRun_UnknownOperation(t *testing.T) {
	h := newHarness(t)
	var d delivered
	err := h.runner.Run(context.Background(), JobRequest{
		Op:      model.OpName("shred"),
		Client:  "1.2.3.4",
		Uploads: []model.Upload{upload("a.pdf", "x")},
	}, d.fn())
	require.ErrorContains(t, err, `unknown operation "shred"`)
	require.Zero(t, d.calls)
	require.Empty(t, h.quota.keys)
	require.Empty(t, h.ws.paths)
}
