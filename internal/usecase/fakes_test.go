//go:build !integration

package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/domain/ports/adapter"
)

// fakeQuota admits until a per-key counter reaches the ceiling.
type fakeQuota struct {
	mu     sync.Mutex
	counts map[string]int
	keys   []string
	err    error
}

func newFakeQuota() *fakeQuota { return &fakeQuota{counts: map[string]int{}} }

func (q *fakeQuota) Admit(_ context.Context, key string, ceiling int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.keys = append(q.keys, key)
	if q.err != nil {
		return false, q.err
	}
	if q.counts[key] >= ceiling {
		return false, nil
	}
	q.counts[key]++
	return true, nil
}

// fakeTools records invocations and lets a test script their effect.
type fakeTools struct {
	mu    sync.Mutex
	calls []model.ToolCommand
	run   func(cmd model.ToolCommand) error
}

func (f *fakeTools) Run(ctx context.Context, cmd model.ToolCommand) (*model.ExitResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.run != nil {
		if err := f.run(cmd); err != nil {
			return &model.ExitResult{ExitCode: 1}, err
		}
	}
	return &model.ExitResult{}, nil
}

func (f *fakeTools) last() model.ToolCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// fakePDF treats a "pdf" as a text file holding one line per page.
type fakePDF struct{}

var _ adapter.PDFEngine = fakePDF{}

func readPages(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return nil, nil
	}
	return strings.Split(s, "\n"), nil
}

func writePages(path string, pages []string) error {
	return os.WriteFile(path, []byte(strings.Join(pages, "\n")+"\n"), 0o600)
}

func (fakePDF) PageCount(_ context.Context, in string) (int, error) {
	p, err := readPages(in)
	return len(p), err
}

func (fakePDF) Merge(_ context.Context, inputs []string, out string) error {
	var all []string
	for _, in := range inputs {
		p, err := readPages(in)
		if err != nil {
			return err
		}
		all = append(all, p...)
	}
	return writePages(out, all)
}

func (fakePDF) ExtractPage(_ context.Context, in string, page int, out string) error {
	p, err := readPages(in)
	if err != nil {
		return err
	}
	return writePages(out, p[page-1:page])
}

func (fakePDF) Rotate(_ context.Context, in string, angle int, out string) error {
	p, err := readPages(in)
	if err != nil {
		return err
	}
	for i := range p {
		p[i] += "@" + strconv.Itoa(angle)
	}
	return writePages(out, p)
}

func (fakePDF) FromImages(_ context.Context, images []string, out string) error {
	pages := make([]string, len(images))
	for i, img := range images {
		pages[i] = filepath.Base(img)
	}
	return writePages(out, pages)
}

type fakeResizer struct {
	got adapter.ResizeSpec
}

func (f *fakeResizer) Resize(_ context.Context, in, out string, spec adapter.ResizeSpec) error {
	f.got = spec
	return copyFile(in, out)
}

// fakeArchiver writes the base names of the bundled files, in order.
type fakeArchiver struct{}

func (fakeArchiver) Archive(_ context.Context, out string, files []string) error {
	names := make([]string, len(files))
	for i, f := range files {
		if _, err := os.Stat(f); err != nil {
			return err
		}
		names[i] = filepath.Base(f)
	}
	return os.WriteFile(out, []byte(strings.Join(names, ",")), 0o600)
}

// recordingWorkspaces wraps a real manager and remembers every path.
type recordingWorkspaces struct {
	adapter.WorkspaceManager
	mu       sync.Mutex
	paths    []string
	released int
	err      error
}

func (r *recordingWorkspaces) Allocate(ctx context.Context) (*model.Workspace, error) {
	if r.err != nil {
		return nil, r.err
	}
	ws, err := r.WorkspaceManager.Allocate(ctx)
	if err == nil {
		r.mu.Lock()
		r.paths = append(r.paths, ws.Path)
		r.mu.Unlock()
	}
	return ws, err
}

func (r *recordingWorkspaces) Release(ctx context.Context, ws *model.Workspace) {
	r.mu.Lock()
	r.released++
	r.mu.Unlock()
	r.WorkspaceManager.Release(ctx, ws)
}

func upload(name, content string) model.Upload {
	return model.Upload{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

var errBoom = &domain.ToolFailure{Tool: "qpdf", ExitCode: 2, Diagnostic: "invalid password"}
