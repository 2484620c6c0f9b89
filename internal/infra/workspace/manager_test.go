//go:build !integration

package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	l := zerolog.Nop()
	return NewManager(filepath.Join(t.TempDir(), "scratch"), &l)
}

func TestAllocate_CreatesUniqueDirectories(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	const n = 50
	paths := make(chan string, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := m.Allocate(ctx)
			if err != nil {
				errs <- err
				return
			}
			paths <- ws.Path
		}()
	}
	wg.Wait()
	close(paths)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := map[string]bool{}
	for p := range paths {
		require.False(t, seen[p], "workspace path reused: %s", p)
		seen[p] = true
	}
	require.Len(t, seen, n)
	for p := range seen {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.True(t, info.IsDir())
		require.Equal(t, m.Root(), filepath.Dir(p))
	}
}

func TestRelease_RemovesTree(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	ws, err := m.Allocate(ctx)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Path, "nested", "deep"), 0o755))
	require.NoError(t, os.WriteFile(ws.File("nested/deep/out.pdf"), []byte("x"), 0o644))

	m.Release(ctx, ws)
	_, err = os.Stat(ws.Path)
	require.ErrorIs(t, err, os.ErrNotExist)

	// a second release of the same workspace is harmless
	m.Release(ctx, ws)
	m.Release(ctx, nil)
}

func TestRelease_RefusesPathsOutsideRoot(t *testing.T) {
	m := newTestManager(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "keep.txt"), []byte("x"), 0o644))

	m.Release(context.Background(), &model.Workspace{ID: "bogus", Path: outside})

	_, err := os.Stat(filepath.Join(outside, "keep.txt"))
	require.NoError(t, err, "release must never delete outside the scratch root")
}

func TestAllocate_FilesystemError(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	l := zerolog.Nop()
	m := NewManager(filepath.Join(blocker, "scratch"), &l)
	_, err := m.Allocate(context.Background())
	require.ErrorIs(t, err, domain.ErrFilesystem)
}

func TestSweep_RemovesOnlyStaleWorkspaces(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	past := time.Now().Add(-3 * time.Hour)
	m.now = func() time.Time { return past }
	stale, err := m.Allocate(ctx)
	require.NoError(t, err)

	m.now = time.Now
	fresh, err := m.Allocate(ctx)
	require.NoError(t, err)

	foreign := filepath.Join(m.Root(), "not-a-job")
	require.NoError(t, os.Mkdir(foreign, 0o755))

	n, err := m.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = os.Stat(stale.Path)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(fresh.Path)
	require.NoError(t, err)
	_, err = os.Stat(foreign)
	require.NoError(t, err)
}

func TestSweep_MissingRootIsNotAnError(t *testing.T) {
	m := newTestManager(t)
	n, err := m.Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Zero(t, n)
}
