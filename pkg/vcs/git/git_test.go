package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *FilesystemRepo {
	t.Helper()
	r := &FilesystemRepo{
		Path:        t.TempDir(),
		AuthorName:  "tester",
		AuthorEmail: "tester@example.com",
	}
	require.NoError(t, r.Init(context.Background()))
	return r
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	file := filepath.Join(r.Path, "missions", "a.swt")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("<Mission/>\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(r.Path, "scratch.txt"), []byte("x"), 0o644))

	st, err := r.Commit(ctx, "save a.swt", file)
	require.NoError(t, err)
	assert.True(t, st.Committed)
	assert.Len(t, st.Hash, 40)
	assert.True(t, st.Pending, "scratch.txt is still untracked")

	head, err := r.repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", head.Name().String())
	assert.Equal(t, st.Hash, head.Hash().String())

	st, err = r.Commit(ctx, "nothing changed", file)
	require.NoError(t, err)
	assert.False(t, st.Committed)
}

func TestCommitOutsideWorktree(t *testing.T) {
	r := newRepo(t)
	outside := filepath.Join(t.TempDir(), "b.swt")
	require.NoError(t, os.WriteFile(outside, []byte("<Mission/>"), 0o644))

	_, err := r.Commit(context.Background(), "save", outside)
	assert.ErrorIs(t, err, ErrOutsideWorktree)
	assert.False(t, r.Contains(outside))
	assert.True(t, r.Contains(filepath.Join(r.Path, "x.swt")))
}

func TestInitReopens(t *testing.T) {
	r := newRepo(t)
	again := &FilesystemRepo{Path: r.Path}
	require.NoError(t, again.Init(context.Background()))
}

func TestPushPull(t *testing.T) {
	ctx := context.Background()
	remote := t.TempDir()
	_, err := gogit.PlainInit(remote, true)
	require.NoError(t, err)

	r := &FilesystemRepo{Path: t.TempDir(), RemoteURL: remote, AuthorName: "t", AuthorEmail: "t@example.com"}
	require.NoError(t, r.Init(ctx))

	file := filepath.Join(r.Path, "a.swt")
	require.NoError(t, os.WriteFile(file, []byte("<Mission/>\n"), 0o644))
	_, err = r.Commit(ctx, "save", file)
	require.NoError(t, err)

	require.NoError(t, r.Push(ctx))
	require.NoError(t, r.Push(ctx), "up to date is not an error")
	require.NoError(t, r.Pull(ctx))
}

func TestNotInitialized(t *testing.T) {
	r := &FilesystemRepo{Path: t.TempDir()}
	_, err := r.Commit(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, r.Push(context.Background()), ErrNotInitialized)
}
