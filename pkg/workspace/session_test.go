package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/swtedit/pkg/core"
	"github.com/rexliu/swtedit/pkg/storage/sqlite"
	"github.com/rexliu/swtedit/pkg/swt"
	"github.com/rexliu/swtedit/pkg/vcs/git"
)

const sample = `<Mission version="1.0">
  <Trigger name="OnStart">
    <Action>
      <n>spawn</n>
      <Param>dock</Param>
    </Action>
  </Trigger>
</Mission>
`

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	opts.IDs = core.NewCounter("evt_")
	opts.Logger = zerolog.Nop()
	return New(opts)
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "mission.swt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestOpenApplySave(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, Options{})
	path := writeSample(t, t.TempDir())

	res, err := s.Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, sample, res.Content)

	st, ok := s.Snapshot()
	require.True(t, ok)
	assert.False(t, st.Dirty)
	assert.Equal(t, path, st.Path)
	assert.Equal(t, 2, core.Count(st.Document))

	_, err = s.Apply(ctx, []core.Op{core.AddEventOp{ParentID: "evt_1", Kind: core.KindAction}})
	require.NoError(t, err)
	st, _ = s.Snapshot()
	assert.True(t, st.Dirty)

	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, path, saved.Path)
	st, _ = s.Snapshot()
	assert.False(t, st.Dirty)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `<Mission version="1.0">
  <Trigger name="OnStart">
    <Action>
      <n>spawn</n>
      <Param>dock</Param>
    </Action>
    <Action/>
  </Trigger>
</Mission>
`, string(data))
	assert.Equal(t, len(data), saved.Bytes)
}

func TestApplyRejected(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, Options{})
	require.NoError(t, s.Load("", sample))
	before, _ := s.Snapshot()

	_, err := s.Apply(ctx, []core.Op{core.DeleteEventOp{EventID: "nope"}})
	assert.ErrorIs(t, err, core.ErrInvalidNode)

	after, _ := s.Snapshot()
	assert.Equal(t, before, after)
}

func TestNoDocument(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, Options{})

	_, ok := s.Snapshot()
	assert.False(t, ok)
	_, err := s.Apply(ctx, nil)
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = s.Save(ctx)
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = s.SaveAs(ctx, filepath.Join(t.TempDir(), "x.swt"))
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = s.Encode()
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = s.History(ctx, 10)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestLoadWithoutPath(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, Options{})
	require.NoError(t, s.Load("", sample))

	_, err := s.Save(ctx)
	assert.ErrorIs(t, err, ErrNoPath)

	target := filepath.Join(t.TempDir(), "sub", "new.swt")
	res, err := s.SaveAs(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, target, res.Path)
	st, _ := s.Snapshot()
	assert.Equal(t, target, st.Path)

	_, err = s.Save(ctx)
	require.NoError(t, err)
}

func TestOpenErrorsKeepDocument(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, Options{})
	dir := t.TempDir()
	path := writeSample(t, dir)
	_, err := s.Open(ctx, path)
	require.NoError(t, err)

	_, err = s.Open(ctx, filepath.Join(dir, "missing.swt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	broken := filepath.Join(dir, "broken.swt")
	require.NoError(t, os.WriteFile(broken, []byte("<Mission><Event></Mission>"), 0o644))
	_, err = s.Open(ctx, broken)
	var merr *swt.MalformedXMLError
	assert.ErrorAs(t, err, &merr)

	st, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, path, st.Path)
}

func TestLoadWarnings(t *testing.T) {
	s := newSession(t, Options{})
	require.NoError(t, s.Load("", `<Mission><Event param1="x"/></Mission>`))
	st, _ := s.Snapshot()
	require.Len(t, st.Warnings, 1)
	assert.Contains(t, st.Warnings[0], "param1")
}

func TestSaveRecordsHistoryAndCommits(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "profile", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Init(ctx, sqlite.Options{}))

	repo := &git.FilesystemRepo{Path: filepath.Join(dir, "missions"), AuthorName: "t", AuthorEmail: "t@example.com"}
	require.NoError(t, repo.Init(ctx))

	s := newSession(t, Options{Store: store, Repo: repo})
	path := writeSample(t, repo.Path)
	_, err = s.Open(ctx, path)
	require.NoError(t, err)

	first, err := s.Save(ctx)
	require.NoError(t, err)
	require.NotNil(t, first.Commit)
	assert.True(t, first.Commit.Committed)
	assert.NotEmpty(t, first.Revision)

	_, err = s.Apply(ctx, []core.Op{core.DeleteEventOp{EventID: "evt_2"}})
	require.NoError(t, err)
	second, err := s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, second.Commit.Committed)
	assert.NotEqual(t, first.Commit.Hash, second.Commit.Hash)

	revs, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, 1, revs[0].EventCount)
	assert.Equal(t, 2, revs[1].EventCount)

	edits, err := store.ListEdits(ctx, path)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "delete", edits[0].Type)

	restored, err := s.Restore(ctx, first.Revision)
	require.NoError(t, err)
	assert.Equal(t, 2, core.Count(restored))
	st, _ := s.Snapshot()
	assert.True(t, st.Dirty)
}

func TestRestoreKeepsCurrentPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Init(ctx, sqlite.Options{}))

	s := newSession(t, Options{Store: store})
	_, err = s.Open(ctx, writeSample(t, dir))
	require.NoError(t, err)
	first, err := s.Save(ctx)
	require.NoError(t, err)

	_, err = s.Apply(ctx, []core.Op{core.DeleteEventOp{EventID: "evt_2"}})
	require.NoError(t, err)
	copyPath := filepath.Join(dir, "copy.swt")
	_, err = s.SaveAs(ctx, copyPath)
	require.NoError(t, err)

	restored, err := s.Restore(ctx, first.Revision)
	require.NoError(t, err)
	assert.Equal(t, 2, core.Count(restored))

	st, _ := s.Snapshot()
	assert.Equal(t, copyPath, st.Path)
	assert.True(t, st.Dirty)
	assert.Equal(t, restored, st.Document)
}

func TestSaveRacingOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.swt")
	b := filepath.Join(dir, "b.swt")
	require.NoError(t, os.WriteFile(a, []byte(`<Mission><Event name="A"/></Mission>`), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`<Mission><Event name="B"/></Mission>`), 0o644))

	s := newSession(t, Options{})
	for i := 0; i < 200; i++ {
		_, err := s.Open(ctx, a)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Save(ctx)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Open(ctx, b)
		}()
		wg.Wait()

		st, ok := s.Snapshot()
		require.True(t, ok)
		require.Len(t, st.Document.Events, 1)
		name := st.Document.Events[0].Name
		if st.Path == a {
			require.Equal(t, "A", name, "iteration %d", i)
		} else {
			require.Equal(t, b, st.Path, "iteration %d", i)
			require.Equal(t, "B", name, "iteration %d", i)
		}
	}

	data, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `name="B"`)
}
