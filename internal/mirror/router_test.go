package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture, cfg RouterConfig) *Router {
	cfg.Logger = zerolog.Nop()
	cfg.Reporter = f.reporter
	return NewRouter(f.mapper, f.converter, cfg)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "%s should not exist (err=%v)", path, err)
}

func TestRouter_CreatedDirectory(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	dir := filepath.Join(f.src, "ns", "sub")
	require.NoError(t, os.MkdirAll(dir, 0755))

	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Created, Path: dir, IsDir: true}))

	info, err := os.Stat(filepath.Join(f.dest, "ns", "sub"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	entries, err := os.ReadDir(filepath.Join(f.dest, "ns", "sub"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Duplicate notification.
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Created, Path: dir, IsDir: true}))
}

func TestRouter_CreatedThenDeletedFile(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	doc := filepath.Join(f.src, "c.src")
	writeFile(t, doc, "Gamma")
	mirror := filepath.Join(f.dest, "c.src")

	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Created, Path: doc}))
	assert.Equal(t, "Gamma", readFile(t, mirror))

	require.NoError(t, os.Remove(doc))
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Deleted, Path: doc}))
	assertMissing(t, mirror)

	// Repeated delete of an absent mirror is a no-op.
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Deleted, Path: doc}))
	assertMissing(t, mirror)

	assert.Equal(t, []ActivityKind{ActivityConverted, ActivityRemoved}, f.reporter.kinds())
}

func TestRouter_ModifiedFileOverwrites(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	doc := filepath.Join(f.src, "a.src")
	writeFile(t, doc, "first")
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Created, Path: doc}))

	writeFile(t, doc, "second")
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Modified, Path: doc}))

	assert.Equal(t, "second", readFile(t, filepath.Join(f.dest, "a.src")))
}

func TestRouter_ModifiedDirectoryIsNoop(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	dir := filepath.Join(f.src, "ns")
	require.NoError(t, os.MkdirAll(dir, 0755))

	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Modified, Path: dir, IsDir: true}))

	assertMissing(t, filepath.Join(f.dest, "ns"))
	assert.Empty(t, f.reporter.kinds())
}

func TestRouter_DeletedDirectoryRemovesSubtree(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	writeFile(t, filepath.Join(f.dest, "ns", "a.src"), "Alpha")
	writeFile(t, filepath.Join(f.dest, "ns", "deep", "b.src"), "Beta")
	writeFile(t, filepath.Join(f.dest, "keep.src"), "Keep")

	ev := ChangeEvent{Kind: Deleted, Path: filepath.Join(f.src, "ns"), IsDir: true}
	require.NoError(t, r.Route(context.Background(), ev))

	assertMissing(t, filepath.Join(f.dest, "ns"))
	assert.Equal(t, "Keep", readFile(t, filepath.Join(f.dest, "keep.src")))

	require.NoError(t, r.Route(context.Background(), ev), "absent subtree is not an error")
}

func TestRouter_DeletedRootIsRefused(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	writeFile(t, filepath.Join(f.dest, "a.src"), "Alpha")

	err := r.Route(context.Background(), ChangeEvent{Kind: Deleted, Path: f.src, IsDir: true})
	require.Error(t, err)
	assert.Equal(t, "Alpha", readFile(t, filepath.Join(f.dest, "a.src")))
}

func TestRouter_NeverTouchesSourceWhenSourceIsInsideDest(t *testing.T) {
	f := newFixture(t)
	// Mirror into the source's parent: src/pages/... maps onto src/...
	f.mapper = Mapper{SourceRoot: f.src, DestRoot: filepath.Dir(f.src), Suffix: ".src"}
	r := newTestRouter(f, RouterConfig{PruneMoved: true})

	writeFile(t, filepath.Join(f.src, "start.src"), "Start")
	writeFile(t, filepath.Join(f.src, "src", "start.src"), "Nested")
	nested := filepath.Join(f.src, "src")

	events := []ChangeEvent{
		{Kind: Deleted, Path: nested, IsDir: true},
		{Kind: Moved, Path: nested, IsDir: true},
		{Kind: Deleted, Path: filepath.Join(nested, "start.src")},
		{Kind: Modified, Path: filepath.Join(nested, "start.src")},
	}
	for _, ev := range events {
		err := r.Route(context.Background(), ev)
		assert.ErrorIs(t, err, ErrInsideSource, ev.String())
	}

	assert.Equal(t, "Start", readFile(t, filepath.Join(f.src, "start.src")))
	assert.Equal(t, "Nested", readFile(t, filepath.Join(nested, "start.src")))
}

func TestRouter_MovedIsIgnored(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	oldDoc := filepath.Join(f.src, "p.src")
	newDoc := filepath.Join(f.src, "q.src")
	writeFile(t, oldDoc, "Pages")
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Created, Path: oldDoc}))

	require.NoError(t, os.Rename(oldDoc, newDoc))
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Moved, Path: oldDoc}))
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Moved, Path: filepath.Join(f.src, "ns"), IsDir: true}))

	// The stale mirror stays and the new name is not mirrored.
	assert.Equal(t, "Pages", readFile(t, filepath.Join(f.dest, "p.src")))
	assertMissing(t, filepath.Join(f.dest, "q.src"))
	assert.Equal(t, []ActivityKind{ActivityConverted, ActivityMoveIgnored, ActivityMoveIgnored}, f.reporter.kinds())

	// A later bulk pass picks up the new name.
	_, err := NewCrawler(f.mapper, f.converter, CrawlerConfig{Logger: zerolog.Nop()}).Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pages", readFile(t, filepath.Join(f.dest, "q.src")))
}

func TestRouter_PruneMoved(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{PruneMoved: true})
	writeFile(t, filepath.Join(f.dest, "p.src"), "Pages")
	writeFile(t, filepath.Join(f.dest, "ns", "x.src"), "X")

	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Moved, Path: filepath.Join(f.src, "p.src")}))
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Moved, Path: filepath.Join(f.src, "ns"), IsDir: true}))

	assertMissing(t, filepath.Join(f.dest, "p.src"))
	assertMissing(t, filepath.Join(f.dest, "ns"))
}

func TestRouter_IgnoresNonDocuments(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	other := filepath.Join(f.src, "image.png")
	writeFile(t, other, "binary")
	writeFile(t, filepath.Join(f.dest, "image.png"), "stale")

	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Created, Path: other}))
	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Deleted, Path: other}))

	assert.Equal(t, "stale", readFile(t, filepath.Join(f.dest, "image.png")))
	assert.Empty(t, f.reporter.kinds())
}

func TestRouter_ConversionFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})
	doc := filepath.Join(f.src, "bad.src")
	writeFile(t, doc, "FAIL")

	require.NoError(t, r.Route(context.Background(), ChangeEvent{Kind: Created, Path: doc}))
	assertMissing(t, filepath.Join(f.dest, "bad.src"))
	assert.Equal(t, []ActivityKind{ActivityFailed}, f.reporter.kinds())
}

func TestRouter_PathOutsideRoot(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, RouterConfig{})

	err := r.Route(context.Background(), ChangeEvent{Kind: Created, Path: filepath.Join(t.TempDir(), "x.src")})
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
