package mirror

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeConverter echoes the input document to stdout. Documents containing FAIL
// make it exit 3; documents containing SLEEP make it stall.
const fakeConverter = `#!/bin/sh
for last; do :; done
if [ "$1" != "--from" ] || [ "$3" != "--to" ]; then
	echo "unexpected arguments: $*" >&2
	exit 64
fi
content=$(cat "$last")
case "$content" in
	*FAIL*) echo "cannot convert $last" >&2; exit 3 ;;
	*SLEEP*) sleep 5 ;;
esac
printf '%s' "$content"
`

func writeConverter(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-pandoc")
	require.NoError(t, os.WriteFile(path, []byte(fakeConverter), 0755))
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type recordingReporter struct {
	mu         sync.Mutex
	activities []Activity
	crawls     []CrawlStats
}

func (r *recordingReporter) Report(a Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, a)
}

func (r *recordingReporter) CrawlComplete(s CrawlStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crawls = append(r.crawls, s)
}

func (r *recordingReporter) kinds() []ActivityKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ActivityKind, 0, len(r.activities))
	for _, a := range r.activities {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

type fixture struct {
	src       string
	dest      string
	mapper    Mapper
	converter *Converter
	reporter  *recordingReporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmp := t.TempDir()
	f := &fixture{
		src:      filepath.Join(tmp, "src"),
		dest:     filepath.Join(tmp, "dest"),
		reporter: &recordingReporter{},
	}
	require.NoError(t, os.MkdirAll(f.src, 0755))
	f.mapper = Mapper{SourceRoot: f.src, DestRoot: f.dest, Suffix: ".src"}

	conv, err := NewConverter(ConverterConfig{
		Command:  writeConverter(t),
		Logger:   zerolog.Nop(),
		Reporter: f.reporter,
	})
	require.NoError(t, err)
	f.converter = conv
	return f
}
