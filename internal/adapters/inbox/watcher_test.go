package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

type fakeImporter struct {
	mu    sync.Mutex
	docs  []string
	extra error
}

func (f *fakeImporter) Import(_ context.Context, data []byte) (domain.ImportReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs = append(f.docs, string(data))

	elems, err := domain.DecodeDocument(data)
	if err != nil {
		return domain.ImportReport{}, err
	}

	return domain.ImportReport{Added: len(elems)}, f.extra
}

func (f *fakeImporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.docs)
}

func startWatcher(t *testing.T, dir string, importer Importer) (cancel func()) {
	t.Helper()

	w, err := New(Config{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		Importer: importer,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- w.Run(ctx) }()

	return func() {
		stop()
		require.NoError(t, <-done)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()})
	require.ErrorContains(t, err, "importer is required")

	_, err = New(Config{Importer: &fakeImporter{}})
	require.ErrorContains(t, err, "dir is required")
}

func TestNew_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "inbox")

	w, err := New(Config{Dir: dir, Importer: &fakeImporter{}})
	require.NoError(t, err)
	require.NoError(t, w.fsw.Close())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, defaultDebounce, w.debounce)
}

func TestWatcher_ImportsWaitingFiles(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	waiting := filepath.Join(dir, "batch.json")
	writeFile(t, waiting, `[{"text":"A","category":"B"}]`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `[{"text":"ignored","category":"B"}]`)

	importer := &fakeImporter{}
	stop := startWatcher(t, dir, importer)

	require.Eventually(t, func() bool { return fileExists(waiting + SuffixImported) }, 2*time.Second, 10*time.Millisecond)

	stop()

	assert.False(t, fileExists(waiting))
	assert.True(t, fileExists(filepath.Join(dir, "notes.txt")))
	assert.Equal(t, 1, importer.count())
}

func TestWatcher_ImportsNewFiles(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	importer := &fakeImporter{}
	stop := startWatcher(t, dir, importer)

	good := filepath.Join(dir, "good.JSON")
	bad := filepath.Join(dir, "bad.json")

	writeFile(t, good, `[{"text":"A","category":"B"},{"text":"C","category":"D"}]`)
	writeFile(t, bad, `{"text":"not an array"}`)

	require.Eventually(t, func() bool {
		return fileExists(good+SuffixImported) && fileExists(bad+SuffixRejected)
	}, 2*time.Second, 10*time.Millisecond)

	stop()

	assert.False(t, fileExists(good))
	assert.False(t, fileExists(bad))
	assert.Equal(t, 2, importer.count())
}

func TestWatcher_PersistenceFailureStillMarksImported(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	importer := &fakeImporter{extra: domain.NewPersistenceError("quotes", errors.New("disk full"))}
	stop := startWatcher(t, dir, importer)

	path := filepath.Join(dir, "batch.json")
	writeFile(t, path, `[{"text":"A","category":"B"}]`)

	require.Eventually(t, func() bool { return fileExists(path + SuffixImported) }, 2*time.Second, 10*time.Millisecond)

	stop()
}

func TestWatcher_OtherFailureLeavesFile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "batch.json")
	writeFile(t, path, `[]`)

	importer := &fakeImporter{extra: errors.New("boom")}
	stop := startWatcher(t, dir, importer)

	require.Eventually(t, func() bool { return importer.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	stop()

	assert.True(t, fileExists(path))
	assert.False(t, fileExists(path+SuffixImported))
	assert.False(t, fileExists(path+SuffixRejected))
}
