package content

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/contentsync-go/internal/domain"
)

type testEnv struct {
	contentFs afero.Fs
	bundleFs  afero.Fs
	storage   *Storage
}

func newTestEnv() *testEnv {
	contentFs := afero.NewMemMapFs()
	bundleFs := afero.NewMemMapFs()
	return &testEnv{
		contentFs: contentFs,
		bundleFs:  bundleFs,
		storage:   NewStorage(contentFs, bundleFs),
	}
}

func (e *testEnv) writeContent(t *testing.T, p, data string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(e.contentFs, "/"+p, []byte(data), 0644))
}

func (e *testEnv) writeBundle(t *testing.T, p, data string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(e.bundleFs, "/"+p, []byte(data), 0644))
}

func (e *testEnv) readContent(t *testing.T, p string) string {
	t.Helper()
	data, err := afero.ReadFile(e.contentFs, "/"+p)
	require.NoError(t, err)
	return string(data)
}

func (e *testEnv) contentExists(p string) bool {
	ok, _ := afero.Exists(e.contentFs, "/"+p)
	return ok
}

// buildZip creates a deflate zip archive. Names ending in "/" become directory entries.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			_, err := w.Create(name)
			require.NoError(t, err)
			continue
		}
		f, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		require.NoError(t, err)
		_, err = f.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// manifestXML renders a manifest document for tests
func manifestXML(enabled bool, packages ...domain.PackageEntry) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<Manifest DLCEnabled=%q>\n", fmt.Sprint(enabled))
	for _, p := range packages {
		fmt.Fprintf(&b, "  <Package ID=%q Checksum=%q URL=%q Size=\"%d\">\n", p.ID, p.Checksum, p.URL, p.Size)
		for _, f := range p.Files {
			if f.Location != "" {
				fmt.Fprintf(&b, "    <File Name=%q Location=%q Checksum=%q/>\n", f.Name, f.Location, f.Checksum)
			} else {
				fmt.Fprintf(&b, "    <File Name=%q Checksum=%q/>\n", f.Name, f.Checksum)
			}
		}
		b.WriteString("  </Package>\n")
	}
	b.WriteString("</Manifest>\n")
	return []byte(b.String())
}

func mustParse(t *testing.T, data []byte) *domain.Manifest {
	t.Helper()
	m, err := ParseManifest(data)
	require.NoError(t, err)
	return m
}

// fakeDownloader serves scripted event sequences per URL
type fakeDownloader struct {
	mu        sync.Mutex
	manifest  []domain.DownloadEvent
	packages  map[string][]domain.DownloadEvent
	startErr  error
	requested []string
	inFlight  int64
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{packages: make(map[string][]domain.DownloadEvent)}
}

// serve scripts a package delivered in n flushed chunks followed by a final event
func (d *fakeDownloader) serve(url string, data []byte, chunks int) {
	d.packages[url] = chunkEvents(data, chunks)
}

func chunkEvents(data []byte, chunks int) []domain.DownloadEvent {
	var events []domain.DownloadEvent
	size := len(data) / (chunks + 1)
	offset := 0
	for i := 0; i < chunks; i++ {
		events = append(events, domain.DownloadEvent{Result: domain.EventFlushed, Data: data[offset : offset+size]})
		offset += size
	}
	return append(events, domain.DownloadEvent{Result: domain.EventSucceeded, Data: data[offset:]})
}

func (d *fakeDownloader) DownloadManifest(ctx context.Context) (<-chan domain.DownloadEvent, error) {
	if d.startErr != nil {
		return nil, d.startErr
	}
	return replay(d.manifest), nil
}

func (d *fakeDownloader) DownloadPackage(ctx context.Context, url string) (<-chan domain.DownloadEvent, error) {
	d.mu.Lock()
	d.requested = append(d.requested, url)
	d.mu.Unlock()

	if d.startErr != nil {
		return nil, d.startErr
	}
	events, ok := d.packages[url]
	if !ok {
		events = []domain.DownloadEvent{{Result: domain.EventFailed, Err: fmt.Errorf("404 %s", url)}}
	}
	return replay(events), nil
}

func (d *fakeDownloader) CurrentDownloadedBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

func (d *fakeDownloader) requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requested...)
}

func replay(events []domain.DownloadEvent) <-chan domain.DownloadEvent {
	ch := make(chan domain.DownloadEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

// memStore is an in-memory KeyValueStore
type memStore struct {
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (s *memStore) Contains(key string) (bool, error) {
	_, ok := s.values[key]
	return ok, nil
}

func (s *memStore) GetBool(key string, def bool) (bool, error) {
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return v == "true", nil
}

func (s *memStore) SetBool(key string, value bool) error {
	s.values[key] = fmt.Sprint(value)
	return nil
}

func (s *memStore) GetString(key, def string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (s *memStore) SetString(key, value string) error {
	s.values[key] = value
	return nil
}
