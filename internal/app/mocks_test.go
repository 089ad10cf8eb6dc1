package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/contentsync-go/internal/content"
	"github.com/yourusername/contentsync-go/internal/domain"
)

// mockSessionRepo implements domain.SessionRepository for testing
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.UpdateSession
	order    []string
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*domain.UpdateSession)}
}

func (m *mockSessionRepo) Create(session *domain.UpdateSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	m.order = append(m.order, session.ID)
	return nil
}

func (m *mockSessionRepo) Update(session *domain.UpdateSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		m.order = append(m.order, session.ID)
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *mockSessionRepo) FindByID(id string) (*domain.UpdateSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *mockSessionRepo) FindRecent(limit int) ([]*domain.UpdateSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.UpdateSession
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.sessions[m.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSessionRepo) GetStats() (*domain.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.SessionStats{Total: int64(len(m.sessions))}
	for _, s := range m.sessions {
		if s.State == domain.StateInstallSucceeded {
			stats.Installed++
		}
	}
	return stats, nil
}

// mockStore is an in-memory domain.KeyValueStore
type mockStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string]string)}
}

func (s *mockStore) Contains(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok, nil
}

func (s *mockStore) GetBool(key string, def bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return v == "true", nil
}

func (s *mockStore) SetBool(key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = fmt.Sprint(value)
	return nil
}

func (s *mockStore) GetString(key, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (s *mockStore) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// mockDownloader serves a scripted manifest and package archives
type mockDownloader struct {
	mu          sync.Mutex
	manifest    []byte
	manifestErr error
	packages    map[string][]byte
	requested   []string
	// block, when set, holds every package download until it is closed
	block chan struct{}
}

func newMockDownloader() *mockDownloader {
	return &mockDownloader{packages: make(map[string][]byte)}
}

func (d *mockDownloader) DownloadManifest(ctx context.Context) (<-chan domain.DownloadEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.manifestErr != nil {
		return replay(domain.DownloadEvent{Result: domain.EventFailed, Err: d.manifestErr}), nil
	}
	half := len(d.manifest) / 2
	return replay(
		domain.DownloadEvent{Result: domain.EventFlushed, Data: d.manifest[:half]},
		domain.DownloadEvent{Result: domain.EventSucceeded, Data: d.manifest[half:]},
	), nil
}

func (d *mockDownloader) DownloadPackage(ctx context.Context, url string) (<-chan domain.DownloadEvent, error) {
	d.mu.Lock()
	d.requested = append(d.requested, url)
	data, ok := d.packages[url]
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return replay(domain.DownloadEvent{Result: domain.EventFailed, Err: errors.New("404 " + url)}), nil
	}
	return replay(domain.DownloadEvent{Result: domain.EventSucceeded, Data: data}), nil
}

func (d *mockDownloader) CurrentDownloadedBytes() int64 { return 0 }

func (d *mockDownloader) requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requested...)
}

func replay(events ...domain.DownloadEvent) <-chan domain.DownloadEvent {
	ch := make(chan domain.DownloadEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

// mockNotifier records notifications
type mockNotifier struct {
	mu        sync.Mutex
	available []bool
	installed int
	failed    []string
}

func (n *mockNotifier) NotifyUpdateAvailable(packages int, bytes uint64, blocking bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.available = append(n.available, blocking)
}

func (n *mockNotifier) NotifyUpdateInstalled(packages, removed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.installed++
}

func (n *mockNotifier) NotifyUpdateFailed(stage string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, stage)
}

// testPackage is a package archive served by the mock downloader
type testPackage struct {
	id    string
	files map[string]string // name relative to the package dir -> contents
	data  []byte
}

func newTestPackage(t *testing.T, id string, files map[string]string) testPackage {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := w.Create(id + "/" + name)
		require.NoError(t, err)
		_, err = f.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return testPackage{id: id, files: files, data: buf.Bytes()}
}

func (p testPackage) url() string {
	return "http://cdn.example.com/" + p.id + ".zip"
}

func (p testPackage) checksum() string {
	return content.ChecksumBytes(p.data)
}

func (p testPackage) xml() string {
	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	sort.Strings(names)

	out := fmt.Sprintf(`<Package ID=%q Checksum=%q URL=%q Size="%d">`, p.id, p.checksum(), p.url(), len(p.data))
	for _, name := range names {
		out += fmt.Sprintf(`<File Name=%q Checksum=%q/>`, name, content.ChecksumBytes([]byte(p.files[name])))
	}
	return out + "</Package>"
}

func manifestDoc(enabled bool, packages ...testPackage) []byte {
	doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><ContentManifest DLCEnabled="%t">`, enabled)
	for _, p := range packages {
		doc += p.xml()
	}
	return []byte(doc + "</ContentManifest>")
}

// managerEnv wires a ContentManager to in-memory collaborators
type managerEnv struct {
	fs         afero.Fs
	downloader *mockDownloader
	store      *mockStore
	sessions   *mockSessionRepo
	notifier   *mockNotifier
	manager    *ContentManager
}

func newManagerEnv(t *testing.T) *managerEnv {
	t.Helper()
	env := &managerEnv{
		fs:         afero.NewMemMapFs(),
		downloader: newMockDownloader(),
		store:      newMockStore(),
		sessions:   newMockSessionRepo(),
		notifier:   &mockNotifier{},
	}
	storage := content.NewStorage(env.fs, nil)
	env.manager = NewContentManager(storage, content.DefaultLayout(), env.downloader, env.store, env.sessions, env.notifier, nil, nil)
	return env
}

// serve publishes packages in the server manifest and on the CDN
func (e *managerEnv) serve(packages ...testPackage) {
	e.downloader.mu.Lock()
	defer e.downloader.mu.Unlock()
	e.downloader.manifest = manifestDoc(true, packages...)
	for _, p := range packages {
		e.downloader.packages[p.url()] = p.data
	}
}

// install lays out packages as if a previous update had committed them
func (e *managerEnv) install(t *testing.T, packages ...testPackage) {
	t.Helper()
	for _, p := range packages {
		for name, data := range p.files {
			require.NoError(t, afero.WriteFile(e.fs, "/"+p.id+"/"+name, []byte(data), 0644))
		}
	}
	require.NoError(t, afero.WriteFile(e.fs, "/ContentManifest.moman", manifestDoc(true, packages...), 0644))
	require.NoError(t, e.store.SetBool(content.HasCachedContentKey, true))
}

func (e *managerEnv) read(t *testing.T, p string) string {
	t.Helper()
	data, err := afero.ReadFile(e.fs, "/"+p)
	require.NoError(t, err)
	return string(data)
}

func (e *managerEnv) exists(p string) bool {
	ok, _ := afero.Exists(e.fs, "/"+p)
	return ok
}
