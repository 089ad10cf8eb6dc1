package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/contentsync-go/internal/content"
	"github.com/yourusername/contentsync-go/internal/domain"
)

func TestContentManager_FirstInstall(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	env.serve(p1)
	ctx := context.Background()

	check, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckAvailable, check)

	status := env.manager.Status()
	assert.Equal(t, domain.StateUpdateAvailable, status.State)
	assert.Equal(t, []string{"P1"}, status.PendingPackages)
	assert.Equal(t, uint64(len(p1.data)), status.BytesToDownload)
	assert.False(t, status.CachePurged)

	dl, err := env.manager.DownloadUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, dl)
	assert.Equal(t, p1.checksum(), content.ChecksumBytes([]byte(env.read(t, "Temp/P1.packzip"))))
	assert.Equal(t, uint64(len(p1.data)), env.manager.Status().BytesDownloaded)

	inst, err := env.manager.InstallUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, inst)

	assert.Equal(t, "alpha", env.read(t, "P1/a.txt"))
	assert.Equal(t, "beta", env.read(t, "P1/b.txt"))
	assert.False(t, env.exists("Temp"))
	assert.Equal(t, string(env.downloader.manifest), env.read(t, "ContentManifest.moman"))

	cached, _ := env.store.GetBool(content.HasCachedContentKey, false)
	assert.True(t, cached)

	status = env.manager.Status()
	assert.Equal(t, domain.StateInstallSucceeded, status.State)
	assert.Empty(t, status.PendingPackages)
	assert.Equal(t, 1, env.notifier.installed)

	recorded, err := env.manager.GetSession(status.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInstallSucceeded, recorded.State)
	assert.Equal(t, domain.ResultSucceeded, recorded.InstallResult)
	assert.NotNil(t, recorded.CompletedAt)

	again, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckNotAvailable, again)
}

func TestContentManager_RemovesDroppedPackages(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	p2 := newTestPackage(t, "P2", map[string]string{"b.txt": "beta"})
	env.install(t, p1, p2)
	env.serve(p1)
	ctx := context.Background()

	check, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckAvailable, check)
	assert.Equal(t, []string{"P2"}, env.manager.Status().PendingRemovals)
	assert.Empty(t, env.manager.Status().PendingPackages)

	dl, err := env.manager.DownloadUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, dl)
	assert.Empty(t, env.downloader.requests())

	inst, err := env.manager.InstallUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, inst)

	assert.False(t, env.exists("P2"))
	assert.Equal(t, "alpha", env.read(t, "P1/a.txt"))
}

func TestContentManager_UpToDate(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.install(t, p1)
	env.serve(p1)

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckNotAvailable, check)
	assert.Equal(t, domain.StateNoUpdate, env.manager.Status().State)
}

func TestContentManager_CorruptFileTriggersDownload(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.install(t, p1)
	env.serve(p1)
	require.NoError(t, afero.WriteFile(env.fs, "/P1/a.txt", []byte("tampered"), 0644))

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckAvailable, check)
	assert.Equal(t, []string{"P1"}, env.manager.Status().PendingPackages)
}

func TestContentManager_CheckFailedNeverCached(t *testing.T) {
	env := newManagerEnv(t)
	env.downloader.manifestErr = errors.New("connection refused")

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckFailed, check)
	assert.False(t, check.IsBlocking())

	status := env.manager.Status()
	assert.Equal(t, domain.StateCheckFailed, status.State)
	assert.Contains(t, status.LastError, "connection refused")
	assert.Equal(t, []string{"check"}, env.notifier.failed)
}

func TestContentManager_CheckFailedAfterPurge(t *testing.T) {
	env := newManagerEnv(t)
	require.NoError(t, env.store.SetBool(content.HasCachedContentKey, true))
	env.downloader.manifestErr = errors.New("connection refused")

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckFailedBlocking, check)
	assert.True(t, env.manager.Status().CachePurged)
}

func TestContentManager_AvailableBlockingAfterPurge(t *testing.T) {
	env := newManagerEnv(t)
	require.NoError(t, env.store.SetBool(content.HasCachedContentKey, true))
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)
	ctx := context.Background()

	check, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckAvailableBlocking, check)
	assert.Equal(t, []bool{true}, env.notifier.available)

	_, err = env.manager.DownloadUpdates(ctx)
	require.NoError(t, err)
	inst, err := env.manager.InstallUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, inst)
	assert.False(t, env.manager.Status().CachePurged)
}

func TestContentManager_MalformedManifest(t *testing.T) {
	env := newManagerEnv(t)
	env.downloader.manifest = []byte("<<< not xml")

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckNotAvailable, check)

	status := env.manager.Status()
	assert.NotEmpty(t, status.LastError)
	assert.Empty(t, env.notifier.failed)
}

func TestContentManager_DLCDisabled(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.downloader.manifest = manifestDoc(false, p1)

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckNotAvailable, check)
	assert.Empty(t, env.manager.Status().PendingPackages)
	assert.Empty(t, env.manager.Status().LastError)
}

func TestContentManager_ChecksumMismatchFailsDownload(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)
	env.downloader.packages[p1.url()] = []byte("corrupted in transit")
	ctx := context.Background()

	_, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)

	dl, err := env.manager.DownloadUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, dl)
	assert.Equal(t, domain.StateDownloadFailed, env.manager.Status().State)
	assert.Contains(t, env.manager.Status().LastError, "checksum")

	inst, err := env.manager.InstallUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, inst)
	assert.False(t, env.exists("ContentManifest.moman"))
	assert.False(t, env.exists("P1/a.txt"))
}

func TestContentManager_TamperedArchiveIsNeverInstalled(t *testing.T) {
	env := newManagerEnv(t)
	v1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.install(t, v1)
	previous := env.read(t, "ContentManifest.moman")

	v2 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha v2"})
	env.serve(v2)
	// a well-formed archive that does not hash to the published checksum
	env.downloader.packages[v2.url()] = newTestPackage(t, "P1", map[string]string{"a.txt": "tampered"}).data
	ctx := context.Background()

	check, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckAvailable, check)

	dl, err := env.manager.DownloadUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, dl)

	inst, err := env.manager.InstallUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, inst)
	assert.Contains(t, env.manager.Status().LastError, domain.ErrDownloadIncomplete.Error())

	assert.Equal(t, "alpha", env.read(t, "P1/a.txt"))
	assert.Equal(t, previous, env.read(t, "ContentManifest.moman"))
}

func TestContentManager_InstallRequiresDownload(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)
	ctx := context.Background()

	_, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)

	inst, err := env.manager.InstallUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, inst)
	assert.Contains(t, env.manager.Status().LastError, domain.ErrDownloadIncomplete.Error())
	assert.False(t, env.exists("ContentManifest.moman"))
	assert.False(t, env.exists("P1/a.txt"))
	assert.Empty(t, env.downloader.requests())
}

func TestContentManager_RemovalOnlyInstallsWithoutDownload(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	p2 := newTestPackage(t, "P2", map[string]string{"b.txt": "beta"})
	env.install(t, p1, p2)
	env.serve(p1)
	ctx := context.Background()

	_, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)

	inst, err := env.manager.InstallUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, inst)
	assert.False(t, env.exists("P2/b.txt"))
}

func TestContentManager_IgnoresLocalPackageWithoutID(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.install(t, p1)
	local := `<ContentManifest DLCEnabled="true">` + p1.xml() + `<Package Checksum="zz"/><Package ID="Temp" Checksum="zz"/></ContentManifest>`
	require.NoError(t, afero.WriteFile(env.fs, "/ContentManifest.moman", []byte(local), 0644))
	require.NoError(t, afero.WriteFile(env.fs, "/Temp/keep.txt", []byte("staged"), 0644))
	env.serve(p1)

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckNotAvailable, check)
	assert.Empty(t, env.manager.Status().PendingRemovals)
	assert.Equal(t, "alpha", env.read(t, "P1/a.txt"))
	assert.Equal(t, "staged", env.read(t, "Temp/keep.txt"))
}

func TestContentManager_RecordsInstallTime(t *testing.T) {
	env := newManagerEnv(t)
	assert.Empty(t, env.manager.Status().InstalledAt)

	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)
	report, err := env.manager.RunUpdateCycle(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, domain.ResultSucceeded, report.Install)

	installedAt := env.manager.Status().InstalledAt
	_, err = time.Parse(time.RFC3339, installedAt)
	require.NoError(t, err)

	restarted := NewContentManager(content.NewStorage(env.fs, nil), content.DefaultLayout(), env.downloader, env.store, env.sessions, nil, nil, nil)
	assert.Equal(t, installedAt, restarted.Status().InstalledAt)
}

func TestContentManager_ClearedCacheFlagIsNotPurge(t *testing.T) {
	env := newManagerEnv(t)
	require.NoError(t, env.store.SetBool(content.HasCachedContentKey, false))
	env.downloader.manifestErr = errors.New("connection refused")

	check, err := env.manager.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckFailed, check)
	assert.False(t, env.manager.Status().CachePurged)
}

func TestContentManager_DownloadRetryReusesVerifiedArchives(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	p2 := newTestPackage(t, "P2", map[string]string{"b.txt": "beta"})
	env.serve(p1, p2)
	delete(env.downloader.packages, p2.url())
	ctx := context.Background()

	_, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)
	dl, err := env.manager.DownloadUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, dl)

	env.downloader.packages[p2.url()] = p2.data
	dl, err = env.manager.DownloadUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, dl)

	assert.Equal(t, []string{p1.url(), p2.url(), p2.url()}, env.downloader.requests())
}

func TestContentManager_InstallWithoutCheck(t *testing.T) {
	env := newManagerEnv(t)

	inst, err := env.manager.InstallUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, inst)
	assert.Contains(t, env.manager.Status().LastError, domain.ErrNothingToInstall.Error())
}

func TestContentManager_DownloadWithoutCheck(t *testing.T) {
	env := newManagerEnv(t)

	dl, err := env.manager.DownloadUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, dl)
	assert.Empty(t, env.downloader.requests())
}

func TestContentManager_RecheckDiscardsPlan(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	p2 := newTestPackage(t, "P2", map[string]string{"b.txt": "beta"})
	env.serve(p1)
	ctx := context.Background()

	_, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)
	first := env.manager.Status().SessionID

	env.serve(p2)
	env.downloader.manifest = manifestDoc(true, p2)
	_, err = env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)

	status := env.manager.Status()
	assert.NotEqual(t, first, status.SessionID)
	assert.Equal(t, []string{"P2"}, status.PendingPackages)
}

func TestContentManager_RejectsOverlappingSessions(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)
	env.downloader.block = make(chan struct{})
	ctx := context.Background()

	_, err := env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)

	done := make(chan domain.Result)
	go func() {
		result, _ := env.manager.DownloadUpdates(ctx)
		done <- result
	}()

	require.Eventually(t, func() bool { return env.manager.Status().Busy }, time.Second, 5*time.Millisecond)

	_, err = env.manager.CheckForUpdates(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionBusy)
	_, err = env.manager.InstallUpdates(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionBusy)
	_, err = env.manager.RunUpdateCycle(ctx, true)
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	close(env.downloader.block)
	assert.Equal(t, domain.ResultSucceeded, <-done)
	assert.False(t, env.manager.Status().Busy)
}

func TestContentManager_RunUpdateCycle(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)

	report, err := env.manager.RunUpdateCycle(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckAvailable, report.Check)
	assert.Equal(t, domain.ResultSucceeded, report.Download)
	assert.Equal(t, domain.ResultSucceeded, report.Install)
	assert.NotEmpty(t, report.SessionID)
	assert.Equal(t, "alpha", env.read(t, "P1/a.txt"))

	report, err = env.manager.RunUpdateCycle(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckNotAvailable, report.Check)
	assert.Empty(t, report.Download)
	assert.Empty(t, report.Install)
}

func TestContentManager_RunUpdateCycleWithoutInstall(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)

	report, err := env.manager.RunUpdateCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSucceeded, report.Download)
	assert.Empty(t, report.Install)
	assert.False(t, env.exists("P1/a.txt"))
	assert.Equal(t, domain.StateDownloadSucceeded, env.manager.Status().State)
}

func TestContentManager_SessionsAreRecorded(t *testing.T) {
	env := newManagerEnv(t)
	p1 := newTestPackage(t, "P1", map[string]string{"a.txt": "alpha"})
	env.serve(p1)
	ctx := context.Background()

	_, err := env.manager.RunUpdateCycle(ctx, true)
	require.NoError(t, err)
	_, err = env.manager.CheckForUpdates(ctx)
	require.NoError(t, err)

	sessions, err := env.manager.ListSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.StateNoUpdate, sessions[0].State)
	assert.Equal(t, domain.StateInstallSucceeded, sessions[1].State)

	stats, err := env.manager.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Installed)
}
