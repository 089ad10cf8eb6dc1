package domain

import "context"

// ContentDownloader fetches the server manifest and package archives.
// Each call returns a channel carrying zero or more flushed events followed by
// exactly one succeeded or failed event, after which the channel is closed.
type ContentDownloader interface {
	// DownloadManifest requests the server manifest
	DownloadManifest(ctx context.Context) (<-chan DownloadEvent, error)

	// DownloadPackage requests a package archive
	DownloadPackage(ctx context.Context, url string) (<-chan DownloadEvent, error)

	// CurrentDownloadedBytes returns the bytes received for the active request
	CurrentDownloadedBytes() int64
}

// Notifier is told about update outcomes the user may care about
type Notifier interface {
	NotifyUpdateAvailable(packages int, bytes uint64, blocking bool)
	NotifyUpdateInstalled(packages, removed int)
	NotifyUpdateFailed(stage string, err error)
}
