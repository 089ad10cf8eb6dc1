package content

import (
	"context"
	"fmt"
	"path"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// Layout names the well-known paths inside the content area
type Layout struct {
	ManifestFile string
	TempDir      string
	ArchiveExt   string
}

// DefaultLayout returns the standard content area layout
func DefaultLayout() Layout {
	return Layout{
		ManifestFile: "ContentManifest.moman",
		TempDir:      "Temp",
		ArchiveExt:   ".packzip",
	}
}

// NewLayout builds a layout from configuration, using defaults for empty fields
func NewLayout(cfg domain.ContentConfig) Layout {
	layout := DefaultLayout()
	if cfg.ManifestFile != "" {
		layout.ManifestFile = cfg.ManifestFile
	}
	if cfg.TempDir != "" {
		layout.TempDir = cfg.TempDir
	}
	if cfg.ArchiveExt != "" {
		layout.ArchiveExt = cfg.ArchiveExt
	}
	return layout
}

// ArchivePath returns where the archive for a package is downloaded to
func (l Layout) ArchivePath(packageID string) string {
	return path.Join(l.TempDir, packageID+l.ArchiveExt)
}

// StagingDir returns where archives are extracted before they go live
func (l Layout) StagingDir() string {
	return path.Join(l.TempDir, "Staging")
}

// Pipeline downloads packages one at a time into the temp directory and
// verifies each archive before the next one is requested.
type Pipeline struct {
	downloader domain.ContentDownloader
	storage    *Storage
	layout     Layout
	logger     *zap.Logger
	downloaded atomic.Uint64
}

// NewPipeline creates a download pipeline
func NewPipeline(downloader domain.ContentDownloader, storage *Storage, layout Layout, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		downloader: downloader,
		storage:    storage,
		layout:     layout,
		logger:     logger,
	}
}

// Reset zeroes the completed-bytes counter for a new session
func (p *Pipeline) Reset() {
	p.downloaded.Store(0)
}

// Downloaded returns the declared size of every package verified so far
func (p *Pipeline) Downloaded() uint64 {
	return p.downloaded.Load()
}

// Progress returns verified bytes plus bytes received for the active request
func (p *Pipeline) Progress() uint64 {
	inFlight := p.downloader.CurrentDownloadedBytes()
	if inFlight < 0 {
		inFlight = 0
	}
	return p.downloaded.Load() + uint64(inFlight)
}

// Run downloads the packages in order. The first failure aborts the rest of
// the queue. Temp archives are left in place for the installer to clean up.
func (p *Pipeline) Run(ctx context.Context, packages []domain.PackageDescriptor) error {
	if len(packages) == 0 {
		return nil
	}

	if err := p.storage.MkdirAll(p.layout.TempDir); err != nil {
		return err
	}

	for i, pkg := range packages {
		p.logger.Info("Downloading package",
			zap.String("package", pkg.ID),
			zap.String("url", pkg.URL),
			zap.Uint64("size", pkg.Size),
			zap.Int("index", i),
			zap.Int("total", len(packages)))

		if err := p.fetch(ctx, pkg); err != nil {
			p.logger.Error("Package download failed",
				zap.String("package", pkg.ID),
				zap.Int("remaining", len(packages)-i-1),
				zap.Error(err))
			return fmt.Errorf("package %s: %w", pkg.ID, err)
		}

		p.downloaded.Add(pkg.Size)
	}

	return nil
}

// fetch downloads one package into its temp archive and verifies it
func (p *Pipeline) fetch(ctx context.Context, pkg domain.PackageDescriptor) error {
	archive := p.layout.ArchivePath(pkg.ID)

	if p.storage.Exists(LocationContent, archive) {
		if p.storage.FileMatches(LocationContent, archive, pkg.Checksum) {
			p.logger.Info("Reusing verified archive", zap.String("package", pkg.ID))
			return nil
		}
		if err := p.storage.Delete(archive); err != nil {
			return err
		}
	}

	events, err := p.downloader.DownloadPackage(ctx, pkg.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDownloadStartFailed, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("download stream closed before completion")
			}
			switch ev.Result {
			case domain.EventFlushed:
				if err := p.storage.AppendFile(archive, ev.Data); err != nil {
					return err
				}
			case domain.EventSucceeded:
				if err := p.storage.AppendFile(archive, ev.Data); err != nil {
					return err
				}
				return p.verify(pkg, archive)
			default:
				if ev.Err != nil {
					return ev.Err
				}
				return fmt.Errorf("download failed")
			}
		}
	}
}

func (p *Pipeline) verify(pkg domain.PackageDescriptor, archive string) error {
	actual, err := p.storage.Checksum(LocationContent, archive)
	if err != nil {
		return err
	}
	if actual != pkg.Checksum {
		p.logger.Error("Package download corrupted",
			zap.String("package", pkg.ID),
			zap.String("expected", pkg.Checksum),
			zap.String("actual", actual))
		return fmt.Errorf("%w: expected %s, got %s", domain.ErrChecksumMismatch, pkg.Checksum, actual)
	}
	return nil
}
