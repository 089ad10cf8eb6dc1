package content

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// HasCachedContentKey is set once content has been installed at least once.
// Its presence without a local manifest means the cache was purged.
const HasCachedContentKey = "has_cached_content"

// InstalledAtKey holds the RFC 3339 time of the last committed install
const InstalledAtKey = "installed_at"

// maxEntrySize bounds a single extracted file
const maxEntrySize = 1 << 30

// Installer commits downloaded archives into the content area
type Installer struct {
	storage *Storage
	layout  Layout
	store   domain.KeyValueStore
	logger  *zap.Logger
}

// NewInstaller creates an installer
func NewInstaller(storage *Storage, layout Layout, store domain.KeyValueStore, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{
		storage: storage,
		layout:  layout,
		store:   store,
		logger:  logger,
	}
}

// Install extracts every package archive, removes orphaned packages and then
// writes the server manifest. The manifest write is the commit point: an error
// before it leaves the previous manifest in effect.
func (in *Installer) Install(packages []domain.PackageDescriptor, removeIDs []string, manifest *domain.Manifest) error {
	if len(packages) == 0 && len(removeIDs) == 0 {
		return domain.ErrNothingToInstall
	}
	if manifest == nil {
		return fmt.Errorf("no server manifest to commit")
	}

	reserved := in.layout.Reserved()
	for _, pkg := range packages {
		if err := CheckPackageID(pkg.ID, reserved...); err != nil {
			return err
		}
	}
	for _, id := range removeIDs {
		if err := CheckPackageID(id, reserved...); err != nil {
			return err
		}
	}

	staging := in.layout.StagingDir()
	if err := in.storage.DeleteDir(staging); err != nil {
		return err
	}

	for _, pkg := range packages {
		if err := in.extract(pkg, staging); err != nil {
			_ = in.storage.DeleteDir(staging)
			return fmt.Errorf("failed to extract package %s: %w", pkg.ID, err)
		}
	}

	for _, pkg := range packages {
		if err := in.storage.DeleteDir(pkg.ID); err != nil {
			return err
		}
	}
	if err := in.promote(staging); err != nil {
		return err
	}

	if err := in.storage.DeleteDir(in.layout.TempDir); err != nil {
		return err
	}

	for _, id := range removeIDs {
		in.logger.Info("Removing package", zap.String("package", id))
		if err := in.storage.DeleteDir(id); err != nil {
			return err
		}
	}

	if err := in.storage.WriteFileAtomic(in.layout.ManifestFile, manifest.Raw()); err != nil {
		return fmt.Errorf("failed to save content manifest: %w", err)
	}

	if in.store != nil {
		if err := in.store.SetBool(HasCachedContentKey, true); err != nil {
			in.logger.Warn("Failed to record cached content flag", zap.Error(err))
		}
		if err := in.store.SetString(InstalledAtKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
			in.logger.Warn("Failed to record install time", zap.Error(err))
		}
	}

	in.logger.Info("Content installed",
		zap.Int("packages", len(packages)),
		zap.Int("removed", len(removeIDs)))
	return nil
}

// extract unpacks the archive of pkg under dest. The archive must still hash
// to the descriptor checksum.
func (in *Installer) extract(pkg domain.PackageDescriptor, dest string) error {
	fs := in.storage.Fs(LocationContent)
	archivePath := clean(in.layout.ArchivePath(pkg.ID))

	if !in.storage.FileMatches(LocationContent, archivePath, pkg.Checksum) {
		return fmt.Errorf("%w: archive %s does not hash to %s", domain.ErrChecksumMismatch, archivePath, pkg.Checksum)
	}

	file, err := fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("cannot open content package: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		return fmt.Errorf("cannot unzip content package: %w", err)
	}

	for _, entry := range reader.File {
		name, err := entryName(entry.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}

		target := path.Join(dest, name)
		if entry.FileInfo().IsDir() {
			if err := in.storage.MkdirAll(target); err != nil {
				return err
			}
			continue
		}

		if err := in.writeEntry(entry, target); err != nil {
			return fmt.Errorf("entry %s: %w", entry.Name, err)
		}
	}

	in.logger.Debug("Package extracted",
		zap.String("package", pkg.ID),
		zap.Int("entries", len(reader.File)))
	return nil
}

func (in *Installer) writeEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return err
	}
	if len(data) > maxEntrySize {
		return fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	return in.storage.WriteFile(target, data)
}

// promote moves every staged file to the same relative path under the root
func (in *Installer) promote(staging string) error {
	fs := in.storage.Fs(LocationContent)
	root := clean(staging)

	if _, err := fs.Stat(root); os.IsNotExist(err) {
		return nil
	}

	var files []string
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan staged content: %w", err)
	}

	for _, p := range files {
		rel := strings.TrimPrefix(toSlash(p), root+"/")
		if err := in.storage.Move(p, rel); err != nil {
			return err
		}
	}
	return nil
}

// entryName validates an archive entry name and returns it relative to the
// content root. Names that would escape the root are rejected.
func entryName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("archive entry %q is absolute", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("archive entry %q escapes the content root", name)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	return cleaned, nil
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
