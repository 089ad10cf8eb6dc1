package content

import (
	"sort"

	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// FileChecker answers the questions the planner asks about local files
type FileChecker interface {
	// InBundle reports whether the bundle holds p with the given checksum
	InBundle(p, checksum string) bool

	// Installed reports whether p resolves to a file with the given checksum
	Installed(p, checksum string) bool

	// DiscardStale removes a content-area copy superseded by the bundle
	DiscardStale(p string) error
}

// StorageChecker answers file checks from a Storage
type StorageChecker struct {
	storage *Storage
}

// NewStorageChecker creates a checker over the given storage
func NewStorageChecker(storage *Storage) *StorageChecker {
	return &StorageChecker{storage: storage}
}

func (p *StorageChecker) InBundle(path, checksum string) bool {
	return p.storage.FileMatches(LocationBundle, path, checksum)
}

func (p *StorageChecker) Installed(path, checksum string) bool {
	return p.storage.ResolvedMatches(path, checksum)
}

func (p *StorageChecker) DiscardStale(path string) error {
	return p.storage.Delete(path)
}

// Planner decides which packages to fetch and which to remove
type Planner struct {
	checker  FileChecker
	logger   *zap.Logger
	reserved []string
}

// NewPlanner creates a planner
func NewPlanner(checker FileChecker, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{checker: checker, logger: logger}
}

// SetReserved names content root entries no package may claim, see Layout.Reserved
func (pl *Planner) SetReserved(names ...string) {
	pl.reserved = names
}

// usable reports whether a package ID can be planned. Packages with unusable
// IDs are left out of both lists so nothing outside their directory is touched.
func (pl *Planner) usable(id, source string) bool {
	if err := CheckPackageID(id, pl.reserved...); err != nil {
		pl.logger.Warn("Skipping package with unusable ID",
			zap.String("manifest", source),
			zap.Error(err))
		return false
	}
	return true
}

// BuildPlan compares the server manifest with the local one. A nil local
// manifest means no content has been committed yet.
func (pl *Planner) BuildPlan(server, local *domain.Manifest) domain.Plan {
	var plan domain.Plan

	if local == nil {
		for _, pkg := range server.Packages {
			if pl.usable(pkg.ID, "server") {
				pl.addIfNotInBundle(&plan, pkg)
			}
		}
		return plan
	}

	localChecksums := make(map[string]string, len(local.Packages))
	for _, pkg := range local.Packages {
		if pl.usable(pkg.ID, "local") {
			localChecksums[pkg.ID] = pkg.Checksum
		}
	}

	for _, pkg := range server.Packages {
		if !pl.usable(pkg.ID, "server") {
			continue
		}
		localChecksum, ok := localChecksums[pkg.ID]
		switch {
		case !ok:
			pl.logger.Debug("Package not installed", zap.String("package", pkg.ID))
			pl.addIfNotInBundle(&plan, pkg)
		case localChecksum != pkg.Checksum:
			pl.logger.Debug("Package outdated",
				zap.String("package", pkg.ID),
				zap.String("local_checksum", localChecksum),
				zap.String("server_checksum", pkg.Checksum))
			pl.addIfNotInBundle(&plan, pkg)
		default:
			if bad, corrupt := pl.firstCorruptFile(pkg); corrupt {
				pl.logger.Warn("Installed file failed verification",
					zap.String("package", pkg.ID),
					zap.String("file", bad))
				pl.addIfNotInBundle(&plan, pkg)
			}
		}
		delete(localChecksums, pkg.ID)
	}

	for id := range localChecksums {
		plan.ToRemove = append(plan.ToRemove, id)
	}
	sort.Strings(plan.ToRemove)

	return plan
}

// firstCorruptFile returns the first file of pkg that does not verify on disk
func (pl *Planner) firstCorruptFile(pkg domain.PackageEntry) (string, bool) {
	for _, f := range pkg.Files {
		p := f.Path(pkg.ID)
		if !pl.checker.Installed(p, f.Checksum) {
			return p, true
		}
	}
	return "", false
}

// addIfNotInBundle queues pkg unless every one of its files ships valid in the
// bundle. Content-area copies of bundle-valid files are discarded as they are
// found, the bundle copy takes over. The bundle is checked at packageID/name
// even when the file has an explicit Location.
func (pl *Planner) addIfNotInBundle(plan *domain.Plan, pkg domain.PackageEntry) {
	for _, f := range pkg.Files {
		p := f.BundlePath(pkg.ID)
		if !pl.checker.InBundle(p, f.Checksum) {
			plan.ToDownload = append(plan.ToDownload, pkg.Descriptor())
			plan.BytesToDownload += pkg.Size
			return
		}
		if err := pl.checker.DiscardStale(p); err != nil {
			pl.logger.Warn("Failed to remove superseded content file",
				zap.String("package", pkg.ID),
				zap.String("file", p),
				zap.Error(err))
		}
	}
	pl.logger.Debug("Package satisfied by bundle", zap.String("package", pkg.ID))
}

// Classify maps a plan onto the result reported to the host
func Classify(plan domain.Plan, cachePurged bool) domain.CheckResult {
	switch {
	case !plan.RequiresUpdate():
		return domain.CheckNotAvailable
	case cachePurged:
		return domain.CheckAvailableBlocking
	default:
		return domain.CheckAvailable
	}
}
