package domain

// Manifest is a parsed content manifest. It is never mutated after parsing.
type Manifest struct {
	DLCEnabled bool
	Packages   []PackageEntry
	raw        []byte
}

// NewManifest creates a manifest that owns a copy of the raw document bytes
func NewManifest(dlcEnabled bool, packages []PackageEntry, raw []byte) *Manifest {
	data := make([]byte, len(raw))
	copy(data, raw)
	return &Manifest{
		DLCEnabled: dlcEnabled,
		Packages:   packages,
		raw:        data,
	}
}

// Raw returns the document exactly as it was received
func (m *Manifest) Raw() []byte {
	return m.raw
}

// PackageIDs returns the package IDs in document order
func (m *Manifest) PackageIDs() []string {
	ids := make([]string, 0, len(m.Packages))
	for _, pkg := range m.Packages {
		ids = append(ids, pkg.ID)
	}
	return ids
}

// PackageEntry is one <Package> element of a manifest
type PackageEntry struct {
	ID         string      `yaml:"id"`
	Checksum   string      `yaml:"checksum"`
	URL        string      `yaml:"url"`
	MinVersion string      `yaml:"min_version,omitempty"`
	Size       uint64      `yaml:"size"`
	Files      []FileEntry `yaml:"files"`
}

// Descriptor returns the downloadable unit for this package
func (p PackageEntry) Descriptor() PackageDescriptor {
	return PackageDescriptor{
		ID:       p.ID,
		URL:      p.URL,
		Checksum: p.Checksum,
		Size:     p.Size,
	}
}

// FileEntry is one <File> element nested under a package
type FileEntry struct {
	Name     string `yaml:"name,omitempty"`
	Location string `yaml:"location,omitempty"`
	Checksum string `yaml:"checksum"`
}

// Path returns the file location relative to the content root.
// Older manifests carry only a name, in which case the path is packageID/name.
func (f FileEntry) Path(packageID string) string {
	if f.Location != "" {
		return f.Location
	}
	return packageID + "/" + f.Name
}

// BundlePath returns where the file ships inside the bundle. The bundle is
// always laid out as packageID/name, whatever Location says.
func (f FileEntry) BundlePath(packageID string) string {
	return packageID + "/" + f.Name
}

// PackageDescriptor describes a package that has to be fetched
type PackageDescriptor struct {
	ID       string `json:"id" yaml:"id"`
	URL      string `json:"url" yaml:"url"`
	Checksum string `json:"checksum" yaml:"checksum"`
	Size     uint64 `json:"size" yaml:"size"`
}

// Plan is the outcome of diffing a server manifest against local content
type Plan struct {
	ToDownload      []PackageDescriptor `json:"to_download" yaml:"to_download"`
	ToRemove        []string            `json:"to_remove" yaml:"to_remove"`
	BytesToDownload uint64              `json:"bytes_to_download" yaml:"bytes_to_download"`
}

// RequiresUpdate reports whether anything has to be fetched or removed
func (p Plan) RequiresUpdate() bool {
	return len(p.ToDownload) > 0 || len(p.ToRemove) > 0
}

// PackageIDs returns the IDs of the packages queued for download
func (p Plan) PackageIDs() []string {
	ids := make([]string, 0, len(p.ToDownload))
	for _, d := range p.ToDownload {
		ids = append(ids, d.ID)
	}
	return ids
}
