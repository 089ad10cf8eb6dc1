package content

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// xmlManifest mirrors the manifest document. The root element name is not
// significant, only its DLCEnabled attribute and Package children are.
type xmlManifest struct {
	XMLName    xml.Name
	DLCEnabled string       `xml:"DLCEnabled,attr"`
	Packages   []xmlPackage `xml:"Package"`
}

type xmlPackage struct {
	ID         string    `xml:"ID,attr"`
	Checksum   string    `xml:"Checksum,attr"`
	URL        string    `xml:"URL,attr"`
	Size       string    `xml:"Size,attr"`
	MinVersion string    `xml:"MinVersion,attr"`
	Files      []xmlFile `xml:"File"`
}

type xmlFile struct {
	Name     string `xml:"Name,attr"`
	Location string `xml:"Location,attr"`
	Checksum string `xml:"Checksum,attr"`
}

// ParseManifest parses a manifest document. A document without a root element
// yields an error wrapping domain.ErrNoManifestRoot.
func ParseManifest(data []byte) (*domain.Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domain.ErrNoManifestRoot
	}

	var doc xmlManifest
	if err := xml.Unmarshal(data, &doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrNoManifestRoot
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNoManifestRoot, err)
	}

	packages := make([]domain.PackageEntry, 0, len(doc.Packages))
	for _, p := range doc.Packages {
		files := make([]domain.FileEntry, 0, len(p.Files))
		for _, f := range p.Files {
			files = append(files, domain.FileEntry{
				Name:     f.Name,
				Location: f.Location,
				Checksum: f.Checksum,
			})
		}
		packages = append(packages, domain.PackageEntry{
			ID:         p.ID,
			Checksum:   p.Checksum,
			URL:        p.URL,
			MinVersion: p.MinVersion,
			Size:       parseSize(p.Size),
			Files:      files,
		})
	}

	return domain.NewManifest(parseBool(doc.DLCEnabled), packages, data), nil
}

// parseSize returns 0 for missing or malformed sizes
func parseSize(s string) uint64 {
	size, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return size
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	}
	return false
}
