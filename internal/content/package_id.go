package content

import (
	"fmt"
	"path"
	"strings"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// CheckPackageID rejects IDs that do not name exactly one directory directly
// under the content root. reserved holds names the engine itself uses there.
func CheckPackageID(id string, reserved ...string) error {
	switch {
	case id == "" || id == "." || id == "..":
		return fmt.Errorf("%w: %q", domain.ErrInvalidPackageID, id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", domain.ErrInvalidPackageID, id)
	}
	for _, name := range reserved {
		if name != "" && strings.EqualFold(id, name) {
			return fmt.Errorf("%w: %q is reserved", domain.ErrInvalidPackageID, id)
		}
	}
	return nil
}

// Reserved returns the top-level names of the content root that belong to
// the engine rather than to a package
func (l Layout) Reserved() []string {
	temp := strings.TrimPrefix(path.Clean("/"+toSlash(l.TempDir)), "/")
	if i := strings.Index(temp, "/"); i >= 0 {
		temp = temp[:i]
	}
	return []string{temp, l.ManifestFile}
}
