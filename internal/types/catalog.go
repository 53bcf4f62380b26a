package types

import (
	"fmt"
	"path"
	"strings"
)

// FileRecord represents one artifact of a package version, as listed by
// the remote service or discovered on disk.
type FileRecord struct {
	Repository string `json:"repo"`
	Package    string `json:"package"`
	Version    string `json:"version"`
	Path       string `json:"path"`
	SHA1       string `json:"sha1,omitempty"`
	Name       string `json:"name,omitempty"`
	Size       int64  `json:"size,omitempty"`

	// LocalPath is the on-disk location of a locally discovered file
	LocalPath string `json:"-"`
}

// CanonicalPath returns repository/package/version/path, the key both
// sides are compared on.
func (f FileRecord) CanonicalPath() string {
	return strings.Join([]string{f.Repository, f.Package, f.Version, f.Path}, "/")
}

// Identity returns the package the file belongs to
func (f FileRecord) Identity() PackageIdentity {
	return PackageIdentity{Repository: f.Repository, Name: f.Package}
}

// Validate rejects records whose canonical path cannot be mapped onto a
// local directory tree without escaping it.
func (f FileRecord) Validate() error {
	for _, seg := range []struct{ name, value string }{
		{"repository", f.Repository},
		{"package", f.Package},
		{"version", f.Version},
	} {
		if seg.value == "" || seg.value == "." || seg.value == ".." || strings.ContainsAny(seg.value, `/\`) {
			return fmt.Errorf("invalid %s segment %q", seg.name, seg.value)
		}
	}
	if f.Path == "" {
		return fmt.Errorf("empty relative path")
	}
	for _, part := range strings.Split(f.Path, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid relative path %q", f.Path)
		}
	}
	return nil
}

// ParseCanonicalPath splits a slash separated repository/package/version/path
// string back into a FileRecord.
func ParseCanonicalPath(p string) (FileRecord, error) {
	parts := strings.SplitN(p, "/", 4)
	if len(parts) != 4 {
		return FileRecord{}, fmt.Errorf("path %q is not of the form repository/package/version/path", p)
	}
	record := FileRecord{
		Repository: parts[0],
		Package:    parts[1],
		Version:    parts[2],
		Path:       parts[3],
		Name:       path.Base(parts[3]),
	}
	if err := record.Validate(); err != nil {
		return FileRecord{}, fmt.Errorf("path %q: %w", p, err)
	}
	return record, nil
}

// NormalizeRelativePath strips the leading slashes some listings report
// for package-relative paths.
func NormalizeRelativePath(p string) string {
	return strings.TrimLeft(p, "/")
}

// PackageIdentity is the (repository, name) pair that identifies a package
type PackageIdentity struct {
	Repository string `json:"repo"`
	Name       string `json:"name"`
}

func (id PackageIdentity) String() string {
	return id.Repository + "/" + id.Name
}

// Catalog is everything read from one side of a run
type Catalog struct {
	Files    []FileRecord      `json:"files"`
	Packages []PackageMetadata `json:"packages"`
}

// FilesByPath indexes the catalog's files by canonical path
func (c Catalog) FilesByPath() map[string]FileRecord {
	index := make(map[string]FileRecord, len(c.Files))
	for _, f := range c.Files {
		index[f.CanonicalPath()] = f
	}
	return index
}

// PackageIdentities returns the set of package identities in the catalog
func (c Catalog) PackageIdentities() map[PackageIdentity]struct{} {
	ids := make(map[PackageIdentity]struct{}, len(c.Packages))
	for _, p := range c.Packages {
		ids[p.Identity()] = struct{}{}
	}
	return ids
}
