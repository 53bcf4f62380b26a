package diff

import (
	"github.com/hmrc/bintray-backup-restore/internal/types"
)

// Direction is the way content flows in a run
type Direction string

const (
	DirectionBackup  Direction = "backup"
	DirectionRestore Direction = "restore"
)

type ActionType string

const (
	ActionDownload      ActionType = "download"
	ActionUpload        ActionType = "upload"
	ActionWriteMetadata ActionType = "write_metadata"
	ActionCreatePackage ActionType = "create_package"
)

// Action is one side effect of a run
type Action struct {
	Type ActionType `json:"type"`
	// File is the record to transfer, keyed by its canonical path
	File types.FileRecord `json:"file,omitempty"`
	// Package is the document to write or create
	Package types.PackageMetadata `json:"package,omitempty"`
	// NewPackage marks an upload into a package created in the same run
	NewPackage bool `json:"newPackage,omitempty"`
}

// Path returns the canonical path or package identity the action touches
func (a Action) Path() string {
	switch a.Type {
	case ActionWriteMetadata, ActionCreatePackage:
		return a.Package.Identity().String()
	default:
		return a.File.CanonicalPath()
	}
}

// FailureKind says whether a failed item was a file or a package
type FailureKind string

const (
	FailureFile    FailureKind = "file"
	FailurePackage FailureKind = "package"
)

// Failure is an item that could not be brought in sync
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Path    string      `json:"path"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// Tally counts the outcome of a run. Every pass returns its own tally
// which the caller adds up.
type Tally struct {
	FilesSkipped     int `json:"filesSkipped"`
	FilesTransferred int `json:"filesTransferred"`
	FilesFailed      int `json:"filesFailed"`
	PackagesSkipped  int `json:"packagesSkipped"`
	PackagesCreated  int `json:"packagesCreated"`
	PackagesFailed   int `json:"packagesFailed"`
}

// Add returns the sum of two tallies
func (t Tally) Add(other Tally) Tally {
	return Tally{
		FilesSkipped:     t.FilesSkipped + other.FilesSkipped,
		FilesTransferred: t.FilesTransferred + other.FilesTransferred,
		FilesFailed:      t.FilesFailed + other.FilesFailed,
		PackagesSkipped:  t.PackagesSkipped + other.PackagesSkipped,
		PackagesCreated:  t.PackagesCreated + other.PackagesCreated,
		PackagesFailed:   t.PackagesFailed + other.PackagesFailed,
	}
}

// HasFailures reports whether any item failed
func (t Tally) HasFailures() bool {
	return t.FilesFailed > 0 || t.PackagesFailed > 0
}

// CountFailures tallies failures by kind
func CountFailures(failures []Failure) Tally {
	var t Tally
	for _, f := range failures {
		if f.Kind == FailurePackage {
			t.PackagesFailed++
		} else {
			t.FilesFailed++
		}
	}
	return t
}
