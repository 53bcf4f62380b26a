package utils

import "strings"

// Bintray API base URLs
const (
	APIBaseURL      = "https://bintray.com/api/v1"
	DownloadBaseURL = "https://dl.bintray.com"
)

// Pagination headers reported by package listings
const (
	HeaderRangeEndPos = "X-RangeLimit-EndPos"
	HeaderRangeTotal  = "X-RangeLimit-Total"
)

// MaxListPages bounds package listing pagination
const MaxListPages = 10000

// Package creation defaults
const (
	DefaultLicense = "Apache-2.0"
	DefaultVCSURL  = "https://github.com/hmrc"
)

// PackageMetadataFileName is the sidecar document stored at each package root
const PackageMetadataFileName = "package_metadata.json"

// PartialDownloadSuffix ends the name of a download still being written
const PartialDownloadSuffix = ".part"

// PartialDownloadPattern is the os.CreateTemp pattern for a download into name
func PartialDownloadPattern(name string) string {
	return "." + name + ".*" + PartialDownloadSuffix
}

// IsPartialDownload reports whether name is a temp file left by a download
// that never completed
func IsPartialDownload(name string) bool {
	return len(name) > 1 && name[0] == '.' && strings.HasSuffix(name, PartialDownloadSuffix)
}

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Transfer defaults
const (
	DefaultConcurrency     = 4
	DefaultRequestTimeoutS = 300
)

// Backup repositories used when none are configured
var DefaultRepositories = []string{"releases", "sbt-plugin-releases"}

// Schema version
const SchemaVersion = "1.0"
