package diff

import (
	"path"

	"github.com/hmrc/bintray-backup-restore/internal/sync/scanner"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// Hasher computes the content hash of a local file
type Hasher func(path string) (string, error)

// Plan is the outcome of comparing two catalogs. Comparisons are synchronous
// and never touch the remote side; local hashes are computed on demand.
type Plan struct {
	Direction Direction `json:"direction"`
	// Packages holds metadata writes (backup) or package creations (restore)
	Packages []Action `json:"packages"`
	// Transfers holds downloads (backup) or uploads (restore)
	Transfers []Action  `json:"transfers"`
	Failures  []Failure `json:"failures"`
	Tally     Tally     `json:"tally"`
}

// ReconcilePackages returns the source packages missing from target, in
// source order, and how many source packages the target already has.
func ReconcilePackages(source, target []types.PackageMetadata) (missing []types.PackageMetadata, present int) {
	existing := make(map[types.PackageIdentity]struct{}, len(target))
	for _, p := range target {
		existing[p.Identity()] = struct{}{}
	}
	seen := make(map[types.PackageIdentity]struct{}, len(source))
	for _, p := range source {
		id := p.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := existing[id]; ok {
			present++
			continue
		}
		missing = append(missing, p)
	}
	return missing, present
}

// PlanBackup compares the remote catalog (authoritative) with the local one.
// Every remote package gets its metadata written. A remote file is skipped
// only when the local file at the same canonical path hashes to the listed
// SHA-1; the local hash is only computed when that file exists.
func PlanBackup(remote, local scanner.Snapshot, hash Hasher) Plan {
	plan := Plan{Direction: DirectionBackup}
	plan.Failures = rejectionFailures(remote.Rejected)

	// Packages already backed up are counted as skipped when their
	// metadata is rewritten.
	missing, _ := ReconcilePackages(remote.Packages, local.Packages)
	isNew := make(map[types.PackageIdentity]struct{}, len(missing))
	for _, p := range missing {
		isNew[p.Identity()] = struct{}{}
	}
	seen := make(map[types.PackageIdentity]struct{}, len(remote.Packages))
	for _, p := range remote.Packages {
		if _, dup := seen[p.Identity()]; dup {
			continue
		}
		seen[p.Identity()] = struct{}{}
		_, created := isNew[p.Identity()]
		plan.Packages = append(plan.Packages, Action{Type: ActionWriteMetadata, Package: p, NewPackage: created})
	}

	localByPath := local.FilesByPath()
	for _, f := range remote.Files {
		if l, ok := localByPath[f.CanonicalPath()]; ok {
			digest, err := hash(l.LocalPath)
			if err != nil {
				plan.Failures = append(plan.Failures, fileFailure(f, err))
				continue
			}
			if f.SHA1 != "" && digest == f.SHA1 {
				plan.Tally.FilesSkipped++
				continue
			}
		}
		plan.Transfers = append(plan.Transfers, Action{Type: ActionDownload, File: f})
	}

	plan.Tally = plan.Tally.Add(CountFailures(plan.Failures))
	return plan
}

// PlanRestore compares the local catalog (authoritative) with the remote one.
// Missing packages are created. Local files are hashed only when the remote
// side lists the same canonical path; remote-only files are ignored.
// Uploads are gated on the package existing remotely or being created in
// this run; files of any other package fail without a transfer.
func PlanRestore(local, remote scanner.Snapshot, hash Hasher) Plan {
	plan := Plan{Direction: DirectionRestore}
	plan.Failures = rejectionFailures(local.Rejected)

	missing, present := ReconcilePackages(local.Packages, remote.Packages)
	plan.Tally.PackagesSkipped = present

	remotePackages := remote.PackageIdentities()
	creating := make(map[types.PackageIdentity]struct{}, len(missing))
	for _, p := range missing {
		creating[p.Identity()] = struct{}{}
		plan.Packages = append(plan.Packages, Action{Type: ActionCreatePackage, Package: p, NewPackage: true})
	}

	remoteByPath := remote.FilesByPath()
	for _, f := range local.Files {
		id := f.Identity()
		_, exists := remotePackages[id]
		_, created := creating[id]
		if !exists && !created {
			plan.Failures = append(plan.Failures, Failure{
				Kind:    FailureFile,
				Path:    f.CanonicalPath(),
				Code:    utils.ErrCodeConfiguration,
				Message: "package " + id.String() + " has no local metadata and does not exist remotely",
			})
			continue
		}

		if r, ok := remoteByPath[f.CanonicalPath()]; ok {
			digest, err := hash(f.LocalPath)
			if err != nil {
				plan.Failures = append(plan.Failures, fileFailure(f, err))
				continue
			}
			if r.SHA1 != "" && digest == r.SHA1 {
				plan.Tally.FilesSkipped++
				continue
			}
		}
		plan.Transfers = append(plan.Transfers, Action{Type: ActionUpload, File: f, NewPackage: created})
	}

	plan.Tally = plan.Tally.Add(CountFailures(plan.Failures))
	return plan
}

func rejectionFailures(rejected []scanner.Rejection) []Failure {
	var failures []Failure
	for _, r := range rejected {
		kind := FailureFile
		if path.Base(r.Path) == utils.PackageMetadataFileName {
			kind = FailurePackage
		}
		failures = append(failures, Failure{
			Kind:    kind,
			Path:    r.Path,
			Code:    r.Code,
			Message: r.Reason,
		})
	}
	return failures
}

func fileFailure(f types.FileRecord, err error) Failure {
	return Failure{
		Kind:    FailureFile,
		Path:    f.CanonicalPath(),
		Code:    utils.ErrorCode(err),
		Message: err.Error(),
	}
}
