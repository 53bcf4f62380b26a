package cli

import (
	"sync"

	"github.com/hmrc/bintray-backup-restore/internal/sync/diff"
)

// progressReporter prints catalog and transfer progress to stderr. Failures
// are always shown; everything else only with --verbose. Catalog workers and
// transfer workers call it concurrently, so every method holds mu.
type progressReporter struct {
	out *OutputWriter

	mu     sync.Mutex
	done   int
	failed int
}

func newProgressReporter(out *OutputWriter) *progressReporter {
	return &progressReporter{out: out}
}

func (p *progressReporter) RepositoryListed(repository string, packages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out.Verbose("%s: %d packages", repository, packages)
}

func (p *progressReporter) PackageLoaded(repository, pkg string, files int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out.Verbose("%s/%s: %d files", repository, pkg, files)
}

func (p *progressReporter) ActionDone(action diff.Action, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if err != nil {
		p.failed++
		p.out.Log("FAILED %s %s: %v", action.Type, action.Path(), err)
		return
	}
	p.out.Verbose("[%d] %s %s", p.done, action.Type, action.Path())
}
