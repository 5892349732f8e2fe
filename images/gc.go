package images

import (
	"context"
	"os"
	"time"

	"github.com/ggnet/ggnet-core/gc"
	"github.com/ggnet/ggnet-core/types"
	"github.com/ggnet/ggnet-core/utils"
)

// stagingSnapshot is every image that currently owns a file under
// .staging (UPLOADING or PROCESSING).
type stagingSnapshot struct {
	owned map[string]struct{} // staging file basenames still referenced by an Image row
}

// RegisterGC wires a reconciliation module that removes orphaned staging
// files — left behind by a crash mid-upload or mid-conversion — from the
// generic GC orchestrator (SPEC_FULL.md §12 "Supplemented Features").
func (p *Pipeline) RegisterGC(o *gc.Orchestrator) {
	gc.Register(o, gc.Module[stagingSnapshot]{
		Name:   "images.staging",
		Locker: noopLocker{},
		ReadSnapshot: func(ctx context.Context) (stagingSnapshot, error) {
			imgs, err := p.st.ListImages(ctx)
			if err != nil {
				return stagingSnapshot{}, err
			}
			owned := make(map[string]struct{}, len(imgs))
			for _, img := range imgs {
				if img.Status == types.ImageStatusUploading || img.Status == types.ImageStatusProcessing {
					owned[img.FilePath] = struct{}{}
				}
			}
			return stagingSnapshot{owned: owned}, nil
		},
		Resolve: func(_ stagingSnapshot, _ map[string]any) []string {
			// Deletion targets are computed directly in Collect against
			// the live directory listing; staging files carry no stable
			// cross-module ID worth threading through Resolve.
			return nil
		},
		Collect: func(ctx context.Context, _ []string) error {
			return p.collectOrphanedStaging(ctx)
		},
	})
}

// collectOrphanedStaging removes staging files older than
// utils.StaleTempAge that no Image row references.
func (p *Pipeline) collectOrphanedStaging(ctx context.Context) error {
	imgs, err := p.st.ListImages(ctx)
	if err != nil {
		return err
	}
	owned := make(map[string]struct{}, len(imgs))
	for _, img := range imgs {
		owned[img.FilePath] = struct{}{}
	}

	cutoff := time.Now().Add(-utils.StaleTempAge)
	errs := utils.RemoveMatching(ctx, p.cfg.StagingDir(), func(e os.DirEntry) bool {
		path := p.cfg.StagingDir() + "/" + e.Name()
		if _, referenced := owned[path]; referenced {
			return false
		}
		info, err := e.Info()
		return err == nil && info.ModTime().Before(cutoff)
	})
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// noopLocker lets the staging-cleanup module run without cross-process
// coordination: it only ever removes files no Image row references, so a
// race with an in-flight upload can at worst skip one cycle, never corrupt
// state.
type noopLocker struct{}

func (noopLocker) Lock(context.Context) error             { return nil }
func (noopLocker) Unlock(context.Context) error            { return nil }
func (noopLocker) TryLock(context.Context) (bool, error)   { return true, nil }
