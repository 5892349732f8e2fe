package images

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ggnet/ggnet-core/config"
	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
	"github.com/ggnet/ggnet-core/utils"
)

// pollInterval is how often an idle worker re-checks the queue for a new
// PENDING job (spec.md §4.2 "background worker pool").
const pollInterval = 500 * time.Millisecond

var convLogger = obslog.WithFunc("images.ConversionWorkerPool")

// ConversionWorkerPool consumes ConversionJob rows and transcodes images to
// RAW via the configured qemu-img-compatible binary (spec.md §4.2
// "Conversion", §5 bounded worker pool).
type ConversionWorkerPool struct {
	cfg *config.Config
	st  *store.Store
	sem *semaphore.Weighted
}

// NewConversionWorkerPool bounds concurrent conversions to cfg.ConversionPoolSize.
func NewConversionWorkerPool(cfg *config.Config, st *store.Store) *ConversionWorkerPool {
	size := cfg.ConversionPoolSize
	if size <= 0 {
		size = 1
	}
	return &ConversionWorkerPool{cfg: cfg, st: st, sem: semaphore.NewWeighted(int64(size))}
}

// Run polls the queue until ctx is cancelled, dispatching claimed jobs onto
// the bounded semaphore so at most ConversionPoolSize conversions run at
// once (spec.md §4.2 "Concurrency rules").
func (w *ConversionWorkerPool) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.dispatchAvailable(ctx)
		}
	}
}

// dispatchAvailable claims as many jobs as there are free pool slots right
// now, without blocking the poll loop on a conversion in progress.
func (w *ConversionWorkerPool) dispatchAvailable(ctx context.Context) {
	for {
		if !w.sem.TryAcquire(1) {
			return
		}
		job, err := w.st.ClaimNextPendingConversionJob(ctx)
		if err != nil {
			convLogger.Errorf(ctx, "claim job: %v", err)
			w.sem.Release(1)
			return
		}
		if job == nil {
			w.sem.Release(1)
			return
		}
		go func() {
			defer w.sem.Release(1)
			w.run(ctx, job)
		}()
	}
}

// run performs one conversion and records its terminal status. Re-running a
// completed job is a no-op by construction: ClaimNextPendingConversionJob
// only ever returns PENDING rows (spec.md §4.2 "idempotent by job id").
func (w *ConversionWorkerPool) run(ctx context.Context, job *types.ConversionJob) {
	timeout := w.cfg.TargetCreateTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	convLogger.Infof(ctx, "converting image=%s %s -> raw", job.ImageID, job.SourceFormat)

	tmpDest := job.DestPath + ".converting"
	defer os.Remove(tmpDest) //nolint:errcheck

	cmd := exec.CommandContext(cctx, w.cfg.QEMUImgBinary, "convert", //nolint:gosec // binary+args are internally controlled
		"-f", strings.ToLower(string(job.SourceFormat)), "-O", "raw", job.SourcePath, tmpDest)
	if out, err := cmd.CombinedOutput(); err != nil {
		w.fail(ctx, job, "qemu-img convert: "+strings.TrimSpace(string(out))+": "+err.Error())
		return
	}

	if err := utils.RenameAtomic(tmpDest, job.DestPath); err != nil {
		w.fail(ctx, job, "promote converted file: "+err.Error())
		return
	}

	checksum, err := checksumFile(job.DestPath)
	if err != nil {
		w.fail(ctx, job, "checksum converted file: "+err.Error())
		return
	}

	img, err := w.st.GetImage(ctx, job.ImageID)
	if err != nil {
		convLogger.Errorf(ctx, "load image %s after conversion: %v", job.ImageID, err)
		return
	}
	img.FilePath = job.DestPath
	img.Checksum = checksum
	img.Status = types.ImageStatusReady
	if err := w.st.UpdateImage(ctx, img); err != nil {
		convLogger.Errorf(ctx, "promote image %s after conversion: %v", job.ImageID, err)
		return
	}
	if err := w.st.FinishConversionJob(ctx, job.ID, types.ConversionJobDone, ""); err != nil {
		convLogger.Errorf(ctx, "mark job %s done: %v", job.ID, err)
	}
	os.Remove(job.SourcePath) //nolint:errcheck
	convLogger.Infof(ctx, "conversion complete: image=%s", job.ImageID)
}

// fail records the conversion failure on both the job and the image,
// removing the staging file (spec.md §4.2 "On failure... removes the
// staging file").
func (w *ConversionWorkerPool) fail(ctx context.Context, job *types.ConversionJob, msg string) {
	convLogger.Errorf(ctx, "conversion failed: image=%s: %s", job.ImageID, msg)
	if err := w.st.FinishConversionJob(ctx, job.ID, types.ConversionJobError, msg); err != nil {
		convLogger.Errorf(ctx, "record job failure %s: %v", job.ID, err)
	}
	img, err := w.st.GetImage(ctx, job.ImageID)
	if err != nil {
		convLogger.Errorf(ctx, "load image %s after failed conversion: %v", job.ImageID, err)
		return
	}
	img.Status = types.ImageStatusError
	if err := w.st.UpdateImage(ctx, img); err != nil {
		convLogger.Errorf(ctx, "mark image %s error: %v", job.ImageID, err)
	}
	os.Remove(job.SourcePath) //nolint:errcheck
}
