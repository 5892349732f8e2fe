// Package images implements the image pipeline (spec.md §4.2): chunked
// upload into a content-staged file, optional asynchronous conversion to
// RAW, and atomic promotion to READY.
package images

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/ggnet/ggnet-core/config"
	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/progress"
	"github.com/ggnet/ggnet-core/progress/upload"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
	"github.com/ggnet/ggnet-core/utils"
)

var logger = obslog.WithFunc("images.Pipeline")

// Pipeline drives begin_upload/append_chunk/finalize_upload (spec.md §4.2).
type Pipeline struct {
	cfg *config.Config
	st  *store.Store

	mu      sync.Mutex
	uploads map[string]*uploadState // keyed by upload token (== image id)
}

type uploadState struct {
	mu         sync.Mutex
	path       string
	nextOffset int64
	declared   int64
}

// New creates a Pipeline bound to cfg and st.
func New(cfg *config.Config, st *store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, st: st, uploads: map[string]*uploadState{}}
}

// BeginUpload allocates a staging file and an UPLOADING image row, and
// returns the upload token append_chunk/finalize_upload key off of
// (spec.md §4.2 "begin_upload").
func (p *Pipeline) BeginUpload(ctx context.Context, name string, format types.ImageFormat, declaredSize int64, actor string) (string, error) {
	id := uuid.NewString()
	ext := extFor(format)
	stagingPath := filepath.Join(p.cfg.StagingDir(), id+ext)

	f, err := os.OpenFile(stagingPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640) //nolint:gosec // internal staging path
	if err != nil {
		return "", ggerr.Wrap(ggerr.KindFatal, "images.begin_upload", err, "create staging file")
	}
	if err := f.Close(); err != nil {
		return "", ggerr.Wrap(ggerr.KindFatal, "images.begin_upload", err, "close staging file")
	}

	img := &types.Image{
		ID:        id,
		Name:      name,
		FilePath:  stagingPath,
		Format:    format,
		SizeBytes: declaredSize,
		Status:    types.ImageStatusUploading,
		CreatedBy: actor,
	}
	if err := p.st.CreateImage(ctx, img); err != nil {
		os.Remove(stagingPath) //nolint:errcheck
		return "", err
	}

	p.mu.Lock()
	p.uploads[id] = &uploadState{path: stagingPath, declared: declaredSize}
	p.mu.Unlock()

	logger.Infof(ctx, "begin_upload: image=%s name=%s format=%s size=%d", id, name, format, declaredSize)
	return id, nil
}

// AppendChunk writes bytes at offset into the upload's staging file. Offsets
// must be monotonic and non-overlapping; anything else is a ProtocolError
// (spec.md §4.2).
func (p *Pipeline) AppendChunk(_ context.Context, token string, offset int64, data []byte) error {
	p.mu.Lock()
	st, ok := p.uploads[token]
	p.mu.Unlock()
	if !ok {
		return ggerr.NotFound("images.no_such_upload", "no upload in progress for token "+token)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if offset != st.nextOffset {
		return ggerr.Protocol("images.out_of_order_chunk", "chunk offset is not the next expected byte")
	}

	f, err := os.OpenFile(st.path, os.O_WRONLY, 0o640) //nolint:gosec // internal staging path
	if err != nil {
		return ggerr.Wrap(ggerr.KindFatal, "images.append_chunk", err, "open staging file")
	}
	defer f.Close() //nolint:errcheck

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return ggerr.Wrap(ggerr.KindFatal, "images.append_chunk", err, "write staging file")
	}
	st.nextOffset += int64(n)
	return nil
}

// FinalizeUpload closes the upload, verifies size, computes the checksum,
// and either promotes a RAW upload directly to READY or enqueues a
// conversion job and sets status PROCESSING (spec.md §4.2 "finalize_upload").
func (p *Pipeline) FinalizeUpload(ctx context.Context, token string, tracker progress.Tracker) error {
	p.mu.Lock()
	st, ok := p.uploads[token]
	delete(p.uploads, token)
	p.mu.Unlock()
	if !ok {
		return ggerr.NotFound("images.no_such_upload", "no upload in progress for token "+token)
	}

	if tracker == nil {
		tracker = progress.Nop
	}
	tracker.OnEvent(upload.Event{Phase: upload.PhaseVerifying})

	img, err := p.st.GetImage(ctx, token)
	if err != nil {
		return err
	}

	info, err := os.Stat(st.path)
	if err != nil {
		return ggerr.Wrap(ggerr.KindFatal, "images.finalize_upload", err, "stat staging file")
	}
	if info.Size() != st.declared {
		return ggerr.Protocol("images.size_mismatch", "uploaded bytes do not match declared_size")
	}

	if img.Format == types.ImageFormatRAW {
		return p.promoteRAW(ctx, img, st.path, tracker)
	}
	return p.enqueueConversion(ctx, img, st.path, tracker)
}

func (p *Pipeline) promoteRAW(ctx context.Context, img *types.Image, stagingPath string, tracker progress.Tracker) error {
	checksum, err := checksumFile(stagingPath)
	if err != nil {
		return ggerr.Wrap(ggerr.KindFatal, "images.finalize_upload", err, "checksum staging file")
	}

	finalPath := p.cfg.ImagePath(img.ID)
	tracker.OnEvent(upload.Event{Phase: upload.PhaseCommit})
	if err := utils.RenameAtomic(stagingPath, finalPath); err != nil {
		return ggerr.Wrap(ggerr.KindFatal, "images.finalize_upload", err, "promote staging file")
	}

	img.FilePath = finalPath
	img.Checksum = checksum
	img.Status = types.ImageStatusReady
	if err := p.st.UpdateImage(ctx, img); err != nil {
		return err
	}
	tracker.OnEvent(upload.Event{Phase: upload.PhaseDone})
	logger.Infof(ctx, "finalize_upload: image=%s promoted directly (RAW)", img.ID)
	return nil
}

func (p *Pipeline) enqueueConversion(ctx context.Context, img *types.Image, stagingPath string, tracker progress.Tracker) error {
	img.Status = types.ImageStatusProcessing
	img.FilePath = stagingPath
	if err := p.st.UpdateImage(ctx, img); err != nil {
		return err
	}

	_, err := p.st.EnqueueConversionJob(ctx, &types.ConversionJob{
		ID:           uuid.NewString(),
		ImageID:      img.ID,
		SourcePath:   stagingPath,
		SourceFormat: img.Format,
		DestPath:     p.cfg.ImagePath(img.ID),
		Status:       types.ConversionJobPending,
	})
	if err != nil {
		return err
	}
	tracker.OnEvent(upload.Event{Phase: upload.PhaseConverting})
	logger.Infof(ctx, "finalize_upload: image=%s queued for conversion (%s)", img.ID, img.Format)
	return nil
}

// ArchiveImage soft-deletes an image into ARCHIVED (spec.md §6 "DELETE
// /images/{id}"). Refuses with a ConflictError if any non-terminal target
// still references the image (§3 "Deletion cascades are forbidden").
func (p *Pipeline) ArchiveImage(ctx context.Context, id string) error {
	img, err := p.st.GetImage(ctx, id)
	if err != nil {
		return err
	}
	active, err := p.st.ListActiveTargets(ctx)
	if err != nil {
		return err
	}
	for _, t := range active {
		if t.ImageID == id {
			return ggerr.Conflict("images.referenced_by_target", "image is referenced by a non-terminal target")
		}
	}
	img.Status = types.ImageStatusArchived
	return p.st.UpdateImage(ctx, img)
}

func extFor(format types.ImageFormat) string {
	switch format {
	case types.ImageFormatRAW:
		return ".raw"
	case types.ImageFormatVHD:
		return ".vhd"
	case types.ImageFormatVHDX:
		return ".vhdx"
	case types.ImageFormatQCOW2:
		return ".qcow2"
	case types.ImageFormatVMDK:
		return ".vmdk"
	default:
		return ".img"
	}
}
