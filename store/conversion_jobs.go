package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// EnqueueConversionJob inserts a PENDING job keyed by ImageID. A conflict on
// the unique ImageID index is swallowed (returns the existing row instead of
// erroring), giving enqueue-conversion the idempotent semantics spec.md §9
// calls for: re-submitting a job for an image already in the queue is a
// no-op, not a duplicate.
func (s *Store) EnqueueConversionJob(ctx context.Context, job *types.ConversionJob) (*types.ConversionJob, error) {
	job.CreatedAt, job.UpdatedAt = timestamps()
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_id"}},
		DoNothing: true,
	}).Create(job).Error
	if err != nil {
		return nil, ggerr.Wrap(ggerr.KindTransient, "store.enqueue_conversion", err, "enqueue conversion job")
	}
	return s.GetConversionJobByImage(ctx, job.ImageID)
}

// GetConversionJobByImage loads the conversion job for an image, if any.
func (s *Store) GetConversionJobByImage(ctx context.Context, imageID string) (*types.ConversionJob, error) {
	var job types.ConversionJob
	if err := s.conn(ctx).Where("image_id = ?", imageID).First(&job).Error; err != nil {
		return nil, notFoundOr(err, "conversion_job", imageID)
	}
	return &job, nil
}

// ClaimNextPendingConversionJob atomically claims one PENDING job for a
// worker, transitioning it to RUNNING so concurrent workers never race on
// the same job (spec.md §4.2, §9 "durable queue, not ad-hoc background
// tasks"). Returns (nil, nil) when the queue is empty.
func (s *Store) ClaimNextPendingConversionJob(ctx context.Context) (*types.ConversionJob, error) {
	var job types.ConversionJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ?", types.ConversionJobPending).
			Order("created_at").First(&job).Error; err != nil {
			return err
		}
		return tx.Model(&job).Update("status", types.ConversionJobRunning).Error
	})
	if err != nil {
		if errIsRecordNotFound(err) {
			return nil, nil
		}
		return nil, ggerr.Wrap(ggerr.KindTransient, "store.claim_job", err, "claim conversion job")
	}
	return &job, nil
}

// FinishConversionJob records the terminal status of a claimed job.
func (s *Store) FinishConversionJob(ctx context.Context, id string, status types.ConversionJobStatus, errMsg string) error {
	err := s.conn(ctx).Model(&types.ConversionJob{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "error": errMsg}).Error
	if err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.finish_job", err, "finish conversion job")
	}
	return nil
}
