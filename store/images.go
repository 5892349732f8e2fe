package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// CreateImage inserts a new image row with the status the caller set.
func (s *Store) CreateImage(ctx context.Context, img *types.Image) error {
	img.CreatedAt, img.UpdatedAt = timestamps()
	if err := s.conn(ctx).Create(img).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.create_image", err, "create image")
	}
	return nil
}

// GetImage loads an image by id.
func (s *Store) GetImage(ctx context.Context, id string) (*types.Image, error) {
	var img types.Image
	if err := s.conn(ctx).First(&img, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "image", id)
	}
	return &img, nil
}

// GetImageByName loads the live (non-archived) image with the given name.
func (s *Store) GetImageByName(ctx context.Context, name string) (*types.Image, error) {
	var img types.Image
	err := s.conn(ctx).Where("name = ? AND status <> ?", name, types.ImageStatusArchived).First(&img).Error
	if err != nil {
		return nil, notFoundOr(err, "image", name)
	}
	return &img, nil
}

// ListImages returns every non-archived image.
func (s *Store) ListImages(ctx context.Context) ([]types.Image, error) {
	var imgs []types.Image
	if err := s.conn(ctx).Where("status <> ?", types.ImageStatusArchived).Order("created_at desc").Find(&imgs).Error; err != nil {
		return nil, ggerr.Wrap(ggerr.KindTransient, "store.list_images", err, "list images")
	}
	return imgs, nil
}

// UpdateImage persists the full row, e.g. after a status or field change.
func (s *Store) UpdateImage(ctx context.Context, img *types.Image) error {
	_, img.UpdatedAt = timestamps()
	if err := s.conn(ctx).Save(img).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.update_image", err, "update image")
	}
	return nil
}

// ClaimImageStatus performs claim_status on an image row (spec.md §4.1).
func (s *Store) ClaimImageStatus(ctx context.Context, id string, from, to types.ImageStatus) (bool, error) {
	return ClaimStatus[types.Image](ctx, s, id, from, to)
}

func notFoundOr(err error, kind, id string) error {
	if errIsRecordNotFound(err) {
		return ggerr.NotFound(kind+".not_found", kind+" "+id+" not found")
	}
	return ggerr.Wrap(ggerr.KindTransient, "store."+kind, err, "lookup "+kind)
}

func errIsRecordNotFound(err error) bool {
	return err == gorm.ErrRecordNotFound
}
