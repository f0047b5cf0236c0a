package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/storage/cloudinary"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

const (
	defaultMaxUploadMB = 20
	maxMediaPerGem     = 20
)

type gemLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gem, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AssetStore is the Cloudinary surface used for uploads and deletes.
type AssetStore interface {
	Upload(ctx context.Context, folder, name string, kind enums.MediaKind, file io.Reader) (*cloudinary.Asset, error)
	Destroy(ctx context.Context, publicID string, kind enums.MediaKind) error
	Folder(sub string) string
}

// Service manages images and videos attached to gems.
type Service interface {
	Upload(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input UploadInput) (*gems.MediaDTO, error)
	Update(ctx context.Context, viewer visibility.Viewer, gemID, mediaID uuid.UUID, input UpdateInput) (*gems.MediaDTO, error)
	Delete(ctx context.Context, viewer visibility.Viewer, gemID, mediaID uuid.UUID) error
}

// UploadInput is one multipart file.
type UploadInput struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	Body        io.Reader
	IsCover     bool
}

// UpdateInput changes cover flag and/or ordering.
type UpdateInput struct {
	IsCover  *bool `json:"isCover,omitempty"`
	Sequence *int  `json:"sequence,omitempty" validate:"omitempty,min=0"`
}

type service struct {
	repo           *Repository
	gems           gemLookup
	db             txRunner
	assets         AssetStore
	maxUploadBytes int64
	freeTrialUntil time.Time
	logg           *logger.Logger
	now            func() time.Time
}

// NewService wires media persistence, gem lookups and the asset store.
func NewService(repo *Repository, gemRepo gemLookup, db txRunner, assets AssetStore, cloud config.CloudinaryConfig, listings config.ListingsConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("media repository required")
	}
	if gemRepo == nil {
		return nil, fmt.Errorf("gem repository required")
	}
	if db == nil {
		return nil, fmt.Errorf("db client required")
	}
	if assets == nil {
		return nil, fmt.Errorf("asset store required")
	}
	maxMB := cloud.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}
	return &service{
		repo:           repo,
		gems:           gemRepo,
		db:             db,
		assets:         assets,
		maxUploadBytes: int64(maxMB) * 1024 * 1024,
		freeTrialUntil: listings.FreeTrialUntil,
		logg:           logg,
		now:            time.Now,
	}, nil
}

func (s *service) Upload(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input UploadInput) (*gems.MediaDTO, error) {
	if _, err := s.authorize(ctx, viewer, gemID); err != nil {
		return nil, err
	}
	if input.Body == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is required")
	}
	if input.SizeBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if input.SizeBytes > s.maxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file must be at most %d MB", s.maxUploadBytes/(1024*1024)))
	}
	file, err := inspectUpload(input.ContentType, input.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	kind := file.kind

	count, err := s.repo.Count(ctx, gemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count gem media")
	}
	if count >= maxMediaPerGem {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a gem can have at most %d media files", maxMediaPerGem))
	}

	name := cloudinary.PublicIDFromFilename(strings.TrimSpace(input.FileName))
	asset, err := s.assets.Upload(ctx, s.assets.Folder(gemID.String()), name, kind, file.body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "upload media")
	}

	row := &models.GemMedia{
		GemID:    gemID,
		Kind:     kind,
		URL:      asset.URL,
		PublicID: asset.PublicID,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		seq, err := repo.NextSequence(ctx, gemID)
		if err != nil {
			return err
		}
		row.Sequence = seq
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		// The first image becomes the cover unless the caller picked one.
		if input.IsCover || (seq == 0 && kind == enums.MediaKindImage) {
			row.IsCover = true
			return repo.SetCover(ctx, gemID, row.ID)
		}
		return nil
	})
	if err != nil {
		if destroyErr := s.assets.Destroy(ctx, asset.PublicID, kind); destroyErr != nil {
			s.warn(ctx, "destroy orphaned upload failed", destroyErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist gem media")
	}

	dto := gems.MediaFromModel(*row)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, viewer visibility.Viewer, gemID, mediaID uuid.UUID, input UpdateInput) (*gems.MediaDTO, error) {
	if input.IsCover == nil && input.Sequence == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "isCover or sequence is required")
	}
	if input.Sequence != nil && *input.Sequence < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sequence must be zero or greater")
	}
	if _, err := s.authorize(ctx, viewer, gemID); err != nil {
		return nil, err
	}

	var updated *models.GemMedia
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.Find(ctx, gemID, mediaID)
		if err != nil {
			return err
		}
		if input.Sequence != nil {
			if err := repo.UpdateSequence(ctx, row.ID, *input.Sequence); err != nil {
				return err
			}
		}
		if input.IsCover != nil {
			if *input.IsCover {
				if err := repo.SetCover(ctx, gemID, row.ID); err != nil {
					return err
				}
			} else if err := tx.WithContext(ctx).Model(&models.GemMedia{}).
				Where("id = ?", row.ID).
				UpdateColumn("is_cover", false).Error; err != nil {
				return err
			}
		}
		updated, err = repo.Find(ctx, gemID, mediaID)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "media not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update gem media")
	}
	dto := gems.MediaFromModel(*updated)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, viewer visibility.Viewer, gemID, mediaID uuid.UUID) error {
	if _, err := s.authorize(ctx, viewer, gemID); err != nil {
		return err
	}

	var removed *models.GemMedia
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.Find(ctx, gemID, mediaID)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, row.ID); err != nil {
			return err
		}
		removed = row
		if !row.IsCover {
			return nil
		}
		remaining, err := repo.ListByGem(ctx, gemID)
		if err != nil {
			return err
		}
		for _, m := range remaining {
			if m.Kind == enums.MediaKindImage {
				return repo.SetCover(ctx, gemID, m.ID)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "media not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete gem media")
	}

	if err := s.assets.Destroy(ctx, removed.PublicID, removed.Kind); err != nil {
		s.warn(ctx, "destroy media asset failed", err)
	}
	return nil
}

// authorize loads the gem and hides it from callers that cannot manage it.
func (s *service) authorize(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID) (*models.Gem, error) {
	if viewer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	gem, err := s.gems.FindByID(ctx, gemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
	}
	if visibility.CanManage(gem, viewer) {
		return gem, nil
	}
	if visibility.IsPublic(gem, s.now().UTC(), s.freeTrialUntil) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner or an admin can manage media")
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}
