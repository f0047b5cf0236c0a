package gems

import (
	"time"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// GemDTO is the API shape of a listing.
type GemDTO struct {
	ID              uuid.UUID         `json:"id"`
	OwnerID         uuid.UUID         `json:"ownerId"`
	Name            string            `json:"name"`
	Slug            string            `json:"slug"`
	Description     string            `json:"description"`
	Category        enums.GemCategory `json:"category"`
	Country         string            `json:"country"`
	City            string            `json:"city"`
	Address         *string           `json:"address,omitempty"`
	Latitude        *float64          `json:"latitude,omitempty"`
	Longitude       *float64          `json:"longitude,omitempty"`
	Phone           *string           `json:"phone,omitempty"`
	Email           *string           `json:"email,omitempty"`
	Website         *string           `json:"website,omitempty"`
	Instagram       *string           `json:"instagram,omitempty"`
	Tags            []string          `json:"tags"`
	Status          enums.GemStatus   `json:"status"`
	Tier            enums.GemTier     `json:"tier"`
	RejectionReason *string           `json:"rejectionReason,omitempty"`
	ViewCount       int64             `json:"viewCount"`
	RatingAvg       float64           `json:"ratingAvg"`
	RatingCount     int64             `json:"ratingCount"`
	TermStartAt     *time.Time        `json:"termStartAt,omitempty"`
	TermEndAt       *time.Time        `json:"termEndAt,omitempty"`
	Media           []MediaDTO        `json:"media"`
	DistanceKm      *float64          `json:"distanceKm,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// MediaDTO is one gem image or video.
type MediaDTO struct {
	ID       uuid.UUID       `json:"id"`
	Kind     enums.MediaKind `json:"kind"`
	URL      string          `json:"url"`
	IsCover  bool            `json:"isCover"`
	Sequence int             `json:"sequence"`
}

// FromModel converts a gem and its preloaded media.
func FromModel(g *models.Gem) *GemDTO {
	if g == nil {
		return nil
	}
	tags := []string(g.Tags)
	if tags == nil {
		tags = []string{}
	}
	media := make([]MediaDTO, 0, len(g.Media))
	for _, m := range g.Media {
		media = append(media, MediaFromModel(m))
	}
	return &GemDTO{
		ID:              g.ID,
		OwnerID:         g.OwnerID,
		Name:            g.Name,
		Slug:            g.Slug,
		Description:     g.Description,
		Category:        g.Category,
		Country:         g.Country,
		City:            g.City,
		Address:         g.Address,
		Latitude:        g.Latitude,
		Longitude:       g.Longitude,
		Phone:           g.Phone,
		Email:           g.Email,
		Website:         g.Website,
		Instagram:       g.Instagram,
		Tags:            tags,
		Status:          g.Status,
		Tier:            g.Tier,
		RejectionReason: g.RejectionReason,
		ViewCount:       g.ViewCount,
		RatingAvg:       g.RatingAvg,
		RatingCount:     g.RatingCount,
		TermStartAt:     g.TermStartAt,
		TermEndAt:       g.TermEndAt,
		Media:           media,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}

func MediaFromModel(m models.GemMedia) MediaDTO {
	return MediaDTO{
		ID:       m.ID,
		Kind:     m.Kind,
		URL:      m.URL,
		IsCover:  m.IsCover,
		Sequence: m.Sequence,
	}
}

// CreateGemInput is the owner-supplied listing.
type CreateGemInput struct {
	Name        string            `json:"name" validate:"required,max=120"`
	Description string            `json:"description" validate:"required,max=5000"`
	Category    enums.GemCategory `json:"category" validate:"required,enum"`
	Country     string            `json:"country" validate:"required"`
	City        string            `json:"city" validate:"required"`
	Address     *string           `json:"address,omitempty"`
	Latitude    *float64          `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64          `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Phone       *string           `json:"phone,omitempty"`
	Email       *string           `json:"email,omitempty" validate:"omitempty,email"`
	Website     *string           `json:"website,omitempty" validate:"omitempty,url"`
	Instagram   *string           `json:"instagram,omitempty"`
	Tags        []string          `json:"tags,omitempty" validate:"max=20"`
}

// UpdateGemInput carries optional changes. Status, Tier and RejectionReason
// are admin-only.
type UpdateGemInput struct {
	Name            *string            `json:"name,omitempty" validate:"omitempty,max=120"`
	Description     *string            `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category        *enums.GemCategory `json:"category,omitempty" validate:"omitempty,enum"`
	Country         *string            `json:"country,omitempty"`
	City            *string            `json:"city,omitempty"`
	Address         *string            `json:"address,omitempty"`
	Latitude        *float64           `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude       *float64           `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Phone           *string            `json:"phone,omitempty"`
	Email           *string            `json:"email,omitempty" validate:"omitempty,email"`
	Website         *string            `json:"website,omitempty" validate:"omitempty,url"`
	Instagram       *string            `json:"instagram,omitempty"`
	Tags            *[]string          `json:"tags,omitempty"`
	Status          *enums.GemStatus   `json:"status,omitempty" validate:"omitempty,enum"`
	Tier            *enums.GemTier     `json:"tier,omitempty" validate:"omitempty,enum"`
	RejectionReason *string            `json:"rejectionReason,omitempty"`
}

func (in UpdateGemInput) touchesModeration() bool {
	return in.Status != nil || in.Tier != nil || in.RejectionReason != nil
}

func (in UpdateGemInput) touchesContent() bool {
	return in.Name != nil || in.Description != nil || in.Category != nil ||
		in.Country != nil || in.City != nil || in.Address != nil ||
		in.Latitude != nil || in.Longitude != nil || in.Phone != nil ||
		in.Email != nil || in.Website != nil || in.Instagram != nil || in.Tags != nil
}

// ListFilters are the public search parameters.
type ListFilters struct {
	Category  *enums.GemCategory
	Country   string
	City      string
	MinRating *float64
	Tier      *enums.GemTier
	Query     string
	// OwnerID restricts to one owner's listings regardless of visibility.
	OwnerID *uuid.UUID
	// Status is honoured only for admins and owner=me listings.
	Status *enums.GemStatus
	Page   int
	Limit  int
}

// NearbyInput drives the radius search.
type NearbyInput struct {
	Lat      *float64
	Lng      *float64
	RadiusKm float64
	Limit    int
	Country  string
	City     string
}
