package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// GemMedia is an image or video attached to a gem, ordered by Sequence.
type GemMedia struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GemID     uuid.UUID       `gorm:"column:gem_id;type:uuid;not null;index"`
	Kind      enums.MediaKind `gorm:"column:kind;type:media_kind;not null"`
	URL       string          `gorm:"column:url;not null"`
	PublicID  string          `gorm:"column:public_id;not null"`
	IsCover   bool            `gorm:"column:is_cover;not null;default:false"`
	Sequence  int             `gorm:"column:sequence;not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (GemMedia) TableName() string { return "gem_media" }
