package enums

import "slices"

// GemCategory is the fixed set of listing categories.
type GemCategory string

const (
	GemCategoryNature     GemCategory = "nature"
	GemCategoryCulture    GemCategory = "culture"
	GemCategoryFoodDrink  GemCategory = "food_drink"
	GemCategoryAdventure  GemCategory = "adventure"
	GemCategoryArtsCrafts GemCategory = "arts_crafts"
	GemCategoryStays      GemCategory = "stays"
)

var gemCategories = []GemCategory{
	GemCategoryNature, GemCategoryCulture, GemCategoryFoodDrink,
	GemCategoryAdventure, GemCategoryArtsCrafts, GemCategoryStays,
}

func (c GemCategory) String() string { return string(c) }
func (c GemCategory) IsValid() bool  { return slices.Contains(gemCategories, c) }

func ParseGemCategory(raw string) (GemCategory, error) {
	return parse("gem category", gemCategories, raw)
}

// GemStatus is the moderation state of a listing. Only approved gems are
// publicly visible.
type GemStatus string

const (
	GemStatusPending  GemStatus = "pending"
	GemStatusApproved GemStatus = "approved"
	GemStatusRejected GemStatus = "rejected"
	GemStatusExpired  GemStatus = "expired"
)

var gemStatuses = []GemStatus{GemStatusPending, GemStatusApproved, GemStatusRejected, GemStatusExpired}

func (s GemStatus) String() string { return string(s) }
func (s GemStatus) IsValid() bool  { return slices.Contains(gemStatuses, s) }

func ParseGemStatus(raw string) (GemStatus, error) {
	return parse("gem status", gemStatuses, raw)
}

// GemTier is the placement class of a listing; featured gems sort first.
type GemTier string

const (
	GemTierStandard GemTier = "standard"
	GemTierFeatured GemTier = "featured"
)

var gemTiers = []GemTier{GemTierStandard, GemTierFeatured}

func (t GemTier) String() string { return string(t) }
func (t GemTier) IsValid() bool  { return slices.Contains(gemTiers, t) }

func ParseGemTier(raw string) (GemTier, error) {
	return parse("gem tier", gemTiers, raw)
}

// MediaKind is the type of asset attached to a gem.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) IsValid() bool { return k == MediaKindImage || k == MediaKindVideo }
