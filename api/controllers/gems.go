package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hiddengems/hiddengems-backend/api/middleware"
	"github.com/hiddengems/hiddengems-backend/api/responses"
	"github.com/hiddengems/hiddengems-backend/api/validators"
	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

// GemList searches gems visible to the caller. owner=me lists the caller's
// own gems in any status.
func GemList(svc gems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gem service unavailable"))
			return
		}

		filters, err := parseGemFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), middleware.ViewerFromContext(r.Context()), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseGemFilters(r *http.Request) (gems.ListFilters, error) {
	query := r.URL.Query()
	page, limit, err := parsePage(r)
	if err != nil {
		return gems.ListFilters{}, err
	}
	filters := gems.ListFilters{
		Country: validators.SanitizeString(query.Get("country"), 80),
		City:    validators.SanitizeString(query.Get("city"), 80),
		Query:   validators.SanitizeString(query.Get("q"), 120),
		Page:    page,
		Limit:   limit,
	}

	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		category, err := enums.ParseGemCategory(raw)
		if err != nil {
			return gems.ListFilters{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
		}
		filters.Category = &category
	}
	if raw := strings.TrimSpace(query.Get("tier")); raw != "" {
		tier, err := enums.ParseGemTier(raw)
		if err != nil {
			return gems.ListFilters{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier")
		}
		filters.Tier = &tier
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseGemStatus(raw)
		if err != nil {
			return gems.ListFilters{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
		}
		filters.Status = &status
	}
	minRating, err := parseOptionalFloatQuery(r, "minRating")
	if err != nil {
		return gems.ListFilters{}, err
	}
	if minRating != nil && (*minRating < 0 || *minRating > 5) {
		return gems.ListFilters{}, pkgerrors.New(pkgerrors.CodeValidation, "minRating must be between 0 and 5")
	}
	filters.MinRating = minRating

	if strings.EqualFold(strings.TrimSpace(query.Get("owner")), "me") {
		viewer, err := requireViewer(r)
		if err != nil {
			return gems.ListFilters{}, err
		}
		filters.OwnerID = &viewer.ID
	}
	return filters, nil
}

// GemGet resolves a gem by id or slug.
func GemGet(svc gems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gem service unavailable"))
			return
		}

		idOrSlug := strings.TrimSpace(chi.URLParam(r, "gemId"))
		if idOrSlug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gem id is required"))
			return
		}

		gem, err := svc.Get(r.Context(), middleware.ViewerFromContext(r.Context()), idOrSlug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gem)
	}
}

func GemCreate(svc gems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gem service unavailable"))
			return
		}

		viewer, err := requireViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body gems.CreateGemInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gem, err := svc.Create(r.Context(), viewer, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, gem)
	}
}

func GemUpdate(svc gems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gem service unavailable"))
			return
		}

		viewer, err := requireViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gemID, err := parseUUIDParam(r, "gemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body gems.UpdateGemInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gem, err := svc.Update(r.Context(), viewer, gemID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gem)
	}
}

func GemDelete(svc gems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gem service unavailable"))
			return
		}

		viewer, err := requireViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gemID, err := parseUUIDParam(r, "gemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), viewer, gemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// GemNearby runs the radius search around lat/lng.
func GemNearby(svc gems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gem service unavailable"))
			return
		}

		lat, err := parseOptionalFloatQuery(r, "lat")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lng, err := parseOptionalFloatQuery(r, "lng")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		radius, err := parseOptionalFloatQuery(r, "radiusKm")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		radiusKm := 0.0
		if radius != nil {
			radiusKm = *radius
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := gems.NearbyInput{
			Lat:      lat,
			Lng:      lng,
			RadiusKm: radiusKm,
			Limit:    limit,
			Country:  validators.SanitizeString(r.URL.Query().Get("country"), 80),
			City:     validators.SanitizeString(r.URL.Query().Get("city"), 80),
		}
		items, err := svc.Nearby(r.Context(), middleware.ViewerFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}
