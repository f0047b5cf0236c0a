package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/api/middleware"
	"github.com/hiddengems/hiddengems-backend/api/responses"
	"github.com/hiddengems/hiddengems-backend/api/validators"
	"github.com/hiddengems/hiddengems-backend/internal/ratings"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

func RatingList(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rating service unavailable"))
			return
		}

		gemID, err := parseUUIDParam(r, "gemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, limit, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), middleware.ViewerFromContext(r.Context()), gemID, page, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func RatingCreate(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return ratingWrite(svc, logg, true)
}

// RatingUpdate edits the caller's own rating on the gem.
func RatingUpdate(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return ratingWrite(svc, logg, false)
}

func ratingWrite(svc ratings.Service, logg *logger.Logger, create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rating service unavailable"))
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

		var body ratings.Input
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if create {
			rating, err := svc.Create(r.Context(), viewer, gemID, body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusCreated, rating)
			return
		}

		rating, err := svc.Update(r.Context(), viewer, gemID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rating)
	}
}

// RatingDelete removes the caller's own rating, or any rating named by
// ?ratingId= when the caller is an admin.
func RatingDelete(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rating service unavailable"))
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
		ratingID, err := parseOptionalUUIDQuery(r, "ratingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target := uuid.Nil
		if ratingID != nil {
			target = *ratingID
		}

		if err := svc.Delete(r.Context(), viewer, gemID, target); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
