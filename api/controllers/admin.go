package controllers

import (
	"net/http"
	"strings"

	"github.com/hiddengems/hiddengems-backend/api/responses"
	"github.com/hiddengems/hiddengems-backend/api/validators"
	"github.com/hiddengems/hiddengems-backend/internal/admin"
	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

type adminRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type adminRejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type adminTierRequest struct {
	Tier string `json:"tier" validate:"required"`
}

func AdminListUsers(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		page, limit, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters := admin.UserFilters{
			Search: validators.SanitizeString(r.URL.Query().Get("q"), 120),
			Page:   page,
			Limit:  limit,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
			role, err := enums.ParseRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid role"))
				return
			}
			filters.Role = &role
		}

		result, err := svc.ListUsers(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminSetUserRole(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		userID, err := parseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adminRoleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParseRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid role"))
			return
		}

		user, err := svc.SetUserRole(r.Context(), userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

func AdminListPayments(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		filters, err := parsePaymentFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListPayments(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parsePaymentFilters(r *http.Request) (payments.ListFilters, error) {
	page, limit, err := parsePage(r)
	if err != nil {
		return payments.ListFilters{}, err
	}
	filters := payments.ListFilters{Page: page, Limit: limit}
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return payments.ListFilters{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("purpose")); raw != "" {
		purpose, err := enums.ParsePaymentPurpose(raw)
		if err != nil {
			return payments.ListFilters{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid purpose")
		}
		filters.Purpose = &purpose
	}
	if raw := strings.TrimSpace(query.Get("tier")); raw != "" {
		tier, err := enums.ParseGemTier(raw)
		if err != nil {
			return payments.ListFilters{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier")
		}
		filters.Tier = &tier
	}
	if filters.UserID, err = parseOptionalUUIDQuery(r, "userId"); err != nil {
		return payments.ListFilters{}, err
	}
	if filters.GemID, err = parseOptionalUUIDQuery(r, "gemId"); err != nil {
		return payments.ListFilters{}, err
	}
	return filters, nil
}

func AdminPaymentStats(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		stats, err := svc.PaymentStats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func AdminApproveGem(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		gemID, err := parseUUIDParam(r, "gemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gem, err := svc.ApproveGem(r.Context(), gemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gem)
	}
}

func AdminRejectGem(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		gemID, err := parseUUIDParam(r, "gemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adminRejectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gem, err := svc.RejectGem(r.Context(), gemID, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gem)
	}
}

func AdminSetGemTier(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		gemID, err := parseUUIDParam(r, "gemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adminTierRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tier, err := enums.ParseGemTier(body.Tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier"))
			return
		}

		gem, err := svc.SetGemTier(r.Context(), gemID, tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gem)
	}
}

// AdminAnnounce fans a system notification out to every user, or to the
// listed roles.
func AdminAnnounce(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		var body admin.AnnouncementInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Announce(r.Context(), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]bool{"queued": true})
	}
}
