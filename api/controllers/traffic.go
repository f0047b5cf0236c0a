package controllers

import (
	"net/http"
	"strings"

	"github.com/hiddengems/hiddengems-backend/api/responses"
	"github.com/hiddengems/hiddengems-backend/api/validators"
	"github.com/hiddengems/hiddengems-backend/internal/traffic"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

const countryHeader = "CF-IPCountry"

// TrafficRecord stores one page view. Anonymous callers are welcome.
func TrafficRecord(svc traffic.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "traffic service unavailable"))
			return
		}

		var body traffic.RecordInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ua := validators.SanitizeString(r.UserAgent(), 512); ua != "" {
			body.UserAgent = &ua
		}
		if country := strings.ToUpper(validators.SanitizeString(r.Header.Get(countryHeader), 2)); country != "" {
			body.Country = &country
		}

		if err := svc.Record(r.Context(), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]bool{"recorded": true})
	}
}

// TrafficStats returns the cached summary for the window. Admins see every
// gem; owners only their own.
func TrafficStats(svc traffic.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "traffic service unavailable"))
			return
		}

		viewer, err := requireViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		days, err := validators.ParseQueryInt(r, "days", 7, 1, 90)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gemID, err := parseOptionalUUIDQuery(r, "gemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := svc.Stats(r.Context(), viewer, traffic.StatsQuery{Days: days, GemID: gemID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}
