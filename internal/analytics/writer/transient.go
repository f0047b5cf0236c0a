package writer

import (
	"errors"
	"net/http"
	"slices"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	transientHTTP = []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
	transientGRPC = []codes.Code{
		codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable,
	}
)

// Transient reports whether retrying an insert that failed with err could
// succeed. Row-level failures count only when every row failed transiently.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return len(multi) > 0 && !slices.ContainsFunc(multi, func(e error) bool { return !Transient(e) })
	}
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		return len(rows) > 0 && !slices.ContainsFunc(rows, func(r cbigquery.RowInsertionError) bool { return !Transient(r.Errors) })
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return slices.Contains(transientHTTP, apiErr.Code)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return slices.Contains(transientGRPC, st.Code())
	}
	return false
}
