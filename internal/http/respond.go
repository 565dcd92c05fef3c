package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"billstack/internal/core"
	"billstack/internal/lock"
	"billstack/internal/log"
)

// errBadRequest marks malformed input: bad JSON, non-numeric parameters.
var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps an engine error to a status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case core.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrDuplicatePaymentForPeriod):
		return http.StatusConflict, "duplicate_payment"
	case errors.Is(err, core.ErrInstallmentsComplete):
		return http.StatusConflict, "installments_complete"
	case errors.Is(err, core.ErrNoResolvableAccount):
		return http.StatusConflict, "no_account"
	case errors.Is(err, core.ErrBillPayment):
		return http.StatusConflict, "bill_payment"
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, "invalid"
	case errors.Is(err, lock.ErrNotObtained):
		return http.StatusServiceUnavailable, "busy"
	case errors.Is(err, core.ErrPersistence):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, r.Pattern,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
		msg = http.StatusText(status)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldError, err, log.FieldPath, r.URL.Path)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// noContent writes 204.
func noContent(w http.ResponseWriter) error {
	w.WriteHeader(http.StatusNoContent)
	return nil
}
