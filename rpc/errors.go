package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"fundchain/core"
	"fundchain/native/access"
	nativecommon "fundchain/native/common"
	"fundchain/native/crowdfund"
	"fundchain/native/ledger"
)

var errBadRequest = errors.New("rpc: bad request")

// Problem is the JSON error body returned by every failing route.
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Problem{Code: code, Message: message, RequestID: requestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// classify maps an engine error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case access.IsMissingRole(err):
		return http.StatusForbidden, "missing_role"
	case crowdfund.IsAuthorizationError(err):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "module_paused"
	case errors.Is(err, nativecommon.ErrModuleNotPaused):
		return http.StatusConflict, "module_not_paused"
	case errors.Is(err, nativecommon.ErrEmptyModule),
		errors.Is(err, access.ErrUnknownRole),
		errors.Is(err, access.ErrZeroAccount):
		return http.StatusBadRequest, "invalid_argument"
	case crowdfund.IsValidationError(err):
		return http.StatusBadRequest, "invalid_argument"
	case crowdfund.IsPreconditionError(err):
		return http.StatusConflict, "failed_precondition"
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrInsufficientAllowance):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrZeroAddress),
		errors.Is(err, ledger.ErrOverflow):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, core.ErrExecutorClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", requestID(r.Context()), "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	writeProblem(w, r, status, code, message)
}
