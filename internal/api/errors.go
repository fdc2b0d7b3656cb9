package api

import (
	"encoding/json"
	"net/http"

	"supersim/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteError writes err with the status derived from its code. Errors without
// a code are internal errors.
func WriteError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.InternalError
	}
	resp := ErrorResponse{Error: err.Error(), Code: string(code)}
	var e *errors.Error
	if errors.As(err, &e) {
		resp.Error = e.Message
		resp.Details = e.Details
	}
	WriteJSON(w, resp, MapErrorToStatus(code))
}

// MapErrorToStatus maps error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.UnresolvedReference, errors.ReferenceCycle, errors.ResolutionTooDeep,
		errors.MalformedSnapshot, errors.MissingSpanLocation, errors.InvalidPosition,
		errors.BlockMissing, errors.AliasTargetMissing:
		return http.StatusBadGateway // 502: the simulator broke the contract
	case errors.BackendUnavailable, errors.NotLoaded, errors.NotConfigured:
		return http.StatusServiceUnavailable // 503
	case errors.BackendRejected:
		return http.StatusUnprocessableEntity // 422
	case errors.StaleResponse, errors.NoSnapshot:
		return http.StatusConflict // 409
	case errors.ObjectNotFound, errors.PresetNotFound:
		return http.StatusNotFound // 404
	case errors.UnknownUnit, errors.InvalidConfig, errors.InvalidRequest:
		return http.StatusBadRequest // 400
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 for malformed request input.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.Newf(errors.InvalidRequest, "%s", message))
}

// ServiceUnavailable writes a 503 for a feature that is not configured.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, errors.Newf(errors.NotConfigured, "%s", message))
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, errors.Newf(errors.InternalError, "%s", message))
}
