package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/outcomefi/marketd/internal/domain"
)

// writeJSON serializes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP statuses: missing records are 404,
// malformed requests 400, stage conflicts 409, and rejected-but-well-formed
// operations (insufficient payment, slippage, overdraw) 422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidPayoutVector),
		errors.Is(err, domain.ErrUnknownOutcome),
		errors.Is(err, domain.ErrUnknownInstruction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStage),
		errors.Is(err, domain.ErrNotFinalized):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrZeroPayout),
		errors.Is(err, domain.ErrNoFeesAccrued),
		errors.Is(err, domain.ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

// writeErrorWithRefund reports a failed transfer along with the attached
// funds owed back to the payer.
func writeErrorWithRefund(w http.ResponseWriter, err error, refund uint64) {
	writeJSON(w, statusFor(err), map[string]any{
		"error":  err.Error(),
		"refund": refund,
	})
}

// writeBadRequest reports a malformed request body or parameter.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// pathID parses the {id} path segment as a market id.
func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

// decodeBody strictly decodes the request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// listOpts reads limit/offset query parameters.
func listOpts(r *http.Request) domain.ListOpts {
	var opts domain.ListOpts
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	return opts
}
