package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/psantana5/regionocr/pkg/models"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// leaf errors whose message is the whole client-facing detail
var detailErrors = []error{
	models.ErrJobNotFound,
	models.ErrExportNotFound,
	models.ErrNoRegions,
	models.ErrNotCompleted,
}

// statusFor maps an error to its HTTP status and response detail
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, detailOf(err)
	case errors.Is(err, models.ErrPreconditionFailed):
		return http.StatusBadRequest, detailOf(err)
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func detailOf(err error) string {
	for _, leaf := range detailErrors {
		if errors.Is(err, leaf) {
			return leaf.Error()
		}
	}
	return err.Error()
}

func (h *JobHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, detail := statusFor(err)
	fields := map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": code,
		"error":  err.Error(),
	}
	if code >= 500 {
		h.logger.Error("Request failed", fields)
	} else {
		h.logger.Debug("Request rejected", fields)
	}
	writeDetail(w, code, detail)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
