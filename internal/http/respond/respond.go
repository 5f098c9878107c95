// Package respond maps service results and workflow errors onto HTTP
// responses, so every handler reports the error taxonomy the same way.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/RFarrand/commis/internal/workflow"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Error translates workflow sentinels into status codes: validation is
// 400, forbidden 403, an unmet transition precondition 409. Not-found
// sentinels are the caller's to map; everything else is a 500 with the
// detail kept out of the body.
func Error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		JSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, workflow.ErrForbidden):
		JSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, workflow.ErrInvalidTransition):
		JSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		slog.Error("request failed", "error", err)
		JSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func NotFound(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusNotFound, errorBody{Error: msg})
}
