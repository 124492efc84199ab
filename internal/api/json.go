package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/kbsync/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string `json:"error" validate:"required"`
	Code   string `json:"code,omitempty" example:"validation_error"`
	Op     string `json:"op,omitempty" example:"delete"`
	Path   string `json:"path,omitempty" example:"other-content/Preps/prep.pdf"`
	Detail string `json:"detail,omitempty" example:"http 403: permission denied"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindInvalidRequest:    http.StatusBadRequest,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindUnsupportedMedia:  http.StatusUnsupportedMediaType,
	apperr.KindTrigger:           http.StatusBadGateway,
	apperr.KindSync:              http.StatusBadGateway,
	apperr.KindIndexRemoveFailed: http.StatusBadGateway,
	apperr.KindStoreDeleteFailed: http.StatusBadGateway,
	apperr.KindTimeout:           http.StatusGatewayTimeout,
}

// writeError maps a pipeline error to its status. The body carries the
// operation, the artifact path and the external cause when known.
// Unclassified errors are logged and reported as internal.
func writeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		slog.Error("api: "+op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error", Code: kind.Code()})
		return
	}
	body := errResponse{Error: err.Error(), Code: kind.Code()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Msg != "" {
			body.Error = ae.Msg
		}
		body.Op, body.Path = ae.Op, ae.Path
		if ae.Err != nil {
			body.Detail = ae.Err.Error()
		}
	}
	writeJSON(w, status, body)
}
