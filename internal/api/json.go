package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/kiln/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty"`
	Phase string `json:"phase,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// kindStatus maps error kinds that reach clients verbatim.
var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:      http.StatusNotFound,
	apperr.KindAlreadyExists: http.StatusConflict,
	apperr.KindConflict:      http.StatusConflict,
	apperr.KindInvalid:       http.StatusBadRequest,
	apperr.KindTimeout:       http.StatusGatewayTimeout,
	apperr.KindBusy:          http.StatusServiceUnavailable,
}

// writeError answers with the status of err's kind. Unclassified errors are
// logged and hidden behind a 500.
func writeError(w http.ResponseWriter, op, path string, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		slog.Error(op+" failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	msg := kind.String()
	if kind == apperr.KindInvalid {
		msg = err.Error()
	}
	writeJSON(w, status, errResponse{Error: msg, Kind: kind.String()})
}
