package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"basehub/internal/middleware"
)

// meta accompanies every successful response.
type meta struct {
	RowCount int64 `json:"rowCount"`
}

// envelope is the success response shape: the payload plus its row count.
type envelope struct {
	Data any  `json:"data"`
	Meta meta `json:"meta"`
}

// errorBody is the error response shape.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, data any, rowCount int64) {
	if data == nil {
		data = []any{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Meta: meta{RowCount: rowCount}})
}

// writeError maps the error onto the domain taxonomy. Internal errors are
// logged with the request ID and answered with a generic message so driver
// details never leak to callers.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := httpStatusFromDomainError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		message = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: status, Message: message})
}
