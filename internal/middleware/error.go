package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"society-ticketing/internal/logging"

	"github.com/sirupsen/logrus"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes an ErrorBody with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, detail ErrorDetail) {
	detail.RequestID = GetRequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorBody{Error: detail}); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Failed to write error response")
	}
}

// ErrorHandlingMiddleware turns panics into a 500 JSON response
func ErrorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context()).WithFields(logrus.Fields{
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("Recovered from panic")

				WriteError(w, r, http.StatusInternalServerError, ErrorDetail{
					Code:    "INTERNAL",
					Message: "Something went wrong. Please try again.",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND", Message: "no such endpoint"})
	})
}

// MethodNotAllowedHandler handles 405 errors
func MethodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrorDetail{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed for this endpoint"})
	})
}
