package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"society-ticketing/internal/logging"
)

// StudentIDHeader identifies the acting student. Authentication happens
// upstream; this service trusts the header.
const StudentIDHeader = "X-Student-ID"

type contextKey string

const studentContextKey contextKey = "student_id"

// LoadStudent reads the student id header when present and adds it to the
// context and the request logger.
func LoadStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(StudentIDHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			WriteError(w, r, http.StatusBadRequest, ErrorDetail{
				Code:    "INVALID_STUDENT",
				Message: "X-Student-ID must be a positive integer",
			})
			return
		}

		ctx := SetStudentID(r.Context(), id)
		ctx = logging.ToContext(ctx, logging.FromContext(ctx).WithField("student_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireStudent rejects requests without a student id
func RequireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetStudentID(r.Context()); !ok {
			WriteError(w, r, http.StatusUnauthorized, ErrorDetail{
				Code:    "UNAUTHENTICATED",
				Message: "a student is required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStudentID returns the student id stored by LoadStudent.
func GetStudentID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(studentContextKey).(int64)
	return id, ok
}

// SetStudentID stores a student id in ctx.
func SetStudentID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, studentContextKey, id)
}

// RequireOperator admits requests bearing the operator token. With no token
// configured every request is refused.
func RequireOperator(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				WriteError(w, r, http.StatusForbidden, ErrorDetail{
					Code:    "FORBIDDEN",
					Message: "operator access required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
