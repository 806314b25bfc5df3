package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"society-ticketing/internal/logging"
	"society-ticketing/internal/middleware"
	"society-ticketing/internal/models"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// conflictCodes are validation failures caused by current state rather
// than a malformed request.
var conflictCodes = map[string]bool{
	models.CodeOutOfStock:        true,
	models.CodeNotReleased:       true,
	models.CodeEventNotActive:    true,
	models.CodeAlreadyMember:     true,
	models.CodeMembershipInCart:  true,
	models.CodeMembershipClosed:  true,
	models.CodeCapacityBelowSold: true,
	models.CodeEventCancelled:    true,
	models.CodeCartChanged:       true,
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Failed to write response")
	}
}

// writeServiceError maps a domain error to a status and a body that is safe
// to show the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	switch models.KindOf(err) {
	case models.KindValidation:
		var ve *models.ValidationError
		errors.As(err, &ve)
		status := http.StatusBadRequest
		if conflictCodes[ve.Code] {
			status = http.StatusConflict
		}
		middleware.WriteError(w, r, status, middleware.ErrorDetail{Code: ve.Code, Field: ve.Field, Message: ve.Message})

	case models.KindGateway:
		var ge *models.GatewayError
		errors.As(err, &ge)
		log.WithError(err).WithField("gateway_kind", ge.Kind).Warn("Payment gateway rejected checkout")
		message := ge.UserMessage
		if message == "" {
			message = "We could not process your payment. Please try again."
		}
		middleware.WriteError(w, r, http.StatusPaymentRequired, middleware.ErrorDetail{Code: string(models.KindGateway), Message: message})

	case models.KindOversell:
		log.WithError(err).Warn("Checkout lost a race for the last tickets")
		middleware.WriteError(w, r, http.StatusConflict, middleware.ErrorDetail{
			Code:    string(models.KindOversell),
			Message: "Some tickets in your cart sold out while you were checking out. You have not been charged.",
		})

	case models.KindNotFound:
		middleware.WriteError(w, r, http.StatusNotFound, middleware.ErrorDetail{Code: string(models.KindNotFound), Message: notFoundMessage(err)})

	default:
		log.WithError(err).Error("Request failed")
		middleware.WriteError(w, r, http.StatusInternalServerError, middleware.ErrorDetail{
			Code:    string(models.KindInternal),
			Message: "Something went wrong. Please try again.",
		})
	}
}

func notFoundMessage(err error) string {
	for _, sentinel := range []error{
		models.ErrEventNotFound,
		models.ErrSocietyNotFound,
		models.ErrStudentNotFound,
		models.ErrCartLineNotFound,
		models.ErrOrderNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "not found"
}

func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorDetail{Code: "BAD_REQUEST", Field: field, Message: message})
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, r, "", "invalid JSON body")
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, r, name, "invalid "+name)
		return 0, false
	}
	return id, true
}

// studentID is set by middleware.RequireStudent on every route that calls it.
func studentID(r *http.Request) int64 {
	id, _ := middleware.GetStudentID(r.Context())
	return id
}
